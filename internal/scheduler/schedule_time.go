package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"expense-reconciliation-engine/pkg/errors"
)

// ScheduleTime is a daily wall-clock time ("HH:MM") at which a pass
// runs.
type ScheduleTime struct {
	Hour   int
	Minute int
}

// ParseScheduleTime parses "HH:MM" in 24-hour time.
func ParseScheduleTime(s string) (ScheduleTime, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return ScheduleTime{}, errors.ConfigurationError(errors.CodeInvalidConfig, "schedule time", s,
			fmt.Errorf("expected HH:MM"))
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return ScheduleTime{}, errors.ConfigurationError(errors.CodeInvalidConfig, "schedule hour", parts[0], err)
	}

	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return ScheduleTime{}, errors.ConfigurationError(errors.CodeInvalidConfig, "schedule minute", parts[1], err)
	}

	return ScheduleTime{Hour: hour, Minute: minute}, nil
}

// String returns the canonical "HH:MM" form.
func (t ScheduleTime) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// NextAfter returns the next occurrence strictly after now.
func (t ScheduleTime) NextAfter(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), t.Hour, t.Minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
