package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"expense-reconciliation-engine/internal/generator"
	"expense-reconciliation-engine/internal/ledger"
	"expense-reconciliation-engine/internal/reconciler"
	"expense-reconciliation-engine/internal/storage/sqlite"
	"expense-reconciliation-engine/pkg/errors"
)

// emptySource satisfies ledger.Source with no data.
type emptySource struct{}

func (emptySource) Refresh(context.Context, string) error { return nil }
func (emptySource) ListTransactions(context.Context, string) ([]ledger.Transaction, error) {
	return nil, nil
}

func newTestScheduler(t *testing.T) (*Scheduler, *Metrics) {
	t.Helper()

	store, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	gen, err := generator.New(store, nil, nil, nil)
	if err != nil {
		t.Fatalf("failed to create generator: %v", err)
	}
	rec, err := reconciler.New(store, emptySource{}, nil, nil, nil, nil)
	if err != nil {
		t.Fatalf("failed to create reconciler: %v", err)
	}

	metrics := NewMetrics(prometheus.NewRegistry())
	sched, err := New(gen, rec, nil, metrics, nil)
	if err != nil {
		t.Fatalf("failed to create scheduler: %v", err)
	}

	return sched, metrics
}

func TestParseScheduleTime(t *testing.T) {
	tests := []struct {
		input   string
		want    ScheduleTime
		wantErr bool
	}{
		{"06:00", ScheduleTime{6, 0}, false},
		{"23:59", ScheduleTime{23, 59}, false},
		{" 09:30 ", ScheduleTime{9, 30}, false},
		{"24:00", ScheduleTime{}, true},
		{"06:60", ScheduleTime{}, true},
		{"600", ScheduleTime{}, true},
		{"", ScheduleTime{}, true},
	}

	for _, tt := range tests {
		got, err := ParseScheduleTime(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseScheduleTime(%q): expected error", tt.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseScheduleTime(%q) failed: %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseScheduleTime(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestScheduleTimeNextAfter(t *testing.T) {
	at := ScheduleTime{Hour: 6, Minute: 0}

	before := time.Date(2026, 3, 10, 5, 0, 0, 0, time.UTC)
	if next := at.NextAfter(before); !next.Equal(time.Date(2026, 3, 10, 6, 0, 0, 0, time.UTC)) {
		t.Errorf("expected same-day occurrence, got %v", next)
	}

	after := time.Date(2026, 3, 10, 7, 0, 0, 0, time.UTC)
	if next := at.NextAfter(after); !next.Equal(time.Date(2026, 3, 11, 6, 0, 0, 0, time.UTC)) {
		t.Errorf("expected next-day occurrence, got %v", next)
	}

	exactly := time.Date(2026, 3, 10, 6, 0, 0, 0, time.UTC)
	if next := at.NextAfter(exactly); !next.After(exactly) {
		t.Errorf("expected strictly-after occurrence, got %v", next)
	}
}

func TestTriggerSyncRunsPass(t *testing.T) {
	sched, _ := newTestScheduler(t)

	result, err := sched.TriggerSync(context.Background())
	if err != nil {
		t.Fatalf("TriggerSync failed: %v", err)
	}
	if result == nil {
		t.Fatal("expected a sync result")
	}
}

func TestBusyTriggerIsDropped(t *testing.T) {
	sched, metrics := newTestScheduler(t)

	// Hold the guard the way an in-flight pass would.
	sched.syncMu.Lock()
	defer sched.syncMu.Unlock()

	_, err := sched.TriggerSync(context.Background())
	if !errors.IsCode(err, errors.CodeSyncBusy) {
		t.Fatalf("expected sync-busy error, got %v", err)
	}

	dropped := testutil.ToFloat64(metrics.DroppedTriggers.WithLabelValues(passSync))
	if dropped != 1 {
		t.Errorf("expected 1 dropped trigger counted, got %v", dropped)
	}
}

func TestTriggerGenerateRunsPass(t *testing.T) {
	sched, _ := newTestScheduler(t)

	result, err := sched.TriggerGenerate(context.Background())
	if err != nil {
		t.Fatalf("TriggerGenerate failed: %v", err)
	}
	if result == nil {
		t.Fatal("expected a generation result")
	}
}

func TestStartStop(t *testing.T) {
	sched, _ := newTestScheduler(t)

	sched.Start(context.Background())
	if err := sched.Stop(5 * time.Second); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}

func TestConfigValidation(t *testing.T) {
	cfg := &Config{SyncInterval: time.Second, GenerateAt: "06:00"}
	if err := cfg.Validate(); err == nil {
		t.Error("expected sub-minute interval to be rejected")
	}

	cfg = &Config{SyncInterval: time.Hour, GenerateAt: "25:00"}
	if err := cfg.Validate(); err == nil {
		t.Error("expected invalid schedule time to be rejected")
	}
}
