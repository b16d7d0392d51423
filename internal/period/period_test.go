package period

import (
	"testing"
	"time"

	"expense-reconciliation-engine/internal/models"
)

func TestResolveMonthly(t *testing.T) {
	p, ok := Resolve(models.FrequencyMonthly, 2025, time.March, 5, 1)
	if !ok {
		t.Fatal("Expected monthly frequency to apply to every month")
	}

	if p.Key != "2025-03" {
		t.Errorf("Expected key 2025-03, got %s", p.Key)
	}

	expected := time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)
	if !p.DueDate.Equal(expected) {
		t.Errorf("Expected due date %v, got %v", expected, p.DueDate)
	}
}

func TestResolveQuarterlyGating(t *testing.T) {
	// Non-quarter months must produce no period
	for _, month := range []time.Month{2, 3, 5, 6, 8, 9, 11, 12} {
		if _, ok := Resolve(models.FrequencyQuarterly, 2025, month, 10, 1); ok {
			t.Errorf("Expected no quarterly period for month %d", month)
		}
	}

	// Quarter months produce exactly one period each with Q1..Q4 keys
	expected := map[time.Month]string{
		time.January: "2025-Q1",
		time.April:   "2025-Q2",
		time.July:    "2025-Q3",
		time.October: "2025-Q4",
	}

	for month, key := range expected {
		p, ok := Resolve(models.FrequencyQuarterly, 2025, month, 10, 1)
		if !ok {
			t.Errorf("Expected quarterly period for month %d", month)
			continue
		}
		if p.Key != key {
			t.Errorf("Month %d: expected key %s, got %s", month, key, p.Key)
		}
	}
}

func TestResolveAnnual(t *testing.T) {
	// Default due month is January
	p, ok := Resolve(models.FrequencyAnnual, 2025, time.January, 15, 1)
	if !ok {
		t.Fatal("Expected annual period in January")
	}
	if p.Key != "2025" {
		t.Errorf("Expected key 2025, got %s", p.Key)
	}

	if _, ok := Resolve(models.FrequencyAnnual, 2025, time.June, 15, 1); ok {
		t.Error("Expected no annual period outside the due month")
	}

	// Custom due month
	p, ok = Resolve(models.FrequencyAnnual, 2025, time.June, 15, 6)
	if !ok {
		t.Fatal("Expected annual period in configured due month")
	}
	if p.DueDate.Month() != time.June {
		t.Errorf("Expected June due date, got %v", p.DueDate)
	}
}

func TestDueDateClamping(t *testing.T) {
	tests := []struct {
		year     int
		month    time.Month
		day      int
		expected int
	}{
		{2025, time.February, 31, 28},
		{2024, time.February, 30, 29}, // leap year
		{2025, time.April, 31, 30},
		{2025, time.January, 31, 31},
		{2025, time.March, 0, 1},
	}

	for _, tt := range tests {
		p, ok := Resolve(models.FrequencyMonthly, tt.year, tt.month, tt.day, 1)
		if !ok {
			t.Fatalf("Expected monthly period for %d-%d", tt.year, tt.month)
		}
		if p.DueDate.Day() != tt.expected {
			t.Errorf("%d-%d due day %d: expected clamp to %d, got %d",
				tt.year, tt.month, tt.day, tt.expected, p.DueDate.Day())
		}
	}
}

func TestResolveUnknownFrequency(t *testing.T) {
	if _, ok := Resolve(models.Frequency("WEEKLY"), 2025, time.March, 1, 1); ok {
		t.Error("Expected unknown frequency to resolve to no period")
	}
}

func TestPeriodsInWindow(t *testing.T) {
	reference := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)

	// Monthly over 12 months: Jan..Dec inclusive of both ends
	w := NewWindow(reference, 5, 6)
	monthly := PeriodsInWindow(models.FrequencyMonthly, w, 1, 1)
	if len(monthly) != 12 {
		t.Errorf("Expected 12 monthly periods, got %d", len(monthly))
	}
	if monthly[0].Key != "2025-01" || monthly[len(monthly)-1].Key != "2025-12" {
		t.Errorf("Unexpected window bounds: %s .. %s", monthly[0].Key, monthly[len(monthly)-1].Key)
	}

	// Quarterly over the same window: Q1..Q4
	quarterly := PeriodsInWindow(models.FrequencyQuarterly, w, 1, 1)
	if len(quarterly) != 4 {
		t.Errorf("Expected 4 quarterly periods, got %d", len(quarterly))
	}

	// Annual over the same window: just 2025
	annual := PeriodsInWindow(models.FrequencyAnnual, w, 1, 1)
	if len(annual) != 1 || annual[0].Key != "2025" {
		t.Errorf("Expected single 2025 annual period, got %v", annual)
	}
}

func TestPeriodsInWindowCrossYear(t *testing.T) {
	reference := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	w := NewWindow(reference, 2, 1)

	monthly := PeriodsInWindow(models.FrequencyMonthly, w, 28, 1)
	expected := []string{"2024-11", "2024-12", "2025-01", "2025-02"}
	if len(monthly) != len(expected) {
		t.Fatalf("Expected %d periods, got %d", len(expected), len(monthly))
	}
	for i, key := range expected {
		if monthly[i].Key != key {
			t.Errorf("Period %d: expected %s, got %s", i, key, monthly[i].Key)
		}
	}
}
