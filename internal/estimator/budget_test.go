package estimator

import (
	"math"
	"testing"
	"time"
)

func TestBudgetAllowsUpToCap(t *testing.T) {
	b := NewBudget(0.05, 0.01)

	for i := 0; i < 5; i++ {
		if !b.Allow() {
			t.Fatalf("call %d: expected allowance under cap", i)
		}
		b.Spend()
	}
	if b.Allow() {
		t.Error("expected cap to block the sixth call")
	}
	if math.Abs(b.RemainingUsd()) > 1e-9 {
		t.Errorf("expected nothing remaining, got %f", b.RemainingUsd())
	}
}

func TestBudgetRollsOverAtMidnightUTC(t *testing.T) {
	b := NewBudget(0.02, 0.01)

	day := time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return day }
	b.day = day.Format("2006-01-02")

	b.Spend()
	b.Spend()
	if b.Allow() {
		t.Fatal("expected exhaustion before rollover")
	}

	day = day.Add(2 * time.Hour) // past midnight
	if !b.Allow() {
		t.Error("expected fresh allowance after UTC day rollover")
	}
	if math.Abs(b.RemainingUsd()-0.02) > 1e-9 {
		t.Errorf("expected full cap after rollover, got %f", b.RemainingUsd())
	}
}
