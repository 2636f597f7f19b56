package estimator

import (
	"log/slog"
	"sync"
	"time"
)

// Budget enforces a daily spend cap on model calls. Spend is tracked per UTC
// day and resets on rollover; when the cap is hit the engine keeps running on
// its price-only strategies.
type Budget struct {
	mu          sync.Mutex
	capUsd      float64
	costPerCall float64
	spentUsd    float64
	day         string

	now func() time.Time
}

func NewBudget(capUsd, costPerCall float64) *Budget {
	b := &Budget{capUsd: capUsd, costPerCall: costPerCall, now: time.Now}
	b.day = b.now().UTC().Format("2006-01-02")
	return b
}

// Allow reports whether one more call fits under today's cap.
func (b *Budget) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rolloverLocked()
	return b.spentUsd+b.costPerCall <= b.capUsd
}

// Spend records the cost of one completed call.
func (b *Budget) Spend() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rolloverLocked()
	b.spentUsd += b.costPerCall
	if b.spentUsd+b.costPerCall > b.capUsd {
		slog.Warn("daily estimation budget exhausted",
			"spent_usd", b.spentUsd,
			"cap_usd", b.capUsd,
		)
	}
}

// RemainingUsd returns today's unspent allowance.
func (b *Budget) RemainingUsd() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rolloverLocked()
	return b.capUsd - b.spentUsd
}

func (b *Budget) rolloverLocked() {
	today := b.now().UTC().Format("2006-01-02")
	if today != b.day {
		b.day = today
		b.spentUsd = 0
	}
}
