package ledger

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/linpap/polymarket/internal/risk"
	"github.com/linpap/polymarket/internal/strategy"
)

// TradeState is the lifecycle state of a ledger entry.
type TradeState string

const (
	// StateOpen is the initial state: capital committed, outcome unknown.
	StateOpen TradeState = "OPEN"
	// StateResolved is terminal: outcome and pnl are immutable.
	StateResolved TradeState = "RESOLVED"
	// StateExpiredUnresolved flags trades past their deadline with no clean
	// settlement yet. Not terminal: a late resolution is still accepted.
	StateExpiredUnresolved TradeState = "EXPIRED_UNRESOLVED"
)

var (
	ErrDuplicateOpen        = errors.New("ledger: open trade already held for market and attribution")
	ErrInsufficientBankroll = errors.New("ledger: position exceeds available bankroll")
	ErrTradeNotFound        = errors.New("ledger: trade not found")
)

// Trade is one ledger entry. Resolution fields stay nil until settlement.
type Trade struct {
	ID          string         `json:"id"`
	MarketID    string         `json:"market_id"`
	Question    string         `json:"question,omitempty"`
	Side        strategy.Side  `json:"side"`
	EntryPrice  float64        `json:"entry_price"`
	SizeUsd     float64        `json:"size_usd"`
	Shares      float64        `json:"shares"`
	FairValue   float64        `json:"fair_value"`
	Confidence  float64        `json:"confidence"`
	Strategy    strategy.Kind  `json:"strategy"`
	SourceModel string         `json:"source_model,omitempty"`
	OpenedAt    time.Time      `json:"opened_at"`
	Deadline    time.Time      `json:"deadline"`
	State       TradeState     `json:"state"`
	Outcome     *strategy.Side `json:"outcome,omitempty"`
	ResolvedAt  *time.Time     `json:"resolved_at,omitempty"`
	PnlUsd      *float64       `json:"pnl_usd,omitempty"`
}

// Attribution is the tag used for the one-open-trade-per-market rule and for
// per-strategy leaderboards: the strategy, qualified by source model when an
// estimator produced it.
func (t *Trade) Attribution() string {
	if t.SourceModel != "" {
		return string(t.Strategy) + ":" + t.SourceModel
	}
	return string(t.Strategy)
}

// Unresolved reports whether the trade still has capital committed.
func (t *Trade) Unresolved() bool {
	return t.State != StateResolved
}

// Stats are running aggregates, persisted alongside the trades.
type Stats struct {
	TotalOpened   int     `json:"total_opened"`
	TotalResolved int     `json:"total_resolved"`
	Wins          int     `json:"wins"`
	Losses        int     `json:"losses"`
	TotalPnlUsd   float64 `json:"total_pnl_usd"`
}

// Ledger owns the trade list and the bankroll. It is a single-writer
// aggregate: the scheduler mutates it, everything else reads snapshots. The
// incrementally maintained bankroll is a cache; RecomputeBankroll is
// authoritative at load time and cycle boundaries.
type Ledger struct {
	mu sync.RWMutex

	initialBankroll float64
	bankroll        float64
	trades          []*Trade
	stats           Stats
	startedAt       time.Time
	cycleCount      int
}

func New(initialBankroll float64) *Ledger {
	return &Ledger{
		initialBankroll: initialBankroll,
		bankroll:        initialBankroll,
		startedAt:       time.Now().UTC(),
	}
}

// Open appends a trade in OPEN state and debits the bankroll. A duplicate
// (market, attribution) pair or an overdraw is rejected before any mutation.
func (l *Ledger) Open(pos risk.SizedPosition, question string, deadline time.Time) (*Trade, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	trade := &Trade{
		ID:          uuid.NewString(),
		MarketID:    pos.Signal.MarketID,
		Question:    question,
		Side:        pos.Signal.Side,
		EntryPrice:  pos.EntryPrice,
		SizeUsd:     pos.SizeUsd,
		Shares:      pos.Shares,
		FairValue:   pos.Signal.FairValue,
		Confidence:  pos.Signal.Confidence,
		Strategy:    pos.Signal.Strategy,
		SourceModel: pos.Signal.SourceModel,
		OpenedAt:    time.Now().UTC(),
		Deadline:    deadline,
		State:       StateOpen,
	}

	for _, t := range l.trades {
		if t.Unresolved() && t.MarketID == trade.MarketID && t.Attribution() == trade.Attribution() {
			return nil, ErrDuplicateOpen
		}
	}

	if pos.SizeUsd > l.bankroll {
		return nil, ErrInsufficientBankroll
	}

	l.trades = append(l.trades, trade)
	l.bankroll -= pos.SizeUsd
	l.stats.TotalOpened++

	slog.Info("trade opened",
		"trade", trade.ID,
		"market", trade.MarketID,
		"side", trade.Side,
		"size_usd", trade.SizeUsd,
		"entry", trade.EntryPrice,
		"attribution", trade.Attribution(),
		"bankroll", l.bankroll,
	)
	return trade, nil
}

// Resolve settles a trade and credits the bankroll. Resolving an already
// resolved trade is a no-op returning the existing entry; outcome and pnl
// never change once set.
func (l *Ledger) Resolve(tradeID string, outcome strategy.Side) (*Trade, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	trade := l.findLocked(tradeID)
	if trade == nil {
		return nil, ErrTradeNotFound
	}
	if trade.State == StateResolved {
		return trade, nil
	}

	var pnl float64
	if trade.Side == strategy.SideBoth {
		// Complete set: each set pays $1 whichever side resolved.
		pnl = trade.Shares - trade.SizeUsd
	} else if outcome == trade.Side {
		pnl = trade.Shares - trade.SizeUsd
	} else {
		pnl = -trade.SizeUsd
	}

	now := time.Now().UTC()
	trade.State = StateResolved
	trade.Outcome = &outcome
	trade.ResolvedAt = &now
	trade.PnlUsd = &pnl

	// Credit back cost basis plus pnl (i.e. the payout).
	l.bankroll += trade.SizeUsd + pnl

	l.stats.TotalResolved++
	l.stats.TotalPnlUsd += pnl
	if pnl > 0 {
		l.stats.Wins++
	} else {
		l.stats.Losses++
	}

	slog.Info("trade resolved",
		"trade", trade.ID,
		"market", trade.MarketID,
		"side", trade.Side,
		"outcome", outcome,
		"pnl_usd", pnl,
		"bankroll", l.bankroll,
	)
	return trade, nil
}

// RecomputeBankroll rebuilds the bankroll from the full trade history and
// replaces the cached value. This is the authoritative figure: it self-heals
// any drift from a crashed or partially applied update.
func (l *Ledger) RecomputeBankroll() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	recomputed := l.initialBankroll
	for _, t := range l.trades {
		if t.State == StateResolved && t.PnlUsd != nil {
			recomputed += *t.PnlUsd
		} else {
			recomputed -= t.SizeUsd
		}
	}

	if recomputed != l.bankroll {
		slog.Warn("bankroll drift corrected",
			"cached", l.bankroll,
			"recomputed", recomputed,
		)
	}
	l.bankroll = recomputed
	return recomputed
}

// FlagExpiredUnresolved marks open trades whose market deadline has passed
// without a clean settlement. A warning condition for the operator, not an
// error; the trades remain resolvable.
func (l *Ledger) FlagExpiredUnresolved(now time.Time) []*Trade {
	l.mu.Lock()
	defer l.mu.Unlock()

	var flagged []*Trade
	for _, t := range l.trades {
		if t.State == StateOpen && !t.Deadline.IsZero() && now.After(t.Deadline) {
			t.State = StateExpiredUnresolved
			flagged = append(flagged, t)
			slog.Warn("trade expired without resolution",
				"trade", t.ID,
				"market", t.MarketID,
				"deadline", t.Deadline,
			)
		}
	}
	return flagged
}

func (l *Ledger) findLocked(tradeID string) *Trade {
	for _, t := range l.trades {
		if t.ID == tradeID {
			return t
		}
	}
	return nil
}

// Bankroll returns the cached bankroll.
func (l *Ledger) Bankroll() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.bankroll
}

// Unresolved returns all trades with capital still committed.
func (l *Ledger) Unresolved() []*Trade {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []*Trade
	for _, t := range l.trades {
		if t.Unresolved() {
			out = append(out, t)
		}
	}
	return out
}

// Resolved returns all settled trades.
func (l *Ledger) Resolved() []*Trade {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []*Trade
	for _, t := range l.trades {
		if t.State == StateResolved {
			out = append(out, t)
		}
	}
	return out
}

// OpenCount returns the number of unresolved trades.
func (l *Ledger) OpenCount() int {
	return len(l.Unresolved())
}

// Stats returns a copy of the running aggregates.
func (l *Ledger) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.stats
}

// BumpCycle increments the persisted cycle counter.
func (l *Ledger) BumpCycle() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cycleCount++
	return l.cycleCount
}

func (l *Ledger) checkInvariantLocked() error {
	recomputed := l.initialBankroll
	for _, t := range l.trades {
		if t.State == StateResolved && t.PnlUsd != nil {
			recomputed += *t.PnlUsd
		} else {
			recomputed -= t.SizeUsd
		}
	}
	if recomputed != l.bankroll {
		return fmt.Errorf("bankroll cache %f diverged from history %f", l.bankroll, recomputed)
	}
	return nil
}
