package ledger

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// state is the on-disk shape of the ledger. The whole thing is written as one
// JSON blob; at this scale a database buys nothing for the source of truth.
type state struct {
	StartedAt       time.Time `json:"started_at"`
	CycleCount      int       `json:"cycle_count"`
	InitialBankroll float64   `json:"initial_bankroll"`
	Bankroll        float64   `json:"bankroll"`
	Trades          []*Trade  `json:"trades"`
	Stats           Stats     `json:"stats"`
}

// Load reads the ledger from disk. A missing or unreadable file starts a
// fresh ledger at the configured bankroll rather than failing: state loss is
// survivable, a refusal to start is not. The bankroll is always recomputed
// from the trade history after load.
func Load(path string, initialBankroll float64) *Ledger {
	l := New(initialBankroll)

	raw, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("state file unreadable, starting fresh", "path", path, "error", err)
		}
		return l
	}

	var st state
	if err := json.Unmarshal(raw, &st); err != nil {
		slog.Warn("state file corrupt, starting fresh", "path", path, "error", err)
		return l
	}

	if st.InitialBankroll > 0 {
		l.initialBankroll = st.InitialBankroll
	}
	if !st.StartedAt.IsZero() {
		l.startedAt = st.StartedAt
	}
	l.cycleCount = st.CycleCount
	l.bankroll = st.Bankroll
	l.trades = st.Trades
	l.stats = st.Stats

	l.RecomputeBankroll()

	slog.Info("state loaded",
		"path", path,
		"trades", len(l.trades),
		"cycles", l.cycleCount,
		"bankroll", l.bankroll,
	)
	return l
}

// Save writes the ledger atomically: full marshal to a temp file in the same
// directory, then rename over the target. A crash mid-write leaves the old
// state intact.
func (l *Ledger) Save(path string) error {
	l.mu.RLock()
	st := state{
		StartedAt:       l.startedAt,
		CycleCount:      l.cycleCount,
		InitialBankroll: l.initialBankroll,
		Bankroll:        l.bankroll,
		Trades:          l.trades,
		Stats:           l.stats,
	}
	raw, err := json.MarshalIndent(st, "", "  ")
	l.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshalling state: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("writing state: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replacing state: %w", err)
	}
	return nil
}

// CheckInvariant verifies the cached bankroll against the trade history.
func (l *Ledger) CheckInvariant() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.checkInvariantLocked()
}

// CycleCount returns the number of completed cycles across restarts.
func (l *Ledger) CycleCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cycleCount
}

// StartedAt returns when this ledger first traded.
func (l *Ledger) StartedAt() time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.startedAt
}
