package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/linpap/polymarket/internal/ledger"
	"github.com/linpap/polymarket/internal/strategy"
)

// Store is the telemetry sink: price history for the confirmation metric,
// a trade mirror for ad-hoc SQL, and bankroll curves. The JSON state blob
// stays the source of truth; everything here is rebuildable observation.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// RecordPrices appends one price snapshot per market.
func (s *Store) RecordPrices(snaps []strategy.Snapshot) {
	for _, snap := range snaps {
		_, err := s.db.Exec(`
			INSERT INTO price_snapshots (market_id, question, price_yes, price_no, liquidity)
			VALUES (?, ?, ?, ?, ?)`,
			snap.ID, snap.Question, snap.PriceYes, snap.PriceNo, snap.Liquidity,
		)
		if err != nil {
			slog.Warn("failed to record price snapshot", "market", snap.ID, "error", err)
		}
	}
}

// LatestYesPrices returns the most recent observed yes-price per market,
// restricted to the given market ids.
func (s *Store) LatestYesPrices(marketIDs []string) map[string]float64 {
	out := make(map[string]float64, len(marketIDs))
	for _, id := range marketIDs {
		var price float64
		err := s.db.QueryRow(`
			SELECT price_yes FROM price_snapshots
			WHERE market_id = ?
			ORDER BY id DESC LIMIT 1`, id,
		).Scan(&price)
		switch {
		case err == sql.ErrNoRows:
		case err != nil:
			slog.Warn("failed to read latest price", "market", id, "error", err)
		default:
			out[id] = price
		}
	}
	return out
}

// MirrorTrade upserts a trade row, reflecting lifecycle transitions.
func (s *Store) MirrorTrade(t *ledger.Trade) {
	var resolvedAt, outcome any
	var pnl any
	if t.ResolvedAt != nil {
		resolvedAt = t.ResolvedAt.Format(time.RFC3339)
	}
	if t.Outcome != nil {
		outcome = string(*t.Outcome)
	}
	if t.PnlUsd != nil {
		pnl = *t.PnlUsd
	}

	_, err := s.db.Exec(`
		INSERT INTO trades (trade_id, market_id, strategy, attribution, side, entry_price, size_usd, fair_value, confidence, state, opened_at, resolved_at, outcome, pnl_usd)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(trade_id) DO UPDATE SET
			state = excluded.state,
			resolved_at = excluded.resolved_at,
			outcome = excluded.outcome,
			pnl_usd = excluded.pnl_usd`,
		t.ID, t.MarketID, string(t.Strategy), t.Attribution(), string(t.Side),
		t.EntryPrice, t.SizeUsd, t.FairValue, t.Confidence, string(t.State),
		t.OpenedAt.Format(time.RFC3339), resolvedAt, outcome, pnl,
	)
	if err != nil {
		slog.Warn("failed to mirror trade", "trade", t.ID, "error", err)
	}
}

// RecordBankroll appends one point to the bankroll curve.
func (s *Store) RecordBankroll(cycle int, bankroll float64, openPositions int) {
	_, err := s.db.Exec(`
		INSERT INTO bankroll_snapshots (cycle, bankroll, open_positions)
		VALUES (?, ?, ?)`,
		cycle, bankroll, openPositions,
	)
	if err != nil {
		slog.Warn("failed to record bankroll snapshot", "error", err)
	}
}

// PruneSnapshots drops price history older than the retention window.
func (s *Store) PruneSnapshots(olderThan time.Duration) error {
	cutoff := time.Now().UTC().Add(-olderThan).Format("2006-01-02 15:04:05")
	res, err := s.db.Exec(`DELETE FROM price_snapshots WHERE snapshot_at < ?`, cutoff)
	if err != nil {
		return fmt.Errorf("pruning snapshots: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		slog.Debug("pruned price snapshots", "rows", n)
	}
	return nil
}
