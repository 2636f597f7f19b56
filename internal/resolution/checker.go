package resolution

import (
	"context"
	"log/slog"
	"time"

	"github.com/linpap/polymarket/internal/config"
	"github.com/linpap/polymarket/internal/ledger"
	"github.com/linpap/polymarket/internal/market"
	"github.com/linpap/polymarket/internal/strategy"
)

// Checker settles open trades against the venue's reported outcomes. It only
// ever resolves on unambiguous evidence: market closed and one side's
// settlement price beyond the extreme threshold. Anything murkier stays
// unresolved rather than being guessed at.
type Checker struct {
	source market.Source
	book   *ledger.Ledger
	cfg    config.ResolutionConfig

	// cursor rotates the batch window across ticks so trades stuck on
	// ambiguous settlements cannot starve the ones behind them.
	cursor int
}

func NewChecker(source market.Source, book *ledger.Ledger, cfg config.ResolutionConfig) *Checker {
	return &Checker{source: source, book: book, cfg: cfg}
}

// CheckOnce polls settlement status for up to batch_size unresolved trades,
// settles the clean ones, and flags deadline-passed stragglers. The window
// rotates each tick, so every unresolved trade is eventually polled.
// Per-trade failures are logged and skipped; a later tick retries them.
func (c *Checker) CheckOnce(ctx context.Context) int {
	trades := c.nextBatch()

	resolved := 0
	for _, t := range trades {
		if ctx.Err() != nil {
			break
		}

		st, err := c.source.SettlementStatus(ctx, t.MarketID)
		if err != nil {
			slog.Warn("settlement check failed",
				"trade", t.ID,
				"market", t.MarketID,
				"error", err,
			)
			continue
		}
		if !st.Closed {
			continue
		}

		outcome, ok := c.outcomeOf(st)
		if !ok {
			slog.Debug("market closed without a clean outcome",
				"market", t.MarketID,
				"price_yes", st.PriceYes,
				"price_no", st.PriceNo,
			)
			continue
		}

		if _, err := c.book.Resolve(t.ID, outcome); err != nil {
			slog.Error("resolution failed", "trade", t.ID, "error", err)
			continue
		}
		resolved++
	}

	c.book.FlagExpiredUnresolved(time.Now().UTC())

	if resolved > 0 {
		c.book.RecomputeBankroll()
	}
	return resolved
}

// nextBatch returns the next rotating window of unresolved trades. The
// membership of the set changes between ticks, so the cursor is positional,
// not tied to trade identity; over enough ticks every trade still gets polled.
func (c *Checker) nextBatch() []*ledger.Trade {
	trades := c.book.Unresolved()
	n := len(trades)
	if n <= c.cfg.BatchSize {
		c.cursor = 0
		return trades
	}

	start := c.cursor % n
	batch := make([]*ledger.Trade, 0, c.cfg.BatchSize)
	for i := 0; i < c.cfg.BatchSize; i++ {
		batch = append(batch, trades[(start+i)%n])
	}
	c.cursor = (start + c.cfg.BatchSize) % n
	return batch
}

func (c *Checker) outcomeOf(st market.Settlement) (strategy.Side, bool) {
	switch {
	case st.PriceYes > c.cfg.ExtremeThreshold:
		return strategy.SideYes, true
	case st.PriceNo > c.cfg.ExtremeThreshold:
		return strategy.SideNo, true
	default:
		return "", false
	}
}
