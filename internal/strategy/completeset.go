package strategy

import (
	"fmt"
	"log/slog"

	"github.com/linpap/polymarket/internal/config"
)

// CompleteSet looks for markets where buying both outcomes costs less than
// the guaranteed $1 payout. The only residual risk is execution, not
// prediction, so confidence comes straight from config (≈1).
type CompleteSet struct {
	cfg config.CompleteSetConfig
}

func NewCompleteSet(cfg config.CompleteSetConfig) *CompleteSet {
	return &CompleteSet{cfg: cfg}
}

func (c *CompleteSet) Name() Kind    { return KindCompleteSet }
func (c *CompleteSet) Enabled() bool { return c.cfg.Enabled }

func (c *CompleteSet) Evaluate(snap Snapshot) (Signal, bool) {
	if snap.Liquidity < c.cfg.MinLiquidity {
		return Signal{}, false
	}

	combined := snap.PriceYes + snap.PriceNo
	if combined <= 0 || combined >= c.cfg.CombinedMax {
		return Signal{}, false
	}

	edge := 1 - combined

	slog.Debug("complete-set arbitrage",
		"market", snap.ID,
		"yes_ask", snap.PriceYes,
		"no_ask", snap.PriceNo,
		"edge", edge,
	)

	return Signal{
		MarketID:   snap.ID,
		Side:       SideBoth,
		FairValue:  1, // the set pays $1 whatever resolves
		Confidence: c.cfg.Confidence,
		Edge:       edge,
		Price:      combined,
		Strategy:   KindCompleteSet,
		Reason:     fmt.Sprintf("yes %.3f + no %.3f = %.3f, locked %.3f per set", snap.PriceYes, snap.PriceNo, combined, edge),
	}, true
}
