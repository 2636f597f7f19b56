package strategy

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/linpap/polymarket/internal/config"
)

// Estimation turns an external fair-value estimate into a directional signal
// when the estimate disagrees with the market price by enough to matter.
type Estimation struct {
	cfg config.EstimationConfig
}

func NewEstimation(cfg config.EstimationConfig) *Estimation {
	return &Estimation{cfg: cfg}
}

func (e *Estimation) Name() Kind    { return KindEstimation }
func (e *Estimation) Enabled() bool { return e.cfg.Enabled }

// Evaluate is pure: the estimate is injected, already fetched and validated.
// A false return means no opportunity, never an error.
func (e *Estimation) Evaluate(snap Snapshot, est Estimate) (Signal, bool) {
	if est.FairValue < 0 || est.FairValue > 1 {
		return Signal{}, false
	}

	// Shrink the estimate toward 0.5 to discount estimator overconfidence.
	// Shrinkage 1.0 leaves it untouched.
	fair := 0.5 + (est.FairValue-0.5)*e.cfg.Shrinkage

	yesEdge := fair - snap.PriceYes
	noEdge := (1 - fair) - snap.PriceNo

	side := SideYes
	edge := yesEdge
	if noEdge > yesEdge {
		side = SideNo
		edge = noEdge
	}

	// Near-tie break: prefer the side that is genuinely cheap when the other
	// is already rich. Betting into a balanced mid-market pays the spread for
	// nothing.
	if math.Abs(yesEdge-noEdge) < 0.02 {
		switch {
		case snap.PriceYes < 0.45 && snap.PriceNo > 0.55:
			side, edge = SideYes, yesEdge
		case snap.PriceNo < 0.45 && snap.PriceYes > 0.55:
			side, edge = SideNo, noEdge
		}
	}

	price := snap.Price(side)
	if price < e.cfg.MinPrice || price > e.cfg.MaxPrice {
		return Signal{}, false
	}

	// Near-50c markets are usually efficient; haircut the edge there.
	if price >= e.cfg.MidBandLow && price <= e.cfg.MidBandHigh && e.cfg.MidBandPenalty > 1 {
		edge /= e.cfg.MidBandPenalty
	}

	confidence := est.Confidence
	if mult, ok := e.cfg.CategoryMultipliers[snap.Category]; ok {
		confidence *= mult
	}

	if edge < e.cfg.MinEdge || confidence < e.cfg.MinConfidence {
		return Signal{}, false
	}

	sideFair := fair
	if side == SideNo {
		sideFair = 1 - fair
	}

	slog.Debug("estimation edge found",
		"market", snap.ID,
		"side", side,
		"fair", fair,
		"edge", edge,
		"price", price,
	)

	reason := fmt.Sprintf("fair %.2f vs %s ask %.2f: edge %.2f", fair, side, price, edge)
	if est.Basis != "" {
		reason += " (" + est.Basis + ")"
	}

	return Signal{
		MarketID:    snap.ID,
		Side:        side,
		FairValue:   sideFair,
		Confidence:  confidence,
		Edge:        edge,
		Price:       price,
		Strategy:    KindEstimation,
		Reason:      reason,
		SourceModel: est.Model,
	}, true
}
