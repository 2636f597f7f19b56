package strategy

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/linpap/polymarket/internal/config"
)

// CrossVenue compares the local YES price against the same market listed on
// a competing venue. The contracts are similar, never identical, so the raw
// spread is discounted before it becomes an edge.
type CrossVenue struct {
	cfg config.CrossVenueConfig
}

func NewCrossVenue(cfg config.CrossVenueConfig) *CrossVenue {
	return &CrossVenue{cfg: cfg}
}

func (c *CrossVenue) Name() Kind    { return KindCrossVenue }
func (c *CrossVenue) Enabled() bool { return c.cfg.Enabled }

// Evaluate buys the cheap side on the venue being evaluated. The matched
// quote is injected; a caller with no match simply never calls this.
func (c *CrossVenue) Evaluate(snap Snapshot, other VenueQuote) (Signal, bool) {
	if other.PriceYes <= 0 || other.PriceYes >= 1 {
		return Signal{}, false
	}

	spread := other.PriceYes - snap.PriceYes
	if math.Abs(spread) < c.cfg.MinSpread {
		return Signal{}, false
	}

	// Buy YES here when the other venue prices YES higher, otherwise NO.
	side := SideYes
	if spread < 0 {
		side = SideNo
	}

	price := snap.Price(side)
	if price < c.cfg.SafeBandLow || price > c.cfg.SafeBandHigh {
		return Signal{}, false
	}

	edge := math.Abs(spread) * c.cfg.ConfidenceDiscount

	fair := other.PriceYes
	if side == SideNo {
		fair = 1 - other.PriceYes
	}

	slog.Debug("cross-venue divergence",
		"market", snap.ID,
		"venue", other.Venue,
		"local_yes", snap.PriceYes,
		"other_yes", other.PriceYes,
		"side", side,
		"edge", edge,
	)

	return Signal{
		MarketID:   snap.ID,
		Side:       side,
		FairValue:  fair,
		Confidence: c.cfg.Confidence,
		Edge:       edge,
		Price:      price,
		Strategy:   KindCrossVenue,
		Reason: fmt.Sprintf("%s prices YES at %.2f vs local %.2f, spread %.2f discounted to %.2f",
			other.Venue, other.PriceYes, snap.PriceYes, spread, edge),
	}, true
}
