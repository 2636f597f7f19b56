package strategy

import (
	"time"
)

// Side is the outcome side a signal wants to buy.
type Side string

const (
	SideYes Side = "YES"
	SideNo  Side = "NO"
	// SideBoth marks a complete-set buy: both outcomes at once for a
	// guaranteed payout regardless of resolution.
	SideBoth Side = "BOTH"
)

// Opposite returns the other directional side. BOTH has no opposite.
func (s Side) Opposite() Side {
	switch s {
	case SideYes:
		return SideNo
	case SideNo:
		return SideYes
	}
	return s
}

// Kind identifies which strategy produced a signal.
type Kind string

const (
	KindEstimation  Kind = "estimation"
	KindLatency     Kind = "latency"
	KindCompleteSet Kind = "completeset"
	KindCrossVenue  Kind = "crossvenue"
	KindEnsemble    Kind = "ensemble"
)

// Snapshot is an immutable per-evaluation view of a market. Evaluators never
// mutate it; the source layer builds a fresh one each cycle.
type Snapshot struct {
	ID        string
	Question  string
	Category  string
	PriceYes  float64 // ask price for YES, in (0,1)
	PriceNo   float64 // ask price for NO, in (0,1)
	Liquidity float64
	EndDate   time.Time
	// Symbol is the spot-feed symbol a price-threshold market tracks
	// (e.g. "btcusdt"), empty when the market has no live reference.
	Symbol string
}

// Price returns the ask price payable for the given side.
func (s Snapshot) Price(side Side) float64 {
	if side == SideNo {
		return s.PriceNo
	}
	return s.PriceYes
}

// Estimate is an external estimator's opinion about a market: the probability
// that YES resolves true, plus how much the estimator trusts itself.
type Estimate struct {
	FairValue  float64 // P(YES) in [0,1]
	Confidence float64 // 0..1
	Reasoning  string
	Basis      string
	Model      string
}

// Quote is a point-in-time view of a live reference price with rolling
// percentage changes derived from the feed window.
type Quote struct {
	Price    float64
	Ts       time.Time
	Change1m float64 // percent, e.g. 0.25 means +0.25%
	Change5m float64
}

// VenueQuote is the same market's YES price on a competing venue.
type VenueQuote struct {
	Venue    string
	PriceYes float64
}

// Signal is a trading recommendation. Invariant: a Signal is only emitted
// when its edge and confidence both clear the strategy's configured minimums.
type Signal struct {
	MarketID    string
	Side        Side
	FairValue   float64 // estimated true probability that the chosen side pays out
	Confidence  float64
	Edge        float64 // signed relative to the chosen side
	Price       float64 // ask price payable for the chosen side at evaluation time
	Strategy    Kind
	Reason      string
	SourceModel string
}
