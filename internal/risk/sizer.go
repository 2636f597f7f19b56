package risk

import (
	"log/slog"
	"math"

	"github.com/linpap/polymarket/internal/config"
	"github.com/linpap/polymarket/internal/strategy"
)

// Sizer converts signals into bounded position sizes via fractional Kelly.
type Sizer struct {
	cfg config.RiskConfig
}

func NewSizer(cfg config.RiskConfig) *Sizer {
	return &Sizer{cfg: cfg}
}

// SizedPosition is a signal with an approved dollar size attached.
type SizedPosition struct {
	Signal        strategy.Signal
	SizeUsd       float64
	KellyFraction float64 // fraction of bankroll after the fractional multiplier
	EntryPrice    float64
	Shares        float64
}

// Size runs one signal through the sizing pipeline against the currently
// available balance. A false return means the position is dropped, not an
// error: positions below viability are never clamped up.
func (s *Sizer) Size(sig strategy.Signal, available float64) (SizedPosition, bool) {
	if available <= 0 {
		return SizedPosition{}, false
	}

	if sig.Side == strategy.SideBoth {
		return s.sizeCompleteSet(sig, available)
	}

	price := sig.Price
	if price < s.cfg.LongshotFloor || price <= 0 || price >= 1 {
		return SizedPosition{}, false
	}

	// Kelly: f* = (b·p − q) / b with b the net odds at this price.
	b := 1/price - 1
	p := sig.FairValue
	full := (b*p - (1 - p)) / b
	if full <= 0 {
		return SizedPosition{}, false
	}

	fraction := full * s.cfg.KellyFraction
	size := fraction * available

	// Percentage-of-bankroll ceiling depends on the price bucket: a cheap
	// entry risks the same dollars for a much larger payout.
	if cap := s.bucketPct(price) * available; size > cap {
		size = cap
	}

	// Buying at price X can lose the entire position, so the absolute
	// max-loss cap applies to the full size.
	maxLoss := math.Min(s.cfg.MaxLossPerTradeUsd, s.cfg.MaxLossPerTradePct*available)
	if size > maxLoss {
		size = maxLoss
	}

	if size > available {
		size = available
	}

	size = s.roundDown(size)
	if size < s.cfg.MinTradeUsd {
		slog.Debug("position below viability, dropped",
			"market", sig.MarketID,
			"strategy", sig.Strategy,
			"size", size,
		)
		return SizedPosition{}, false
	}

	return SizedPosition{
		Signal:        sig,
		SizeUsd:       size,
		KellyFraction: fraction,
		EntryPrice:    price,
		Shares:        size / price,
	}, true
}

// sizeCompleteSet sizes a guaranteed both-sides buy. The payout is locked,
// so it bypasses Kelly and uses its own bankroll-percentage knob. The
// absolute max-loss caps still bind: the residual risk is execution, and a
// fill that never completes loses real dollars.
func (s *Sizer) sizeCompleteSet(sig strategy.Signal, available float64) (SizedPosition, bool) {
	combined := sig.Price
	if combined <= 0 || combined >= 1 {
		return SizedPosition{}, false
	}

	size := s.cfg.CompleteSetMaxPct * available
	maxLoss := math.Min(s.cfg.MaxLossPerTradeUsd, s.cfg.MaxLossPerTradePct*available)
	if size > maxLoss {
		size = maxLoss
	}
	if size > available {
		size = available
	}
	size = s.roundDown(size)
	if size < s.cfg.MinTradeUsd {
		return SizedPosition{}, false
	}

	return SizedPosition{
		Signal:        sig,
		SizeUsd:       size,
		KellyFraction: s.cfg.CompleteSetMaxPct,
		EntryPrice:    combined,
		Shares:        size / combined, // complete sets, each paying $1
	}, true
}

func (s *Sizer) bucketPct(price float64) float64 {
	switch {
	case price < s.cfg.CheapBucketBelow:
		return s.cfg.CheapBucketMaxPct
	case price >= s.cfg.DearBucketAbove:
		return s.cfg.DearBucketMaxPct
	default:
		return s.cfg.MidBucketMaxPct
	}
}

func (s *Sizer) roundDown(size float64) float64 {
	inc := s.cfg.TradeIncrementUsd
	if inc <= 0 {
		return size
	}
	return math.Floor(size/inc) * inc
}

// SizeAll sizes a batch sequentially against a running available balance:
// each accepted position reduces what the next one can take. openCount is
// the number of positions already held.
func (s *Sizer) SizeAll(signals []strategy.Signal, bankroll float64, openCount int) []SizedPosition {
	available := bankroll
	slots := s.cfg.MaxOpenPositions - openCount

	var out []SizedPosition
	for _, sig := range signals {
		if len(out) >= s.cfg.MaxTradesPerCycle || len(out) >= slots {
			break
		}

		pos, ok := s.Size(sig, available)
		if !ok {
			continue
		}

		available -= pos.SizeUsd
		out = append(out, pos)

		slog.Info("position sized",
			"market", sig.MarketID,
			"strategy", sig.Strategy,
			"side", sig.Side,
			"size_usd", pos.SizeUsd,
			"kelly_fraction", pos.KellyFraction,
			"remaining", available,
		)
	}
	return out
}
