package strategy

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/linpap/polymarket/internal/config"
)

// Latency trades short-horizon price-threshold markets against a live spot
// feed: when the underlying has already moved hard and the market closes
// soon, the resolution is close to locked in while the ask still lags.
type Latency struct {
	cfg config.LatencyConfig
}

func NewLatency(cfg config.LatencyConfig) *Latency {
	return &Latency{cfg: cfg}
}

func (l *Latency) Name() Kind    { return KindLatency }
func (l *Latency) Enabled() bool { return l.cfg.Enabled }

// Evaluate fires only inside the configured time-to-close window: earlier the
// move can still reverse, later the order won't fill before close. The quote
// is injected by the caller; no feed access happens here.
func (l *Latency) Evaluate(snap Snapshot, quote Quote, now time.Time) (Signal, bool) {
	if snap.Symbol == "" {
		return Signal{}, false
	}

	remaining := snap.EndDate.Sub(now)
	if remaining < l.cfg.MinTimeToClose.Duration || remaining > l.cfg.MaxTimeToClose.Duration {
		return Signal{}, false
	}

	magnitude := math.Abs(quote.Change1m)
	if magnitude < l.cfg.MinMove1mPct {
		return Signal{}, false
	}

	// A 1m spike against the 5m trend is likely noise, not direction.
	if quote.Change5m != 0 && math.Signbit(quote.Change1m) != math.Signbit(quote.Change5m) {
		return Signal{}, false
	}

	side := SideYes
	if quote.Change1m < 0 {
		side = SideNo
	}

	ask := snap.Price(side)
	if ask <= 0 || ask > l.cfg.MaxEntryPrice {
		return Signal{}, false
	}

	locked := l.lockedValue(magnitude, remaining)
	edge := locked - ask
	if edge < l.cfg.MinEdge {
		return Signal{}, false
	}

	confidence := l.confidence(magnitude, remaining, ask)
	if confidence < l.cfg.MinConfidence {
		return Signal{}, false
	}

	slog.Debug("latency opportunity",
		"market", snap.ID,
		"symbol", snap.Symbol,
		"side", side,
		"move_1m", quote.Change1m,
		"remaining", remaining,
		"locked", locked,
		"edge", edge,
	)

	return Signal{
		MarketID:   snap.ID,
		Side:       side,
		FairValue:  locked,
		Confidence: confidence,
		Edge:       edge,
		Price:      ask,
		Strategy:   KindLatency,
		Reason: fmt.Sprintf("%s moved %.2f%% in 1m with %s to close, ask %.2f",
			snap.Symbol, quote.Change1m, remaining.Round(time.Second), ask),
	}, true
}

// lockedValue estimates the probability the move holds to resolution. Larger
// move and less time both push it toward 1.0.
func (l *Latency) lockedValue(magnitude float64, remaining time.Duration) float64 {
	v := 0.85
	if magnitude >= l.cfg.BigMove1mPct {
		v += 0.08
	} else if magnitude >= 1.5*l.cfg.MinMove1mPct {
		v += 0.04
	}
	if remaining <= l.cfg.MaxTimeToClose.Duration/4 {
		v += 0.05
	} else if remaining <= l.cfg.MaxTimeToClose.Duration/2 {
		v += 0.02
	}
	return math.Min(v, 0.98)
}

// confidence is a deterministic step function, not a model call.
func (l *Latency) confidence(magnitude float64, remaining time.Duration, ask float64) float64 {
	c := 0.55
	if magnitude >= l.cfg.BigMove1mPct {
		c += 0.15
	}
	if remaining <= l.cfg.MaxTimeToClose.Duration/2 {
		c += 0.10
	}
	if ask <= 0.70 {
		c += 0.05
	}
	return math.Min(c, 0.90)
}
