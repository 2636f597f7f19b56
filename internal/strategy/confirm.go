package strategy

import (
	"fmt"
	"log/slog"

	"github.com/linpap/polymarket/internal/config"
)

// Verdict is the confirmation triage outcome for a signal.
type Verdict int

const (
	// VerdictDrop rejects the signal outright (confidence below the band).
	VerdictDrop Verdict = iota
	// VerdictKeep passes the signal through without a second opinion.
	VerdictKeep
	// VerdictConfirm requires an independent estimate to agree in direction.
	VerdictConfirm
)

// Confirmation gates medium-confidence signals behind a second, independent
// estimator. The fetch itself is the caller's I/O; this type only decides
// whether one is needed and whether the answer agrees.
type Confirmation struct {
	cfg config.ConfirmationConfig
}

func NewConfirmation(cfg config.ConfirmationConfig) *Confirmation {
	return &Confirmation{cfg: cfg}
}

func (c *Confirmation) Enabled() bool { return c.cfg.Enabled }

// Triage sorts a signal into drop / keep / needs-confirmation.
func (c *Confirmation) Triage(sig Signal) Verdict {
	if !c.cfg.Enabled {
		return VerdictKeep
	}
	switch {
	case sig.Confidence < c.cfg.BandLow:
		return VerdictDrop
	case sig.Confidence >= c.cfg.BandHigh:
		return VerdictKeep
	default:
		return VerdictConfirm
	}
}

// Confirm promotes the signal when the second estimate points the same way:
// its fair value for the chosen side must still exceed the price paid. A
// missing or disagreeing second opinion kills the signal.
func (c *Confirmation) Confirm(sig Signal, second Estimate) (Signal, bool) {
	sideFair := second.FairValue
	if sig.Side == SideNo {
		sideFair = 1 - second.FairValue
	}

	if sideFair <= sig.Price {
		slog.Debug("confirmation disagreed",
			"market", sig.MarketID,
			"side", sig.Side,
			"price", sig.Price,
			"second_fair", sideFair,
			"model", second.Model,
		)
		return Signal{}, false
	}

	sig.Reason = fmt.Sprintf("%s; confirmed by %s at %.2f", sig.Reason, second.Model, second.FairValue)
	return sig, true
}
