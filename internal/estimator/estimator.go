package estimator

import (
	"context"
	"errors"

	"github.com/linpap/polymarket/internal/strategy"
)

// Estimator produces an independent probability estimate for a market
// question. Implementations wrap one model endpoint; the chain handles
// fallback between them.
type Estimator interface {
	Name() string
	Estimate(ctx context.Context, snap strategy.Snapshot) (strategy.Estimate, error)
}

var (
	// ErrRateLimited marks a transient quota rejection worth retrying.
	ErrRateLimited = errors.New("estimator: rate limited")
	// ErrUnparseable means no probability could be recovered from the
	// model output by any extraction stage.
	ErrUnparseable = errors.New("estimator: unparseable model output")
	// ErrBudgetExhausted means the daily spend cap leaves no room for
	// another call.
	ErrBudgetExhausted = errors.New("estimator: daily budget exhausted")
)
