package estimator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/linpap/polymarket/internal/strategy"
)

// Chain runs a set of estimators against the same market. Each call is
// budget-gated and retried on rate limits with doubling backoff; a model that
// still fails is skipped, not fatal.
type Chain struct {
	estimators []Estimator
	budget     *Budget
	maxRetries int
	backoff    time.Duration
}

func NewChain(estimators []Estimator, budget *Budget, maxRetries int, backoff time.Duration) *Chain {
	return &Chain{
		estimators: estimators,
		budget:     budget,
		maxRetries: maxRetries,
		backoff:    backoff,
	}
}

// Estimate returns the first successful estimate, trying estimators in
// listed order. Used for the confirmation pass, where one opinion is enough.
func (c *Chain) Estimate(ctx context.Context, snap strategy.Snapshot) (strategy.Estimate, error) {
	var lastErr error
	for _, e := range c.estimators {
		est, err := c.callOne(ctx, e, snap)
		if err != nil {
			lastErr = err
			continue
		}
		return est, nil
	}
	if lastErr == nil {
		lastErr = errors.New("estimator: no estimators configured")
	}
	return strategy.Estimate{}, fmt.Errorf("all estimators failed: %w", lastErr)
}

// EstimateAll gathers one estimate from every estimator, for ensemble
// consensus downstream. Failures thin the ensemble rather than abort it.
func (c *Chain) EstimateAll(ctx context.Context, snap strategy.Snapshot) []strategy.Estimate {
	var out []strategy.Estimate
	for _, e := range c.estimators {
		est, err := c.callOne(ctx, e, snap)
		if err != nil {
			slog.Warn("estimator skipped",
				"model", e.Name(),
				"market", snap.ID,
				"error", err,
			)
			continue
		}
		out = append(out, est)
	}
	return out
}

func (c *Chain) callOne(ctx context.Context, e Estimator, snap strategy.Snapshot) (strategy.Estimate, error) {
	backoff := c.backoff
	for attempt := 0; ; attempt++ {
		if !c.budget.Allow() {
			return strategy.Estimate{}, ErrBudgetExhausted
		}

		est, err := e.Estimate(ctx, snap)
		if err == nil {
			c.budget.Spend()
			return est, nil
		}

		if !errors.Is(err, ErrRateLimited) || attempt >= c.maxRetries {
			return strategy.Estimate{}, err
		}

		slog.Debug("estimator rate limited, backing off",
			"model", e.Name(),
			"attempt", attempt+1,
			"backoff", backoff,
		)
		select {
		case <-ctx.Done():
			return strategy.Estimate{}, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

// Models returns the estimator names in call order.
func (c *Chain) Models() []string {
	names := make([]string, len(c.estimators))
	for i, e := range c.estimators {
		names[i] = e.Name()
	}
	return names
}
