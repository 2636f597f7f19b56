package market

import (
	"context"

	"github.com/linpap/polymarket/internal/strategy"
)

// Settlement is a market's resolution status as reported by the venue. The
// resolution checker decides whether the prices are extreme enough to count
// as a clean outcome.
type Settlement struct {
	Closed   bool
	PriceYes float64
	PriceNo  float64
}

// Source provides market snapshots and settlement status. Evaluators never
// touch it directly: the scheduler fetches and injects resolved data.
type Source interface {
	// ListCandidateMarkets returns the current tradeable universe, already
	// filtered to liquid, open, binary markets.
	ListCandidateMarkets(ctx context.Context) ([]strategy.Snapshot, error)
	// FetchMarket returns a fresh snapshot of one market.
	FetchMarket(ctx context.Context, id string) (strategy.Snapshot, error)
	// SettlementStatus reports whether a market has closed and at what
	// prices it settled.
	SettlementStatus(ctx context.Context, id string) (Settlement, error)
	// MatchedMarket returns the equivalent market's quote on a competing
	// venue, if one can be matched. A false return is absence of
	// opportunity, not an error.
	MatchedMarket(ctx context.Context, snap strategy.Snapshot) (strategy.VenueQuote, bool, error)
}
