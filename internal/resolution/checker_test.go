package resolution

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linpap/polymarket/internal/config"
	"github.com/linpap/polymarket/internal/ledger"
	"github.com/linpap/polymarket/internal/market"
	"github.com/linpap/polymarket/internal/risk"
	"github.com/linpap/polymarket/internal/strategy"
)

type fakeSource struct {
	settlements map[string]market.Settlement
	errs        map[string]error
	calls       int
}

func (f *fakeSource) ListCandidateMarkets(context.Context) ([]strategy.Snapshot, error) {
	return nil, nil
}

func (f *fakeSource) FetchMarket(_ context.Context, id string) (strategy.Snapshot, error) {
	return strategy.Snapshot{ID: id}, nil
}

func (f *fakeSource) SettlementStatus(_ context.Context, id string) (market.Settlement, error) {
	f.calls++
	if err, ok := f.errs[id]; ok {
		return market.Settlement{}, err
	}
	return f.settlements[id], nil
}

func (f *fakeSource) MatchedMarket(context.Context, strategy.Snapshot) (strategy.VenueQuote, bool, error) {
	return strategy.VenueQuote{}, false, nil
}

func openTrade(t *testing.T, book *ledger.Ledger, marketID string, deadline time.Time) *ledger.Trade {
	t.Helper()
	trade, err := book.Open(risk.SizedPosition{
		Signal: strategy.Signal{
			MarketID: marketID,
			Side:     strategy.SideYes,
			Strategy: strategy.KindEstimation,
		},
		SizeUsd:    100,
		EntryPrice: 0.40,
		Shares:     250,
	}, "", deadline)
	require.NoError(t, err)
	return trade
}

func testConfig() config.ResolutionConfig {
	return config.ResolutionConfig{BatchSize: 20, ExtremeThreshold: 0.95}
}

func TestCheckOnce_ResolvesExtremeSettlement(t *testing.T) {
	book := ledger.New(10000)
	trade := openTrade(t, book, "m1", time.Now().Add(time.Hour))

	src := &fakeSource{settlements: map[string]market.Settlement{
		"m1": {Closed: true, PriceYes: 0.99, PriceNo: 0.01},
	}}
	c := NewChecker(src, book, testConfig())

	assert.Equal(t, 1, c.CheckOnce(context.Background()))
	assert.Empty(t, book.Unresolved())
	assert.Equal(t, 10150.0, book.Bankroll())

	resolved := book.Resolved()
	require.Len(t, resolved, 1)
	assert.Equal(t, trade.ID, resolved[0].ID)
	assert.Equal(t, strategy.SideYes, *resolved[0].Outcome)
}

func TestCheckOnce_SkipsOpenMarkets(t *testing.T) {
	book := ledger.New(10000)
	openTrade(t, book, "m1", time.Now().Add(time.Hour))

	src := &fakeSource{settlements: map[string]market.Settlement{
		"m1": {Closed: false, PriceYes: 0.99},
	}}
	c := NewChecker(src, book, testConfig())

	assert.Equal(t, 0, c.CheckOnce(context.Background()))
	assert.Len(t, book.Unresolved(), 1)
}

func TestCheckOnce_NeverGuessesAmbiguousOutcomes(t *testing.T) {
	book := ledger.New(10000)
	openTrade(t, book, "m1", time.Now().Add(time.Hour))

	// Closed but settled mid-range: no clean winner, leave it alone.
	src := &fakeSource{settlements: map[string]market.Settlement{
		"m1": {Closed: true, PriceYes: 0.80, PriceNo: 0.20},
	}}
	c := NewChecker(src, book, testConfig())

	assert.Equal(t, 0, c.CheckOnce(context.Background()))
	assert.Len(t, book.Unresolved(), 1)
}

func TestCheckOnce_ResolvesNoSide(t *testing.T) {
	book := ledger.New(10000)
	openTrade(t, book, "m1", time.Now().Add(time.Hour))

	src := &fakeSource{settlements: map[string]market.Settlement{
		"m1": {Closed: true, PriceYes: 0.02, PriceNo: 0.98},
	}}
	c := NewChecker(src, book, testConfig())

	assert.Equal(t, 1, c.CheckOnce(context.Background()))
	assert.Equal(t, 9900.0, book.Bankroll(), "losing trade costs the stake")
}

func TestCheckOnce_BatchLimit(t *testing.T) {
	book := ledger.New(10000)
	settlements := make(map[string]market.Settlement)
	for _, id := range []string{"m1", "m2", "m3"} {
		openTrade(t, book, id, time.Now().Add(time.Hour))
		settlements[id] = market.Settlement{Closed: true, PriceYes: 0.99}
	}

	cfg := testConfig()
	cfg.BatchSize = 2
	src := &fakeSource{settlements: settlements}
	c := NewChecker(src, book, cfg)

	assert.Equal(t, 2, c.CheckOnce(context.Background()))
	assert.Equal(t, 2, src.calls)
	assert.Len(t, book.Unresolved(), 1)

	// The next tick picks up the remainder.
	assert.Equal(t, 1, c.CheckOnce(context.Background()))
	assert.Empty(t, book.Unresolved())
}

func TestCheckOnce_RotationPreventsStarvation(t *testing.T) {
	book := ledger.New(10000)
	openTrade(t, book, "m1", time.Now().Add(time.Hour))
	openTrade(t, book, "m2", time.Now().Add(time.Hour))
	openTrade(t, book, "m3", time.Now().Add(time.Hour))

	// m1 and m2 are permanently ambiguous; m3 settled cleanly. With a batch
	// of two, a fixed oldest-first window would poll m1 and m2 forever.
	src := &fakeSource{settlements: map[string]market.Settlement{
		"m1": {Closed: true, PriceYes: 0.60, PriceNo: 0.40},
		"m2": {Closed: true, PriceYes: 0.55, PriceNo: 0.45},
		"m3": {Closed: true, PriceYes: 0.99, PriceNo: 0.01},
	}}
	cfg := testConfig()
	cfg.BatchSize = 2
	c := NewChecker(src, book, cfg)

	total := 0
	for i := 0; i < 5 && total == 0; i++ {
		total += c.CheckOnce(context.Background())
	}
	assert.Equal(t, 1, total, "the settled trade must be reached within a few ticks")
	assert.Len(t, book.Unresolved(), 2)
}

func TestCheckOnce_SourceErrorSkipsTrade(t *testing.T) {
	book := ledger.New(10000)
	openTrade(t, book, "m1", time.Now().Add(time.Hour))
	openTrade(t, book, "m2", time.Now().Add(time.Hour))

	src := &fakeSource{
		settlements: map[string]market.Settlement{
			"m2": {Closed: true, PriceYes: 0.99},
		},
		errs: map[string]error{"m1": errors.New("api down")},
	}
	c := NewChecker(src, book, testConfig())

	assert.Equal(t, 1, c.CheckOnce(context.Background()))
	assert.Len(t, book.Unresolved(), 1, "errored trade stays for the next tick")
}

func TestCheckOnce_FlagsExpired(t *testing.T) {
	book := ledger.New(10000)
	trade := openTrade(t, book, "m1", time.Now().Add(-time.Hour))

	src := &fakeSource{settlements: map[string]market.Settlement{
		"m1": {Closed: true, PriceYes: 0.60, PriceNo: 0.40},
	}}
	c := NewChecker(src, book, testConfig())

	c.CheckOnce(context.Background())

	unresolved := book.Unresolved()
	require.Len(t, unresolved, 1)
	assert.Equal(t, ledger.StateExpiredUnresolved, unresolved[0].State)
	assert.Equal(t, trade.ID, unresolved[0].ID)
}
