package calibration

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/linpap/polymarket/internal/ledger"
	"github.com/linpap/polymarket/internal/strategy"
)

func resolvedTrade(marketID string, side strategy.Side, fair, entry, pnl float64) *ledger.Trade {
	outcome := side
	if pnl <= 0 {
		outcome = side.Opposite()
	}
	return &ledger.Trade{
		ID:         marketID + "-t",
		MarketID:   marketID,
		Side:       side,
		EntryPrice: entry,
		FairValue:  fair,
		SizeUsd:    100,
		Strategy:   strategy.KindEstimation,
		State:      ledger.StateResolved,
		Outcome:    &outcome,
		PnlUsd:     &pnl,
	}
}

func TestBuild_PerfectForecasterBrierIsZero(t *testing.T) {
	trades := []*ledger.Trade{
		resolvedTrade("m1", strategy.SideYes, 1.0, 0.60, 50),
		resolvedTrade("m2", strategy.SideYes, 0.0, 0.60, -100),
	}

	r := Build(trades, nil, nil)
	if r.ModelBrier != 0 {
		t.Errorf("expected Brier 0 for a perfect forecaster, got %f", r.ModelBrier)
	}
}

func TestBuild_MaximallyWrongForecasterBrierIsOne(t *testing.T) {
	trades := []*ledger.Trade{
		resolvedTrade("m1", strategy.SideYes, 1.0, 0.60, -100),
		resolvedTrade("m2", strategy.SideYes, 0.0, 0.60, 50),
	}

	r := Build(trades, nil, nil)
	if r.ModelBrier != 1 {
		t.Errorf("expected Brier 1 for a maximally wrong forecaster, got %f", r.ModelBrier)
	}
}

func TestBuild_BucketCountsSumToScoredTrades(t *testing.T) {
	var trades []*ledger.Trade
	fairs := []float64{0.05, 0.15, 0.15, 0.55, 0.55, 0.55, 0.72, 0.95, 1.0}
	for i, f := range fairs {
		pnl := 50.0
		if i%2 == 0 {
			pnl = -50
		}
		trades = append(trades, resolvedTrade(string(rune('a'+i)), strategy.SideYes, f, 0.5, pnl))
	}
	// Complete-set trades carry no forecast and must not land in a bucket.
	trades = append(trades, resolvedTrade("cs", strategy.SideBoth, 1.0, 0.95, 5))

	r := Build(trades, nil, nil)

	total := 0
	for _, b := range r.Buckets {
		total += b.Count
	}
	if total != len(fairs) {
		t.Errorf("bucket counts sum to %d, expected %d", total, len(fairs))
	}
	if r.Resolved != len(fairs)+1 {
		t.Errorf("expected %d resolved including the complete set, got %d", len(fairs)+1, r.Resolved)
	}
}

func TestBuild_WinRateAndProfitFactor(t *testing.T) {
	trades := []*ledger.Trade{
		resolvedTrade("m1", strategy.SideYes, 0.6, 0.4, 150),
		resolvedTrade("m2", strategy.SideYes, 0.6, 0.4, 150),
		resolvedTrade("m3", strategy.SideYes, 0.6, 0.4, -100),
	}

	r := Build(trades, nil, nil)
	if math.Abs(r.WinRate-2.0/3.0) > 1e-9 {
		t.Errorf("expected win rate 2/3, got %f", r.WinRate)
	}
	if r.AvgWinUsd != 150 || r.AvgLossUsd != 100 {
		t.Errorf("unexpected magnitudes: win %f, loss %f", r.AvgWinUsd, r.AvgLossUsd)
	}
	if math.Abs(r.ProfitFactor-3.0) > 1e-9 {
		t.Errorf("expected profit factor 3, got %f", r.ProfitFactor)
	}
}

func TestBuild_ProfitFactorWithNoLosses(t *testing.T) {
	r := Build([]*ledger.Trade{resolvedTrade("m1", strategy.SideYes, 0.6, 0.4, 150)}, nil, nil)
	if !math.IsInf(r.ProfitFactor, 1) {
		t.Errorf("expected infinite profit factor, got %f", r.ProfitFactor)
	}
}

func TestBuild_EdgeOverMarket(t *testing.T) {
	// Model said 0.9 and won; the market only priced it at 0.55. The model
	// scores strictly better on both rules.
	trades := []*ledger.Trade{
		resolvedTrade("m1", strategy.SideYes, 0.9, 0.55, 80),
	}

	r := Build(trades, nil, nil)
	if r.BrierEdge <= 0 {
		t.Errorf("expected positive Brier edge, got %f", r.BrierEdge)
	}
	if r.LogLossEdge <= 0 {
		t.Errorf("expected positive log-loss edge, got %f", r.LogLossEdge)
	}
	if math.Abs(r.ModelBrier-0.01) > 1e-9 {
		t.Errorf("expected model Brier 0.01, got %f", r.ModelBrier)
	}
}

func TestBuild_BucketVerdicts(t *testing.T) {
	// Sixteen trades forecast in the 0.7 decile: 12 wins is a 0.75 win rate,
	// within 0.1 of the forecast.
	var trades []*ledger.Trade
	for i := 0; i < 16; i++ {
		pnl := 50.0
		if i >= 12 {
			pnl = -50
		}
		trades = append(trades, resolvedTrade(string(rune('a'+i)), strategy.SideYes, 0.75, 0.5, pnl))
	}

	r := Build(trades, nil, nil)
	b := r.Buckets[7]
	if b.Count != 16 {
		t.Fatalf("expected 16 trades in decile 7, got %d", b.Count)
	}
	if b.Verdict != VerdictGood {
		t.Errorf("expected GOOD verdict, got %s", b.Verdict)
	}
	if r.Buckets[0].Verdict != VerdictEmpty {
		t.Errorf("expected empty verdict for untouched decile, got %s", r.Buckets[0].Verdict)
	}
}

func TestBuild_MiscalibratedVerdict(t *testing.T) {
	// Forecast 0.95, win rate 0.5: off by 0.45.
	var trades []*ledger.Trade
	for i := 0; i < 4; i++ {
		pnl := 50.0
		if i%2 == 0 {
			pnl = -50
		}
		trades = append(trades, resolvedTrade(string(rune('a'+i)), strategy.SideYes, 0.95, 0.5, pnl))
	}

	r := Build(trades, nil, nil)
	if r.Buckets[9].Verdict != VerdictMiscalibrated {
		t.Errorf("expected MISCALIBRATED, got %s", r.Buckets[9].Verdict)
	}
}

func TestBuild_Leaderboard(t *testing.T) {
	t1 := resolvedTrade("m1", strategy.SideYes, 0.6, 0.4, 150)
	t2 := resolvedTrade("m2", strategy.SideYes, 0.6, 0.4, -100)
	t2.Strategy = strategy.KindLatency
	t3 := resolvedTrade("m3", strategy.SideYes, 0.6, 0.4, 80)
	t3.Strategy = strategy.KindLatency

	r := Build([]*ledger.Trade{t1, t2, t3}, nil, nil)
	if len(r.Leaderboard) != 2 {
		t.Fatalf("expected 2 leaderboard lines, got %d", len(r.Leaderboard))
	}
	if r.Leaderboard[0].Attribution != string(strategy.KindEstimation) {
		t.Errorf("expected estimation on top, got %s", r.Leaderboard[0].Attribution)
	}
	if r.Leaderboard[1].Trades != 2 || math.Abs(r.Leaderboard[1].PnlUsd-(-20)) > 1e-9 {
		t.Errorf("unexpected latency line: %+v", r.Leaderboard[1])
	}
}

func TestConfirmationDrift(t *testing.T) {
	open := []*ledger.Trade{
		// YES at 0.40 with fair 0.60; price moved up to 0.50: converging.
		{MarketID: "m1", Side: strategy.SideYes, FairValue: 0.60, EntryPrice: 0.40, State: ledger.StateOpen},
		// NO at 0.30 (yes 0.70) with fair 0.40; yes moved to 0.80, so the NO
		// side price fell to 0.20: diverging.
		{MarketID: "m2", Side: strategy.SideNo, FairValue: 0.40, EntryPrice: 0.30, State: ledger.StateOpen},
		// No live price observed: not tracked.
		{MarketID: "m3", Side: strategy.SideYes, FairValue: 0.60, EntryPrice: 0.40, State: ledger.StateOpen},
	}
	prices := map[string]float64{"m1": 0.50, "m2": 0.80}

	r := Build(nil, open, prices)
	d := r.Confirmation
	if d.Tracked != 2 {
		t.Fatalf("expected 2 tracked, got %d", d.Tracked)
	}
	if d.Confirming != 1 {
		t.Errorf("expected 1 confirming, got %d", d.Confirming)
	}
	// m1 moved +0.10 toward, m2 moved 0.10 away: mean 0.
	if math.Abs(d.MeanMove) > 1e-9 {
		t.Errorf("expected zero mean move, got %f", d.MeanMove)
	}
}

func TestRender(t *testing.T) {
	trades := []*ledger.Trade{
		resolvedTrade("m1", strategy.SideYes, 0.6, 0.4, 150),
		resolvedTrade("m2", strategy.SideYes, 0.6, 0.4, -100),
	}

	var buf bytes.Buffer
	Render(&buf, Build(trades, nil, nil))

	out := buf.String()
	for _, want := range []string{"win rate", "brier", "Decile", "Strategy"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected rendered report to mention %q", want)
		}
	}
}
