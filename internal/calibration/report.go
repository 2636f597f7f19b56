package calibration

import (
	"math"
	"sort"

	"github.com/linpap/polymarket/internal/ledger"
	"github.com/linpap/polymarket/internal/strategy"
)

// Verdict labels how far a bucket's realized win rate sits from its mean
// forecast.
const (
	VerdictGood          = "GOOD"
	VerdictOK            = "OK"
	VerdictMiscalibrated = "MISCALIBRATED"
	VerdictEmpty         = "-"
)

const (
	goodDeviation = 0.1
	okDeviation   = 0.2

	// logLossEps clamps forecasts away from 0 and 1 so a single confident
	// miss cannot blow the log loss up to infinity.
	logLossEps = 1e-9
)

// Bucket is one decile of forecast-probability space, rebuilt fresh from
// resolved trades on every report.
type Bucket struct {
	Low, High    float64
	Count        int
	Wins         int
	WinRate      float64
	MeanForecast float64
	Verdict      string
}

// StrategyLine is one row of the per-attribution leaderboard.
type StrategyLine struct {
	Attribution string
	Trades      int
	Wins        int
	PnlUsd      float64
}

// Drift summarizes whether live prices have moved toward the system's
// estimates since entry. The market converging on our number is the earliest
// sign of real edge.
type Drift struct {
	Tracked    int
	Confirming int
	MeanMove   float64 // positive = converging toward the estimate
}

// Report is the full calibration picture computed from resolved trades.
type Report struct {
	Resolved     int
	Wins         int
	Losses       int
	WinRate      float64
	AvgWinUsd    float64
	AvgLossUsd   float64
	ProfitFactor float64

	ModelBrier    float64
	MarketBrier   float64
	BrierEdge     float64 // market − model; positive means beating the market
	ModelLogLoss  float64
	MarketLogLoss float64
	LogLossEdge   float64

	Buckets      [10]Bucket
	Leaderboard  []StrategyLine
	Confirmation Drift
}

// Build computes a report from resolved trades. latestYesPrices supplies the
// most recent observed yes-price per market for the confirmation metric;
// markets without one are simply not tracked.
func Build(resolved []*ledger.Trade, open []*ledger.Trade, latestYesPrices map[string]float64) Report {
	var r Report
	for i := range r.Buckets {
		r.Buckets[i].Low = float64(i) / 10
		r.Buckets[i].High = float64(i+1) / 10
		r.Buckets[i].Verdict = VerdictEmpty
	}

	var (
		grossWin, grossLoss    float64
		brierModel, brierMkt   float64
		logModel, logMkt       float64
		scored                 int
		forecastSum            [10]float64
		leaders                = map[string]*StrategyLine{}
	)

	for _, t := range resolved {
		if t.PnlUsd == nil {
			continue
		}
		pnl := *t.PnlUsd

		r.Resolved++
		won := pnl > 0
		if won {
			r.Wins++
			grossWin += pnl
		} else {
			r.Losses++
			grossLoss += -pnl
		}

		line, ok := leaders[t.Attribution()]
		if !ok {
			line = &StrategyLine{Attribution: t.Attribution()}
			leaders[t.Attribution()] = line
		}
		line.Trades++
		line.PnlUsd += pnl
		if won {
			line.Wins++
		}

		// Complete-set trades carry no probability forecast worth scoring:
		// fair value 1 with a guaranteed win says nothing about calibration.
		if t.Side == strategy.SideBoth {
			continue
		}

		forecast := t.FairValue
		if forecast < 0 || forecast > 1 {
			continue
		}
		outcome := 0.0
		if won {
			outcome = 1.0
		}

		idx := int(forecast * 10)
		if idx > 9 {
			idx = 9
		}
		r.Buckets[idx].Count++
		forecastSum[idx] += forecast
		if won {
			r.Buckets[idx].Wins++
		}

		brierModel += (forecast - outcome) * (forecast - outcome)
		brierMkt += (t.EntryPrice - outcome) * (t.EntryPrice - outcome)
		logModel += logLoss(forecast, outcome)
		logMkt += logLoss(t.EntryPrice, outcome)
		scored++
	}

	if r.Resolved > 0 {
		r.WinRate = float64(r.Wins) / float64(r.Resolved)
	}
	if r.Wins > 0 {
		r.AvgWinUsd = grossWin / float64(r.Wins)
	}
	if r.Losses > 0 {
		r.AvgLossUsd = grossLoss / float64(r.Losses)
	}
	if grossLoss > 0 {
		r.ProfitFactor = grossWin / grossLoss
	} else if grossWin > 0 {
		r.ProfitFactor = math.Inf(1)
	}

	if scored > 0 {
		n := float64(scored)
		r.ModelBrier = brierModel / n
		r.MarketBrier = brierMkt / n
		r.BrierEdge = r.MarketBrier - r.ModelBrier
		r.ModelLogLoss = logModel / n
		r.MarketLogLoss = logMkt / n
		r.LogLossEdge = r.MarketLogLoss - r.ModelLogLoss
	}

	for i := range r.Buckets {
		b := &r.Buckets[i]
		if b.Count == 0 {
			continue
		}
		b.WinRate = float64(b.Wins) / float64(b.Count)
		b.MeanForecast = forecastSum[i] / float64(b.Count)
		b.Verdict = verdictFor(math.Abs(b.WinRate - b.MeanForecast))
	}

	for _, line := range leaders {
		r.Leaderboard = append(r.Leaderboard, *line)
	}
	sort.Slice(r.Leaderboard, func(i, j int) bool {
		return r.Leaderboard[i].PnlUsd > r.Leaderboard[j].PnlUsd
	})

	r.Confirmation = confirmationDrift(open, latestYesPrices)
	return r
}

func verdictFor(deviation float64) string {
	switch {
	case deviation <= goodDeviation:
		return VerdictGood
	case deviation <= okDeviation:
		return VerdictOK
	default:
		return VerdictMiscalibrated
	}
}

func logLoss(forecast, outcome float64) float64 {
	p := math.Min(math.Max(forecast, logLossEps), 1-logLossEps)
	if outcome == 1 {
		return -math.Log(p)
	}
	return -math.Log(1 - p)
}

// confirmationDrift measures, for trades still on the books, whether the
// live price has moved toward the fair-value estimate since entry.
func confirmationDrift(open []*ledger.Trade, latestYesPrices map[string]float64) Drift {
	var d Drift
	for _, t := range open {
		if t.Side == strategy.SideBoth {
			continue
		}
		yes, ok := latestYesPrices[t.MarketID]
		if !ok {
			continue
		}

		sidePrice := yes
		if t.Side == strategy.SideNo {
			sidePrice = 1 - yes
		}

		move := math.Abs(t.FairValue-t.EntryPrice) - math.Abs(t.FairValue-sidePrice)
		d.Tracked++
		d.MeanMove += move
		if move > 0 {
			d.Confirming++
		}
	}
	if d.Tracked > 0 {
		d.MeanMove /= float64(d.Tracked)
	}
	return d
}
