package calibration

import (
	"fmt"
	"io"
	"math"

	"github.com/olekukonko/tablewriter"
)

// Render writes the report as operator-readable text with tables for the
// calibration deciles and the strategy leaderboard.
func Render(w io.Writer, r Report) {
	fmt.Fprintf(w, "resolved trades: %d  wins: %d  losses: %d  win rate: %.1f%%\n",
		r.Resolved, r.Wins, r.Losses, r.WinRate*100)
	fmt.Fprintf(w, "avg win: $%.2f  avg loss: $%.2f  profit factor: %s\n",
		r.AvgWinUsd, r.AvgLossUsd, profitFactorLabel(r.ProfitFactor))
	fmt.Fprintf(w, "brier: model %.4f vs market %.4f (edge %+.4f)\n",
		r.ModelBrier, r.MarketBrier, r.BrierEdge)
	fmt.Fprintf(w, "log loss: model %.4f vs market %.4f (edge %+.4f)\n",
		r.ModelLogLoss, r.MarketLogLoss, r.LogLossEdge)

	if r.Confirmation.Tracked > 0 {
		fmt.Fprintf(w, "confirmation: %d/%d open positions converging, mean move %+.4f\n",
			r.Confirmation.Confirming, r.Confirmation.Tracked, r.Confirmation.MeanMove)
	}

	fmt.Fprintln(w)
	renderBuckets(w, r)

	if len(r.Leaderboard) > 0 {
		fmt.Fprintln(w)
		renderLeaderboard(w, r)
	}
}

func renderBuckets(w io.Writer, r Report) {
	table := tablewriter.NewWriter(w)
	table.Header("Decile", "Trades", "Forecast", "Win rate", "Verdict")

	for _, b := range r.Buckets {
		forecast, winRate := "-", "-"
		if b.Count > 0 {
			forecast = fmt.Sprintf("%.2f", b.MeanForecast)
			winRate = fmt.Sprintf("%.2f", b.WinRate)
		}
		table.Append(
			fmt.Sprintf("%.1f-%.1f", b.Low, b.High),
			fmt.Sprintf("%d", b.Count),
			forecast,
			winRate,
			b.Verdict,
		)
	}
	table.Render()
}

func renderLeaderboard(w io.Writer, r Report) {
	table := tablewriter.NewWriter(w)
	table.Header("Strategy", "Trades", "Wins", "PnL")

	for _, line := range r.Leaderboard {
		table.Append(
			line.Attribution,
			fmt.Sprintf("%d", line.Trades),
			fmt.Sprintf("%d", line.Wins),
			fmt.Sprintf("$%.2f", line.PnlUsd),
		)
	}
	table.Render()
}

func profitFactorLabel(pf float64) string {
	if math.IsInf(pf, 1) {
		return "INF"
	}
	return fmt.Sprintf("%.2f", pf)
}
