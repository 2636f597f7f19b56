package strategy

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// Consensus collapses independent estimator signals on the same market into
// one ensemble signal per market. A strict majority on side is required; a
// tie produces nothing. The ensemble signal flows through sizing and the
// ledger like any other, so ensemble and single-model performance can be
// compared on equal terms.
func Consensus(signals []Signal) []Signal {
	byMarket := make(map[string][]Signal)
	var order []string
	for _, sig := range signals {
		if _, seen := byMarket[sig.MarketID]; !seen {
			order = append(order, sig.MarketID)
		}
		byMarket[sig.MarketID] = append(byMarket[sig.MarketID], sig)
	}

	var out []Signal
	for _, id := range order {
		group := byMarket[id]
		if len(group) < 2 {
			continue
		}
		if sig, ok := consensusOf(group); ok {
			out = append(out, sig)
		}
	}
	return out
}

func consensusOf(group []Signal) (Signal, bool) {
	var yes, no []Signal
	for _, sig := range group {
		switch sig.Side {
		case SideYes:
			yes = append(yes, sig)
		case SideNo:
			no = append(no, sig)
		}
	}

	var majority []Signal
	side := SideYes
	if len(yes) > len(no) {
		majority = yes
	} else if len(no) > len(yes) {
		majority = no
		side = SideNo
	} else {
		return Signal{}, false // tie: no consensus
	}

	// Median fair value over ALL estimates, reframed to the majority side.
	fairs := make([]float64, 0, len(group))
	for _, sig := range group {
		f := sig.FairValue
		if sig.Side != side {
			f = 1 - f
		}
		fairs = append(fairs, f)
	}
	fair := median(fairs)

	var confSum, edgeSum, priceSum float64
	models := make([]string, 0, len(majority))
	for _, sig := range majority {
		confSum += sig.Confidence
		edgeSum += sig.Edge
		priceSum += sig.Price
		if sig.SourceModel != "" {
			models = append(models, sig.SourceModel)
		}
	}

	agreement := float64(len(majority)) / float64(len(group))
	confidence := agreement * (confSum / float64(len(majority)))

	sig := Signal{
		MarketID:   majority[0].MarketID,
		Side:       side,
		FairValue:  fair,
		Confidence: confidence,
		Edge:       edgeSum / float64(len(majority)),
		Price:      priceSum / float64(len(majority)),
		Strategy:   KindEnsemble,
		Reason: fmt.Sprintf("%d/%d estimators on %s, median fair %.2f [%s]",
			len(majority), len(group), side, fair, strings.Join(models, ", ")),
	}

	slog.Debug("consensus formed",
		"market", sig.MarketID,
		"side", side,
		"agreement", agreement,
		"fair", fair,
	)
	return sig, true
}

func median(vals []float64) float64 {
	sorted := make([]float64, len(vals))
	copy(sorted, vals)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
