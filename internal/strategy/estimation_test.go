package strategy

import (
	"math"
	"math/rand"
	"strings"
	"testing"

	"github.com/linpap/polymarket/internal/config"
)

func newEstimationConfig() config.EstimationConfig {
	return config.EstimationConfig{
		Enabled:        true,
		MinEdge:        0.10,
		MinConfidence:  0.40,
		Shrinkage:      1.0,
		MinPrice:       0.05,
		MaxPrice:       0.95,
		MidBandLow:     0.40,
		MidBandHigh:    0.60,
		MidBandPenalty: 1.5,
	}
}

func TestEstimation_YesEdge(t *testing.T) {
	e := NewEstimation(newEstimationConfig())

	// priceYes=0.30, fair=0.55, confidence=0.6, shrinkage=1.0
	// adjustedFair=0.55, yesEdge=0.25.
	snap := Snapshot{ID: "m1", PriceYes: 0.30, PriceNo: 0.72}
	est := Estimate{FairValue: 0.55, Confidence: 0.6}

	sig, ok := e.Evaluate(snap, est)
	if !ok {
		t.Fatal("expected a signal")
	}
	if sig.Side != SideYes {
		t.Errorf("expected YES, got %s", sig.Side)
	}
	if math.Abs(sig.Edge-0.25) > 1e-9 {
		t.Errorf("expected edge 0.25, got %f", sig.Edge)
	}
	if math.Abs(sig.FairValue-0.55) > 1e-9 {
		t.Errorf("expected fair 0.55, got %f", sig.FairValue)
	}
}

func TestEstimation_NoEdge(t *testing.T) {
	e := NewEstimation(newEstimationConfig())

	// fair=0.20 against priceNo=0.65: noEdge = 0.80-0.65 = 0.15.
	snap := Snapshot{ID: "m1", PriceYes: 0.38, PriceNo: 0.65}
	est := Estimate{FairValue: 0.20, Confidence: 0.7}

	sig, ok := e.Evaluate(snap, est)
	if !ok {
		t.Fatal("expected a signal")
	}
	if sig.Side != SideNo {
		t.Errorf("expected NO, got %s", sig.Side)
	}
	if math.Abs(sig.FairValue-0.80) > 1e-9 {
		t.Errorf("expected side fair 0.80, got %f", sig.FairValue)
	}
}

func TestEstimation_RejectsBelowMinEdge(t *testing.T) {
	e := NewEstimation(newEstimationConfig())

	snap := Snapshot{ID: "m1", PriceYes: 0.30, PriceNo: 0.72}
	est := Estimate{FairValue: 0.35, Confidence: 0.9} // yesEdge 0.05 < 0.10

	if _, ok := e.Evaluate(snap, est); ok {
		t.Error("expected no signal below min edge")
	}
}

func TestEstimation_RejectsLowConfidence(t *testing.T) {
	e := NewEstimation(newEstimationConfig())

	snap := Snapshot{ID: "m1", PriceYes: 0.30, PriceNo: 0.72}
	est := Estimate{FairValue: 0.60, Confidence: 0.2}

	if _, ok := e.Evaluate(snap, est); ok {
		t.Error("expected no signal below min confidence")
	}
}

func TestEstimation_MidBandPenalty(t *testing.T) {
	e := NewEstimation(newEstimationConfig())

	// Price 0.45 is inside [0.40,0.60]: raw yesEdge 0.18 becomes 0.12.
	snap := Snapshot{ID: "m1", PriceYes: 0.45, PriceNo: 0.57}
	est := Estimate{FairValue: 0.63, Confidence: 0.8}

	sig, ok := e.Evaluate(snap, est)
	if !ok {
		t.Fatal("expected a signal")
	}
	if math.Abs(sig.Edge-0.12) > 1e-9 {
		t.Errorf("expected penalized edge 0.12, got %f", sig.Edge)
	}
}

func TestEstimation_PriceBounds(t *testing.T) {
	e := NewEstimation(newEstimationConfig())

	snap := Snapshot{ID: "m1", PriceYes: 0.03, PriceNo: 0.99}
	est := Estimate{FairValue: 0.40, Confidence: 0.9}

	if _, ok := e.Evaluate(snap, est); ok {
		t.Error("expected no signal outside price bounds")
	}
}

func TestEstimation_CategoryMultiplier(t *testing.T) {
	cfg := newEstimationConfig()
	cfg.CategoryMultipliers = map[string]float64{"crypto": 0.5}
	e := NewEstimation(cfg)

	snap := Snapshot{ID: "m1", Category: "crypto", PriceYes: 0.30, PriceNo: 0.72}
	est := Estimate{FairValue: 0.60, Confidence: 0.7} // 0.7*0.5 = 0.35 < 0.40

	if _, ok := e.Evaluate(snap, est); ok {
		t.Error("expected category multiplier to reject the signal")
	}
}

func TestEstimation_ShrinkagePullsTowardHalf(t *testing.T) {
	cfg := newEstimationConfig()
	cfg.Shrinkage = 0.5
	e := NewEstimation(cfg)

	// fair 0.90 shrinks to 0.70; yesEdge = 0.70-0.30 = 0.40.
	snap := Snapshot{ID: "m1", PriceYes: 0.30, PriceNo: 0.72}
	est := Estimate{FairValue: 0.90, Confidence: 0.8}

	sig, ok := e.Evaluate(snap, est)
	if !ok {
		t.Fatal("expected a signal")
	}
	if math.Abs(sig.Edge-0.40) > 1e-9 {
		t.Errorf("expected edge 0.40 after shrinkage, got %f", sig.Edge)
	}
}

func TestEstimation_ReasonCarriesBasisOnlyWhenPresent(t *testing.T) {
	e := NewEstimation(newEstimationConfig())
	snap := Snapshot{ID: "m1", PriceYes: 0.30, PriceNo: 0.72}

	sig, ok := e.Evaluate(snap, Estimate{FairValue: 0.55, Confidence: 0.6})
	if !ok {
		t.Fatal("expected a signal")
	}
	if strings.Contains(sig.Reason, "()") {
		t.Errorf("reason has an empty basis suffix: %q", sig.Reason)
	}

	sig, ok = e.Evaluate(snap, Estimate{FairValue: 0.55, Confidence: 0.6, Basis: "polls moved"})
	if !ok {
		t.Fatal("expected a signal")
	}
	if !strings.Contains(sig.Reason, "(polls moved)") {
		t.Errorf("reason missing basis: %q", sig.Reason)
	}
}

// Every emitted signal must clear the configured minimums, whatever the
// inputs look like.
func TestEstimation_EmittedSignalsAlwaysClearMinimums(t *testing.T) {
	cfg := newEstimationConfig()
	e := NewEstimation(cfg)
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 10000; i++ {
		py := rng.Float64()
		snap := Snapshot{ID: "m", PriceYes: py, PriceNo: 1 - py + (rng.Float64()-0.5)*0.06}
		est := Estimate{FairValue: rng.Float64(), Confidence: rng.Float64()}

		sig, ok := e.Evaluate(snap, est)
		if !ok {
			continue
		}
		if sig.Edge < cfg.MinEdge {
			t.Fatalf("signal emitted with edge %f below minimum", sig.Edge)
		}
		if sig.Confidence < cfg.MinConfidence {
			t.Fatalf("signal emitted with confidence %f below minimum", sig.Confidence)
		}
		if sig.Price < cfg.MinPrice || sig.Price > cfg.MaxPrice {
			t.Fatalf("signal emitted at out-of-bounds price %f", sig.Price)
		}
	}
}
