package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[general]
initial_bankroll = 5000.0

[schedule]
cycle_interval = "10m"

[risk]
kelly_fraction = 0.2

[strategy.estimation]
min_edge = 0.15

[strategy.estimation.category_multipliers]
sports = 0.8
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.General.InitialBankroll != 5000 {
		t.Errorf("expected bankroll override, got %f", cfg.General.InitialBankroll)
	}
	if cfg.Schedule.CycleInterval.Duration != 10*time.Minute {
		t.Errorf("expected 10m cycle interval, got %s", cfg.Schedule.CycleInterval.Duration)
	}
	if cfg.Risk.KellyFraction != 0.2 {
		t.Errorf("expected kelly override, got %f", cfg.Risk.KellyFraction)
	}
	if cfg.Strategy.Estimation.MinEdge != 0.15 {
		t.Errorf("expected min edge override, got %f", cfg.Strategy.Estimation.MinEdge)
	}
	if cfg.Strategy.Estimation.CategoryMultipliers["sports"] != 0.8 {
		t.Errorf("expected category multiplier, got %v", cfg.Strategy.Estimation.CategoryMultipliers)
	}

	// Untouched keys keep their defaults.
	if cfg.Risk.MaxLossPerTradeUsd != 75 {
		t.Errorf("expected default max loss, got %f", cfg.Risk.MaxLossPerTradeUsd)
	}
	if cfg.Resolution.ExtremeThreshold != 0.95 {
		t.Errorf("expected default extreme threshold, got %f", cfg.Resolution.ExtremeThreshold)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatal("expected error for missing config")
	}
}

func TestLoad_BadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[schedule]\ncycle_interval = \"soon\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unparseable duration")
	}
}

func TestDefaults_AreInternallyConsistent(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Risk.CheapBucketMaxPct < cfg.Risk.MidBucketMaxPct ||
		cfg.Risk.MidBucketMaxPct < cfg.Risk.DearBucketMaxPct {
		t.Error("bucket ceilings must decrease as entries get dearer")
	}
	if cfg.Strategy.Confirmation.BandLow >= cfg.Strategy.Confirmation.BandHigh {
		t.Error("confirmation band must be ordered")
	}
	if cfg.Strategy.Latency.MinTimeToClose.Duration >= cfg.Strategy.Latency.MaxTimeToClose.Duration {
		t.Error("latency window must be ordered")
	}
}
