package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/linpap/polymarket/internal/calibration"
	"github.com/linpap/polymarket/internal/config"
	"github.com/linpap/polymarket/internal/estimator"
	"github.com/linpap/polymarket/internal/feed"
	"github.com/linpap/polymarket/internal/ledger"
	"github.com/linpap/polymarket/internal/market"
	"github.com/linpap/polymarket/internal/resolution"
	"github.com/linpap/polymarket/internal/risk"
	"github.com/linpap/polymarket/internal/scheduler"
	"github.com/linpap/polymarket/internal/store"
)

func main() {
	configPath := flag.String("config", "config.toml", "Path to TOML config file")
	reportOnly := flag.Bool("report", false, "Print a calibration report from persisted state and exit")
	flag.Parse()

	// Local development keys; absence is fine in production.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.General.LogLevel),
	})))
	slog.Info("polymarket engine starting")

	database, err := store.Open(cfg.General.DBPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	if err := store.Migrate(database); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	telemetry := store.New(database)
	slog.Info("database initialized", "path", cfg.General.DBPath)

	// The JSON state blob is the source of truth; the bankroll is always
	// recomputed from trade history on load.
	book := ledger.Load(cfg.General.StatePath, cfg.General.InitialBankroll)

	if *reportOnly {
		printReport(book, telemetry)
		return
	}

	apiKey := os.Getenv(cfg.Models.APIKeyEnv)
	if apiKey == "" {
		slog.Warn("no model API key in environment, estimation strategy will be idle",
			"env", cfg.Models.APIKeyEnv)
	}

	budget := estimator.NewBudget(cfg.Budget.DailyCapUsd, cfg.Budget.CostPerCallUsd)
	chain := estimator.NewChain(
		estimatorsFor(cfg, apiKey, cfg.Models.Names),
		budget,
		cfg.Models.MaxRetries,
		cfg.Models.RetryBackoff.Duration,
	)
	confirmChain := estimator.NewChain(
		estimatorsFor(cfg, apiKey, []string{cfg.Models.ConfirmModel}),
		budget,
		cfg.Models.MaxRetries,
		cfg.Models.RetryBackoff.Duration,
	)
	slog.Info("estimator chains configured",
		"models", chain.Models(),
		"confirm", confirmChain.Models(),
		"daily_budget_usd", cfg.Budget.DailyCapUsd,
	)

	source := market.NewClient(cfg.Source)
	sizer := risk.NewSizer(cfg.Risk)
	checker := resolution.NewChecker(source, book, cfg.Resolution)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var prices *feed.Feed
	if cfg.Feed.Enabled {
		prices = feed.New(cfg.Feed)
		go prices.Run(ctx)
	}

	sched := scheduler.New(
		cfg, source, chain, confirmChain, sizer,
		book, checker, prices, telemetry, os.Stdout,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	if err := sched.Run(ctx); err != nil && err != context.Canceled {
		slog.Error("scheduler error", "error", err)
		os.Exit(1)
	}

	slog.Info("polymarket engine stopped")
}

func estimatorsFor(cfg *config.Config, apiKey string, models []string) []estimator.Estimator {
	var out []estimator.Estimator
	if apiKey == "" {
		return out
	}
	for _, model := range models {
		if model == "" {
			continue
		}
		out = append(out, estimator.NewOpenAIClient(
			cfg.Models.BaseURL,
			apiKey,
			model,
			cfg.Models.Temperature,
			cfg.Schedule.CallTimeout.Duration,
		))
	}
	return out
}

func printReport(book *ledger.Ledger, telemetry *store.Store) {
	var ids []string
	for _, t := range book.Unresolved() {
		ids = append(ids, t.MarketID)
	}

	report := calibration.Build(book.Resolved(), book.Unresolved(), telemetry.LatestYesPrices(ids))
	calibration.Render(os.Stdout, report)
}

func logLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
