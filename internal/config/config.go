package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	General    GeneralConfig    `toml:"general"`
	Schedule   ScheduleConfig   `toml:"schedule"`
	Budget     BudgetConfig     `toml:"budget"`
	Risk       RiskConfig       `toml:"risk"`
	Strategy   StrategyConfig   `toml:"strategy"`
	Models     ModelsConfig     `toml:"models"`
	Source     SourceConfig     `toml:"source"`
	Feed       FeedConfig       `toml:"feed"`
	Resolution ResolutionConfig `toml:"resolution"`
}

type GeneralConfig struct {
	DBPath          string  `toml:"db_path"`
	StatePath       string  `toml:"state_path"`
	LogLevel        string  `toml:"log_level"`
	InitialBankroll float64 `toml:"initial_bankroll"`
	// SnapshotRetention bounds how long price history is kept in sqlite.
	SnapshotRetention Duration `toml:"snapshot_retention"`
}

type ScheduleConfig struct {
	CycleInterval      Duration `toml:"cycle_interval"`
	ResolutionInterval Duration `toml:"resolution_interval"`
	ReportInterval     Duration `toml:"report_interval"`
	CallTimeout        Duration `toml:"call_timeout"`
	CallDelay          Duration `toml:"call_delay"`      // stagger between concurrent estimator calls
	MarketCooldown     Duration `toml:"market_cooldown"` // min interval between evaluations of one market
}

type BudgetConfig struct {
	DailyCapUsd    float64 `toml:"daily_cap_usd"`
	CostPerCallUsd float64 `toml:"cost_per_call_usd"`
}

// RiskConfig controls position sizing. Bucket caps are asymmetric: cheaper
// entries get a higher percentage-of-bankroll ceiling because the payoff
// ratio is more favorable.
type RiskConfig struct {
	KellyFraction      float64 `toml:"kelly_fraction"`
	CheapBucketMaxPct  float64 `toml:"cheap_bucket_max_pct"` // entry < cheap_bucket_below
	MidBucketMaxPct    float64 `toml:"mid_bucket_max_pct"`
	DearBucketMaxPct   float64 `toml:"dear_bucket_max_pct"` // entry >= dear_bucket_above
	CheapBucketBelow   float64 `toml:"cheap_bucket_below"`
	DearBucketAbove    float64 `toml:"dear_bucket_above"`
	MaxLossPerTradeUsd float64 `toml:"max_loss_per_trade_usd"`
	MaxLossPerTradePct float64 `toml:"max_loss_per_trade_pct"`
	MinTradeUsd        float64 `toml:"min_trade_usd"`
	LongshotFloor      float64 `toml:"longshot_floor"` // reject entries priced below this
	TradeIncrementUsd  float64 `toml:"trade_increment_usd"`
	MaxOpenPositions   int     `toml:"max_open_positions"`
	MaxTradesPerCycle  int     `toml:"max_trades_per_cycle"`
	// CompleteSetMaxPct sizes guaranteed complete-set buys as a flat bankroll
	// percentage instead of the directional Kelly path. Deliberately a knob,
	// not hard-coded policy.
	CompleteSetMaxPct float64 `toml:"complete_set_max_pct"`
}

type StrategyConfig struct {
	Estimation   EstimationConfig   `toml:"estimation"`
	Latency      LatencyConfig      `toml:"latency"`
	CompleteSet  CompleteSetConfig  `toml:"completeset"`
	CrossVenue   CrossVenueConfig   `toml:"crossvenue"`
	Confirmation ConfirmationConfig `toml:"confirmation"`
}

type EstimationConfig struct {
	Enabled             bool               `toml:"enabled"`
	MinEdge             float64            `toml:"min_edge"`
	MinConfidence       float64            `toml:"min_confidence"`
	Shrinkage           float64            `toml:"shrinkage"` // 1.0 = trust the estimator as-is
	MinPrice            float64            `toml:"min_price"`
	MaxPrice            float64            `toml:"max_price"`
	MidBandLow          float64            `toml:"mid_band_low"`
	MidBandHigh         float64            `toml:"mid_band_high"`
	MidBandPenalty      float64            `toml:"mid_band_penalty"` // divisor for edges inside the band
	CategoryMultipliers map[string]float64 `toml:"category_multipliers"`
}

type LatencyConfig struct {
	Enabled        bool     `toml:"enabled"`
	MinTimeToClose Duration `toml:"min_time_to_close"`
	MaxTimeToClose Duration `toml:"max_time_to_close"`
	MinMove1mPct   float64  `toml:"min_move_1m_pct"`
	BigMove1mPct   float64  `toml:"big_move_1m_pct"`
	MinEdge        float64  `toml:"min_edge"`
	MinConfidence  float64  `toml:"min_confidence"`
	MaxEntryPrice  float64  `toml:"max_entry_price"`
}

type CompleteSetConfig struct {
	Enabled      bool    `toml:"enabled"`
	CombinedMax  float64 `toml:"combined_max"` // fire when yesAsk+noAsk < this
	Confidence   float64 `toml:"confidence"`
	MinLiquidity float64 `toml:"min_liquidity"`
}

type CrossVenueConfig struct {
	Enabled            bool    `toml:"enabled"`
	MinSpread          float64 `toml:"min_spread"`
	SafeBandLow        float64 `toml:"safe_band_low"`
	SafeBandHigh       float64 `toml:"safe_band_high"`
	ConfidenceDiscount float64 `toml:"confidence_discount"`
	Confidence         float64 `toml:"confidence"`
}

type ConfirmationConfig struct {
	Enabled  bool    `toml:"enabled"`
	BandLow  float64 `toml:"band_low"`  // below: signal dropped outright
	BandHigh float64 `toml:"band_high"` // above: confirmation skipped
}

// ModelsConfig points at an OpenAI-compatible chat completion endpoint. Names
// are tried in listed order; the confirmation model should differ from the
// primaries so a second opinion is actually independent.
type ModelsConfig struct {
	BaseURL      string   `toml:"base_url"`
	Names        []string `toml:"names"`
	ConfirmModel string   `toml:"confirm_model"`
	APIKeyEnv    string   `toml:"api_key_env"`
	Temperature  float64  `toml:"temperature"`
	MaxRetries   int      `toml:"max_retries"`
	RetryBackoff Duration `toml:"retry_backoff"`
}

type SourceConfig struct {
	GammaBaseURL string  `toml:"gamma_base_url"`
	ClobBaseURL  string  `toml:"clob_base_url"`
	PageSize     int     `toml:"page_size"`
	MaxMarkets   int     `toml:"max_markets"`
	MinLiquidity float64 `toml:"min_liquidity"`
	// MatchBaseURL points at a second Gamma-compatible venue used for
	// cross-venue comparison. Empty disables the strategy's data source.
	MatchBaseURL string `toml:"match_base_url"`
	MatchVenue   string `toml:"match_venue"`
}

type FeedConfig struct {
	Enabled          bool     `toml:"enabled"`
	WSURL            string   `toml:"ws_url"`
	Symbols          []string `toml:"symbols"`
	ReconnectBackoff Duration `toml:"reconnect_backoff"`
	MoveThresholdPct float64  `toml:"move_threshold_pct"`
	WindowSpan       Duration `toml:"window_span"`
}

type ResolutionConfig struct {
	BatchSize        int     `toml:"batch_size"`
	ExtremeThreshold float64 `toml:"extreme_threshold"` // settlement price above this counts as a clean outcome
}

// Duration wraps time.Duration for TOML unmarshaling.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

func DefaultConfig() *Config {
	return &Config{
		General: GeneralConfig{
			DBPath:            "./data/polymarket.db",
			StatePath:         "./data/state.json",
			LogLevel:          "info",
			InitialBankroll:   10000,
			SnapshotRetention: Duration{7 * 24 * time.Hour},
		},
		Schedule: ScheduleConfig{
			CycleInterval:      Duration{5 * time.Minute},
			ResolutionInterval: Duration{15 * time.Minute},
			ReportInterval:     Duration{1 * time.Hour},
			CallTimeout:        Duration{45 * time.Second},
			CallDelay:          Duration{500 * time.Millisecond},
			MarketCooldown:     Duration{2 * time.Minute},
		},
		Budget: BudgetConfig{
			DailyCapUsd:    5.0,
			CostPerCallUsd: 0.01,
		},
		Risk: RiskConfig{
			KellyFraction:      0.25,
			CheapBucketMaxPct:  0.15,
			MidBucketMaxPct:    0.12,
			DearBucketMaxPct:   0.08,
			CheapBucketBelow:   0.20,
			DearBucketAbove:    0.60,
			MaxLossPerTradeUsd: 75,
			MaxLossPerTradePct: 0.02,
			MinTradeUsd:        5,
			LongshotFloor:      0.05,
			TradeIncrementUsd:  1,
			MaxOpenPositions:   25,
			MaxTradesPerCycle:  5,
			CompleteSetMaxPct:  0.25,
		},
		Strategy: StrategyConfig{
			Estimation: EstimationConfig{
				Enabled:        true,
				MinEdge:        0.10,
				MinConfidence:  0.40,
				Shrinkage:      1.0,
				MinPrice:       0.05,
				MaxPrice:       0.95,
				MidBandLow:     0.40,
				MidBandHigh:    0.60,
				MidBandPenalty: 1.5,
			},
			Latency: LatencyConfig{
				Enabled:        true,
				MinTimeToClose: Duration{30 * time.Second},
				MaxTimeToClose: Duration{8 * time.Minute},
				MinMove1mPct:   0.08,
				BigMove1mPct:   0.20,
				MinEdge:        0.05,
				MinConfidence:  0.55,
				MaxEntryPrice:  0.92,
			},
			CompleteSet: CompleteSetConfig{
				Enabled:      true,
				CombinedMax:  0.98,
				Confidence:   0.99,
				MinLiquidity: 500,
			},
			CrossVenue: CrossVenueConfig{
				Enabled:            true,
				MinSpread:          0.04,
				SafeBandLow:        0.10,
				SafeBandHigh:       0.90,
				ConfidenceDiscount: 0.70,
				Confidence:         0.65,
			},
			Confirmation: ConfirmationConfig{
				Enabled:  true,
				BandLow:  0.45,
				BandHigh: 0.70,
			},
		},
		Models: ModelsConfig{
			BaseURL:      "https://openrouter.ai/api/v1",
			Names:        []string{"openai/gpt-4o-mini", "google/gemini-2.0-flash-001"},
			ConfirmModel: "meta-llama/llama-3.1-70b-instruct",
			APIKeyEnv:    "OPENROUTER_API_KEY",
			Temperature:  0.2,
			MaxRetries:   2,
			RetryBackoff: Duration{2 * time.Second},
		},
		Source: SourceConfig{
			GammaBaseURL: "https://gamma-api.polymarket.com",
			ClobBaseURL:  "https://clob.polymarket.com",
			PageSize:     100,
			MaxMarkets:   200,
			MinLiquidity: 1000,
		},
		Feed: FeedConfig{
			Enabled:          true,
			WSURL:            "wss://stream.binance.com:9443/ws",
			Symbols:          []string{"btcusdt", "ethusdt"},
			ReconnectBackoff: Duration{5 * time.Second},
			MoveThresholdPct: 0.10,
			WindowSpan:       Duration{6 * time.Minute},
		},
		Resolution: ResolutionConfig{
			BatchSize:        20,
			ExtremeThreshold: 0.95,
		},
	}
}
