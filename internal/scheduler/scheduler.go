package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/linpap/polymarket/internal/calibration"
	"github.com/linpap/polymarket/internal/config"
	"github.com/linpap/polymarket/internal/estimator"
	"github.com/linpap/polymarket/internal/feed"
	"github.com/linpap/polymarket/internal/ledger"
	"github.com/linpap/polymarket/internal/market"
	"github.com/linpap/polymarket/internal/resolution"
	"github.com/linpap/polymarket/internal/risk"
	"github.com/linpap/polymarket/internal/store"
	"github.com/linpap/polymarket/internal/strategy"
)

// evalConcurrency bounds concurrent market evaluations within one cycle.
const evalConcurrency = 4

// Scheduler orchestrates the decision loop: scan, evaluate, aggregate,
// confirm, size, open; with independent tickers for resolution checking and
// calibration reporting. One cycle runs to completion before the next
// starts.
type Scheduler struct {
	cfg          *config.Config
	source       market.Source
	chain        *estimator.Chain
	confirmChain *estimator.Chain
	estimation   *strategy.Estimation
	latency      *strategy.Latency
	completeSet  *strategy.CompleteSet
	crossVenue   *strategy.CrossVenue
	confirmation *strategy.Confirmation
	sizer        *risk.Sizer
	book         *ledger.Ledger
	checker      *resolution.Checker
	prices       *feed.Feed // nil when the feed is disabled
	telemetry    *store.Store
	reportOut    io.Writer

	mu       sync.Mutex
	lastEval map[string]time.Time
	lastScan map[string]strategy.Snapshot
	moveCh   chan string
}

func New(
	cfg *config.Config,
	source market.Source,
	chain *estimator.Chain,
	confirmChain *estimator.Chain,
	sizer *risk.Sizer,
	book *ledger.Ledger,
	checker *resolution.Checker,
	prices *feed.Feed,
	telemetry *store.Store,
	reportOut io.Writer,
) *Scheduler {
	s := &Scheduler{
		cfg:          cfg,
		source:       source,
		chain:        chain,
		confirmChain: confirmChain,
		estimation:   strategy.NewEstimation(cfg.Strategy.Estimation),
		latency:      strategy.NewLatency(cfg.Strategy.Latency),
		completeSet:  strategy.NewCompleteSet(cfg.Strategy.CompleteSet),
		crossVenue:   strategy.NewCrossVenue(cfg.Strategy.CrossVenue),
		confirmation: strategy.NewConfirmation(cfg.Strategy.Confirmation),
		sizer:        sizer,
		book:         book,
		checker:      checker,
		prices:       prices,
		telemetry:    telemetry,
		reportOut:    reportOut,
		lastEval:     make(map[string]time.Time),
		lastScan:     make(map[string]strategy.Snapshot),
		moveCh:       make(chan string, 16),
	}

	if prices != nil {
		prices.OnMove(func(symbol string, _ strategy.Quote) {
			select {
			case s.moveCh <- symbol:
			default: // a queued wake for this burst is enough
			}
		})
	}
	return s
}

// Run starts all periodic loops and blocks until the context is cancelled.
// State is persisted synchronously before returning.
func (s *Scheduler) Run(ctx context.Context) error {
	slog.Info("scheduler starting",
		"cycle_interval", s.cfg.Schedule.CycleInterval.Duration,
		"resolution_interval", s.cfg.Schedule.ResolutionInterval.Duration,
		"report_interval", s.cfg.Schedule.ReportInterval.Duration,
		"bankroll", s.book.Bankroll(),
	)

	// First cycle immediately rather than one interval in.
	s.runCycle(ctx)

	cycleTicker := time.NewTicker(s.cfg.Schedule.CycleInterval.Duration)
	resolutionTicker := time.NewTicker(s.cfg.Schedule.ResolutionInterval.Duration)
	reportTicker := time.NewTicker(s.cfg.Schedule.ReportInterval.Duration)
	defer cycleTicker.Stop()
	defer resolutionTicker.Stop()
	defer reportTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler shutting down")
			s.persist()
			return ctx.Err()
		case <-cycleTicker.C:
			s.runCycle(ctx)
		case <-resolutionTicker.C:
			s.runResolution(ctx)
		case <-reportTicker.C:
			s.runReport()
		case symbol := <-s.moveCh:
			s.evaluateSymbolMove(ctx, symbol)
		}
	}
}

func (s *Scheduler) runCycle(ctx context.Context) {
	started := time.Now()

	markets, err := s.source.ListCandidateMarkets(ctx)
	if err != nil {
		slog.Error("market scan failed", "error", err)
		return
	}
	s.telemetry.RecordPrices(markets)
	s.rememberScan(markets)

	due := s.dueForEvaluation(markets)
	slog.Info("cycle started",
		"candidates", len(markets),
		"due", len(due),
		"bankroll", s.book.Bankroll(),
	)

	signals := s.evaluateAll(ctx, due)
	signals = s.confirmSignals(ctx, signals)
	s.openPositions(signals)

	s.book.RecomputeBankroll()
	if err := s.book.CheckInvariant(); err != nil {
		slog.Error("bankroll invariant violated", "error", err)
	}

	cycle := s.book.BumpCycle()
	s.telemetry.RecordBankroll(cycle, s.book.Bankroll(), s.book.OpenCount())
	s.persist()

	slog.Info("cycle complete",
		"cycle", cycle,
		"signals", len(signals),
		"open_positions", s.book.OpenCount(),
		"elapsed", time.Since(started),
	)
}

// evaluateAll runs strategy evaluation across markets concurrently, bounded
// and staggered to respect upstream rate limits.
func (s *Scheduler) evaluateAll(ctx context.Context, markets []strategy.Snapshot) []strategy.Signal {
	var (
		wg      sync.WaitGroup
		sigMu   sync.Mutex
		signals []strategy.Signal
	)
	sem := make(chan struct{}, evalConcurrency)

	for _, snap := range markets {
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(snap strategy.Snapshot) {
			defer wg.Done()
			defer func() { <-sem }()

			got := s.evaluateMarket(ctx, snap)
			if len(got) == 0 {
				return
			}
			sigMu.Lock()
			signals = append(signals, got...)
			sigMu.Unlock()
		}(snap)

		// Stagger launches so concurrent estimator calls do not burst.
		select {
		case <-ctx.Done():
		case <-time.After(s.cfg.Schedule.CallDelay.Duration):
		}
	}
	wg.Wait()

	return signals
}

// evaluateMarket runs every enabled strategy against one market. Individual
// estimator signals and their ensemble consensus both flow downstream, so
// their records stay directly comparable.
func (s *Scheduler) evaluateMarket(ctx context.Context, snap strategy.Snapshot) []strategy.Signal {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.Schedule.CallTimeout.Duration)
	defer cancel()

	var out []strategy.Signal

	if s.cfg.Strategy.Estimation.Enabled {
		var fromEstimators []strategy.Signal
		for _, est := range s.chain.EstimateAll(callCtx, snap) {
			if sig, ok := s.estimation.Evaluate(snap, est); ok {
				fromEstimators = append(fromEstimators, sig)
			}
		}
		out = append(out, fromEstimators...)
		out = append(out, strategy.Consensus(fromEstimators)...)
	}

	if s.cfg.Strategy.Latency.Enabled && s.prices != nil && snap.Symbol != "" {
		if quote, ok := s.prices.Quote(snap.Symbol); ok {
			if sig, ok := s.latency.Evaluate(snap, quote, time.Now()); ok {
				out = append(out, sig)
			}
		}
	}

	if s.cfg.Strategy.CompleteSet.Enabled {
		if sig, ok := s.completeSet.Evaluate(snap); ok {
			out = append(out, sig)
		}
	}

	if s.cfg.Strategy.CrossVenue.Enabled {
		other, ok, err := s.source.MatchedMarket(callCtx, snap)
		if err != nil {
			slog.Warn("venue match failed", "market", snap.ID, "error", err)
		} else if ok {
			if sig, ok := s.crossVenue.Evaluate(snap, other); ok {
				out = append(out, sig)
			}
		}
	}

	return out
}

// confirmSignals triages by confidence band: high passes, low drops, and the
// middle gets a second opinion from an independent model before it may trade.
func (s *Scheduler) confirmSignals(ctx context.Context, signals []strategy.Signal) []strategy.Signal {
	var out []strategy.Signal
	for _, sig := range signals {
		switch s.confirmation.Triage(sig) {
		case strategy.VerdictKeep:
			out = append(out, sig)
		case strategy.VerdictDrop:
			slog.Debug("signal dropped on confidence",
				"market", sig.MarketID,
				"strategy", sig.Strategy,
				"confidence", sig.Confidence,
			)
		case strategy.VerdictConfirm:
			snap, ok := s.snapshotFor(sig.MarketID)
			if !ok {
				continue
			}

			callCtx, cancel := context.WithTimeout(ctx, s.cfg.Schedule.CallTimeout.Duration)
			second, err := s.confirmChain.Estimate(callCtx, snap)
			cancel()
			if err != nil {
				slog.Warn("confirmation call failed, signal dropped",
					"market", sig.MarketID,
					"error", err,
				)
				continue
			}

			if confirmed, ok := s.confirmation.Confirm(sig, second); ok {
				out = append(out, confirmed)
			}
		}
	}
	return out
}

func (s *Scheduler) openPositions(signals []strategy.Signal) {
	if len(signals) == 0 {
		return
	}

	sized := s.sizer.SizeAll(signals, s.book.Bankroll(), s.book.OpenCount())
	for _, pos := range sized {
		snap, _ := s.snapshotFor(pos.Signal.MarketID)

		trade, err := s.book.Open(pos, snap.Question, snap.EndDate)
		if err != nil {
			slog.Debug("open skipped",
				"market", pos.Signal.MarketID,
				"reason", err,
			)
			continue
		}
		s.telemetry.MirrorTrade(trade)
	}
}

func (s *Scheduler) runResolution(ctx context.Context) {
	resolved := s.checker.CheckOnce(ctx)
	if resolved > 0 {
		for _, t := range s.book.Resolved() {
			s.telemetry.MirrorTrade(t)
		}
		s.persist()
	}
	for _, t := range s.book.Unresolved() {
		if t.State == ledger.StateExpiredUnresolved {
			s.telemetry.MirrorTrade(t)
		}
	}
}

func (s *Scheduler) runReport() {
	ids := make([]string, 0)
	for _, t := range s.book.Unresolved() {
		ids = append(ids, t.MarketID)
	}

	report := calibration.Build(s.book.Resolved(), s.book.Unresolved(), s.telemetry.LatestYesPrices(ids))
	calibration.Render(s.reportOut, report)

	// Piggyback retention on the report cadence; price history only needs to
	// outlive the confirmation-drift lookback.
	if err := s.telemetry.PruneSnapshots(s.cfg.General.SnapshotRetention.Duration); err != nil {
		slog.Warn("snapshot pruning failed", "error", err)
	}

	slog.Info("calibration report",
		"resolved", report.Resolved,
		"win_rate", report.WinRate,
		"brier_edge", report.BrierEdge,
		"profit_factor", report.ProfitFactor,
	)
}

// evaluateSymbolMove re-evaluates the latency strategy for markets tracking
// a symbol that just moved, outside the regular cycle cadence. The
// per-market cooldown still applies.
func (s *Scheduler) evaluateSymbolMove(ctx context.Context, symbol string) {
	if s.prices == nil {
		return
	}
	quote, ok := s.prices.Quote(symbol)
	if !ok {
		return
	}

	var signals []strategy.Signal
	for _, snap := range s.scannedForSymbol(symbol) {
		if !s.markEvaluated(snap.ID) {
			continue
		}

		fresh, err := s.source.FetchMarket(ctx, snap.ID)
		if err != nil {
			slog.Warn("move-triggered fetch failed", "market", snap.ID, "error", err)
			continue
		}
		if sig, ok := s.latency.Evaluate(fresh, quote, time.Now()); ok {
			signals = append(signals, sig)
		}
	}
	if len(signals) == 0 {
		return
	}

	slog.Info("move-triggered signals", "symbol", symbol, "signals", len(signals))
	s.openPositions(s.confirmSignals(ctx, signals))
	s.persist()
}

// dueForEvaluation filters out markets inside their cooldown window and
// marks the rest as evaluated now.
func (s *Scheduler) dueForEvaluation(markets []strategy.Snapshot) []strategy.Snapshot {
	var due []strategy.Snapshot
	for _, snap := range markets {
		if s.markEvaluated(snap.ID) {
			due = append(due, snap)
		}
	}
	return due
}

// markEvaluated reports whether the market is past its cooldown and records
// the evaluation time when it is.
func (s *Scheduler) markEvaluated(marketID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if last, ok := s.lastEval[marketID]; ok && now.Sub(last) < s.cfg.Schedule.MarketCooldown.Duration {
		return false
	}
	s.lastEval[marketID] = now
	return true
}

func (s *Scheduler) rememberScan(markets []strategy.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, snap := range markets {
		s.lastScan[snap.ID] = snap
	}
}

func (s *Scheduler) snapshotFor(marketID string) (strategy.Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.lastScan[marketID]
	return snap, ok
}

func (s *Scheduler) scannedForSymbol(symbol string) []strategy.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []strategy.Snapshot
	for _, snap := range s.lastScan {
		if snap.Symbol == symbol {
			out = append(out, snap)
		}
	}
	return out
}

func (s *Scheduler) persist() {
	if err := s.book.Save(s.cfg.General.StatePath); err != nil {
		slog.Error("state persistence failed", "error", err)
	}
}
