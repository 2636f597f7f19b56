package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/linpap/polymarket/internal/config"
	"github.com/linpap/polymarket/internal/strategy"
)

// maxObservers bounds callback registration; this is a fixed small set wired
// at startup, not a dynamic pub/sub system.
const maxObservers = 8

// Observer is invoked on significant price moves. Each invocation runs in
// its own goroutine so a slow or panicking observer never blocks ingestion.
type Observer func(symbol string, q strategy.Quote)

// Feed maintains rolling spot-price windows per symbol from an exchange
// trade stream. It reconnects forever on a fixed backoff and only stops when
// its context is cancelled.
type Feed struct {
	cfg config.FeedConfig

	mu        sync.RWMutex
	windows   map[string]*window
	observers []Observer
}

func New(cfg config.FeedConfig) *Feed {
	f := &Feed{
		cfg:     cfg,
		windows: make(map[string]*window),
	}
	for _, sym := range cfg.Symbols {
		f.windows[strings.ToLower(sym)] = newWindow(cfg.WindowSpan.Duration)
	}
	return f
}

// OnMove registers a callback for moves beyond the configured threshold.
// Registrations past the bound are rejected.
func (f *Feed) OnMove(fn Observer) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.observers) >= maxObservers {
		slog.Warn("observer limit reached, registration rejected")
		return false
	}
	f.observers = append(f.observers, fn)
	return true
}

// Quote returns the current rolling quote for a symbol.
func (f *Feed) Quote(symbol string) (strategy.Quote, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	w, ok := f.windows[strings.ToLower(symbol)]
	if !ok {
		return strategy.Quote{}, false
	}
	return w.quote(time.Now())
}

// Run connects and consumes the trade stream until ctx is cancelled,
// reconnecting on a fixed backoff after any failure.
func (f *Feed) Run(ctx context.Context) {
	for {
		if err := f.connectAndConsume(ctx); err != nil {
			slog.Warn("feed disconnected", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(f.cfg.ReconnectBackoff.Duration):
		}
	}
}

func (f *Feed) connectAndConsume(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.cfg.WSURL, nil)
	if err != nil {
		return fmt.Errorf("dialing feed: %w", err)
	}
	defer conn.Close()

	if err := f.subscribe(conn); err != nil {
		return fmt.Errorf("subscribing: %w", err)
	}
	slog.Info("feed connected", "symbols", f.cfg.Symbols)

	// Unblock the read loop when the context dies.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("reading feed: %w", err)
		}
		f.handleMessage(raw, time.Now())
	}
}

func (f *Feed) subscribe(conn *websocket.Conn) error {
	params := make([]string, len(f.cfg.Symbols))
	for i, sym := range f.cfg.Symbols {
		params[i] = strings.ToLower(sym) + "@trade"
	}
	return conn.WriteJSON(map[string]any{
		"method": "SUBSCRIBE",
		"params": params,
		"id":     1,
	})
}

// tradeMessage is the exchange's trade event; prices arrive as strings.
type tradeMessage struct {
	Event  string `json:"e"`
	Symbol string `json:"s"`
	Price  string `json:"p"`
}

// handleMessage ingests one raw frame: updates the symbol's window and, on a
// significant one-minute move, notifies observers without blocking.
func (f *Feed) handleMessage(raw []byte, now time.Time) {
	var msg tradeMessage
	if err := json.Unmarshal(raw, &msg); err != nil || msg.Event != "trade" {
		return
	}
	price, err := strconv.ParseFloat(msg.Price, 64)
	if err != nil || price <= 0 {
		return
	}

	symbol := strings.ToLower(msg.Symbol)

	f.mu.Lock()
	w, ok := f.windows[symbol]
	if !ok {
		f.mu.Unlock()
		return
	}
	w.add(price, now)
	q, _ := w.quote(now)
	observers := f.observers
	f.mu.Unlock()

	if abs(q.Change1m) < f.cfg.MoveThresholdPct {
		return
	}

	for _, fn := range observers {
		go func(fn Observer) {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("feed observer panicked", "panic", r)
				}
			}()
			fn(symbol, q)
		}(fn)
	}
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
