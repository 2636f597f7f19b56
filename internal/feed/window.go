package feed

import (
	"time"

	"github.com/linpap/polymarket/internal/strategy"
)

type point struct {
	ts    time.Time
	price float64
}

// window is a time-ordered rolling price window for one symbol. Not
// goroutine safe; the feed serializes access under its own lock.
type window struct {
	span   time.Duration
	points []point
}

func newWindow(span time.Duration) *window {
	return &window{span: span}
}

func (w *window) add(price float64, ts time.Time) {
	w.points = append(w.points, point{ts: ts, price: price})

	cutoff := ts.Add(-w.span)
	drop := 0
	for drop < len(w.points) && w.points[drop].ts.Before(cutoff) {
		drop++
	}
	w.points = w.points[drop:]
}

// quote returns the latest price with rolling percent changes. A change is
// reported as zero until the window holds enough history to compute it.
func (w *window) quote(now time.Time) (strategy.Quote, bool) {
	if len(w.points) == 0 {
		return strategy.Quote{}, false
	}

	last := w.points[len(w.points)-1]
	return strategy.Quote{
		Price:    last.price,
		Ts:       last.ts,
		Change1m: w.changeSince(now.Add(-time.Minute), last.price),
		Change5m: w.changeSince(now.Add(-5*time.Minute), last.price),
	}, true
}

// changeSince returns the percent change from the newest point at or before
// the cutoff to the current price.
func (w *window) changeSince(cutoff time.Time, current float64) float64 {
	var then float64
	found := false
	for _, p := range w.points {
		if p.ts.After(cutoff) {
			break
		}
		then = p.price
		found = true
	}
	if !found || then == 0 {
		return 0
	}
	return (current - then) / then * 100
}
