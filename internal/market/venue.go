package market

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/linpap/polymarket/internal/strategy"
)

// venueIndex holds the competing venue's markets keyed by normalized
// question text, refreshed lazily on a TTL. Matching is exact after
// normalization: a missed match is just a missed opportunity, a wrong match
// is a bad trade.
type venueIndex struct {
	mu          sync.Mutex
	byQuestion  map[string]float64
	refreshedAt time.Time
	ttl         time.Duration
}

func newVenueIndex(ttl time.Duration) *venueIndex {
	return &venueIndex{
		byQuestion: make(map[string]float64),
		ttl:        ttl,
	}
}

// MatchedMarket looks the snapshot's question up on the competing venue.
func (c *Client) MatchedMarket(ctx context.Context, snap strategy.Snapshot) (strategy.VenueQuote, bool, error) {
	if c.cfg.MatchBaseURL == "" {
		return strategy.VenueQuote{}, false, nil
	}

	if err := c.refreshVenueIndex(ctx); err != nil {
		return strategy.VenueQuote{}, false, err
	}

	c.venue.mu.Lock()
	price, ok := c.venue.byQuestion[normalizeQuestion(snap.Question)]
	c.venue.mu.Unlock()
	if !ok {
		return strategy.VenueQuote{}, false, nil
	}

	return strategy.VenueQuote{Venue: c.cfg.MatchVenue, PriceYes: price}, true, nil
}

func (c *Client) refreshVenueIndex(ctx context.Context) error {
	c.venue.mu.Lock()
	fresh := time.Since(c.venue.refreshedAt) < c.venue.ttl
	c.venue.mu.Unlock()
	if fresh {
		return nil
	}

	url := fmt.Sprintf("%s/markets?active=true&closed=false&limit=%d",
		c.cfg.MatchBaseURL, c.cfg.PageSize)

	var page gammaMarketsResponse
	if err := c.get(ctx, c.gammaLimiter, url, &page); err != nil {
		return fmt.Errorf("refreshing venue index: %w", err)
	}

	index := make(map[string]float64, len(page))
	for _, gm := range page {
		yes, _, ok := parseOutcomePrices(gm.OutcomePrices)
		if !ok {
			continue
		}
		index[normalizeQuestion(gm.Question)] = yes
	}

	c.venue.mu.Lock()
	c.venue.byQuestion = index
	c.venue.refreshedAt = time.Now()
	c.venue.mu.Unlock()

	slog.Debug("venue index refreshed", "venue", c.cfg.MatchVenue, "markets", len(index))
	return nil
}

// normalizeQuestion lowercases and strips everything but letters, digits and
// single spaces.
func normalizeQuestion(q string) string {
	var b strings.Builder
	lastSpace := true
	for _, r := range strings.ToLower(q) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case !lastSpace:
			b.WriteByte(' ')
			lastSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}
