package market

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/linpap/polymarket/internal/strategy"
)

// gammaMarket is the raw Gamma DTO. Several numeric fields arrive as JSON
// strings, and outcomePrices is a JSON array encoded inside a string.
type gammaMarket struct {
	ID            string      `json:"id"`
	ConditionID   string      `json:"conditionId"`
	Question      string      `json:"question"`
	Category      string      `json:"category"`
	Slug          string      `json:"slug"`
	EndDateISO    string      `json:"endDateIso"`
	Liquidity     json.Number `json:"liquidity"`
	Outcomes      string      `json:"outcomes"`
	OutcomePrices string      `json:"outcomePrices"`
	Active        bool        `json:"active"`
	Closed        bool        `json:"closed"`
}

type gammaMarketsResponse []gammaMarket

// ListCandidateMarkets pages through open markets ordered by liquidity and
// maps them to snapshots, dropping anything non-binary or too thin.
func (c *Client) ListCandidateMarkets(ctx context.Context) ([]strategy.Snapshot, error) {
	var out []strategy.Snapshot

	for offset := 0; len(out) < c.cfg.MaxMarkets; offset += c.cfg.PageSize {
		url := fmt.Sprintf("%s/markets?active=true&closed=false&order=liquidity&ascending=false&limit=%d&offset=%d",
			c.cfg.GammaBaseURL, c.cfg.PageSize, offset)

		var page gammaMarketsResponse
		if err := c.get(ctx, c.gammaLimiter, url, &page); err != nil {
			return nil, fmt.Errorf("listing markets: %w", err)
		}
		if len(page) == 0 {
			break
		}

		for _, gm := range page {
			snap, ok := toSnapshot(gm)
			if !ok {
				continue
			}
			if snap.Liquidity < c.cfg.MinLiquidity {
				continue
			}
			c.cache.put(snap)
			out = append(out, snap)
			if len(out) >= c.cfg.MaxMarkets {
				break
			}
		}
	}

	slog.Debug("market scan complete", "candidates", len(out))
	return out, nil
}

// FetchMarket returns a snapshot of one market, served from a short TTL
// cache when fresh.
func (c *Client) FetchMarket(ctx context.Context, id string) (strategy.Snapshot, error) {
	if snap, ok := c.cache.get(id); ok {
		return snap, nil
	}

	gm, err := c.fetchGamma(ctx, id)
	if err != nil {
		return strategy.Snapshot{}, err
	}

	snap, ok := toSnapshot(gm)
	if !ok {
		return strategy.Snapshot{}, fmt.Errorf("market %s is not a tradeable binary market", id)
	}
	c.cache.put(snap)
	return snap, nil
}

func (c *Client) fetchGamma(ctx context.Context, id string) (gammaMarket, error) {
	url := fmt.Sprintf("%s/markets?condition_ids=%s&limit=1", c.cfg.GammaBaseURL, id)

	var page gammaMarketsResponse
	if err := c.get(ctx, c.gammaLimiter, url, &page); err != nil {
		return gammaMarket{}, fmt.Errorf("fetching market %s: %w", id, err)
	}
	if len(page) == 0 {
		return gammaMarket{}, fmt.Errorf("market %s not found", id)
	}
	return page[0], nil
}

func toSnapshot(gm gammaMarket) (strategy.Snapshot, bool) {
	yes, no, ok := parseOutcomePrices(gm.OutcomePrices)
	if !ok {
		return strategy.Snapshot{}, false
	}

	liquidity, _ := gm.Liquidity.Float64()

	endDate, err := time.Parse(time.RFC3339, gm.EndDateISO)
	if err != nil {
		// Gamma sometimes omits the time component.
		endDate, err = time.Parse("2006-01-02", gm.EndDateISO)
		if err != nil {
			endDate = time.Time{}
		}
	}

	// Condition IDs are shared between Gamma and the CLOB, so settlement
	// lookups work against either API.
	id := gm.ConditionID
	if id == "" {
		id = gm.ID
	}
	if id == "" || gm.Question == "" {
		return strategy.Snapshot{}, false
	}

	return strategy.Snapshot{
		ID:        id,
		Question:  gm.Question,
		Category:  gm.Category,
		PriceYes:  yes,
		PriceNo:   no,
		Liquidity: liquidity,
		EndDate:   endDate,
		Symbol:    symbolFor(gm),
	}, true
}

// parseOutcomePrices decodes Gamma's doubly-encoded price pair: a JSON
// string holding a JSON array of numeric strings.
func parseOutcomePrices(raw string) (yes, no float64, ok bool) {
	if raw == "" {
		return 0, 0, false
	}

	var prices []string
	if err := json.Unmarshal([]byte(raw), &prices); err != nil || len(prices) != 2 {
		return 0, 0, false
	}

	yes, err := strconv.ParseFloat(prices[0], 64)
	if err != nil {
		return 0, 0, false
	}
	no, err = strconv.ParseFloat(prices[1], 64)
	if err != nil {
		return 0, 0, false
	}
	return yes, no, true
}

// symbolFor maps crypto price-target questions to a feed symbol so the
// latency strategy can react to spot moves. Anything unrecognized gets no
// symbol and is simply invisible to that strategy.
func symbolFor(gm gammaMarket) string {
	q := strings.ToLower(gm.Question + " " + gm.Slug)
	switch {
	case strings.Contains(q, "bitcoin") || strings.Contains(q, "btc"):
		return "btcusdt"
	case strings.Contains(q, "ethereum") || strings.Contains(q, "eth"):
		return "ethusdt"
	case strings.Contains(q, "solana") || strings.Contains(q, "sol "):
		return "solusdt"
	default:
		return ""
	}
}
