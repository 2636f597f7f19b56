package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/linpap/polymarket/internal/config"
)

const (
	// Limits set to roughly 60% of the venue's documented ceilings.
	gammaRatePerSec   = 18
	generalRatePerSec = 100

	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond
)

// Client is the venue HTTP client with rate limiting and retries. It
// implements Source against a Gamma-style markets API.
type Client struct {
	http         *http.Client
	cfg          config.SourceConfig
	gammaLimiter *rate.Limiter
	clobLimiter  *rate.Limiter

	cache *snapshotCache
	venue *venueIndex
}

func NewClient(cfg config.SourceConfig) *Client {
	return &Client{
		http:         &http.Client{Timeout: 10 * time.Second},
		cfg:          cfg,
		gammaLimiter: rate.NewLimiter(gammaRatePerSec, 10),
		clobLimiter:  rate.NewLimiter(generalRatePerSec, 20),
		cache:        newSnapshotCache(30 * time.Second),
		venue:        newVenueIndex(10 * time.Minute),
	}
}

// get performs a rate-limited GET with exponential backoff on transient
// failures. 4xx responses other than 429 fail immediately.
func (c *Client) get(ctx context.Context, limiter *rate.Limiter, url string, out any) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			if attempt == maxRetries {
				return fmt.Errorf("request failed after %d retries: %w", maxRetries, err)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			resp.Body.Close()
			if attempt == maxRetries {
				return fmt.Errorf("status %d after %d retries", resp.StatusCode, maxRetries)
			}
			slog.Warn("venue API transient failure", "status", resp.StatusCode, "attempt", attempt+1)
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			return fmt.Errorf("client error %d: %s", resp.StatusCode, body)
		}

		err = json.NewDecoder(resp.Body).Decode(out)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("exhausted %d retries", maxRetries)
}

func (c *Client) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * baseRetryWait
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}
