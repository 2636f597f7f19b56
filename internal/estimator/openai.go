package estimator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/linpap/polymarket/internal/strategy"
)

const promptTemplate = `You are forecasting the outcome of a prediction market question.

Question: %s
Category: %s
Market closes: %s
Current YES price: %.2f

Estimate the true probability that this question resolves YES. Ignore the
market price when forming your estimate; it is shown only for context.

Respond with only a JSON object:
{"probability": <0.0-1.0>, "confidence": <0.0-1.0>, "reasoning": "<one or two sentences>"}`

// OpenAIClient calls one model through an OpenAI-compatible chat completion
// endpoint.
type OpenAIClient struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	model       string
	temperature float64
}

func NewOpenAIClient(baseURL, apiKey, model string, temperature float64, timeout time.Duration) *OpenAIClient {
	return &OpenAIClient{
		httpClient:  &http.Client{Timeout: timeout},
		baseURL:     baseURL,
		apiKey:      apiKey,
		model:       model,
		temperature: temperature,
	}
}

func (c *OpenAIClient) Name() string { return c.model }

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (c *OpenAIClient) Estimate(ctx context.Context, snap strategy.Snapshot) (strategy.Estimate, error) {
	prompt := fmt.Sprintf(promptTemplate,
		snap.Question,
		snap.Category,
		snap.EndDate.Format(time.RFC3339),
		snap.PriceYes,
	)

	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: c.temperature,
	})
	if err != nil {
		return strategy.Estimate{}, fmt.Errorf("marshalling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return strategy.Estimate{}, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return strategy.Estimate{}, fmt.Errorf("calling %s: %w", c.model, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return strategy.Estimate{}, fmt.Errorf("%s: %w", c.model, ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return strategy.Estimate{}, fmt.Errorf("%s returned %d: %s", c.model, resp.StatusCode, raw)
	}

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return strategy.Estimate{}, fmt.Errorf("decoding %s response: %w", c.model, err)
	}
	if len(cr.Choices) == 0 {
		return strategy.Estimate{}, fmt.Errorf("%s returned no choices", c.model)
	}

	prob, conf, reasoning, err := Extract(cr.Choices[0].Message.Content)
	if err != nil {
		return strategy.Estimate{}, err
	}

	return strategy.Estimate{
		FairValue:  prob,
		Confidence: conf,
		Reasoning:  reasoning,
		Basis:      basisOf(reasoning),
		Model:      c.model,
	}, nil
}

// basisOf condenses the model's reasoning to its first clause, short enough
// to ride along in a signal reason without drowning it.
func basisOf(reasoning string) string {
	if i := strings.IndexAny(reasoning, ".;\n"); i > 0 {
		reasoning = reasoning[:i]
	}
	if len(reasoning) > 80 {
		reasoning = reasoning[:80]
	}
	return strings.TrimSpace(reasoning)
}
