package market

import (
	"context"
	"fmt"
	"strings"
)

// clobMarket is the raw CLOB market DTO. Token prices go to 1/0 once the
// market settles, which is what the resolution checker reads.
type clobMarket struct {
	ConditionID string      `json:"condition_id"`
	Active      bool        `json:"active"`
	Closed      bool        `json:"closed"`
	Tokens      []clobToken `json:"tokens"`
}

type clobToken struct {
	TokenID string  `json:"token_id"`
	Outcome string  `json:"outcome"`
	Price   float64 `json:"price"`
	Winner  bool    `json:"winner"`
}

// SettlementStatus reports closure and settlement prices from the CLOB,
// bypassing the snapshot cache: resolution decisions always see the venue's
// current view.
func (c *Client) SettlementStatus(ctx context.Context, id string) (Settlement, error) {
	url := fmt.Sprintf("%s/markets/%s", c.cfg.ClobBaseURL, id)

	var cm clobMarket
	if err := c.get(ctx, c.clobLimiter, url, &cm); err != nil {
		return Settlement{}, fmt.Errorf("fetching settlement for %s: %w", id, err)
	}

	st := Settlement{Closed: cm.Closed}
	for _, tok := range cm.Tokens {
		switch strings.ToLower(tok.Outcome) {
		case "yes":
			st.PriceYes = tok.Price
		case "no":
			st.PriceNo = tok.Price
		}
	}
	return st, nil
}
