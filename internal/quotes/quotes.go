// Package quotes fetches live quotes from a Finnhub-compatible HTTP
// quote API. Symbols are tried with exchange-suffix variants in a fixed
// priority order (NSE, then BSE, then the bare US listing) because the
// same equity can be listed under different conventions; the first
// variant returning a strictly positive price wins.
package quotes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Aryanxx4/Safefolio/internal/model"
)

// ErrNoLiveQuote is returned when every symbol variant is exhausted
// without a usable quote.
var ErrNoLiveQuote = errors.New("quotes: no live quote available")

// suffixes are the exchange listing variants, in priority order.
// The empty suffix covers bare US symbols like AAPL.
var suffixes = []string{".NS", ".BO", ""}

// Client queries the external quote source. The source may be
// unavailable or rate-limited; every non-success response is treated as
// "try the next variant".
type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
}

// NewClient creates a quote client. baseURL is the API root, e.g.
// https://finnhub.io/api/v1.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpc:   &http.Client{Timeout: 10 * time.Second},
	}
}

// quoteResponse mirrors the Finnhub quote payload.
type quoteResponse struct {
	Current       float64 `json:"c"`
	High          float64 `json:"h"`
	Low           float64 `json:"l"`
	Open          float64 `json:"o"`
	PreviousClose float64 `json:"pc"`
	Timestamp     int64   `json:"t"`
}

// Quote fetches a live quote for symbol, trying each exchange-suffix
// variant in order. Individual variant failures are absorbed; only
// total exhaustion reports ErrNoLiveQuote.
func (c *Client) Quote(ctx context.Context, symbol string) (*model.Quote, error) {
	for _, suffix := range suffixes {
		q, err := c.fetch(ctx, symbol+suffix)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue // try next variant
		}
		if q.Current <= 0 {
			continue
		}
		return &model.Quote{
			Symbol:        symbol,
			Current:       decimal.NewFromFloat(q.Current),
			Open:          decimal.NewFromFloat(q.Open),
			High:          decimal.NewFromFloat(q.High),
			Low:           decimal.NewFromFloat(q.Low),
			PreviousClose: decimal.NewFromFloat(q.PreviousClose),
			Timestamp:     time.Unix(q.Timestamp, 0).UTC(),
		}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNoLiveQuote, symbol)
}

func (c *Client) fetch(ctx context.Context, symbol string) (*quoteResponse, error) {
	u := fmt.Sprintf("%s/quote?symbol=%s&token=%s",
		c.baseURL, url.QueryEscape(symbol), url.QueryEscape(c.apiKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("quotes: unexpected status %d for %s", resp.StatusCode, symbol)
	}

	var q quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&q); err != nil {
		return nil, err
	}
	return &q, nil
}
