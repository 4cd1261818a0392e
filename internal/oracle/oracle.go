package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// PriceSource converts native-currency amounts to a display currency.
// Display only: callers must never let a price lookup block the claim
// pipeline.
type PriceSource interface {
	PriceUSD(ctx context.Context) decimal.Decimal
}

// Options parameterise the price client.
type Options struct {
	BaseURL     string
	Symbol      string
	FallbackUSD decimal.Decimal
	Timeout     time.Duration
}

// Client fetches a USD spot price with a static fallback when the
// upstream is unavailable.
type Client struct {
	opts    Options
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewClient constructs a price client.
func NewClient(opts Options, logger zerolog.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.coingecko.com/api/v3"
	}

	return &Client{
		opts:    opts,
		logger:  logger.With().Str("component", "oracle").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// PriceUSD returns the current USD price for the configured symbol, or the
// configured fallback when the lookup fails.
func (c *Client) PriceUSD(ctx context.Context) decimal.Decimal {
	symbol := c.opts.Symbol
	if symbol == "" {
		symbol = "solana"
	}

	price, err := c.fetchPrice(ctx, symbol)
	if err != nil {
		c.logger.Warn().Err(err).
			Str("symbol", symbol).
			Str("fallback", c.opts.FallbackUSD.String()).
			Msg("price lookup failed; using fallback")
		return c.opts.FallbackUSD
	}
	return price
}

func (c *Client) fetchPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	endpoint := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=usd", c.baseURL, url.QueryEscape(symbol))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Decimal{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return decimal.Decimal{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Decimal{}, fmt.Errorf("price api status %d", resp.StatusCode)
	}

	var payload map[string]struct {
		USD json.Number `json:"usd"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return decimal.Decimal{}, err
	}

	entry, ok := payload[symbol]
	if !ok || entry.USD == "" {
		return decimal.Decimal{}, fmt.Errorf("price api missing symbol %s", symbol)
	}

	price, err := decimal.NewFromString(entry.USD.String())
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse usd price: %w", err)
	}
	if price.Sign() <= 0 {
		return decimal.Decimal{}, fmt.Errorf("price api returned non-positive price")
	}
	return price, nil
}

var _ PriceSource = (*Client)(nil)
