package vault

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// ClaimResult is the fee vault's own account of what a claim realised.
// Amount always comes from here, never from an earlier balance check:
// fees may accrue between check and claim.
type ClaimResult struct {
	Amount        decimal.Decimal
	TransactionID string
}

// FeeSourceClient checks and claims the accumulated fee balance.
type FeeSourceClient interface {
	CheckBalance(ctx context.Context, account string) (decimal.Decimal, error)
	Claim(ctx context.Context, account string) (ClaimResult, error)
}

// ValueTransferClient executes the realized payout transfer for a
// computed distribution and returns the transaction signature.
type ValueTransferClient interface {
	Transfer(ctx context.Context, from, to string, amount decimal.Decimal) (string, error)
}

// Options parameterise the vault service client.
type Options struct {
	BaseURL   string
	APIKey    string
	Timeout   time.Duration
	UserAgent string
}

// Client talks to the platform's fee vault service over REST.
type Client struct {
	opts    Options
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewClient constructs a vault client.
func NewClient(opts Options, logger zerolog.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		opts:    opts,
		logger:  logger.With().Str("component", "vault").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
	}
}

// CheckBalance returns the claimable fee balance for an account.
func (c *Client) CheckBalance(ctx context.Context, account string) (decimal.Decimal, error) {
	if account == "" {
		return decimal.Decimal{}, errors.New("fee source account required")
	}

	var res balanceResponse
	path := fmt.Sprintf("/v1/fees/%s/balance", url.PathEscape(account))
	if err := c.do(ctx, http.MethodGet, path, nil, &res); err != nil {
		return decimal.Decimal{}, err
	}

	balance, err := decimal.NewFromString(res.Balance)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse fee balance: %w", err)
	}
	return balance, nil
}

// Claim collects the accumulated fees and returns the realised amount with
// the vault's transaction id.
func (c *Client) Claim(ctx context.Context, account string) (ClaimResult, error) {
	if account == "" {
		return ClaimResult{}, errors.New("fee source account required")
	}

	var res claimResponse
	path := fmt.Sprintf("/v1/fees/%s/claim", url.PathEscape(account))
	if err := c.do(ctx, http.MethodPost, path, nil, &res); err != nil {
		return ClaimResult{}, err
	}

	amount, err := decimal.NewFromString(res.Amount)
	if err != nil {
		return ClaimResult{}, fmt.Errorf("parse claimed amount: %w", err)
	}
	if res.TransactionID == "" {
		return ClaimResult{}, errors.New("claim response missing transaction id")
	}

	c.logger.Info().
		Str("account", account).
		Str("amount", amount.String()).
		Str("transaction_id", res.TransactionID).
		Msg("fees claimed")
	return ClaimResult{Amount: amount, TransactionID: res.TransactionID}, nil
}

// Transfer sends amount from the vault account to a holder wallet.
func (c *Client) Transfer(ctx context.Context, from, to string, amount decimal.Decimal) (string, error) {
	if from == "" || to == "" {
		return "", errors.New("transfer requires from and to addresses")
	}
	if amount.Sign() <= 0 {
		return "", errors.New("transfer amount must be positive")
	}

	payload := transferRequest{
		From:   from,
		To:     to,
		Amount: amount.String(),
	}

	var res transferResponse
	if err := c.do(ctx, http.MethodPost, "/v1/transfers", payload, &res); err != nil {
		return "", err
	}
	if res.Signature == "" {
		return "", errors.New("transfer response missing signature")
	}
	return res.Signature, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	if c.baseURL == "" {
		return errors.New("vault base url not configured")
	}

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal vault request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create vault request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "rewardsd/1.0")
	}
	if c.opts.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send vault request: %w", err)
	}
	defer resp.Body.Close()

	payloadBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		return parseHTTPError(resp.StatusCode, payloadBytes)
	}

	if out != nil {
		if err := json.Unmarshal(payloadBytes, out); err != nil {
			return fmt.Errorf("decode vault response: %w", err)
		}
	}
	return nil
}

type balanceResponse struct {
	Balance string `json:"balance"`
}

type claimResponse struct {
	Amount        string `json:"amount"`
	TransactionID string `json:"transactionId"`
}

type transferRequest struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type transferResponse struct {
	Signature string `json:"signature"`
}

type errorResponse struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	Message     string `json:"message"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Description != "" {
			return fmt.Errorf("vault api error (%d): %s", status, apiErr.Description)
		}
		if apiErr.Message != "" {
			return fmt.Errorf("vault api error (%d): %s", status, apiErr.Message)
		}
		if apiErr.Code != "" {
			return fmt.Errorf("vault api error (%d): %s", status, apiErr.Code)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("vault api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("vault api error (%d)", status)
}

var (
	_ FeeSourceClient     = (*Client)(nil)
	_ ValueTransferClient = (*Client)(nil)
)
