package vault

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestCheckBalanceMissingConfig(t *testing.T) {
	c := NewClient(Options{}, noopLogger())
	if _, err := c.CheckBalance(context.Background(), "vaultAccount"); err == nil {
		t.Fatal("未配置 base url 时应返回错误")
	}

	c = NewClient(Options{BaseURL: "http://localhost:9"}, noopLogger())
	if _, err := c.CheckBalance(context.Background(), ""); err == nil {
		t.Fatal("missing account should error")
	}
}

func TestCheckBalanceSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Fatalf("expected GET, got %s", r.Method)
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Fatalf("missing api key header")
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"balance": "12.5"})
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL, APIKey: "secret", Timeout: time.Second}, noopLogger())
	balance, err := c.CheckBalance(context.Background(), "vaultAccount")
	if err != nil {
		t.Fatalf("成功响应不应报错: %v", err)
	}
	if !balance.Equal(decimal.RequireFromString("12.5")) {
		t.Fatalf("期望余额 12.5, 实际 %s", balance.String())
	}
}

func TestClaimUsesClaimResponseAmount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("claim must POST, got %s", r.Method)
		}
		// realised amount differs from any earlier balance check
		_ = json.NewEncoder(w).Encode(map[string]string{
			"amount":        "10.000000001",
			"transactionId": "tx-123",
		})
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	res, err := c.Claim(context.Background(), "vaultAccount")
	if err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if !res.Amount.Equal(decimal.RequireFromString("10.000000001")) {
		t.Fatalf("claimed amount mismatch: %s", res.Amount.String())
	}
	if res.TransactionID != "tx-123" {
		t.Fatalf("transaction id mismatch: %s", res.TransactionID)
	}
}

func TestClaimMissingTransactionID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"amount": "1"})
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	if _, err := c.Claim(context.Background(), "vaultAccount"); err == nil {
		t.Fatal("缺少 transactionId 应报错")
	}
}

func TestClaimHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "vault unavailable"})
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	if _, err := c.Claim(context.Background(), "vaultAccount"); err == nil {
		t.Fatal("HTTP 502 应返回错误")
	}
}

func TestTransferSuccess(t *testing.T) {
	var received map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("decode transfer body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"signature": "sig-1"})
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	sig, err := c.Transfer(context.Background(), "vaultAccount", "walletA", decimal.NewFromInt(3))
	if err != nil {
		t.Fatalf("transfer failed: %v", err)
	}
	if sig != "sig-1" {
		t.Fatalf("signature mismatch: %s", sig)
	}
	if received["from"] != "vaultAccount" || received["to"] != "walletA" || received["amount"] != "3" {
		t.Fatalf("请求体不正确: %#v", received)
	}
}

func TestTransferRejectsNonPositiveAmount(t *testing.T) {
	c := NewClient(Options{BaseURL: "http://localhost:9"}, noopLogger())
	if _, err := c.Transfer(context.Background(), "a", "b", decimal.Zero); err == nil {
		t.Fatal("zero amount must error")
	}
}
