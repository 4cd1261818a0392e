package oracle

import (
	"context"
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

func TestPriceUSDSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("ids") != "solana" {
			t.Fatalf("unexpected ids query: %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"solana":{"usd":142.73}}`))
	}))
	defer srv.Close()

	c := NewClient(Options{
		BaseURL:     srv.URL,
		Symbol:      "solana",
		FallbackUSD: decimal.NewFromInt(100),
		Timeout:     time.Second,
	}, noopLogger())

	price := c.PriceUSD(context.Background())
	if !price.Equal(decimal.RequireFromString("142.73")) {
		t.Fatalf("期望价格 142.73, 实际 %s", price.String())
	}
}

func TestPriceUSDFallsBackOnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	fallback := decimal.NewFromInt(150)
	c := NewClient(Options{BaseURL: srv.URL, Symbol: "solana", FallbackUSD: fallback, Timeout: time.Second}, noopLogger())

	price := c.PriceUSD(context.Background())
	if !price.Equal(fallback) {
		t.Fatalf("失败时应返回 fallback, 实际 %s", price.String())
	}
}

func TestPriceUSDFallsBackOnMissingSymbol(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	fallback := decimal.NewFromInt(1)
	c := NewClient(Options{BaseURL: srv.URL, Symbol: "solana", FallbackUSD: fallback, Timeout: time.Second}, noopLogger())

	if price := c.PriceUSD(context.Background()); !price.Equal(fallback) {
		t.Fatalf("missing symbol must fall back, got %s", price.String())
	}
}
