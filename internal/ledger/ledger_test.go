package ledger

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestGetHoldersMissingConfig(t *testing.T) {
	c := NewClient(Options{}, noopLogger())
	if _, err := c.GetHolders(context.Background(), "So11111111111111111111111111111111111111112"); err == nil {
		t.Fatal("未配置 RPC 时应报错")
	}

	c = NewClient(Options{RPCURL: "http://localhost:8899"}, noopLogger())
	if _, err := c.GetHolders(context.Background(), ""); err == nil {
		t.Fatal("missing mint should error")
	}
}

func TestAssembleHolders(t *testing.T) {
	balances := map[string]decimal.Decimal{
		"walletA": decimal.NewFromInt(700),
		"walletB": decimal.NewFromInt(300),
	}

	set := assembleHolders(balances, decimal.NewFromInt(1000), 9)
	if len(set.Holders) != 2 {
		t.Fatalf("expected 2 holders, got %d", len(set.Holders))
	}
	if set.Holders[0].Address != "walletA" {
		t.Fatalf("expected walletA first, got %s", set.Holders[0].Address)
	}
	if !set.Holders[0].PercentageOfSupply.Equal(decimal.NewFromInt(70)) {
		t.Fatalf("expected 70%% supply share, got %s", set.Holders[0].PercentageOfSupply)
	}
	if !set.Holders[1].PercentageOfSupply.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("expected 30%% supply share, got %s", set.Holders[1].PercentageOfSupply)
	}
}

func TestAssembleHoldersZeroSupply(t *testing.T) {
	balances := map[string]decimal.Decimal{
		"walletA": decimal.NewFromInt(50),
	}

	set := assembleHolders(balances, decimal.Zero, 9)
	if len(set.Holders) != 1 {
		t.Fatalf("expected 1 holder, got %d", len(set.Holders))
	}
	if !set.Holders[0].PercentageOfSupply.IsZero() {
		t.Fatalf("zero supply must yield zero percentage, got %s", set.Holders[0].PercentageOfSupply)
	}
}

func TestAssembleHoldersDropsZeroBalances(t *testing.T) {
	balances := map[string]decimal.Decimal{
		"walletA": decimal.NewFromInt(10),
		"walletB": decimal.Zero,
	}

	set := assembleHolders(balances, decimal.NewFromInt(10), 6)
	if len(set.Holders) != 1 {
		t.Fatalf("zero balances must be dropped, got %d holders", len(set.Holders))
	}
	if set.Holders[0].Address != "walletA" {
		t.Fatalf("unexpected holder %s", set.Holders[0].Address)
	}
}
