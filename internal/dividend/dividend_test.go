package dividend

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"holder-rewards/internal/ledger"
)

func holder(address string, balance int64) ledger.Holder {
	return ledger.Holder{Address: address, Balance: decimal.NewFromInt(balance)}
}

func TestComputeEmptySetFails(t *testing.T) {
	if _, err := Compute(nil, decimal.NewFromInt(10)); !errors.Is(err, ErrNoEligibleHolders) {
		t.Fatalf("空集合应返回 ErrNoEligibleHolders, 实际 %v", err)
	}
}

func TestComputeZeroWeightFails(t *testing.T) {
	eligible := []ledger.Holder{holder("walletA", 0)}
	if _, err := Compute(eligible, decimal.NewFromInt(10)); !errors.Is(err, ErrZeroEligibleWeight) {
		t.Fatalf("expected ErrZeroEligibleWeight, got %v", err)
	}
}

func TestComputeSingleHolderTakesAll(t *testing.T) {
	eligible := []ledger.Holder{holder("walletA", 700)}
	shares, err := Compute(eligible, decimal.NewFromInt(3))
	if err != nil {
		t.Fatalf("compute failed: %v", err)
	}
	if len(shares) != 1 {
		t.Fatalf("expected 1 share, got %d", len(shares))
	}
	if !shares[0].DividendAmount.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("期望份额 3, 实际 %s", shares[0].DividendAmount)
	}
	if !shares[0].SharePercentage.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("single holder owns 100%% of the pool, got %s", shares[0].SharePercentage)
	}
}

func TestComputeProportionalSplit(t *testing.T) {
	eligible := []ledger.Holder{
		holder("walletA", 700),
		holder("walletB", 300),
	}
	shares, err := Compute(eligible, decimal.NewFromInt(10))
	if err != nil {
		t.Fatalf("compute failed: %v", err)
	}
	if !shares[0].DividendAmount.Equal(decimal.NewFromInt(7)) {
		t.Fatalf("walletA share should be 7, got %s", shares[0].DividendAmount)
	}
	if !shares[1].DividendAmount.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("walletB share should be 3, got %s", shares[1].DividendAmount)
	}
}

func TestComputeResidualGoesToLargestHolder(t *testing.T) {
	// 10 / 3 does not divide evenly at 9 decimal places
	eligible := []ledger.Holder{
		holder("walletA", 1),
		holder("walletB", 1),
		holder("walletC", 1),
	}
	amount := decimal.NewFromInt(10)
	shares, err := Compute(eligible, amount)
	if err != nil {
		t.Fatalf("compute failed: %v", err)
	}

	total := decimal.Zero
	for _, share := range shares {
		total = total.Add(share.DividendAmount)
	}
	if !total.Equal(amount) {
		t.Fatalf("份额之和必须精确等于分配额: %s != %s", total, amount)
	}

	// equal balances: residual lands on the first holder by address order
	if shares[0].HolderAddress != "walletA" {
		t.Fatalf("unexpected order: %s", shares[0].HolderAddress)
	}
	if !shares[0].DividendAmount.GreaterThan(shares[1].DividendAmount) {
		t.Fatal("residual must be assigned to walletA")
	}
}

func TestComputeConservationLargeSet(t *testing.T) {
	eligible := make([]ledger.Holder, 0, 97)
	for i := 0; i < 97; i++ {
		eligible = append(eligible, ledger.Holder{
			Address: string(rune('a'+i%26)) + string(rune('a'+i/26)),
			Balance: decimal.NewFromInt(int64(i%13 + 1)),
		})
	}

	amount := decimal.RequireFromString("123.456789123")
	shares, err := Compute(eligible, amount)
	if err != nil {
		t.Fatalf("compute failed: %v", err)
	}

	total := decimal.Zero
	for _, share := range shares {
		total = total.Add(share.DividendAmount)
	}
	if !total.Equal(amount) {
		t.Fatalf("conservation violated: %s != %s", total, amount)
	}
}

func TestComputeNormalisesOverEligibleSubsetOnly(t *testing.T) {
	// ineligible holders were already filtered out; percentages must be
	// relative to what remains, not total supply
	eligible := []ledger.Holder{
		holder("walletA", 600),
		holder("walletB", 200),
	}
	shares, err := Compute(eligible, decimal.NewFromInt(8))
	if err != nil {
		t.Fatalf("compute failed: %v", err)
	}
	if !shares[0].SharePercentage.Equal(decimal.NewFromInt(75)) {
		t.Fatalf("walletA should own 75%% of the eligible pool, got %s", shares[0].SharePercentage)
	}
	if !shares[0].DividendAmount.Equal(decimal.NewFromInt(6)) {
		t.Fatalf("walletA share should be 6, got %s", shares[0].DividendAmount)
	}
}
