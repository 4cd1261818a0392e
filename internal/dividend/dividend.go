package dividend

import (
	"errors"

	"github.com/shopspring/decimal"

	"holder-rewards/internal/ledger"
)

// base-unit precision for computed shares
const sharePrecision = 9

var (
	// ErrNoEligibleHolders signals that a distribution cannot proceed.
	ErrNoEligibleHolders = errors.New("dividend: no eligible holders")
	// ErrZeroEligibleWeight signals that every eligible holder carries a
	// zero balance, leaving nothing to weight shares by.
	ErrZeroEligibleWeight = errors.New("dividend: eligible holders have zero total weight")

	hundred = decimal.NewFromInt(100)
)

// Share is one holder's computed cut of a distribution pool.
// SharePercentage is relative to the eligible pool, not total supply.
type Share struct {
	HolderAddress   string
	TokenBalance    decimal.Decimal
	SharePercentage decimal.Decimal
	DividendAmount  decimal.Decimal
}

// Compute splits distributionAmount proportionally across the eligible
// holders, weighted by balance over the eligible subset. Shares are
// truncated to base-unit precision and the rounding residual is assigned
// to the largest holder, so the shares sum to distributionAmount exactly.
func Compute(eligible []ledger.Holder, distributionAmount decimal.Decimal) ([]Share, error) {
	if len(eligible) == 0 {
		return nil, ErrNoEligibleHolders
	}

	totalWeight := decimal.Zero
	for _, holder := range eligible {
		totalWeight = totalWeight.Add(holder.Balance)
	}
	if totalWeight.Sign() <= 0 {
		return nil, ErrZeroEligibleWeight
	}

	shares := make([]Share, 0, len(eligible))
	distributed := decimal.Zero
	largest := 0
	for i, holder := range eligible {
		amount := distributionAmount.Mul(holder.Balance).Div(totalWeight).Truncate(sharePrecision)
		shares = append(shares, Share{
			HolderAddress:   holder.Address,
			TokenBalance:    holder.Balance,
			SharePercentage: holder.Balance.Div(totalWeight).Mul(hundred),
			DividendAmount:  amount,
		})
		distributed = distributed.Add(amount)

		if isLargerHolder(holder, eligible[largest]) {
			largest = i
		}
	}

	residual := distributionAmount.Sub(distributed)
	if residual.Sign() > 0 {
		shares[largest].DividendAmount = shares[largest].DividendAmount.Add(residual)
	}

	return shares, nil
}

func isLargerHolder(candidate, current ledger.Holder) bool {
	cmp := candidate.Balance.Cmp(current.Balance)
	if cmp != 0 {
		return cmp > 0
	}
	return candidate.Address < current.Address
}
