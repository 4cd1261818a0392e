package loyalty

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"holder-rewards/internal/ledger"
	"holder-rewards/internal/storage"
)

var hundred = decimal.NewFromInt(100)

// Result carries the outcome of one evaluation pass: the holders allowed
// into the distribution and the snapshot rows covering every holder seen,
// eligible or not.
type Result struct {
	Eligible  []ledger.Holder
	Snapshots []storage.HolderSnapshot
}

// Evaluator applies the retention-based loyalty filter. It is the only
// anti-gaming control in the pipeline: buying in just before a snapshot or
// dumping after rewards trips the permanent blacklist.
type Evaluator struct {
	store  storage.EligibilityStore
	logger zerolog.Logger
	now    func() time.Time
}

// NewEvaluator constructs the evaluator around a loyalty record store.
func NewEvaluator(store storage.EligibilityStore, logger zerolog.Logger) *Evaluator {
	return &Evaluator{
		store:  store,
		logger: logger.With().Str("component", "loyalty").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Evaluate scores every holder in the set against their recorded baseline.
//
// A holder seen for the first time is baselined at their current balance
// (100% retention). Retention below 100 - sellThresholdPercent marks the
// holder ineligible and permanently blacklisted; the flag survives balance
// recovery until an admin reset. Snapshot ClaimID is left for the caller
// to fill before persisting.
func (e *Evaluator) Evaluate(ctx context.Context, mint string, set ledger.HolderSet, sellThresholdPercent decimal.Decimal) (Result, error) {
	required := hundred.Sub(sellThresholdPercent)

	result := Result{
		Eligible:  make([]ledger.Holder, 0, len(set.Holders)),
		Snapshots: make([]storage.HolderSnapshot, 0, len(set.Holders)),
	}

	for _, holder := range set.Holders {
		rec, err := e.store.GetEligibility(ctx, mint, holder.Address)
		if err != nil {
			return Result{}, fmt.Errorf("load eligibility for %s: %w", holder.Address, err)
		}

		firstSeen := rec == nil
		initial := holder.Balance
		if !firstSeen {
			initial = rec.InitialBalance
		}

		retention := retentionPercentage(holder.Balance, initial, firstSeen)
		eligible := retention.GreaterThanOrEqual(required)
		if !firstSeen && rec.PermanentlyBlacklisted {
			eligible = false
		}

		updated := storage.HolderEligibility{
			TokenMintAddress:    mint,
			HolderAddress:       holder.Address,
			CurrentBalance:      holder.Balance,
			InitialBalance:      initial,
			RetentionPercentage: retention,
			IsEligible:          eligible,
			LastCheckedAt:       e.now(),
		}
		if !firstSeen {
			updated.PermanentlyBlacklisted = rec.PermanentlyBlacklisted
			updated.ViolationCount = rec.ViolationCount
			updated.BlacklistReason = rec.BlacklistReason
		}

		if !eligible && !updated.PermanentlyBlacklisted {
			reason := fmt.Sprintf("retention %s%% below required %s%%", retention.StringFixed(2), required.StringFixed(2))
			updated.PermanentlyBlacklisted = true
			updated.ViolationCount++
			updated.BlacklistReason = &reason
			e.logger.Warn().
				Str("holder", holder.Address).
				Str("retention_pct", retention.StringFixed(2)).
				Msg("holder blacklisted")
		}

		if _, err := e.store.UpsertEligibility(ctx, updated); err != nil {
			return Result{}, fmt.Errorf("upsert eligibility for %s: %w", holder.Address, err)
		}

		result.Snapshots = append(result.Snapshots, storage.HolderSnapshot{
			HolderAddress:       holder.Address,
			TokenBalance:        holder.Balance,
			PercentageOfSupply:  holder.PercentageOfSupply,
			InitialBalance:      initial,
			RetentionPercentage: retention,
			IsEligible:          eligible,
		})

		if eligible {
			result.Eligible = append(result.Eligible, holder)
		}
	}

	e.logger.Debug().
		Int("holders", len(result.Snapshots)).
		Int("eligible", len(result.Eligible)).
		Msg("evaluation complete")
	return result, nil
}

// retentionPercentage is current/initial*100 capped at 100. First-ever
// appearance is full retention regardless of balance; an existing record
// with a zero baseline scores 0.
func retentionPercentage(current, initial decimal.Decimal, firstSeen bool) decimal.Decimal {
	if firstSeen {
		return hundred
	}
	if initial.Sign() <= 0 {
		return decimal.Zero
	}
	retention := current.Div(initial).Mul(hundred)
	if retention.GreaterThan(hundred) {
		return hundred
	}
	return retention
}
