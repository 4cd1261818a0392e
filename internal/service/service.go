package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"holder-rewards/internal/alerting"
	"holder-rewards/internal/config"
	"holder-rewards/internal/dividend"
	"holder-rewards/internal/ledger"
	"holder-rewards/internal/loyalty"
	"holder-rewards/internal/metrics"
	"holder-rewards/internal/oracle"
	"holder-rewards/internal/storage"
	"holder-rewards/internal/vault"
)

// Cycle outcomes.
const (
	OutcomeCompleted = "completed"
	OutcomeNoOp      = "no-op"
	OutcomeFailed    = "failed"
)

// No-op reason codes.
const (
	ReasonDisabled       = "disabled"
	ReasonNotDue         = "not-due"
	ReasonAlreadyRunning = "already-running"
	ReasonNotConfigured  = "not-configured"
	ReasonBelowMinimum   = "below-minimum"
)

var hundred = decimal.NewFromInt(100)

// CycleResult is the outcome of one claim cycle attempt.
type CycleResult struct {
	Outcome            string
	Reason             string
	ClaimID            int64
	ClaimedAmount      decimal.Decimal
	DistributionAmount decimal.Decimal
	TransactionID      string
	TotalHolders       int
	EligibleHolders    int
	NextClaim          *time.Time
	Err                error
}

// EligibilityEvaluator scores holders against their loyalty baselines.
type EligibilityEvaluator interface {
	Evaluate(ctx context.Context, mint string, set ledger.HolderSet, sellThresholdPercent decimal.Decimal) (loyalty.Result, error)
}

// Deps collects the collaborators the claim cycle orchestrates. Locker,
// Transfers, Oracle, and Notifier are optional; a nil value disables the
// corresponding step.
type Deps struct {
	Settings      storage.SettingsStore
	Claims        storage.ClaimStore
	Snapshots     storage.SnapshotStore
	Distributions storage.DistributionStore
	Payouts       storage.PayoutStore
	Locker        storage.AdvisoryLocker
	Ledger        ledger.QueryService
	FeeSource     vault.FeeSourceClient
	Transfers     vault.ValueTransferClient
	Evaluator     EligibilityEvaluator
	Oracle        oracle.PriceSource
	Notifier      alerting.Notifier
	Clock         clockwork.Clock
}

// Service runs the claim-eligibility-distribution pipeline and owns the
// claim state machine.
type Service struct {
	deps    Deps
	logger  zerolog.Logger
	lockKey int64
}

// New constructs the claim cycle service.
func New(cfg *config.Config, deps Deps, logger zerolog.Logger) *Service {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	return &Service{
		deps:    deps,
		logger:  logger.With().Str("component", "service").Logger(),
		lockKey: cfg.Scheduler.AdvisoryLockKey,
	}
}

// ShouldRun reports whether a cycle is due. Disabled settings are overridden
// by force; a nil next-claim timestamp counts as due.
func ShouldRun(settings storage.AutoClaimSettings, now time.Time, force bool) (bool, string) {
	if !settings.Enabled && !force {
		return false, ReasonDisabled
	}
	if force {
		return true, ""
	}
	if settings.NextClaimScheduled != nil && now.Before(*settings.NextClaimScheduled) {
		return false, ReasonNotDue
	}
	return true, ""
}

// RunCycle executes one end-to-end claim cycle: claim fees, snapshot
// holders, evaluate eligibility, compute and persist distributions, pay
// out, and advance the schedule. It never panics and never returns an
// error to the caller; failures are captured in the result and on the
// claim row.
func (s *Service) RunCycle(ctx context.Context, force bool) CycleResult {
	started := s.deps.Clock.Now()
	result := s.runCycle(ctx, force)
	elapsed := s.deps.Clock.Since(started)

	metrics.CycleTotal.WithLabelValues(result.Outcome, result.Reason).Inc()
	metrics.CycleDuration.Observe(elapsed.Seconds())

	event := s.logger.Info()
	if result.Outcome == OutcomeFailed {
		event = s.logger.Error().Err(result.Err)
	}
	event.
		Str("outcome", result.Outcome).
		Str("reason", result.Reason).
		Int64("claim_id", result.ClaimID).
		Str("claimed", result.ClaimedAmount.String()).
		Str("distributed", result.DistributionAmount.String()).
		Int("eligible_holders", result.EligibleHolders).
		Dur("elapsed", elapsed).
		Msg("claim cycle finished")

	return result
}

func (s *Service) runCycle(ctx context.Context, force bool) CycleResult {
	settings, err := s.deps.Settings.GetSettings(ctx)
	if err != nil {
		return s.failed(CycleResult{}, fmt.Errorf("load settings: %w", err))
	}

	now := s.deps.Clock.Now().UTC()
	if ok, reason := ShouldRun(settings, now, force); !ok {
		return CycleResult{Outcome: OutcomeNoOp, Reason: reason, NextClaim: settings.NextClaimScheduled}
	}

	if s.lockKey != 0 && s.deps.Locker != nil {
		unlock, acquired, lockErr := s.deps.Locker.TryAdvisoryLock(ctx, s.lockKey)
		if lockErr != nil {
			return s.failed(CycleResult{}, fmt.Errorf("acquire advisory lock: %w", lockErr))
		}
		if !acquired {
			return CycleResult{Outcome: OutcomeNoOp, Reason: ReasonAlreadyRunning}
		}
		defer unlock()
	}

	active, err := s.deps.Claims.ActiveClaim(ctx)
	if err != nil {
		return s.failed(CycleResult{}, fmt.Errorf("check active claim: %w", err))
	}
	if active != nil {
		s.logger.Warn().Int64("claim_id", active.ID).Msg("claim already in flight; refusing to start another")
		return CycleResult{Outcome: OutcomeNoOp, Reason: ReasonAlreadyRunning, ClaimID: active.ID}
	}

	// Fee claim orchestration. NoOps here are valid steady states and the
	// schedule still advances so a misconfigured system does not hot-loop.
	if settings.FeeSourceAccount == "" || settings.TokenMintAddress == "" {
		next := s.advanceSchedule(ctx, settings, now, nil)
		s.logger.Info().Msg("fee source or mint not configured; skipping cycle")
		return CycleResult{Outcome: OutcomeNoOp, Reason: ReasonNotConfigured, NextClaim: next}
	}

	balance, err := s.deps.FeeSource.CheckBalance(ctx, settings.FeeSourceAccount)
	if err != nil {
		next := s.advanceSchedule(ctx, settings, now, nil)
		return s.failed(CycleResult{NextClaim: next}, fmt.Errorf("check fee balance: %w", err))
	}
	if balance.LessThan(settings.MinClaimAmount) {
		next := s.advanceSchedule(ctx, settings, now, nil)
		s.logger.Info().
			Str("balance", balance.String()).
			Str("minimum", settings.MinClaimAmount.String()).
			Msg("fee balance below minimum; skipping cycle")
		return CycleResult{Outcome: OutcomeNoOp, Reason: ReasonBelowMinimum, NextClaim: next}
	}

	claimRes, err := s.deps.FeeSource.Claim(ctx, settings.FeeSourceAccount)
	if err != nil {
		next := s.advanceSchedule(ctx, settings, now, nil)
		return s.failed(CycleResult{NextClaim: next}, fmt.Errorf("claim fees: %w", err))
	}

	// The realised amount comes from the claim itself, never from the
	// earlier balance check.
	distributionAmount := claimRes.Amount.Mul(settings.DistributionPercentage).Div(hundred).Truncate(9)

	claim, err := s.deps.Claims.CreateClaim(ctx, storage.DividendClaim{
		ClaimedAmount:      claimRes.Amount,
		DistributionAmount: distributionAmount,
		TransactionID:      claimRes.TransactionID,
		ClaimTimestamp:     now,
	})
	if err != nil {
		next := s.advanceSchedule(ctx, settings, now, nil)
		return s.failed(CycleResult{
			ClaimedAmount:      claimRes.Amount,
			DistributionAmount: distributionAmount,
			TransactionID:      claimRes.TransactionID,
			NextClaim:          next,
		}, fmt.Errorf("create claim row: %w", err))
	}

	result := CycleResult{
		ClaimID:            claim.ID,
		ClaimedAmount:      claimRes.Amount,
		DistributionAmount: distributionAmount,
		TransactionID:      claimRes.TransactionID,
	}

	result, execErr := s.executeClaim(ctx, settings, claim, result, now)
	if execErr != nil {
		if failErr := s.deps.Claims.FailClaim(ctx, claim.ID, execErr.Error(), s.deps.Clock.Now().UTC()); failErr != nil {
			s.logger.Error().Err(failErr).Int64("claim_id", claim.ID).Msg("unable to mark claim failed")
		}
		result.NextClaim = s.advanceSchedule(ctx, settings, now, nil)
		result = s.failed(result, execErr)
		s.notify(ctx, result, decimal.Zero)
		return result
	}

	completedAt := s.deps.Clock.Now().UTC()
	result.NextClaim = s.advanceSchedule(ctx, settings, now, &completedAt)

	metrics.ClaimedAmount.Add(result.ClaimedAmount.InexactFloat64())
	metrics.DistributedAmount.Add(result.DistributionAmount.InexactFloat64())
	metrics.EligibleHolders.Set(float64(result.EligibleHolders))

	result.Outcome = OutcomeCompleted
	s.notify(ctx, result, s.displayUSD(ctx, result.DistributionAmount))
	return result
}

// executeClaim runs every stage between claim-row creation and the
// completed transition. Any returned error moves the claim to failed;
// fees already pulled from the vault are not rolled back here.
func (s *Service) executeClaim(ctx context.Context, settings storage.AutoClaimSettings, claim storage.DividendClaim, result CycleResult, now time.Time) (CycleResult, error) {
	set, err := s.deps.Ledger.GetHolders(ctx, settings.TokenMintAddress)
	if err != nil {
		return result, fmt.Errorf("query holders: %w", err)
	}
	result.TotalHolders = len(set.Holders)
	if len(set.Holders) == 0 {
		return result, errors.New("no holders found for mint; configuration or data problem")
	}

	evalRes, err := s.deps.Evaluator.Evaluate(ctx, settings.TokenMintAddress, set, settings.SellThresholdPercent)
	if err != nil {
		return result, fmt.Errorf("evaluate eligibility: %w", err)
	}
	result.EligibleHolders = len(evalRes.Eligible)

	snapshots := evalRes.Snapshots
	for i := range snapshots {
		snapshots[i].ClaimID = claim.ID
	}
	if err := s.deps.Snapshots.InsertSnapshots(ctx, snapshots); err != nil {
		return result, fmt.Errorf("persist holder snapshots: %w", err)
	}
	if err := s.deps.Claims.SetClaimHolderStats(ctx, claim.ID, set.TotalSupply, len(evalRes.Eligible)); err != nil {
		return result, fmt.Errorf("record claim holder stats: %w", err)
	}

	shares, err := dividend.Compute(evalRes.Eligible, result.DistributionAmount)
	if err != nil {
		return result, err
	}

	rows := make([]storage.DividendDistribution, 0, len(shares))
	for _, share := range shares {
		rows = append(rows, storage.DividendDistribution{
			ClaimID:         claim.ID,
			HolderAddress:   share.HolderAddress,
			TokenBalance:    share.TokenBalance,
			SharePercentage: share.SharePercentage,
			DividendAmount:  share.DividendAmount,
		})
	}
	inserted, err := s.deps.Distributions.InsertDistributions(ctx, rows)
	if err != nil {
		return result, fmt.Errorf("persist distributions: %w", err)
	}

	// Payout failures stay on the distribution and payout rows; they do
	// not fail the claim.
	s.executePayouts(ctx, settings, inserted)

	if err := s.deps.Claims.CompleteClaim(ctx, claim.ID, s.deps.Clock.Now().UTC()); err != nil {
		return result, fmt.Errorf("complete claim: %w", err)
	}
	return result, nil
}

func (s *Service) executePayouts(ctx context.Context, settings storage.AutoClaimSettings, dists []storage.DividendDistribution) {
	if s.deps.Transfers == nil {
		return
	}

	for _, dist := range dists {
		sig, err := s.deps.Transfers.Transfer(ctx, settings.FeeSourceAccount, dist.HolderAddress, dist.DividendAmount)
		paidAt := s.deps.Clock.Now().UTC()

		payout := storage.DividendPayout{
			DistributionID: dist.ID,
			PayoutAmount:   dist.DividendAmount,
		}
		status := storage.DistributionStatusCompleted
		if err != nil {
			status = storage.DistributionStatusFailed
			msg := err.Error()
			payout.PayoutStatus = storage.PayoutStatusFailed
			payout.ErrorMessage = &msg
			metrics.PayoutsTotal.WithLabelValues(storage.PayoutStatusFailed).Inc()
			s.logger.Error().Err(err).
				Int64("distribution_id", dist.ID).
				Str("holder", dist.HolderAddress).
				Msg("payout transfer failed")
		} else {
			payout.TransactionSignature = sig
			payout.PayoutStatus = storage.PayoutStatusCompleted
			payout.PaidAt = &paidAt
			metrics.PayoutsTotal.WithLabelValues(storage.PayoutStatusCompleted).Inc()
		}

		if err := s.deps.Distributions.UpdateDistributionStatus(ctx, dist.ID, status); err != nil {
			s.logger.Error().Err(err).Int64("distribution_id", dist.ID).Msg("unable to update distribution status")
		}
		if _, err := s.deps.Payouts.InsertPayout(ctx, payout); err != nil {
			s.logger.Error().Err(err).Int64("distribution_id", dist.ID).Msg("unable to record payout")
		}
	}
}

// advanceSchedule moves next_claim_scheduled forward one interval from now.
// Called for completed cycles, failed cycles, and configuration no-ops
// alike: the next interval is the retry granularity.
func (s *Service) advanceSchedule(ctx context.Context, settings storage.AutoClaimSettings, now time.Time, lastSuccess *time.Time) *time.Time {
	interval := settings.ClaimIntervalMinutes
	if interval < 1 {
		interval = 1
	}
	next := now.Add(time.Duration(interval) * time.Minute)
	if err := s.deps.Settings.ScheduleNextClaim(ctx, next, lastSuccess); err != nil {
		s.logger.Error().Err(err).Msg("unable to advance claim schedule")
		return nil
	}
	return &next
}

func (s *Service) displayUSD(ctx context.Context, amount decimal.Decimal) decimal.Decimal {
	if s.deps.Oracle == nil {
		return decimal.Zero
	}
	price := s.deps.Oracle.PriceUSD(ctx)
	if price.Sign() <= 0 {
		return decimal.Zero
	}
	// base units to whole tokens at 9 decimals
	return amount.Div(decimal.New(1, 9)).Mul(price)
}

func (s *Service) notify(ctx context.Context, result CycleResult, amountUSD decimal.Decimal) {
	if s.deps.Notifier == nil {
		return
	}

	note := alerting.Notification{
		ClaimID:            result.ClaimID,
		Outcome:            result.Outcome,
		ClaimedAmount:      result.ClaimedAmount,
		DistributionAmount: result.DistributionAmount,
		AmountUSD:          amountUSD,
		EligibleHolders:    result.EligibleHolders,
		TotalHolders:       result.TotalHolders,
		TransactionID:      result.TransactionID,
		Timestamp:          s.deps.Clock.Now().UTC(),
	}
	if result.Err != nil {
		note.ErrorMessage = result.Err.Error()
	}

	if err := s.deps.Notifier.Notify(ctx, note); err != nil {
		s.logger.Error().Err(err).Int64("claim_id", result.ClaimID).Msg("unable to dispatch cycle notification")
	}
}

func (s *Service) failed(result CycleResult, err error) CycleResult {
	result.Outcome = OutcomeFailed
	result.Err = err
	return result
}
