package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	getSettingsSQL = `SELECT
        enabled,
        claim_interval_minutes,
        distribution_percentage,
        min_claim_amount,
        fee_source_account,
        token_mint_address,
        sell_threshold_percent,
        next_claim_scheduled,
        last_successful_claim,
        updated_at
    FROM auto_claim_settings
    WHERE id = 1;`

	updateSettingsSQL = `UPDATE auto_claim_settings
    SET enabled                 = $1,
        claim_interval_minutes  = $2,
        distribution_percentage = $3,
        min_claim_amount        = $4,
        fee_source_account      = $5,
        token_mint_address      = $6,
        sell_threshold_percent  = $7,
        updated_at              = now()
    WHERE id = 1
    RETURNING
        enabled,
        claim_interval_minutes,
        distribution_percentage,
        min_claim_amount,
        fee_source_account,
        token_mint_address,
        sell_threshold_percent,
        next_claim_scheduled,
        last_successful_claim,
        updated_at;`

	scheduleNextClaimSQL = `UPDATE auto_claim_settings
    SET next_claim_scheduled  = $1,
        last_successful_claim = COALESCE($2, last_successful_claim),
        updated_at            = now()
    WHERE id = 1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// SettingsStore defines operations on the singleton claim policy row.
type SettingsStore interface {
	GetSettings(ctx context.Context) (AutoClaimSettings, error)
	UpdateSettings(ctx context.Context, settings AutoClaimSettings) (AutoClaimSettings, error)
	ScheduleNextClaim(ctx context.Context, next time.Time, lastSuccess *time.Time) error
}

// ClaimStore defines operations on the claim audit trail.
type ClaimStore interface {
	CreateClaim(ctx context.Context, claim DividendClaim) (DividendClaim, error)
	ActiveClaim(ctx context.Context) (*DividendClaim, error)
	GetClaim(ctx context.Context, id int64) (DividendClaim, error)
	SetClaimHolderStats(ctx context.Context, id int64, totalSupply decimal.Decimal, eligibleCount int) error
	CompleteClaim(ctx context.Context, id int64, completedAt time.Time) error
	FailClaim(ctx context.Context, id int64, errMsg string, failedAt time.Time) error
	ListRecentClaims(ctx context.Context, limit int) ([]DividendClaim, error)
	ListClaimsBetween(ctx context.Context, from, to time.Time) ([]DividendClaim, error)
	CountClaims(ctx context.Context) (int64, error)
}

// SnapshotStore defines operations on per-claim holder snapshots.
type SnapshotStore interface {
	InsertSnapshots(ctx context.Context, snapshots []HolderSnapshot) error
	ListSnapshots(ctx context.Context, claimID int64) ([]HolderSnapshot, error)
	CountSnapshots(ctx context.Context, claimID int64) (int64, error)
}

// EligibilityStore defines operations on cross-claim loyalty records.
type EligibilityStore interface {
	ListEligibility(ctx context.Context, mint string, limit int) ([]HolderEligibility, error)
	GetEligibility(ctx context.Context, mint, holder string) (*HolderEligibility, error)
	UpsertEligibility(ctx context.Context, rec HolderEligibility) (HolderEligibility, error)
	ResetEligibility(ctx context.Context, mint, holder string) error
}

// DistributionStore defines operations on per-claim distribution rows.
type DistributionStore interface {
	InsertDistributions(ctx context.Context, dists []DividendDistribution) ([]DividendDistribution, error)
	ListDistributions(ctx context.Context, claimID int64) ([]DividendDistribution, error)
	UpdateDistributionStatus(ctx context.Context, id int64, status string) error
}

// PayoutStore defines operations on realized transfer records.
type PayoutStore interface {
	InsertPayout(ctx context.Context, payout DividendPayout) (DividendPayout, error)
	ListPayoutsForClaim(ctx context.Context, claimID int64) ([]DividendPayout, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to claims, snapshots, distributions, payouts,
// eligibility records, and the settings row.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := conn.Exec(ctxUnlock, advisoryUnlockSQL, key); err != nil {
			// unlock best effort; log omitted in storage package
		}
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// GetSettings loads the singleton policy row.
func (s *Store) GetSettings(ctx context.Context) (AutoClaimSettings, error) {
	pool, err := s.getPool()
	if err != nil {
		return AutoClaimSettings{}, err
	}

	row := pool.QueryRow(ctx, getSettingsSQL)
	settings, scanErr := scanSettingsRow(row)
	if scanErr != nil {
		return AutoClaimSettings{}, fmt.Errorf("get settings: %w", scanErr)
	}
	return settings, nil
}

// UpdateSettings writes admin-mutable policy fields and returns the stored row.
// Schedule timestamps are untouched; those belong to the claim cycle.
func (s *Store) UpdateSettings(ctx context.Context, settings AutoClaimSettings) (AutoClaimSettings, error) {
	pool, err := s.getPool()
	if err != nil {
		return AutoClaimSettings{}, err
	}

	row := pool.QueryRow(ctx, updateSettingsSQL,
		settings.Enabled,
		settings.ClaimIntervalMinutes,
		settings.DistributionPercentage.String(),
		settings.MinClaimAmount.String(),
		settings.FeeSourceAccount,
		settings.TokenMintAddress,
		settings.SellThresholdPercent.String(),
	)
	stored, scanErr := scanSettingsRow(row)
	if scanErr != nil {
		return AutoClaimSettings{}, fmt.Errorf("update settings: %w", scanErr)
	}
	return stored, nil
}

// ScheduleNextClaim advances the next-claim timestamp; lastSuccess is only
// written when non-nil so failed cycles keep the previous success marker.
func (s *Store) ScheduleNextClaim(ctx context.Context, next time.Time, lastSuccess *time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	var last interface{}
	if lastSuccess != nil {
		last = *lastSuccess
	}

	if _, execErr := pool.Exec(ctx, scheduleNextClaimSQL, next, last); execErr != nil {
		return fmt.Errorf("schedule next claim: %w", execErr)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSettingsRow(row rowScanner) (AutoClaimSettings, error) {
	var (
		settings      AutoClaimSettings
		distPctStr    string
		minClaimStr   string
		thresholdStr  string
		nextScheduled sql.NullTime
		lastSuccess   sql.NullTime
	)

	if err := row.Scan(
		&settings.Enabled,
		&settings.ClaimIntervalMinutes,
		&distPctStr,
		&minClaimStr,
		&settings.FeeSourceAccount,
		&settings.TokenMintAddress,
		&thresholdStr,
		&nextScheduled,
		&lastSuccess,
		&settings.UpdatedAt,
	); err != nil {
		return AutoClaimSettings{}, err
	}

	var convErr error
	settings.DistributionPercentage, convErr = decimal.NewFromString(distPctStr)
	if convErr != nil {
		return AutoClaimSettings{}, fmt.Errorf("parse distribution percentage: %w", convErr)
	}
	settings.MinClaimAmount, convErr = decimal.NewFromString(minClaimStr)
	if convErr != nil {
		return AutoClaimSettings{}, fmt.Errorf("parse min claim amount: %w", convErr)
	}
	settings.SellThresholdPercent, convErr = decimal.NewFromString(thresholdStr)
	if convErr != nil {
		return AutoClaimSettings{}, fmt.Errorf("parse sell threshold: %w", convErr)
	}

	if nextScheduled.Valid {
		value := nextScheduled.Time
		settings.NextClaimScheduled = &value
	}
	if lastSuccess.Valid {
		value := lastSuccess.Time
		settings.LastSuccessfulClaim = &value
	}

	return settings, nil
}
