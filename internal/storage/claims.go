package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const (
	createClaimSQL = `INSERT INTO dividend_claims (
        claimed_amount,
        distribution_amount,
        transaction_id,
        status,
        claim_timestamp
    ) VALUES (
        $1,$2,$3,'processing',$4
    )
    RETURNING id, status, created_at;`

	claimColumns = `
        id,
        claimed_amount,
        distribution_amount,
        transaction_id,
        total_supply,
        eligible_holder_count,
        status,
        error_message,
        claim_timestamp,
        completed_at,
        created_at`

	activeClaimSQL = `SELECT` + claimColumns + `
    FROM dividend_claims
    WHERE status = 'processing'
    ORDER BY id DESC
    LIMIT 1;`

	getClaimSQL = `SELECT` + claimColumns + `
    FROM dividend_claims
    WHERE id = $1;`

	listRecentClaimsSQL = `SELECT` + claimColumns + `
    FROM dividend_claims
    ORDER BY claim_timestamp DESC
    LIMIT $1;`

	listClaimsBetweenSQL = `SELECT` + claimColumns + `
    FROM dividend_claims
    WHERE claim_timestamp >= $1
      AND claim_timestamp < $2
    ORDER BY claim_timestamp;`

	setClaimHolderStatsSQL = `UPDATE dividend_claims
    SET total_supply = $2, eligible_holder_count = $3
    WHERE id = $1;`

	completeClaimSQL = `UPDATE dividend_claims
    SET status = 'completed', completed_at = $2, error_message = NULL
    WHERE id = $1 AND status = 'processing';`

	failClaimSQL = `UPDATE dividend_claims
    SET status = 'failed', completed_at = $3, error_message = $2
    WHERE id = $1 AND status = 'processing';`

	countClaimsSQL = `SELECT COUNT(*) FROM dividend_claims;`

	insertSnapshotSQL = `INSERT INTO holder_snapshots (
        claim_id,
        holder_address,
        token_balance,
        percentage_of_supply,
        initial_balance,
        retention_percentage,
        is_eligible
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7
    );`

	listSnapshotsSQL = `SELECT
        id,
        claim_id,
        holder_address,
        token_balance,
        percentage_of_supply,
        initial_balance,
        retention_percentage,
        is_eligible,
        created_at
    FROM holder_snapshots
    WHERE claim_id = $1
    ORDER BY token_balance DESC, holder_address;`

	countSnapshotsSQL = `SELECT COUNT(*) FROM holder_snapshots WHERE claim_id = $1;`

	insertDistributionSQL = `INSERT INTO dividend_distributions (
        claim_id,
        holder_address,
        token_balance,
        share_percentage,
        dividend_amount
    ) VALUES (
        $1,$2,$3,$4,$5
    )
    RETURNING id, status, created_at;`

	listDistributionsSQL = `SELECT
        id,
        claim_id,
        holder_address,
        token_balance,
        share_percentage,
        dividend_amount,
        status,
        created_at
    FROM dividend_distributions
    WHERE claim_id = $1
    ORDER BY dividend_amount DESC, holder_address;`

	updateDistributionStatusSQL = `UPDATE dividend_distributions
    SET status = $2
    WHERE id = $1;`

	insertPayoutSQL = `INSERT INTO dividend_payouts (
        distribution_id,
        transaction_signature,
        payout_amount,
        payout_status,
        paid_at,
        error_message
    ) VALUES (
        $1,$2,$3,$4,$5,$6
    )
    RETURNING id, created_at;`

	listPayoutsForClaimSQL = `SELECT
        p.id,
        p.distribution_id,
        p.transaction_signature,
        p.payout_amount,
        p.payout_status,
        p.paid_at,
        p.error_message,
        p.created_at
    FROM dividend_payouts p
    JOIN dividend_distributions d ON d.id = p.distribution_id
    WHERE d.claim_id = $1
    ORDER BY p.id;`
)

// CreateClaim inserts a new claim in processing status and returns it with
// its assigned id.
func (s *Store) CreateClaim(ctx context.Context, claim DividendClaim) (DividendClaim, error) {
	pool, err := s.getPool()
	if err != nil {
		return DividendClaim{}, err
	}

	row := pool.QueryRow(ctx, createClaimSQL,
		claim.ClaimedAmount.String(),
		claim.DistributionAmount.String(),
		claim.TransactionID,
		claim.ClaimTimestamp,
	)
	if scanErr := row.Scan(&claim.ID, &claim.Status, &claim.CreatedAt); scanErr != nil {
		return DividendClaim{}, fmt.Errorf("create claim: %w", scanErr)
	}
	return claim, nil
}

// ActiveClaim returns the processing claim if one is in flight, nil otherwise.
func (s *Store) ActiveClaim(ctx context.Context) (*DividendClaim, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, activeClaimSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("active claim: %w", queryErr)
	}
	defer rows.Close()

	if !rows.Next() {
		if rows.Err() != nil {
			return nil, rows.Err()
		}
		return nil, nil
	}
	claim, scanErr := scanClaim(rows)
	if scanErr != nil {
		return nil, scanErr
	}
	return &claim, nil
}

// GetClaim fetches one claim by id.
func (s *Store) GetClaim(ctx context.Context, id int64) (DividendClaim, error) {
	pool, err := s.getPool()
	if err != nil {
		return DividendClaim{}, err
	}

	rows, queryErr := pool.Query(ctx, getClaimSQL, id)
	if queryErr != nil {
		return DividendClaim{}, fmt.Errorf("get claim: %w", queryErr)
	}
	defer rows.Close()

	if !rows.Next() {
		if rows.Err() != nil {
			return DividendClaim{}, rows.Err()
		}
		return DividendClaim{}, pgx.ErrNoRows
	}
	return scanClaim(rows)
}

// SetClaimHolderStats records supply and eligible counts once known.
func (s *Store) SetClaimHolderStats(ctx context.Context, id int64, totalSupply decimal.Decimal, eligibleCount int) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	cmdTag, execErr := pool.Exec(ctx, setClaimHolderStatsSQL, id, totalSupply.String(), eligibleCount)
	if execErr != nil {
		return fmt.Errorf("set claim holder stats: %w", execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// CompleteClaim transitions processing → completed. Returns pgx.ErrNoRows
// when the claim is not in processing status, so callers cannot reopen a
// terminal claim.
func (s *Store) CompleteClaim(ctx context.Context, id int64, completedAt time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	cmdTag, execErr := pool.Exec(ctx, completeClaimSQL, id, completedAt)
	if execErr != nil {
		return fmt.Errorf("complete claim: %w", execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// FailClaim transitions processing → failed with the captured error message.
func (s *Store) FailClaim(ctx context.Context, id int64, errMsg string, failedAt time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	cmdTag, execErr := pool.Exec(ctx, failClaimSQL, id, errMsg, failedAt)
	if execErr != nil {
		return fmt.Errorf("fail claim: %w", execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// ListRecentClaims lists the most recent claims ordered by descending time.
func (s *Store) ListRecentClaims(ctx context.Context, limit int) ([]DividendClaim, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentClaimsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent claims: %w", queryErr)
	}
	defer rows.Close()

	claims := make([]DividendClaim, 0, limit)
	for rows.Next() {
		claim, scanErr := scanClaim(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		claims = append(claims, claim)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return claims, nil
}

// ListClaimsBetween lists claims within a time window.
func (s *Store) ListClaimsBetween(ctx context.Context, from, to time.Time) ([]DividendClaim, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listClaimsBetweenSQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list claims between: %w", queryErr)
	}
	defer rows.Close()

	claims := make([]DividendClaim, 0)
	for rows.Next() {
		claim, scanErr := scanClaim(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		claims = append(claims, claim)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return claims, nil
}

// CountClaims counts stored claims.
func (s *Store) CountClaims(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countClaimsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count claims: %w", scanErr)
	}
	return count, nil
}

// InsertSnapshots writes the full holder snapshot set for one claim in a
// single batch.
func (s *Store) InsertSnapshots(ctx context.Context, snapshots []HolderSnapshot) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if len(snapshots) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, snap := range snapshots {
		batch.Queue(insertSnapshotSQL,
			snap.ClaimID,
			snap.HolderAddress,
			snap.TokenBalance.String(),
			snap.PercentageOfSupply.String(),
			snap.InitialBalance.String(),
			snap.RetentionPercentage.String(),
			snap.IsEligible,
		)
	}

	results := pool.SendBatch(ctx, batch)
	defer results.Close()
	for range snapshots {
		if _, execErr := results.Exec(); execErr != nil {
			return fmt.Errorf("insert holder snapshot: %w", execErr)
		}
	}
	return nil
}

// ListSnapshots lists all snapshot rows for a claim, largest balance first.
func (s *Store) ListSnapshots(ctx context.Context, claimID int64) ([]HolderSnapshot, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listSnapshotsSQL, claimID)
	if queryErr != nil {
		return nil, fmt.Errorf("list snapshots: %w", queryErr)
	}
	defer rows.Close()

	snapshots := make([]HolderSnapshot, 0)
	for rows.Next() {
		snap, scanErr := scanSnapshot(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		snapshots = append(snapshots, snap)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return snapshots, nil
}

// CountSnapshots counts snapshot rows for a claim.
func (s *Store) CountSnapshots(ctx context.Context, claimID int64) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countSnapshotsSQL, claimID).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count snapshots: %w", scanErr)
	}
	return count, nil
}

// InsertDistributions writes pending distribution rows for one claim and
// returns them with assigned ids.
func (s *Store) InsertDistributions(ctx context.Context, dists []DividendDistribution) ([]DividendDistribution, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	if len(dists) == 0 {
		return nil, nil
	}

	batch := &pgx.Batch{}
	for _, dist := range dists {
		batch.Queue(insertDistributionSQL,
			dist.ClaimID,
			dist.HolderAddress,
			dist.TokenBalance.String(),
			dist.SharePercentage.String(),
			dist.DividendAmount.String(),
		)
	}

	results := pool.SendBatch(ctx, batch)
	defer results.Close()

	inserted := make([]DividendDistribution, 0, len(dists))
	for _, dist := range dists {
		row := results.QueryRow()
		if scanErr := row.Scan(&dist.ID, &dist.Status, &dist.CreatedAt); scanErr != nil {
			return nil, fmt.Errorf("insert distribution: %w", scanErr)
		}
		inserted = append(inserted, dist)
	}
	return inserted, nil
}

// ListDistributions lists distribution rows for a claim, largest share first.
func (s *Store) ListDistributions(ctx context.Context, claimID int64) ([]DividendDistribution, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listDistributionsSQL, claimID)
	if queryErr != nil {
		return nil, fmt.Errorf("list distributions: %w", queryErr)
	}
	defer rows.Close()

	dists := make([]DividendDistribution, 0)
	for rows.Next() {
		dist, scanErr := scanDistribution(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		dists = append(dists, dist)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return dists, nil
}

// UpdateDistributionStatus moves one distribution between pending/completed/failed.
func (s *Store) UpdateDistributionStatus(ctx context.Context, id int64, status string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	cmdTag, execErr := pool.Exec(ctx, updateDistributionStatusSQL, id, status)
	if execErr != nil {
		return fmt.Errorf("update distribution status: %w", execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// InsertPayout records one realized transfer attempt.
func (s *Store) InsertPayout(ctx context.Context, payout DividendPayout) (DividendPayout, error) {
	pool, err := s.getPool()
	if err != nil {
		return DividendPayout{}, err
	}

	var paidAt interface{}
	if payout.PaidAt != nil {
		paidAt = *payout.PaidAt
	}
	var errMsg interface{}
	if payout.ErrorMessage != nil {
		errMsg = *payout.ErrorMessage
	}

	row := pool.QueryRow(ctx, insertPayoutSQL,
		payout.DistributionID,
		payout.TransactionSignature,
		payout.PayoutAmount.String(),
		payout.PayoutStatus,
		paidAt,
		errMsg,
	)
	if scanErr := row.Scan(&payout.ID, &payout.CreatedAt); scanErr != nil {
		return DividendPayout{}, fmt.Errorf("insert payout: %w", scanErr)
	}
	return payout, nil
}

// ListPayoutsForClaim lists payout attempts across a claim's distributions.
func (s *Store) ListPayoutsForClaim(ctx context.Context, claimID int64) ([]DividendPayout, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listPayoutsForClaimSQL, claimID)
	if queryErr != nil {
		return nil, fmt.Errorf("list payouts for claim: %w", queryErr)
	}
	defer rows.Close()

	payouts := make([]DividendPayout, 0)
	for rows.Next() {
		payout, scanErr := scanPayout(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		payouts = append(payouts, payout)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return payouts, nil
}

func scanClaim(rows pgx.Rows) (DividendClaim, error) {
	var (
		claim       DividendClaim
		claimedStr  string
		distStr     string
		supplyStr   string
		errMsg      sql.NullString
		completedAt sql.NullTime
	)

	if err := rows.Scan(
		&claim.ID,
		&claimedStr,
		&distStr,
		&claim.TransactionID,
		&supplyStr,
		&claim.EligibleHolderCount,
		&claim.Status,
		&errMsg,
		&claim.ClaimTimestamp,
		&completedAt,
		&claim.CreatedAt,
	); err != nil {
		return DividendClaim{}, err
	}

	var convErr error
	claim.ClaimedAmount, convErr = decimal.NewFromString(claimedStr)
	if convErr != nil {
		return DividendClaim{}, fmt.Errorf("parse claimed amount: %w", convErr)
	}
	claim.DistributionAmount, convErr = decimal.NewFromString(distStr)
	if convErr != nil {
		return DividendClaim{}, fmt.Errorf("parse distribution amount: %w", convErr)
	}
	claim.TotalSupply, convErr = decimal.NewFromString(supplyStr)
	if convErr != nil {
		return DividendClaim{}, fmt.Errorf("parse total supply: %w", convErr)
	}

	if errMsg.Valid {
		msg := errMsg.String
		claim.ErrorMessage = &msg
	}
	if completedAt.Valid {
		value := completedAt.Time
		claim.CompletedAt = &value
	}

	return claim, nil
}

func scanSnapshot(rows pgx.Rows) (HolderSnapshot, error) {
	var (
		snap         HolderSnapshot
		balanceStr   string
		pctStr       string
		initialStr   string
		retentionStr string
	)

	if err := rows.Scan(
		&snap.ID,
		&snap.ClaimID,
		&snap.HolderAddress,
		&balanceStr,
		&pctStr,
		&initialStr,
		&retentionStr,
		&snap.IsEligible,
		&snap.CreatedAt,
	); err != nil {
		return HolderSnapshot{}, err
	}

	var convErr error
	snap.TokenBalance, convErr = decimal.NewFromString(balanceStr)
	if convErr != nil {
		return HolderSnapshot{}, fmt.Errorf("parse token balance: %w", convErr)
	}
	snap.PercentageOfSupply, convErr = decimal.NewFromString(pctStr)
	if convErr != nil {
		return HolderSnapshot{}, fmt.Errorf("parse percentage of supply: %w", convErr)
	}
	snap.InitialBalance, convErr = decimal.NewFromString(initialStr)
	if convErr != nil {
		return HolderSnapshot{}, fmt.Errorf("parse initial balance: %w", convErr)
	}
	snap.RetentionPercentage, convErr = decimal.NewFromString(retentionStr)
	if convErr != nil {
		return HolderSnapshot{}, fmt.Errorf("parse retention percentage: %w", convErr)
	}

	return snap, nil
}

func scanDistribution(rows pgx.Rows) (DividendDistribution, error) {
	var (
		dist       DividendDistribution
		balanceStr string
		shareStr   string
		amountStr  string
	)

	if err := rows.Scan(
		&dist.ID,
		&dist.ClaimID,
		&dist.HolderAddress,
		&balanceStr,
		&shareStr,
		&amountStr,
		&dist.Status,
		&dist.CreatedAt,
	); err != nil {
		return DividendDistribution{}, err
	}

	var convErr error
	dist.TokenBalance, convErr = decimal.NewFromString(balanceStr)
	if convErr != nil {
		return DividendDistribution{}, fmt.Errorf("parse token balance: %w", convErr)
	}
	dist.SharePercentage, convErr = decimal.NewFromString(shareStr)
	if convErr != nil {
		return DividendDistribution{}, fmt.Errorf("parse share percentage: %w", convErr)
	}
	dist.DividendAmount, convErr = decimal.NewFromString(amountStr)
	if convErr != nil {
		return DividendDistribution{}, fmt.Errorf("parse dividend amount: %w", convErr)
	}

	return dist, nil
}

func scanPayout(rows pgx.Rows) (DividendPayout, error) {
	var (
		payout    DividendPayout
		amountStr string
		paidAt    sql.NullTime
		errMsg    sql.NullString
	)

	if err := rows.Scan(
		&payout.ID,
		&payout.DistributionID,
		&payout.TransactionSignature,
		&amountStr,
		&payout.PayoutStatus,
		&paidAt,
		&errMsg,
		&payout.CreatedAt,
	); err != nil {
		return DividendPayout{}, err
	}

	var convErr error
	payout.PayoutAmount, convErr = decimal.NewFromString(amountStr)
	if convErr != nil {
		return DividendPayout{}, fmt.Errorf("parse payout amount: %w", convErr)
	}

	if paidAt.Valid {
		value := paidAt.Time
		payout.PaidAt = &value
	}
	if errMsg.Valid {
		msg := errMsg.String
		payout.ErrorMessage = &msg
	}

	return payout, nil
}

var (
	_ SettingsStore     = (*Store)(nil)
	_ ClaimStore        = (*Store)(nil)
	_ SnapshotStore     = (*Store)(nil)
	_ EligibilityStore  = (*Store)(nil)
	_ DistributionStore = (*Store)(nil)
	_ PayoutStore       = (*Store)(nil)
	_ AdvisoryLocker    = (*Store)(nil)
)
