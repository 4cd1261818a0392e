package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const (
	eligibilityColumns = `
        id,
        token_mint_address,
        holder_address,
        current_balance,
        initial_balance,
        retention_percentage,
        is_eligible,
        permanently_blacklisted,
        violation_count,
        blacklist_reason,
        last_checked_at,
        created_at`

	listEligibilitySQL = `SELECT` + eligibilityColumns + `
    FROM holder_eligibility
    WHERE token_mint_address = $1
    ORDER BY current_balance DESC, holder_address;`

	listEligibilityLimitSQL = `SELECT` + eligibilityColumns + `
    FROM holder_eligibility
    WHERE token_mint_address = $1
    ORDER BY current_balance DESC, holder_address
    LIMIT $2;`

	getEligibilitySQL = `SELECT` + eligibilityColumns + `
    FROM holder_eligibility
    WHERE token_mint_address = $1
      AND holder_address = $2;`

	upsertEligibilitySQL = `INSERT INTO holder_eligibility (
        token_mint_address,
        holder_address,
        current_balance,
        initial_balance,
        retention_percentage,
        is_eligible,
        permanently_blacklisted,
        violation_count,
        blacklist_reason,
        last_checked_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10
    )
    ON CONFLICT (token_mint_address, holder_address) DO UPDATE
    SET
        current_balance         = EXCLUDED.current_balance,
        initial_balance         = EXCLUDED.initial_balance,
        retention_percentage    = EXCLUDED.retention_percentage,
        is_eligible             = EXCLUDED.is_eligible,
        permanently_blacklisted = EXCLUDED.permanently_blacklisted,
        violation_count         = EXCLUDED.violation_count,
        blacklist_reason        = EXCLUDED.blacklist_reason,
        last_checked_at         = EXCLUDED.last_checked_at
    RETURNING` + eligibilityColumns + `;`

	resetEligibilitySQL = `UPDATE holder_eligibility
    SET permanently_blacklisted = FALSE,
        is_eligible             = TRUE,
        violation_count         = 0,
        blacklist_reason        = NULL,
        initial_balance         = current_balance,
        retention_percentage    = 100,
        last_checked_at         = now()
    WHERE token_mint_address = $1
      AND holder_address = $2;`
)

// ListEligibility lists loyalty records for a mint, largest balance first.
// A non-positive limit returns all records.
func (s *Store) ListEligibility(ctx context.Context, mint string, limit int) ([]HolderEligibility, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	var rows pgx.Rows
	var queryErr error
	if limit > 0 {
		rows, queryErr = pool.Query(ctx, listEligibilityLimitSQL, mint, limit)
	} else {
		rows, queryErr = pool.Query(ctx, listEligibilitySQL, mint)
	}
	if queryErr != nil {
		return nil, fmt.Errorf("list eligibility: %w", queryErr)
	}
	defer rows.Close()

	records := make([]HolderEligibility, 0)
	for rows.Next() {
		rec, scanErr := scanEligibility(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

// GetEligibility returns one loyalty record, or nil when the holder has
// never been seen for this mint.
func (s *Store) GetEligibility(ctx context.Context, mint, holder string) (*HolderEligibility, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, getEligibilitySQL, mint, holder)
	if queryErr != nil {
		return nil, fmt.Errorf("get eligibility: %w", queryErr)
	}
	defer rows.Close()

	if !rows.Next() {
		if rows.Err() != nil {
			return nil, rows.Err()
		}
		return nil, nil
	}
	rec, scanErr := scanEligibility(rows)
	if scanErr != nil {
		return nil, scanErr
	}
	return &rec, nil
}

// UpsertEligibility writes one loyalty record keyed by (mint, holder).
func (s *Store) UpsertEligibility(ctx context.Context, rec HolderEligibility) (HolderEligibility, error) {
	pool, err := s.getPool()
	if err != nil {
		return HolderEligibility{}, err
	}

	var reason interface{}
	if rec.BlacklistReason != nil {
		reason = *rec.BlacklistReason
	}

	rows, queryErr := pool.Query(ctx, upsertEligibilitySQL,
		rec.TokenMintAddress,
		rec.HolderAddress,
		rec.CurrentBalance.String(),
		rec.InitialBalance.String(),
		rec.RetentionPercentage.String(),
		rec.IsEligible,
		rec.PermanentlyBlacklisted,
		rec.ViolationCount,
		reason,
		rec.LastCheckedAt,
	)
	if queryErr != nil {
		return HolderEligibility{}, fmt.Errorf("upsert eligibility: %w", queryErr)
	}
	defer rows.Close()

	if !rows.Next() {
		if rows.Err() != nil {
			return HolderEligibility{}, rows.Err()
		}
		return HolderEligibility{}, pgx.ErrNoRows
	}
	return scanEligibility(rows)
}

// ResetEligibility is the admin escape hatch: clears the blacklist flag and
// re-baselines the holder at their current balance.
func (s *Store) ResetEligibility(ctx context.Context, mint, holder string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	cmdTag, execErr := pool.Exec(ctx, resetEligibilitySQL, mint, holder)
	if execErr != nil {
		return fmt.Errorf("reset eligibility: %w", execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func scanEligibility(rows pgx.Rows) (HolderEligibility, error) {
	var (
		rec          HolderEligibility
		currentStr   string
		initialStr   string
		retentionStr string
		reason       sql.NullString
	)

	if err := rows.Scan(
		&rec.ID,
		&rec.TokenMintAddress,
		&rec.HolderAddress,
		&currentStr,
		&initialStr,
		&retentionStr,
		&rec.IsEligible,
		&rec.PermanentlyBlacklisted,
		&rec.ViolationCount,
		&reason,
		&rec.LastCheckedAt,
		&rec.CreatedAt,
	); err != nil {
		return HolderEligibility{}, err
	}

	var convErr error
	rec.CurrentBalance, convErr = decimal.NewFromString(currentStr)
	if convErr != nil {
		return HolderEligibility{}, fmt.Errorf("parse current balance: %w", convErr)
	}
	rec.InitialBalance, convErr = decimal.NewFromString(initialStr)
	if convErr != nil {
		return HolderEligibility{}, fmt.Errorf("parse initial balance: %w", convErr)
	}
	rec.RetentionPercentage, convErr = decimal.NewFromString(retentionStr)
	if convErr != nil {
		return HolderEligibility{}, fmt.Errorf("parse retention percentage: %w", convErr)
	}

	if reason.Valid {
		value := reason.String
		rec.BlacklistReason = &value
	}

	return rec, nil
}
