package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// Claim lifecycle states. Transitions are one-directional: a claim created
// in processing ends in exactly one of completed or failed and is never
// reopened.
const (
	ClaimStatusProcessing = "processing"
	ClaimStatusCompleted  = "completed"
	ClaimStatusFailed     = "failed"
)

// Distribution states.
const (
	DistributionStatusPending   = "pending"
	DistributionStatusCompleted = "completed"
	DistributionStatusFailed    = "failed"
)

// Payout states.
const (
	PayoutStatusCompleted = "completed"
	PayoutStatusFailed    = "failed"
)

// AutoClaimSettings is the singleton claim policy row. Policy fields are
// mutated by admin action only; the timestamp fields by the claim cycle.
type AutoClaimSettings struct {
	Enabled                bool
	ClaimIntervalMinutes   int
	DistributionPercentage decimal.Decimal
	MinClaimAmount         decimal.Decimal
	FeeSourceAccount       string
	TokenMintAddress       string
	SellThresholdPercent   decimal.Decimal
	NextClaimScheduled     *time.Time
	LastSuccessfulClaim    *time.Time
	UpdatedAt              time.Time
}

// DividendClaim records one claim cycle attempt. Rows are never deleted.
type DividendClaim struct {
	ID                  int64
	ClaimedAmount       decimal.Decimal
	DistributionAmount  decimal.Decimal
	TransactionID       string
	TotalSupply         decimal.Decimal
	EligibleHolderCount int
	Status              string
	ErrorMessage        *string
	ClaimTimestamp      time.Time
	CompletedAt         *time.Time
	CreatedAt           time.Time
}

// HolderSnapshot is the immutable per-holder record taken at claim time.
// One set per claim, covering every holder returned by the ledger query,
// eligible or not.
type HolderSnapshot struct {
	ID                  int64
	ClaimID             int64
	HolderAddress       string
	TokenBalance        decimal.Decimal
	PercentageOfSupply  decimal.Decimal
	InitialBalance      decimal.Decimal
	RetentionPercentage decimal.Decimal
	IsEligible          bool
	CreatedAt           time.Time
}

// HolderEligibility is the cross-claim loyalty record keyed by
// (mint, holder). Once PermanentlyBlacklisted it stays excluded until an
// admin reset clears the flag and re-baselines.
type HolderEligibility struct {
	ID                     int64
	TokenMintAddress       string
	HolderAddress          string
	CurrentBalance         decimal.Decimal
	InitialBalance         decimal.Decimal
	RetentionPercentage    decimal.Decimal
	IsEligible             bool
	PermanentlyBlacklisted bool
	ViolationCount         int
	BlacklistReason        *string
	LastCheckedAt          time.Time
	CreatedAt              time.Time
}

// DividendDistribution is one eligible holder's computed share of a claim.
// SharePercentage is relative to the eligible pool, not total supply.
type DividendDistribution struct {
	ID              int64
	ClaimID         int64
	HolderAddress   string
	TokenBalance    decimal.Decimal
	SharePercentage decimal.Decimal
	DividendAmount  decimal.Decimal
	Status          string
	CreatedAt       time.Time
}

// DividendPayout is the realized transfer record for a distribution.
type DividendPayout struct {
	ID                   int64
	DistributionID       int64
	TransactionSignature string
	PayoutAmount         decimal.Decimal
	PayoutStatus         string
	PaidAt               *time.Time
	ErrorMessage         *string
	CreatedAt            time.Time
}
