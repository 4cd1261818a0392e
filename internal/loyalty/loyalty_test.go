package loyalty

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"holder-rewards/internal/ledger"
	"holder-rewards/internal/storage"
)

type memEligibilityStore struct {
	records map[string]storage.HolderEligibility
}

func newMemEligibilityStore() *memEligibilityStore {
	return &memEligibilityStore{records: make(map[string]storage.HolderEligibility)}
}

func (m *memEligibilityStore) key(mint, holder string) string { return mint + "|" + holder }

func (m *memEligibilityStore) ListEligibility(ctx context.Context, mint string, limit int) ([]storage.HolderEligibility, error) {
	out := make([]storage.HolderEligibility, 0, len(m.records))
	for _, rec := range m.records {
		if rec.TokenMintAddress == mint {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *memEligibilityStore) GetEligibility(ctx context.Context, mint, holder string) (*storage.HolderEligibility, error) {
	rec, ok := m.records[m.key(mint, holder)]
	if !ok {
		return nil, nil
	}
	copied := rec
	return &copied, nil
}

func (m *memEligibilityStore) UpsertEligibility(ctx context.Context, rec storage.HolderEligibility) (storage.HolderEligibility, error) {
	m.records[m.key(rec.TokenMintAddress, rec.HolderAddress)] = rec
	return rec, nil
}

func (m *memEligibilityStore) ResetEligibility(ctx context.Context, mint, holder string) error {
	rec, ok := m.records[m.key(mint, holder)]
	if !ok {
		return nil
	}
	rec.PermanentlyBlacklisted = false
	rec.IsEligible = true
	rec.ViolationCount = 0
	rec.BlacklistReason = nil
	rec.InitialBalance = rec.CurrentBalance
	rec.RetentionPercentage = decimal.NewFromInt(100)
	m.records[m.key(mint, holder)] = rec
	return nil
}

var _ storage.EligibilityStore = (*memEligibilityStore)(nil)

const testMint = "So11111111111111111111111111111111111111112"

func holderSet(holders ...ledger.Holder) ledger.HolderSet {
	total := decimal.Zero
	for _, h := range holders {
		total = total.Add(h.Balance)
	}
	return ledger.HolderSet{Holders: holders, TotalSupply: total}
}

func seed(store *memEligibilityStore, holder string, initial int64) {
	store.records[store.key(testMint, holder)] = storage.HolderEligibility{
		TokenMintAddress:    testMint,
		HolderAddress:       holder,
		CurrentBalance:      decimal.NewFromInt(initial),
		InitialBalance:      decimal.NewFromInt(initial),
		RetentionPercentage: decimal.NewFromInt(100),
		IsEligible:          true,
		LastCheckedAt:       time.Now().UTC(),
	}
}

func TestEvaluateFirstSeenBaselinesAtCurrentBalance(t *testing.T) {
	store := newMemEligibilityStore()
	e := NewEvaluator(store, zerolog.Nop())

	set := holderSet(ledger.Holder{Address: "walletA", Balance: decimal.NewFromInt(500)})
	result, err := e.Evaluate(context.Background(), testMint, set, decimal.NewFromInt(30))
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}

	if len(result.Eligible) != 1 {
		t.Fatalf("新持有者应合格, 实际 eligible=%d", len(result.Eligible))
	}
	rec := store.records[store.key(testMint, "walletA")]
	if !rec.InitialBalance.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("baseline should equal current balance, got %s", rec.InitialBalance)
	}
	if !rec.RetentionPercentage.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("first appearance must be 100%% retention, got %s", rec.RetentionPercentage)
	}
}

func TestEvaluateBlacklistsBelowThreshold(t *testing.T) {
	store := newMemEligibilityStore()
	seed(store, "walletB", 600)
	e := NewEvaluator(store, zerolog.Nop())

	// walletB sold half the bag: 300/600 = 50% < 70% required
	set := holderSet(ledger.Holder{Address: "walletB", Balance: decimal.NewFromInt(300)})
	result, err := e.Evaluate(context.Background(), testMint, set, decimal.NewFromInt(30))
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}

	if len(result.Eligible) != 0 {
		t.Fatal("低于保留阈值的持有者不应合格")
	}
	rec := store.records[store.key(testMint, "walletB")]
	if !rec.PermanentlyBlacklisted {
		t.Fatal("expected permanent blacklist")
	}
	if rec.ViolationCount != 1 {
		t.Fatalf("violation count should be 1, got %d", rec.ViolationCount)
	}
	if rec.BlacklistReason == nil || *rec.BlacklistReason == "" {
		t.Fatal("blacklist reason must record the measured retention")
	}
	if len(result.Snapshots) != 1 || result.Snapshots[0].IsEligible {
		t.Fatal("snapshot must mark the holder ineligible")
	}
}

func TestEvaluateBlacklistSurvivesRecovery(t *testing.T) {
	store := newMemEligibilityStore()
	seed(store, "walletC", 1000)
	e := NewEvaluator(store, zerolog.Nop())
	threshold := decimal.NewFromInt(30)

	set := holderSet(ledger.Holder{Address: "walletC", Balance: decimal.NewFromInt(100)})
	if _, err := e.Evaluate(context.Background(), testMint, set, threshold); err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}

	// balance fully recovered, flag must hold
	set = holderSet(ledger.Holder{Address: "walletC", Balance: decimal.NewFromInt(1000)})
	result, err := e.Evaluate(context.Background(), testMint, set, threshold)
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if len(result.Eligible) != 0 {
		t.Fatal("拉黑后余额恢复也不应重新合格")
	}
	rec := store.records[store.key(testMint, "walletC")]
	if rec.ViolationCount != 1 {
		t.Fatalf("recovered balance must not add violations, got %d", rec.ViolationCount)
	}
}

func TestEvaluateAdminResetRestoresEligibility(t *testing.T) {
	store := newMemEligibilityStore()
	seed(store, "walletD", 1000)
	e := NewEvaluator(store, zerolog.Nop())
	threshold := decimal.NewFromInt(30)

	set := holderSet(ledger.Holder{Address: "walletD", Balance: decimal.NewFromInt(100)})
	if _, err := e.Evaluate(context.Background(), testMint, set, threshold); err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}

	if err := store.ResetEligibility(context.Background(), testMint, "walletD"); err != nil {
		t.Fatalf("reset failed: %v", err)
	}

	set = holderSet(ledger.Holder{Address: "walletD", Balance: decimal.NewFromInt(100)})
	result, err := e.Evaluate(context.Background(), testMint, set, threshold)
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if len(result.Eligible) != 1 {
		t.Fatal("reset should re-baseline and restore eligibility")
	}
}

func TestEvaluateIncreasedBalanceCapsAtFullRetention(t *testing.T) {
	store := newMemEligibilityStore()
	seed(store, "walletE", 100)
	e := NewEvaluator(store, zerolog.Nop())

	set := holderSet(ledger.Holder{Address: "walletE", Balance: decimal.NewFromInt(400)})
	result, err := e.Evaluate(context.Background(), testMint, set, decimal.NewFromInt(30))
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if len(result.Eligible) != 1 {
		t.Fatal("加仓的持有者应完全合格")
	}
	if !result.Snapshots[0].RetentionPercentage.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("retention should cap at 100, got %s", result.Snapshots[0].RetentionPercentage)
	}
}

func TestEvaluateZeroBaselineExistingRecord(t *testing.T) {
	store := newMemEligibilityStore()
	seed(store, "walletF", 0)
	e := NewEvaluator(store, zerolog.Nop())

	set := holderSet(ledger.Holder{Address: "walletF", Balance: decimal.NewFromInt(50)})
	result, err := e.Evaluate(context.Background(), testMint, set, decimal.NewFromInt(30))
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if len(result.Eligible) != 0 {
		t.Fatal("zero baseline on an existing record is 0% retention")
	}
	if !result.Snapshots[0].RetentionPercentage.IsZero() {
		t.Fatalf("expected 0%% retention, got %s", result.Snapshots[0].RetentionPercentage)
	}
}
