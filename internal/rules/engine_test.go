package rules

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"expense-reconciliation-engine/internal/models"
	"expense-reconciliation-engine/internal/storage/sqlite"
)

func newTestEngine(t *testing.T) (*Engine, *sqlite.SQLiteStore) {
	t.Helper()

	store, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return NewEngine(store, nil), store
}

func insertTransaction(t *testing.T, store *sqlite.SQLiteStore, externalID, description string, amount float64) *models.LedgerTransaction {
	t.Helper()

	tx := &models.LedgerTransaction{
		ExternalID:     externalID,
		AccountID:      "acct-1",
		Amount:         decimal.NewFromFloat(amount),
		Description:    description,
		TransactedAt:   time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		ApprovalStatus: models.ApprovalPending,
	}
	if _, err := store.UpsertTransaction(context.Background(), tx); err != nil {
		t.Fatalf("failed to insert transaction %s: %v", externalID, err)
	}

	return tx
}

func TestClassifyFirstMatchWinsInCreationOrder(t *testing.T) {
	engine, _ := newTestEngine(t)

	broad := &models.TransactionSkipRule{
		ID: "rule-broad", Type: models.RuleTypeVendor, Pattern: "COFFEE", Active: true,
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	narrow := &models.TransactionSkipRule{
		ID: "rule-narrow", Type: models.RuleTypeDescriptionPattern, Pattern: "coffee club", Active: true,
		CreatedAt: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	}

	tx := testTransaction("COFFEE CLUB MONTHLY", -12)

	// Both rules match; the earlier-created rule wins.
	got := engine.Classify(tx, []*models.TransactionSkipRule{broad, narrow})
	if got == nil || got.ID != "rule-broad" {
		t.Fatalf("expected rule-broad to win, got %v", got)
	}

	// Order reversed: the list order is the creation order the store
	// returns, so the first element still wins.
	got = engine.Classify(tx, []*models.TransactionSkipRule{narrow, broad})
	if got == nil || got.ID != "rule-narrow" {
		t.Fatalf("expected first listed rule to win, got %v", got)
	}
}

func TestClassifySkipsInactiveRules(t *testing.T) {
	engine, _ := newTestEngine(t)

	inactive := &models.TransactionSkipRule{
		ID: "rule-1", Type: models.RuleTypeVendor, Pattern: "NETFLIX", Active: false,
	}

	got := engine.Classify(testTransaction("NETFLIX.COM", -15.99), []*models.TransactionSkipRule{inactive})
	if got != nil {
		t.Errorf("expected inactive rule to never match, got %v", got)
	}
}

func TestApplyMarksTransactionSkipped(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	rule, _, err := store.EnsureSkipRule(ctx, &models.TransactionSkipRule{
		Type: models.RuleTypeVendor, Pattern: "SPOTIFY",
	})
	if err != nil {
		t.Fatalf("EnsureSkipRule failed: %v", err)
	}

	tx := insertTransaction(t, store, "ext-1", "SPOTIFY P1234", -9.99)

	matched, err := engine.Apply(ctx, tx, []*models.TransactionSkipRule{rule})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if matched == nil || matched.ID != rule.ID {
		t.Fatalf("expected rule %s to match, got %v", rule.ID, matched)
	}

	got, err := store.GetTransaction(ctx, tx.ID)
	if err != nil {
		t.Fatalf("GetTransaction failed: %v", err)
	}
	if got.ApprovalStatus != models.ApprovalSkipped {
		t.Errorf("expected SKIPPED, got %s", got.ApprovalStatus)
	}
}

// A new STARBUCKS rule skips the source transaction and retroactively
// resolves the other pending STARBUCKS transaction, leaving the rule with
// two hits and unrelated transactions untouched.
func TestCreateRuleFromTransactionRetroactive(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	source := insertTransaction(t, store, "ext-1", "TST* STARBUCKS 0042", -6.50)
	other := insertTransaction(t, store, "ext-2", "STARBUCKS STORE 17", -4.25)
	unrelated := insertTransaction(t, store, "ext-3", "ELECTRIC CO BILL", -120.00)

	result, err := engine.CreateRuleFromTransaction(ctx, source, CreateRuleOptions{})
	if err != nil {
		t.Fatalf("CreateRuleFromTransaction failed: %v", err)
	}

	if !result.Created {
		t.Error("expected a new rule to be created")
	}
	if !result.SourceSkipped {
		t.Error("expected the source transaction to be skipped")
	}
	if result.AdditionalSkipped != 1 {
		t.Errorf("expected 1 retroactive skip, got %d", result.AdditionalSkipped)
	}

	rules, err := store.ListSkipRules(ctx, true)
	if err != nil {
		t.Fatalf("ListSkipRules failed: %v", err)
	}
	if len(rules) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(rules))
	}
	if rules[0].HitCount != 2 {
		t.Errorf("expected hit count 2, got %d", rules[0].HitCount)
	}

	for _, tc := range []struct {
		tx   *models.LedgerTransaction
		want models.ApprovalStatus
	}{
		{source, models.ApprovalSkipped},
		{other, models.ApprovalSkipped},
		{unrelated, models.ApprovalPending},
	} {
		got, err := store.GetTransaction(ctx, tc.tx.ID)
		if err != nil {
			t.Fatalf("GetTransaction failed: %v", err)
		}
		if got.ApprovalStatus != tc.want {
			t.Errorf("transaction %s: expected %s, got %s", tc.tx.ExternalID, tc.want, got.ApprovalStatus)
		}
	}
}

func TestCreateRuleFromTransactionIdempotent(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	source := insertTransaction(t, store, "ext-1", "NETFLIX.COM", -15.99)

	first, err := engine.CreateRuleFromTransaction(ctx, source, CreateRuleOptions{})
	if err != nil {
		t.Fatalf("first CreateRuleFromTransaction failed: %v", err)
	}

	// A second derivation from an equivalent transaction reuses the rule.
	again := insertTransaction(t, store, "ext-2", "NETFLIX.COM", -15.99)
	second, err := engine.CreateRuleFromTransaction(ctx, again, CreateRuleOptions{})
	if err != nil {
		t.Fatalf("second CreateRuleFromTransaction failed: %v", err)
	}

	if second.Created {
		t.Error("expected the existing rule to be reused")
	}
	if second.Rule.ID != first.Rule.ID {
		t.Errorf("expected rule %s, got %s", first.Rule.ID, second.Rule.ID)
	}
}

func TestCreateRuleFromTransactionVendorAmount(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	source := insertTransaction(t, store, "ext-1", "GYM MEMBERSHIP", -50.00)

	result, err := engine.CreateRuleFromTransaction(ctx, source, CreateRuleOptions{
		Type: models.RuleTypeVendorAmount,
	})
	if err != nil {
		t.Fatalf("CreateRuleFromTransaction failed: %v", err)
	}

	if result.Rule.Type != models.RuleTypeVendorAmount {
		t.Errorf("expected VENDOR_AMOUNT rule, got %s", result.Rule.Type)
	}
	if result.Rule.Amount == nil || !result.Rule.Amount.Equal(decimal.NewFromInt(50)) {
		t.Errorf("expected stored amount 50, got %v", result.Rule.Amount)
	}
}
