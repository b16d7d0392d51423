package reconciler

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"expense-reconciliation-engine/internal/ledger"
	"expense-reconciliation-engine/internal/models"
	"expense-reconciliation-engine/internal/storage/sqlite"
	"expense-reconciliation-engine/pkg/errors"
)

// stubSource serves canned transactions per account.
type stubSource struct {
	transactions map[string][]ledger.Transaction
	listErr      map[string]error
	refreshErr   error
}

func (s *stubSource) Refresh(ctx context.Context, accountID string) error {
	return s.refreshErr
}

func (s *stubSource) ListTransactions(ctx context.Context, accountID string) ([]ledger.Transaction, error) {
	if err := s.listErr[accountID]; err != nil {
		return nil, err
	}
	return s.transactions[accountID], nil
}

func newTestReconciler(t *testing.T, source *stubSource) (*Reconciler, *sqlite.SQLiteStore) {
	t.Helper()

	store, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	rec, err := New(store, source, nil, nil, nil, nil)
	if err != nil {
		t.Fatalf("failed to create reconciler: %v", err)
	}
	rec.now = func() time.Time {
		return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	}

	return rec, store
}

func seedAccount(t *testing.T, store *sqlite.SQLiteStore, id string) {
	t.Helper()
	if err := store.CreateLedgerAccount(context.Background(), id, id); err != nil {
		t.Fatalf("failed to create account: %v", err)
	}
}

func seedOpenInstance(t *testing.T, store *sqlite.SQLiteStore, vendor string, amount float64, dueDate time.Time) *models.BillInstance {
	t.Helper()
	ctx := context.Background()

	def := models.NewRecurringBillDefinition(vendor, "utilities",
		models.FrequencyMonthly, models.AmountTypeFixed, decimal.NewFromFloat(amount), dueDate.Day())
	if err := store.CreateDefinition(ctx, def); err != nil {
		t.Fatalf("failed to create definition: %v", err)
	}

	inst := &models.BillInstance{
		DefinitionID: def.ID,
		PeriodKey:    dueDate.Format("2006-01"),
		Amount:       decimal.NewFromFloat(amount),
		DueDate:      dueDate,
		Status:       models.InstancePending,
	}
	if err := store.CreateInstanceWithSplits(ctx, inst, nil); err != nil {
		t.Fatalf("failed to create instance: %v", err)
	}

	return inst
}

func ledgerTx(externalID, accountID, description string, amount float64, transactedAt time.Time) ledger.Transaction {
	return ledger.Transaction{
		ExternalID:   externalID,
		AccountID:    accountID,
		Amount:       decimal.NewFromFloat(amount),
		Description:  description,
		TransactedAt: transactedAt,
	}
}

func TestSyncClassifiesAndAttaches(t *testing.T) {
	day := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	source := &stubSource{
		transactions: map[string][]ledger.Transaction{
			"acct-1": {
				ledgerTx("ext-1", "acct-1", "SPOTIFY P1234", -9.99, day),
				ledgerTx("ext-2", "acct-1", "ELECTRIC CO ONLINE PMT", -120.00, day.AddDate(0, 0, 1)),
				ledgerTx("ext-3", "acct-1", "MYSTERY VENDOR", -42.00, day),
			},
		},
	}
	rec, store := newTestReconciler(t, source)
	ctx := context.Background()

	seedAccount(t, store, "acct-1")
	inst := seedOpenInstance(t, store, "Electric Co", 120.00, day)

	if _, _, err := store.EnsureSkipRule(ctx, &models.TransactionSkipRule{
		Type: models.RuleTypeVendor, Pattern: "SPOTIFY",
	}); err != nil {
		t.Fatalf("EnsureSkipRule failed: %v", err)
	}

	result, err := rec.Sync(ctx, SyncRequest{})
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	if result.New != 3 {
		t.Errorf("expected 3 new transactions, got %d", result.New)
	}
	if result.Skipped != 1 {
		t.Errorf("expected 1 rule-skipped transaction, got %d", result.Skipped)
	}
	if result.Attached != 1 {
		t.Errorf("expected 1 attached transaction, got %d", result.Attached)
	}

	got, err := store.GetInstanceByDefinitionPeriod(ctx, inst.DefinitionID, inst.PeriodKey)
	if err != nil {
		t.Fatalf("GetInstanceByDefinitionPeriod failed: %v", err)
	}
	if got.Status != models.InstancePaid {
		t.Errorf("expected attached instance to be PAID, got %s", got.Status)
	}

	pending, err := store.ListPendingTransactions(ctx)
	if err != nil {
		t.Fatalf("ListPendingTransactions failed: %v", err)
	}
	if len(pending) != 1 || pending[0].ExternalID != "ext-3" {
		t.Errorf("expected only the mystery transaction pending, got %v", pending)
	}
}

func TestSyncIsIdempotent(t *testing.T) {
	day := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	source := &stubSource{
		transactions: map[string][]ledger.Transaction{
			"acct-1": {ledgerTx("ext-1", "acct-1", "SOMETHING", -10, day)},
		},
	}
	rec, store := newTestReconciler(t, source)
	ctx := context.Background()
	seedAccount(t, store, "acct-1")

	first, err := rec.Sync(ctx, SyncRequest{})
	if err != nil {
		t.Fatalf("first Sync failed: %v", err)
	}
	if first.New != 1 {
		t.Fatalf("expected 1 new transaction, got %d", first.New)
	}

	second, err := rec.Sync(ctx, SyncRequest{})
	if err != nil {
		t.Fatalf("second Sync failed: %v", err)
	}
	if second.New != 0 {
		t.Errorf("expected no new transactions on re-sync, got %d", second.New)
	}
	if second.Fetched != 1 {
		t.Errorf("expected fetch to still see 1 transaction, got %d", second.Fetched)
	}
}

func TestSyncIsolatesAccountFailures(t *testing.T) {
	day := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	source := &stubSource{
		transactions: map[string][]ledger.Transaction{
			"acct-good": {ledgerTx("ext-1", "acct-good", "SOMETHING", -10, day)},
		},
		listErr: map[string]error{
			"acct-bad": errors.LedgerError(errors.CodeLedgerUnavailable, "acct-bad", nil),
		},
	}
	rec, store := newTestReconciler(t, source)
	ctx := context.Background()
	seedAccount(t, store, "acct-good")
	seedAccount(t, store, "acct-bad")

	result, err := rec.Sync(ctx, SyncRequest{})
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	if len(result.Errors) != 1 {
		t.Fatalf("expected 1 account error, got %d", len(result.Errors))
	}
	if result.New != 1 {
		t.Errorf("expected the healthy account to still sync, got %d new", result.New)
	}
}

func TestAttachRejectsOutsideAmountTolerance(t *testing.T) {
	day := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	source := &stubSource{
		transactions: map[string][]ledger.Transaction{
			// 10% off a $120 instance, beyond the 5% default band.
			"acct-1": {ledgerTx("ext-1", "acct-1", "ELECTRIC CO", -132.00, day)},
		},
	}
	rec, store := newTestReconciler(t, source)
	ctx := context.Background()
	seedAccount(t, store, "acct-1")
	seedOpenInstance(t, store, "Electric Co", 120.00, day)

	result, err := rec.Sync(ctx, SyncRequest{})
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if result.Attached != 0 {
		t.Errorf("expected no attachment outside tolerance, got %d", result.Attached)
	}

	pending, err := store.ListPendingTransactions(ctx)
	if err != nil {
		t.Fatalf("ListPendingTransactions failed: %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("expected the transaction to stay pending, got %d pending", len(pending))
	}
}

func TestAttachPrefersCloserAmount(t *testing.T) {
	day := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	source := &stubSource{
		transactions: map[string][]ledger.Transaction{
			"acct-1": {ledgerTx("ext-1", "acct-1", "STREAMCO PLUS PAYMENT", -15.99, day)},
		},
	}
	rec, store := newTestReconciler(t, source)
	ctx := context.Background()
	seedAccount(t, store, "acct-1")

	// Both vendor keys appear in the description; the exact amount wins.
	seedOpenInstance(t, store, "Streamco", 16.50, day)
	exact := seedOpenInstance(t, store, "Streamco Plus", 15.99, day)

	result, err := rec.Sync(ctx, SyncRequest{})
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if result.Attached != 1 {
		t.Fatalf("expected 1 attachment, got %d", result.Attached)
	}

	got, err := store.GetInstanceByDefinitionPeriod(ctx, exact.DefinitionID, exact.PeriodKey)
	if err != nil {
		t.Fatalf("GetInstanceByDefinitionPeriod failed: %v", err)
	}
	if got.Status != models.InstancePaid {
		t.Errorf("expected the exact-amount instance to win, got %s", got.Status)
	}
}

func TestApproveProposedBill(t *testing.T) {
	rec, store := newTestReconciler(t, &stubSource{})
	ctx := context.Background()

	def := models.NewRecurringBillDefinition("Water Works", "utilities",
		models.FrequencyMonthly, models.AmountTypeFixed, decimal.NewFromInt(45), 20)
	if err := store.CreateDefinition(ctx, def); err != nil {
		t.Fatalf("failed to create definition: %v", err)
	}

	amount := decimal.NewFromFloat(47.10)
	proposed := &models.ProposedBill{
		Vendor: "WATER WORKS INC", // fuzzy-matches "Water Works"
		Amount: &amount,
		IsPaid: true,
	}

	result, err := rec.ApproveProposedBill(ctx, proposed)
	if err != nil {
		t.Fatalf("ApproveProposedBill failed: %v", err)
	}

	if !result.Created {
		t.Error("expected an instance to be created")
	}
	if !result.MarkedPaid {
		t.Error("expected the instance to be marked paid")
	}
	if result.PeriodKey != "2026-03" {
		t.Errorf("expected period 2026-03, got %s", result.PeriodKey)
	}
	if !result.Instance.Amount.Equal(amount) {
		t.Errorf("expected proposed amount %s, got %s", amount, result.Instance.Amount)
	}

	// Re-approving the same proposal is a no-op on creation.
	again, err := rec.ApproveProposedBill(ctx, proposed)
	if err != nil {
		t.Fatalf("second ApproveProposedBill failed: %v", err)
	}
	if again.Created {
		t.Error("expected the existing instance to be reused")
	}
	if again.MarkedPaid {
		t.Error("expected no second paid transition")
	}
}

func TestApproveProposedBillUnknownVendor(t *testing.T) {
	rec, _ := newTestReconciler(t, &stubSource{})

	_, err := rec.ApproveProposedBill(context.Background(), &models.ProposedBill{
		Vendor: "Completely Unknown Vendor LLC",
	})
	if err == nil {
		t.Fatal("expected an error for an unmatched vendor")
	}
}
