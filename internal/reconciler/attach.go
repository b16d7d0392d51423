package reconciler

import (
	"context"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"
	"github.com/shopspring/decimal"

	"expense-reconciliation-engine/internal/models"
	"expense-reconciliation-engine/internal/notify"
	"expense-reconciliation-engine/pkg/errors"
	"expense-reconciliation-engine/pkg/logger"
)

// candidate is one open instance scored against a transaction.
type candidate struct {
	instance *models.BillInstance
	vendor   string
	score    decimal.Decimal
}

// Scoring weights: an exact-looking amount outranks a close date,
// which outranks vendor text similarity.
var (
	weightAmount = decimal.NewFromFloat(0.5)
	weightDate   = decimal.NewFromFloat(0.3)
	weightVendor = decimal.NewFromFloat(0.2)
)

// attemptAttach tries to settle an open bill instance with the
// transaction. Only outflows attach. Returns whether an attachment
// happened; no candidate within tolerance is a normal outcome, not an
// error.
func (r *Reconciler) attemptAttach(ctx context.Context, txn *models.LedgerTransaction) (bool, error) {
	if !txn.IsOutflow() {
		return false, nil
	}

	open, err := r.store.ListOpenInstances(ctx)
	if err != nil {
		return false, err
	}
	if len(open) == 0 {
		return false, nil
	}

	definitions, err := r.definitionIndex(ctx)
	if err != nil {
		return false, err
	}

	best := r.bestCandidate(txn, open, definitions)
	if best == nil {
		return false, nil
	}

	if err := r.store.AttachTransactionToInstance(ctx, txn.ID, best.instance.ID); err != nil {
		return false, errors.ReconciliationError(errors.CodeAttachmentFailed, "instance attachment", err).
			WithContext("transaction_id", txn.ID).
			WithContext("instance_id", best.instance.ID)
	}

	r.logger.WithFields(logger.Fields{
		"transaction_id": txn.ID,
		"instance_id":    best.instance.ID,
		"vendor":         best.vendor,
		"score":          best.score.StringFixed(3),
	}).Info("transaction attached to bill instance")

	r.notifier.Notify(ctx, notify.Event{
		Type:          notify.EventPaymentConfirmed,
		Vendor:        best.vendor,
		PeriodKey:     best.instance.PeriodKey,
		Amount:        best.instance.Amount,
		InstanceID:    best.instance.ID,
		TransactionID: txn.ID,
	})

	return true, nil
}

// definitionIndex maps definition id to definition for vendor lookup.
func (r *Reconciler) definitionIndex(ctx context.Context) (map[string]*models.RecurringBillDefinition, error) {
	defs, err := r.store.ListDefinitions(ctx, false)
	if err != nil {
		return nil, err
	}

	index := make(map[string]*models.RecurringBillDefinition, len(defs))
	for _, def := range defs {
		index[def.ID] = def
	}
	return index, nil
}

// bestCandidate filters open instances through the three gates (amount
// tolerance, date tolerance, vendor similarity) and returns the
// highest scored survivor.
func (r *Reconciler) bestCandidate(txn *models.LedgerTransaction, open []*models.BillInstance, definitions map[string]*models.RecurringBillDefinition) *candidate {
	var best *candidate

	for _, inst := range open {
		def, ok := definitions[inst.DefinitionID]
		if !ok {
			continue
		}

		amountScore, ok := r.amountScore(txn.AbsAmount(), inst.Amount)
		if !ok {
			continue
		}
		dateScore, ok := r.dateScore(txn.TransactedAt, inst.DueDate)
		if !ok {
			continue
		}
		vendorScore, ok := r.vendorScore(txn.Description, def.VendorName)
		if !ok {
			continue
		}

		score := amountScore.Mul(weightAmount).
			Add(dateScore.Mul(weightDate)).
			Add(vendorScore.Mul(weightVendor))

		if best == nil || score.GreaterThan(best.score) {
			best = &candidate{instance: inst, vendor: def.VendorName, score: score}
		}
	}

	return best
}

// amountScore gates on the configured tolerance percent around the
// instance amount and scores proximity within the band.
func (r *Reconciler) amountScore(txnAmount, instAmount decimal.Decimal) (decimal.Decimal, bool) {
	if instAmount.IsZero() {
		return decimal.Zero, txnAmount.IsZero()
	}

	diff := txnAmount.Sub(instAmount).Abs()
	limit := instAmount.Mul(r.config.AmountTolerancePercent).Div(decimal.NewFromInt(100))
	if diff.GreaterThan(limit) {
		return decimal.Zero, false
	}
	if limit.IsZero() {
		return decimal.NewFromInt(1), true
	}

	return decimal.NewFromInt(1).Sub(diff.Div(limit)), true
}

// dateScore gates on the configured day window around the due date.
func (r *Reconciler) dateScore(transactedAt, dueDate time.Time) (decimal.Decimal, bool) {
	days := transactedAt.Sub(dueDate).Hours() / 24
	if days < 0 {
		days = -days
	}

	limit := float64(r.config.DateToleranceDays)
	if days > limit {
		return decimal.Zero, false
	}
	if limit == 0 {
		return decimal.NewFromInt(1), true
	}

	return decimal.NewFromFloat(1 - days/limit), true
}

// vendorScore gates on vendor key containment or edit distance between
// normalized keys.
func (r *Reconciler) vendorScore(description, vendorName string) (decimal.Decimal, bool) {
	txnKey := models.NormalizeVendorKey(description)
	vendorKey := models.NormalizeVendorKey(vendorName)
	if vendorKey == "" || txnKey == "" {
		return decimal.Zero, false
	}

	if strings.Contains(txnKey, vendorKey) {
		return decimal.NewFromInt(1), true
	}

	distance := levenshtein.ComputeDistance(txnKey, vendorKey)
	if distance > r.config.VendorDistanceThreshold {
		return decimal.Zero, false
	}

	span := r.config.VendorDistanceThreshold + 1
	return decimal.NewFromInt(1).Sub(decimal.NewFromInt(int64(distance)).Div(decimal.NewFromInt(int64(span)))), true
}
