package reconciler

import (
	"context"

	"github.com/agnivade/levenshtein"
	"github.com/shopspring/decimal"

	"expense-reconciliation-engine/internal/models"
	"expense-reconciliation-engine/internal/notify"
	"expense-reconciliation-engine/internal/period"
	"expense-reconciliation-engine/internal/splitter"
	"expense-reconciliation-engine/pkg/errors"
	"expense-reconciliation-engine/pkg/logger"
)

// ApproveResult reports what approving a proposed bill did.
type ApproveResult struct {
	DefinitionID string               `json:"definitionId"`
	Vendor       string               `json:"vendor"`
	PeriodKey    string               `json:"periodKey"`
	Instance     *models.BillInstance `json:"instance"`
	// Created is false when the period's instance already existed.
	Created bool `json:"created"`
	// MarkedPaid reports whether the instance was flipped to PAID.
	MarkedPaid bool `json:"markedPaid"`
}

// ApproveProposedBill accepts a candidate bill from the bill-text
// extraction pipeline: it matches the vendor to a definition, creates
// the current period's instance the same way the generator does
// (idempotent against it), and marks the instance PAID when the
// proposal says so.
func (r *Reconciler) ApproveProposedBill(ctx context.Context, proposed *models.ProposedBill) (*ApproveResult, error) {
	if err := proposed.Validate(); err != nil {
		return nil, errors.ValidationError(errors.CodeMissingField, "proposed bill", proposed.Vendor, err)
	}

	def, err := r.matchDefinition(ctx, proposed.Vendor)
	if err != nil {
		return nil, err
	}

	now := r.now().UTC()
	p, ok := period.Resolve(def.Frequency, now.Year(), now.Month(), def.DueDay, def.DueMonth)
	if !ok {
		return nil, errors.GenerationError(errors.CodePeriodNotApplicable, def.ID, now.Format("2006-01"), nil)
	}

	result := &ApproveResult{
		DefinitionID: def.ID,
		Vendor:       def.VendorName,
		PeriodKey:    p.Key,
	}

	existing, err := r.store.GetInstanceByDefinitionPeriod(ctx, def.ID, p.Key)
	if err != nil {
		return nil, err
	}

	if existing == nil {
		existing, err = r.createInstance(ctx, def, p, proposed)
		if err != nil {
			return nil, err
		}
		result.Created = true

		r.notifier.Notify(ctx, notify.Event{
			Type:       notify.EventNewBill,
			Vendor:     def.VendorName,
			PeriodKey:  p.Key,
			Amount:     existing.Amount,
			InstanceID: existing.ID,
		})
	}
	result.Instance = existing

	if proposed.IsPaid && existing.Status != models.InstancePaid {
		if err := r.store.MarkInstancePaid(ctx, existing.ID); err != nil {
			return nil, err
		}
		existing.Status = models.InstancePaid
		result.MarkedPaid = true
	}

	r.logger.WithFields(logger.Fields{
		"vendor":      def.VendorName,
		"period_key":  p.Key,
		"created":     result.Created,
		"marked_paid": result.MarkedPaid,
	}).Info("proposed bill approved")

	return result, nil
}

// matchDefinition finds the active definition whose vendor key matches
// the proposed vendor, by containment or by edit distance.
func (r *Reconciler) matchDefinition(ctx context.Context, vendor string) (*models.RecurringBillDefinition, error) {
	key := models.NormalizeVendorKey(vendor)
	if key == "" {
		return nil, errors.ValidationError(errors.CodeMissingField, "vendor", vendor, nil)
	}

	defs, err := r.store.ListDefinitions(ctx, true)
	if err != nil {
		return nil, err
	}

	var best *models.RecurringBillDefinition
	bestDistance := r.config.VendorDistanceThreshold + 1

	for _, def := range defs {
		defKey := def.VendorKey()
		if defKey == key {
			return def, nil
		}
		if defKey == "" {
			continue
		}

		distance := levenshtein.ComputeDistance(key, defKey)
		if distance < bestDistance {
			best = def
			bestDistance = distance
		}
	}

	if best == nil {
		return nil, errors.ReconciliationError(errors.CodeAttachmentFailed, "proposed bill matching", nil).
			WithContext("vendor", vendor).
			WithSuggestion("create a recurring bill definition for this vendor first")
	}

	return best, nil
}

func (r *Reconciler) createInstance(ctx context.Context, def *models.RecurringBillDefinition, p period.Period, proposed *models.ProposedBill) (*models.BillInstance, error) {
	amount, err := r.resolveProposedAmount(ctx, def, proposed)
	if err != nil {
		return nil, err
	}

	dueDate := p.DueDate
	if proposed.DueDate != nil {
		dueDate = *proposed.DueDate
	}

	splits, err := r.computeSplits(ctx, def, amount)
	if err != nil {
		return nil, err
	}

	inst := &models.BillInstance{
		DefinitionID: def.ID,
		PeriodKey:    p.Key,
		Amount:       amount,
		DueDate:      dueDate,
		Status:       models.InstancePending,
	}

	if err := r.store.CreateInstanceWithSplits(ctx, inst, splits); err != nil {
		// Lost a race against a generation pass; reuse its instance.
		if errors.IsCode(err, errors.CodeDuplicateRecord) {
			return r.store.GetInstanceByDefinitionPeriod(ctx, def.ID, p.Key)
		}
		return nil, err
	}

	return inst, nil
}

func (r *Reconciler) resolveProposedAmount(ctx context.Context, def *models.RecurringBillDefinition, proposed *models.ProposedBill) (decimal.Decimal, error) {
	if proposed.Amount != nil {
		return *proposed.Amount, nil
	}
	if def.AmountType == models.AmountTypeFixed {
		return def.FixedAmount, nil
	}

	latest, err := r.store.LatestPaidAmount(ctx, def.ID)
	if err != nil {
		return decimal.Zero, err
	}
	if latest == nil {
		return decimal.Zero, errors.GenerationError(errors.CodeUnknownVariableAmount, def.ID, "", nil).
			WithSuggestion("the proposal carries no amount and the definition has no paid history")
	}

	return *latest, nil
}

func (r *Reconciler) computeSplits(ctx context.Context, def *models.RecurringBillDefinition, amount decimal.Decimal) ([]*models.BillSplit, error) {
	var participants []splitter.Participant
	if len(def.Participants) > 0 {
		for _, p := range def.Participants {
			participants = append(participants, splitter.Participant{ID: p.ParticipantID, Percent: p.Percent})
		}
	} else {
		active, err := r.store.ListActiveParticipants(ctx)
		if err != nil {
			return nil, err
		}
		for _, p := range active {
			participants = append(participants, splitter.Participant{ID: p.ID})
		}
	}

	shares, err := splitter.Compute(amount, participants, nil)
	if err != nil {
		return nil, err
	}

	splits := make([]*models.BillSplit, 0, len(shares))
	for _, share := range shares {
		splits = append(splits, &models.BillSplit{
			ParticipantID: share.ParticipantID,
			Amount:        share.Amount,
			Percent:       share.Percent,
			Status:        models.InstancePending,
		})
	}

	return splits, nil
}
