// Package generator creates dated bill instances from recurring bill
// definitions, one per applicable billing period. Generation is
// idempotent: an existing instance for a (definition, period) pair is
// skipped, and the storage unique index backs this under concurrency.
package generator

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"expense-reconciliation-engine/internal/models"
	"expense-reconciliation-engine/internal/notify"
	"expense-reconciliation-engine/internal/period"
	"expense-reconciliation-engine/internal/splitter"
	"expense-reconciliation-engine/internal/storage"
	"expense-reconciliation-engine/pkg/errors"
	"expense-reconciliation-engine/pkg/logger"
)

// Config holds generator options.
type Config struct {
	// MonthsBack and MonthsForward bound the default generation window
	// around the current month.
	MonthsBack    int `json:"months_back"`
	MonthsForward int `json:"months_forward"`
}

// DefaultConfig returns the default generation window: the current
// month plus one month of lookahead.
func DefaultConfig() *Config {
	return &Config{
		MonthsBack:    0,
		MonthsForward: 1,
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.MonthsBack < 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "months_back", c.MonthsBack, nil)
	}
	if c.MonthsForward < 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "months_forward", c.MonthsForward, nil)
	}
	return nil
}

// Generator creates bill instances from active definitions.
type Generator struct {
	store    storage.Store
	notifier notify.Sink
	config   *Config
	logger   logger.Logger

	// now is swappable for tests.
	now func() time.Time
}

// New creates a Generator.
func New(store storage.Store, notifier notify.Sink, config *Config, log logger.Logger) (*Generator, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if notifier == nil {
		notifier = notify.Discard{}
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	return &Generator{
		store:    store,
		notifier: notifier,
		config:   config,
		logger:   log.WithComponent("generator"),
		now:      time.Now,
	}, nil
}

// Request narrows a generation run.
type Request struct {
	// DefinitionID restricts the run to one definition when non-empty.
	DefinitionID string
	// MonthsBack / MonthsForward override the configured window when
	// non-negative (set to -1 to use the configured defaults).
	MonthsBack    int
	MonthsForward int
	// Reference anchors the window; zero means now.
	Reference time.Time
}

// Item is the outcome for one (definition, period) pair.
type Item struct {
	DefinitionID string              `json:"definitionId"`
	Vendor       string              `json:"vendor"`
	PeriodKey    string              `json:"periodKey"`
	InstanceID   string              `json:"instanceId,omitempty"`
	Amount       decimal.Decimal     `json:"amount"`
	Outcome      Outcome             `json:"outcome"`
	Error        *errors.EngineError `json:"error,omitempty"`
}

// Outcome classifies what happened to one pair.
type Outcome string

const (
	OutcomeCreated         Outcome = "created"
	OutcomeSkippedExisting Outcome = "skipped_existing"
	OutcomeSkippedNoAmount Outcome = "skipped_no_amount"
	OutcomeFailed          Outcome = "failed"
)

// Result summarizes a generation run. Per-item failures are recorded,
// never propagated; a run only errors when it cannot start at all.
type Result struct {
	Created         int    `json:"created"`
	SkippedExisting int    `json:"skippedExisting"`
	SkippedNoAmount int    `json:"skippedNoAmount"`
	Failed          int    `json:"failed"`
	Items           []Item `json:"items"`
}

// Generate runs one generation pass over active definitions and the
// applicable periods inside the window.
func (g *Generator) Generate(ctx context.Context, req Request) (*Result, error) {
	reference := req.Reference
	if reference.IsZero() {
		reference = g.now().UTC()
	}
	monthsBack := g.config.MonthsBack
	if req.MonthsBack >= 0 {
		monthsBack = req.MonthsBack
	}
	monthsForward := g.config.MonthsForward
	if req.MonthsForward >= 0 {
		monthsForward = req.MonthsForward
	}

	definitions, err := g.resolveDefinitions(ctx, req.DefinitionID)
	if err != nil {
		return nil, err
	}

	// Flip past-due PENDING instances before creating new ones so the
	// pass leaves statuses consistent with the reference date.
	overdue, err := g.store.MarkOverdueInstances(ctx, reference)
	if err != nil {
		g.logger.WithError(err).Warn("failed to mark overdue instances")
	} else if overdue > 0 {
		g.logger.WithField("count", overdue).Info("instances marked overdue")
	}

	window := period.NewWindow(reference, monthsBack, monthsForward)
	result := &Result{}

	for _, def := range definitions {
		periods := period.PeriodsInWindow(def.Frequency, window, def.DueDay, def.DueMonth)
		for _, p := range periods {
			item := g.generateOne(ctx, def, p)
			result.Items = append(result.Items, item)

			switch item.Outcome {
			case OutcomeCreated:
				result.Created++
			case OutcomeSkippedExisting:
				result.SkippedExisting++
			case OutcomeSkippedNoAmount:
				result.SkippedNoAmount++
			case OutcomeFailed:
				result.Failed++
			}
		}
	}

	g.logger.WithFields(logger.Fields{
		"definitions": len(definitions),
		"created":     result.Created,
		"skipped":     result.SkippedExisting,
		"failed":      result.Failed,
	}).Info("generation pass complete")

	return result, nil
}

func (g *Generator) resolveDefinitions(ctx context.Context, definitionID string) ([]*models.RecurringBillDefinition, error) {
	if definitionID != "" {
		def, err := g.store.GetDefinition(ctx, definitionID)
		if err != nil {
			return nil, err
		}
		if !def.Active {
			return nil, errors.ValidationError(errors.CodeMissingField, "definition", definitionID, nil).
				WithSuggestion("the definition is deactivated; reactivate it before generating")
		}
		return []*models.RecurringBillDefinition{def}, nil
	}

	return g.store.ListDefinitions(ctx, true)
}

// generateOne handles a single (definition, period) pair. Every
// failure path returns a failed item instead of an error so one bad
// definition never aborts the run.
func (g *Generator) generateOne(ctx context.Context, def *models.RecurringBillDefinition, p period.Period) Item {
	item := Item{
		DefinitionID: def.ID,
		Vendor:       def.VendorName,
		PeriodKey:    p.Key,
	}

	existing, err := g.store.GetInstanceByDefinitionPeriod(ctx, def.ID, p.Key)
	if err != nil {
		return item.failed(errors.AsEngineErrorOr(err))
	}
	if existing != nil {
		item.Outcome = OutcomeSkippedExisting
		item.InstanceID = existing.ID
		item.Amount = existing.Amount
		return item
	}

	amount, ok, err := g.resolveAmount(ctx, def, p.Key)
	if err != nil {
		return item.failed(errors.AsEngineErrorOr(err))
	}
	if !ok {
		item.Outcome = OutcomeSkippedNoAmount
		return item
	}
	item.Amount = amount

	splits, err := g.computeSplits(ctx, def, amount)
	if err != nil {
		return item.failed(errors.AsEngineErrorOr(err))
	}

	inst := &models.BillInstance{
		DefinitionID: def.ID,
		PeriodKey:    p.Key,
		Amount:       amount,
		DueDate:      p.DueDate,
		Status:       models.InstancePending,
	}

	if err := g.store.CreateInstanceWithSplits(ctx, inst, splits); err != nil {
		// A concurrent pass created the instance between the existence
		// check and the insert; the unique index makes this a skip.
		if errors.IsCode(err, errors.CodeDuplicateRecord) {
			item.Outcome = OutcomeSkippedExisting
			return item
		}
		return item.failed(errors.AsEngineErrorOr(err))
	}

	item.Outcome = OutcomeCreated
	item.InstanceID = inst.ID

	g.notifier.Notify(ctx, notify.Event{
		Type:       notify.EventNewBill,
		Vendor:     def.VendorName,
		PeriodKey:  p.Key,
		Amount:     amount,
		InstanceID: inst.ID,
	})

	return item
}

// resolveAmount determines the instance amount. FIXED definitions use
// the stored amount; VARIABLE definitions estimate from the most
// recently paid instance and skip the period when no history exists.
func (g *Generator) resolveAmount(ctx context.Context, def *models.RecurringBillDefinition, periodKey string) (decimal.Decimal, bool, error) {
	if def.AmountType == models.AmountTypeFixed {
		return def.FixedAmount, true, nil
	}

	latest, err := g.store.LatestPaidAmount(ctx, def.ID)
	if err != nil {
		return decimal.Zero, false, err
	}
	if latest == nil {
		g.logger.WithFields(logger.Fields{
			"definition_id": def.ID,
			"period_key":    periodKey,
		}).Debug("variable definition has no paid history; period skipped")
		return decimal.Zero, false, nil
	}

	return *latest, true, nil
}

// computeSplits builds the participant shares for an amount. The
// definition's own participants win; without any, all active sharing
// participants split equally.
func (g *Generator) computeSplits(ctx context.Context, def *models.RecurringBillDefinition, amount decimal.Decimal) ([]*models.BillSplit, error) {
	var participants []splitter.Participant
	if len(def.Participants) > 0 {
		for _, p := range def.Participants {
			participants = append(participants, splitter.Participant{ID: p.ParticipantID, Percent: p.Percent})
		}
	} else {
		active, err := g.store.ListActiveParticipants(ctx)
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

func (i Item) failed(err *errors.EngineError) Item {
	i.Outcome = OutcomeFailed
	i.Error = err
	return i
}
