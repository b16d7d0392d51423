// Package reconciler ingests ledger transactions and reconciles them
// against the engine's bill instances: sync per account, skip rule
// classification, and instance attachment for survivors.
package reconciler

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc/pool"

	"expense-reconciliation-engine/internal/ledger"
	"expense-reconciliation-engine/internal/models"
	"expense-reconciliation-engine/internal/notify"
	"expense-reconciliation-engine/internal/rules"
	"expense-reconciliation-engine/internal/storage"
	"expense-reconciliation-engine/pkg/errors"
	"expense-reconciliation-engine/pkg/logger"
)

// Config holds reconciliation options.
type Config struct {
	// AmountTolerancePercent bounds how far a transaction amount may
	// drift from an instance amount and still attach.
	AmountTolerancePercent decimal.Decimal `json:"amount_tolerance_percent"`
	// DateToleranceDays bounds how far from the due date a
	// transaction may land and still attach.
	DateToleranceDays int `json:"date_tolerance_days"`
	// VendorDistanceThreshold is the maximum edit distance between
	// normalized vendor keys for a fuzzy vendor match.
	VendorDistanceThreshold int `json:"vendor_distance_threshold"`
	// MaxConcurrentAccounts bounds the account sync worker pool.
	MaxConcurrentAccounts int `json:"max_concurrent_accounts"`
}

// DefaultConfig returns the default reconciliation tolerances.
func DefaultConfig() *Config {
	return &Config{
		AmountTolerancePercent:  decimal.NewFromInt(5),
		DateToleranceDays:       7,
		VendorDistanceThreshold: 3,
		MaxConcurrentAccounts:   4,
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.AmountTolerancePercent.IsNegative() {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "amount_tolerance_percent", c.AmountTolerancePercent, nil)
	}
	if c.DateToleranceDays < 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "date_tolerance_days", c.DateToleranceDays, nil)
	}
	if c.VendorDistanceThreshold < 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "vendor_distance_threshold", c.VendorDistanceThreshold, nil)
	}
	if c.MaxConcurrentAccounts < 1 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "max_concurrent_accounts", c.MaxConcurrentAccounts, nil)
	}
	return nil
}

// Reconciler drives the sync and reconciliation pipeline.
type Reconciler struct {
	store    storage.Store
	source   ledger.Source
	rules    *rules.Engine
	notifier notify.Sink
	config   *Config
	logger   logger.Logger

	now func() time.Time
}

// New creates a Reconciler.
func New(store storage.Store, source ledger.Source, engine *rules.Engine, notifier notify.Sink, config *Config, log logger.Logger) (*Reconciler, error) {
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
	if engine == nil {
		engine = rules.NewEngine(store, log)
	}

	return &Reconciler{
		store:    store,
		source:   source,
		rules:    engine,
		notifier: notifier,
		config:   config,
		logger:   log.WithComponent("reconciler"),
		now:      time.Now,
	}, nil
}

// SyncRequest narrows a sync pass.
type SyncRequest struct {
	// AccountID restricts the pass to one account when non-empty.
	AccountID string
}

// AccountResult reports one account's sync outcome.
type AccountResult struct {
	AccountID string `json:"accountId"`
	Fetched   int    `json:"fetched"`
	New       int    `json:"new"`
	Skipped   int    `json:"skipped"`
	Attached  int    `json:"attached"`
}

// SyncResult summarizes a sync pass across accounts. Account failures
// land in Errors; the pass itself only errors when it cannot start.
type SyncResult struct {
	Accounts []AccountResult       `json:"accounts"`
	Fetched  int                   `json:"fetched"`
	New      int                   `json:"new"`
	Skipped  int                   `json:"skipped"`
	Attached int                   `json:"attached"`
	Errors   []*errors.EngineError `json:"errors,omitempty"`
}

// Sync runs one reconciliation pass. Accounts sync through a bounded
// worker pool; work within one account stays serial so per-account
// ordering holds. A failed account is isolated into the result and
// retried naturally on the next pass, since ingestion is idempotent.
func (r *Reconciler) Sync(ctx context.Context, req SyncRequest) (*SyncResult, error) {
	accounts, err := r.resolveAccounts(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}

	// One rules snapshot per pass: every account classifies against
	// the same creation-ordered list.
	ruleList, err := r.store.ListSkipRules(ctx, true)
	if err != nil {
		return nil, err
	}

	result := &SyncResult{}
	var mu sync.Mutex

	p := pool.New().WithMaxGoroutines(r.config.MaxConcurrentAccounts)
	for _, accountID := range accounts {
		p.Go(func() {
			accountResult, err := r.syncAccount(ctx, accountID, ruleList)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Errors = append(result.Errors, errors.AsEngineErrorOr(err))
				return
			}
			result.Accounts = append(result.Accounts, accountResult)
			result.Fetched += accountResult.Fetched
			result.New += accountResult.New
			result.Skipped += accountResult.Skipped
			result.Attached += accountResult.Attached
		})
	}
	p.Wait()

	r.logger.WithFields(logger.Fields{
		"accounts": len(accounts),
		"fetched":  result.Fetched,
		"new":      result.New,
		"skipped":  result.Skipped,
		"attached": result.Attached,
		"errors":   len(result.Errors),
	}).Info("sync pass complete")

	return result, nil
}

func (r *Reconciler) resolveAccounts(ctx context.Context, accountID string) ([]string, error) {
	if accountID != "" {
		return []string{accountID}, nil
	}
	return r.store.ListLedgerAccounts(ctx)
}

// syncAccount runs the per-account pipeline: refresh hint, list,
// upsert, classify, attach.
func (r *Reconciler) syncAccount(ctx context.Context, accountID string, ruleList []*models.TransactionSkipRule) (AccountResult, error) {
	result := AccountResult{AccountID: accountID}

	if err := r.source.Refresh(ctx, accountID); err != nil {
		// Best effort: stale data still reconciles.
		r.logger.WithError(err).WithField("account_id", accountID).
			Warn("ledger refresh failed; listing existing data")
	}

	fetched, err := r.source.ListTransactions(ctx, accountID)
	if err != nil {
		return result, err
	}
	result.Fetched = len(fetched)

	for _, remote := range fetched {
		txn := &models.LedgerTransaction{
			ExternalID:     remote.ExternalID,
			AccountID:      remote.AccountID,
			Amount:         remote.Amount,
			Description:    remote.Description,
			TransactedAt:   remote.TransactedAt,
			PostedAt:       remote.PostedAt,
			ApprovalStatus: models.ApprovalPending,
		}

		inserted, err := r.store.UpsertTransaction(ctx, txn)
		if err != nil {
			r.logger.WithError(err).WithField("external_id", remote.ExternalID).
				Warn("transaction upsert failed")
			continue
		}
		if !inserted {
			continue
		}
		result.New++

		matched, err := r.rules.Apply(ctx, txn, ruleList)
		if err != nil {
			r.logger.WithError(err).WithField("transaction_id", txn.ID).
				Warn("rule application failed; transaction stays pending")
			continue
		}
		if matched != nil {
			result.Skipped++
			continue
		}

		attached, err := r.attemptAttach(ctx, txn)
		if err != nil {
			r.logger.WithError(err).WithField("transaction_id", txn.ID).
				Warn("instance attachment failed; transaction stays pending")
			continue
		}
		if attached {
			result.Attached++
		}
	}

	return result, nil
}
