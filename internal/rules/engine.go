package rules

import (
	"context"

	"github.com/shopspring/decimal"

	"expense-reconciliation-engine/internal/models"
	"expense-reconciliation-engine/internal/storage"
	"expense-reconciliation-engine/pkg/errors"
	"expense-reconciliation-engine/pkg/logger"
)

// Engine classifies ledger transactions against skip rules and
// derives new rules from observed transactions.
type Engine struct {
	store  storage.Store
	logger logger.Logger
}

// NewEngine creates a skip rule engine bound to a store.
func NewEngine(store storage.Store, log logger.Logger) *Engine {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Engine{
		store:  store,
		logger: log.WithComponent("rules"),
	}
}

// Classify evaluates rules against the transaction in creation order
// and returns the first match, or nil when no rule applies. Rules that
// fail predicate construction are logged and skipped so one bad rule
// never blocks classification.
func (e *Engine) Classify(tx *models.LedgerTransaction, ruleList []*models.TransactionSkipRule) *models.TransactionSkipRule {
	for _, rule := range ruleList {
		if !rule.Active {
			continue
		}

		pred, err := BuildPredicate(rule)
		if err != nil {
			e.logger.WithError(err).WithField("rule_id", rule.ID).
				Warn("skipping unbuildable rule during classification")
			continue
		}

		if pred.Matches(tx) {
			return rule
		}
	}

	return nil
}

// Apply classifies the transaction and, on a match, marks it SKIPPED
// with the resolving rule recorded and the rule's hit counter
// incremented. Returns the matched rule, or nil when the transaction
// stays pending.
func (e *Engine) Apply(ctx context.Context, tx *models.LedgerTransaction, ruleList []*models.TransactionSkipRule) (*models.TransactionSkipRule, error) {
	rule := e.Classify(tx, ruleList)
	if rule == nil {
		return nil, nil
	}

	if err := e.store.SkipTransaction(ctx, tx.ID, rule.ID); err != nil {
		return nil, errors.ReconciliationError(errors.CodeClassificationFailed, "rule application", err).
			WithContext("transaction_id", tx.ID).
			WithContext("rule_id", rule.ID)
	}

	e.logger.WithFields(logger.Fields{
		"transaction_id": tx.ID,
		"rule_id":        rule.ID,
		"rule_type":      rule.Type,
	}).Debug("transaction skipped by rule")

	return rule, nil
}

// CreateRuleOptions control rule derivation from a transaction.
type CreateRuleOptions struct {
	// Type selects the rule variant; defaults to VENDOR.
	Type models.RuleType
	// Pattern overrides the derived pattern when non-empty.
	Pattern string
	// ScopeToAccount restricts the rule to the transaction's account
	// (ACCOUNT rules always carry the account).
	ScopeToAccount bool
	// TransactionType optionally restricts matching to one direction.
	TransactionType *models.TransactionType
	// VariancePercent overrides the default band for VENDOR_AMOUNT.
	VariancePercent *decimal.Decimal
}

// CreateRuleResult reports what a rule derivation did.
type CreateRuleResult struct {
	Rule *models.TransactionSkipRule
	// Created is false when an equivalent active rule already existed.
	Created bool
	// SourceSkipped reports whether the originating transaction was
	// newly marked SKIPPED.
	SourceSkipped bool
	// AdditionalSkipped counts other pending transactions the new rule
	// retroactively resolved in the same pass.
	AdditionalSkipped int
}

// CreateRuleFromTransaction builds a rule from the transaction, skips
// the transaction under it, then re-classifies all other pending
// transactions so the rule retroactively resolves them in the same
// pass.
func (e *Engine) CreateRuleFromTransaction(ctx context.Context, tx *models.LedgerTransaction, opts CreateRuleOptions) (*CreateRuleResult, error) {
	rule, err := e.buildRule(tx, opts)
	if err != nil {
		return nil, err
	}

	stored, created, err := e.store.EnsureSkipRule(ctx, rule)
	if err != nil {
		return nil, err
	}

	result := &CreateRuleResult{Rule: stored, Created: created}

	if tx.ApprovalStatus == models.ApprovalPending {
		if err := e.store.SkipTransaction(ctx, tx.ID, stored.ID); err != nil {
			return nil, err
		}
		result.SourceSkipped = true
	}

	pred, err := BuildPredicate(stored)
	if err != nil {
		return nil, err
	}

	pending, err := e.store.ListPendingTransactions(ctx)
	if err != nil {
		return nil, err
	}

	for _, other := range pending {
		if other.ID == tx.ID || !pred.Matches(other) {
			continue
		}
		if err := e.store.SkipTransaction(ctx, other.ID, stored.ID); err != nil {
			e.logger.WithError(err).WithField("transaction_id", other.ID).
				Warn("retroactive skip failed; transaction stays pending")
			continue
		}
		result.AdditionalSkipped++
	}

	e.logger.WithFields(logger.Fields{
		"rule_id":            stored.ID,
		"rule_type":          stored.Type,
		"created":            result.Created,
		"additional_skipped": result.AdditionalSkipped,
	}).Info("rule derived from transaction")

	return result, nil
}

func (e *Engine) buildRule(tx *models.LedgerTransaction, opts CreateRuleOptions) (*models.TransactionSkipRule, error) {
	ruleType := opts.Type
	if ruleType == "" {
		ruleType = models.RuleTypeVendor
	}

	pattern := opts.Pattern
	if pattern == "" {
		pattern = DerivePattern(tx.Description)
	}
	if pattern == "" && ruleType != models.RuleTypeAccount {
		return nil, errors.ValidationError(errors.CodeInvalidPattern, "description", tx.Description, nil).
			WithSuggestion("the description yields no usable pattern; pass one explicitly")
	}

	rule := &models.TransactionSkipRule{
		Type:            ruleType,
		Pattern:         pattern,
		TransactionType: opts.TransactionType,
		VariancePercent: opts.VariancePercent,
		Active:          true,
	}

	switch ruleType {
	case models.RuleTypeAccount:
		accountID := tx.AccountID
		rule.AccountID = &accountID
		rule.Pattern = ""
	case models.RuleTypeVendorAmount:
		amount := tx.AbsAmount()
		rule.Amount = &amount
	}
	if opts.ScopeToAccount && rule.AccountID == nil {
		accountID := tx.AccountID
		rule.AccountID = &accountID
	}

	rule.Name = RuleName(rule)

	if err := rule.Validate(); err != nil {
		return nil, errors.ValidationError(errors.CodeInvalidPattern, "derived rule", rule.Pattern, err)
	}

	return rule, nil
}
