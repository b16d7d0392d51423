// Package rules implements the skip rule engine: predicate
// construction per rule type, creation-order classification of ledger
// transactions, and rule derivation from observed transactions.
package rules

import (
	"strings"

	"github.com/shopspring/decimal"

	"expense-reconciliation-engine/internal/models"
	"expense-reconciliation-engine/pkg/errors"
)

// DefaultVariancePercent is the amount band applied around a
// VENDOR_AMOUNT rule's stored amount when the rule carries no explicit
// variance or min/max range.
var DefaultVariancePercent = decimal.NewFromInt(5)

// Predicate decides whether a skip rule matches a transaction. Each
// rule type has its own implementation; the rule's Type field
// discriminates which one BuildPredicate constructs.
type Predicate interface {
	Matches(tx *models.LedgerTransaction) bool
}

// BuildPredicate constructs the predicate for a rule. Invalid rules
// (failing their own Validate) are rejected rather than silently
// matching nothing.
func BuildPredicate(rule *models.TransactionSkipRule) (Predicate, error) {
	if err := rule.Validate(); err != nil {
		return nil, errors.ValidationError(errors.CodeInvalidPattern, "skip rule", rule.Pattern, err)
	}

	switch rule.Type {
	case models.RuleTypeAccount:
		return &accountPredicate{
			accountID: *rule.AccountID,
			direction: rule.TransactionType,
		}, nil
	case models.RuleTypeVendor:
		return &vendorPredicate{
			key:       models.NormalizeVendorKey(rule.Pattern),
			direction: rule.TransactionType,
		}, nil
	case models.RuleTypeVendorAmount:
		min, max := amountBand(rule)
		return &vendorAmountPredicate{
			key:       models.NormalizeVendorKey(rule.Pattern),
			min:       min,
			max:       max,
			direction: rule.TransactionType,
		}, nil
	case models.RuleTypeDescriptionPattern:
		return &descriptionPredicate{
			pattern:   strings.ToLower(strings.TrimSpace(rule.Pattern)),
			direction: rule.TransactionType,
		}, nil
	default:
		return nil, errors.ValidationError(errors.CodeInvalidPattern, "skip rule type", rule.Type, nil)
	}
}

// amountBand resolves the matching band for a VENDOR_AMOUNT rule: an
// explicit [min,max] range wins; otherwise the stored amount plus or
// minus the rule's variance percent, defaulting to 5%.
func amountBand(rule *models.TransactionSkipRule) (decimal.Decimal, decimal.Decimal) {
	if rule.AmountMin != nil && rule.AmountMax != nil {
		return rule.AmountMin.Abs(), rule.AmountMax.Abs()
	}

	variance := DefaultVariancePercent
	if rule.VariancePercent != nil {
		variance = *rule.VariancePercent
	}

	amount := rule.Amount.Abs()
	delta := amount.Mul(variance).Div(decimal.NewFromInt(100))
	return amount.Sub(delta), amount.Add(delta)
}

// directionMatches applies the optional INCOME/EXPENSE filter; rules
// without a filter match both directions.
func directionMatches(direction *models.TransactionType, tx *models.LedgerTransaction) bool {
	if direction == nil {
		return true
	}
	switch *direction {
	case models.TransactionIncome:
		return tx.IsInflow()
	case models.TransactionExpense:
		return tx.IsOutflow()
	}
	return false
}

// accountPredicate matches every transaction from one scoped account.
type accountPredicate struct {
	accountID string
	direction *models.TransactionType
}

func (p *accountPredicate) Matches(tx *models.LedgerTransaction) bool {
	return tx.AccountID == p.accountID && directionMatches(p.direction, tx)
}

// vendorPredicate matches a normalized vendor key appearing in the
// transaction description.
type vendorPredicate struct {
	key       string
	direction *models.TransactionType
}

func (p *vendorPredicate) Matches(tx *models.LedgerTransaction) bool {
	if p.key == "" {
		return false
	}
	return strings.Contains(models.NormalizeVendorKey(tx.Description), p.key) &&
		directionMatches(p.direction, tx)
}

// vendorAmountPredicate matches the vendor key plus an absolute-amount
// band resolved at construction time.
type vendorAmountPredicate struct {
	key       string
	min, max  decimal.Decimal
	direction *models.TransactionType
}

func (p *vendorAmountPredicate) Matches(tx *models.LedgerTransaction) bool {
	if p.key == "" || !strings.Contains(models.NormalizeVendorKey(tx.Description), p.key) {
		return false
	}

	abs := tx.AbsAmount()
	if abs.LessThan(p.min) || abs.GreaterThan(p.max) {
		return false
	}

	return directionMatches(p.direction, tx)
}

// descriptionPredicate matches a case-insensitive free-text substring.
type descriptionPredicate struct {
	pattern   string
	direction *models.TransactionType
}

func (p *descriptionPredicate) Matches(tx *models.LedgerTransaction) bool {
	if p.pattern == "" {
		return false
	}
	return strings.Contains(strings.ToLower(tx.Description), p.pattern) &&
		directionMatches(p.direction, tx)
}
