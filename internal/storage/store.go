// Package storage provides abstractions for persistent engine state.
package storage

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"expense-reconciliation-engine/internal/models"
)

// Store defines the persistence operations the engine components
// need. The abstraction allows swapping storage backends without
// changing the engine packages; the shipped implementation is SQLite.
//
// Uniqueness invariants live here: at most one BillInstance per
// (definition, period), at most one LedgerTransaction per external id,
// and no two active skip rules with the same normalized identity.
type Store interface {
	// Definitions

	// CreateDefinition persists a definition and its default
	// participants. The ID is assigned when empty.
	CreateDefinition(ctx context.Context, def *models.RecurringBillDefinition) error

	// GetDefinition retrieves a definition with its participants.
	GetDefinition(ctx context.Context, id string) (*models.RecurringBillDefinition, error)

	// ListDefinitions returns definitions ordered by creation time,
	// optionally restricted to active ones.
	ListDefinitions(ctx context.Context, activeOnly bool) ([]*models.RecurringBillDefinition, error)

	// DeactivateDefinition soft-deletes a definition, recording why.
	// The vendor name is left untouched.
	DeactivateDefinition(ctx context.Context, id, reason string) error

	// Participants

	CreateParticipant(ctx context.Context, p *models.Participant) error
	ListActiveParticipants(ctx context.Context) ([]*models.Participant, error)

	// Ledger accounts

	CreateLedgerAccount(ctx context.Context, id, name string) error
	ListLedgerAccounts(ctx context.Context) ([]string, error)

	// Bill instances

	// CreateInstanceWithSplits persists an instance and its splits in
	// one transaction: they appear together or not at all. A second
	// instance for the same (definition, period) pair is rejected with
	// a duplicate-record error.
	CreateInstanceWithSplits(ctx context.Context, inst *models.BillInstance, splits []*models.BillSplit) error

	// GetInstanceByDefinitionPeriod returns the instance for the pair,
	// or (nil, nil) when none exists.
	GetInstanceByDefinitionPeriod(ctx context.Context, definitionID, periodKey string) (*models.BillInstance, error)

	// ListInstancesByDefinition returns a definition's instances,
	// newest period first.
	ListInstancesByDefinition(ctx context.Context, definitionID string) ([]*models.BillInstance, error)

	// ListOpenInstances returns PENDING and OVERDUE instances.
	ListOpenInstances(ctx context.Context) ([]*models.BillInstance, error)

	// LatestPaidAmount returns the amount of the definition's most
	// recently paid instance, or nil when none has been paid.
	LatestPaidAmount(ctx context.Context, definitionID string) (*decimal.Decimal, error)

	// CountInstances returns how many instances a definition owns.
	CountInstances(ctx context.Context, definitionID string) (int, error)

	// MarkOverdueInstances flips PENDING instances past their due date
	// to OVERDUE, returning how many changed.
	MarkOverdueInstances(ctx context.Context, asOf time.Time) (int, error)

	// MarkInstancePaid flips an instance and its splits to PAID
	// without a settling transaction, for bills confirmed out of band.
	MarkInstancePaid(ctx context.Context, instanceID string) error

	// GetSplits returns an instance's splits in creation order.
	GetSplits(ctx context.Context, instanceID string) ([]*models.BillSplit, error)

	// Skip rules

	// CreateSkipRule persists the rule unconditionally. Rule
	// derivation goes through EnsureSkipRule instead; this is the
	// import path for externally supplied rules, which is where
	// duplicate rules come from.
	CreateSkipRule(ctx context.Context, rule *models.TransactionSkipRule) error

	// EnsureSkipRule persists the rule unless an active rule with the
	// same normalized identity already exists. It returns the stored
	// rule and whether it was newly created; the check and insert run
	// in one transaction so concurrent passes never duplicate rules.
	EnsureSkipRule(ctx context.Context, rule *models.TransactionSkipRule) (*models.TransactionSkipRule, bool, error)

	// ListSkipRules returns rules in creation order, the order in
	// which classification evaluates them.
	ListSkipRules(ctx context.Context, activeOnly bool) ([]*models.TransactionSkipRule, error)

	// AddRuleHits adds n to a rule's hit counter.
	AddRuleHits(ctx context.Context, ruleID string, n int) error

	// RepointRuleReferences moves every transaction resolved by one
	// rule onto another, returning how many rows changed.
	RepointRuleReferences(ctx context.Context, fromRuleID, toRuleID string) (int64, error)

	// DeactivateSkipRule soft-deletes a rule, recording why.
	DeactivateSkipRule(ctx context.Context, id, reason string) error

	// Ledger transactions

	// UpsertTransaction inserts the transaction unless its external id
	// is already known; re-fetching is a no-op. Returns whether a row
	// was inserted.
	UpsertTransaction(ctx context.Context, tx *models.LedgerTransaction) (bool, error)

	// GetTransaction retrieves a transaction by engine id.
	GetTransaction(ctx context.Context, id string) (*models.LedgerTransaction, error)

	// ListPendingTransactions returns transactions still awaiting
	// classification or review, oldest first.
	ListPendingTransactions(ctx context.Context) ([]*models.LedgerTransaction, error)

	// SkipTransaction marks the transaction SKIPPED, records the
	// resolving rule and increments that rule's hit counter, all in
	// one transaction. An empty ruleID is a one-off manual skip.
	SkipTransaction(ctx context.Context, transactionID, ruleID string) error

	// AttachTransactionToInstance links the transaction to the
	// instance that it settles: transaction APPROVED, instance PAID
	// with the settling transaction recorded, splits cascaded to PAID.
	AttachTransactionToInstance(ctx context.Context, transactionID, instanceID string) error

	// Consolidation

	// MigrateInstances moves all instances from one definition to
	// another, skipping periods the target already has.
	MigrateInstances(ctx context.Context, fromDefinitionID, toDefinitionID string) (int64, error)

	// MigrateDefinitionParticipants copies participant rows from one
	// definition to another, skipping participants already present.
	MigrateDefinitionParticipants(ctx context.Context, fromDefinitionID, toDefinitionID string) (int64, error)

	// Close releases any resources held by the store.
	Close() error
}
