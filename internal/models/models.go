// Package models defines the domain records for the expense
// reconciliation engine: recurring bill definitions, payable bill
// instances and their participant splits, transaction skip rules, and
// observed ledger transactions.
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Frequency represents how often a recurring bill is due
type Frequency string

const (
	// FrequencyMonthly bills every calendar month
	FrequencyMonthly Frequency = "MONTHLY"
	// FrequencyQuarterly bills in January, April, July and October
	FrequencyQuarterly Frequency = "QUARTERLY"
	// FrequencyAnnual bills once per year in the configured due month
	FrequencyAnnual Frequency = "ANNUAL"
)

// String returns the string representation of Frequency
func (f Frequency) String() string {
	return string(f)
}

// IsValid checks if the frequency is valid
func (f Frequency) IsValid() bool {
	return f == FrequencyMonthly || f == FrequencyQuarterly || f == FrequencyAnnual
}

// ParseFrequency parses and validates a frequency from string
func ParseFrequency(s string) (Frequency, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "MONTHLY", "M":
		return FrequencyMonthly, nil
	case "QUARTERLY", "Q":
		return FrequencyQuarterly, nil
	case "ANNUAL", "YEARLY", "A", "Y":
		return FrequencyAnnual, nil
	default:
		return "", fmt.Errorf("invalid frequency '%s': must be MONTHLY, QUARTERLY or ANNUAL", s)
	}
}

// AmountType represents how a definition's amount is determined
type AmountType string

const (
	// AmountTypeFixed uses the stored fixed amount every period
	AmountTypeFixed AmountType = "FIXED"
	// AmountTypeVariable has no stored amount; estimated from history
	AmountTypeVariable AmountType = "VARIABLE"
)

// IsValid checks if the amount type is valid
func (a AmountType) IsValid() bool {
	return a == AmountTypeFixed || a == AmountTypeVariable
}

// InstanceStatus represents the settlement state of a bill instance
type InstanceStatus string

const (
	InstancePending InstanceStatus = "PENDING"
	InstancePaid    InstanceStatus = "PAID"
	InstanceOverdue InstanceStatus = "OVERDUE"
)

// IsValid checks if the instance status is valid
func (s InstanceStatus) IsValid() bool {
	return s == InstancePending || s == InstancePaid || s == InstanceOverdue
}

// ApprovalStatus represents the review state of a ledger transaction
type ApprovalStatus string

const (
	// ApprovalPending awaits either rule classification or manual review
	ApprovalPending ApprovalStatus = "PENDING"
	// ApprovalSkipped was classified as not a company expense
	ApprovalSkipped ApprovalStatus = "SKIPPED"
	// ApprovalApproved was accepted, usually by attachment to a bill instance
	ApprovalApproved ApprovalStatus = "APPROVED"
)

// IsValid checks if the approval status is valid
func (s ApprovalStatus) IsValid() bool {
	return s == ApprovalPending || s == ApprovalSkipped || s == ApprovalApproved
}

// RuleType represents the kind of predicate a skip rule evaluates
type RuleType string

const (
	// RuleTypeAccount matches every transaction from a scoped account
	RuleTypeAccount RuleType = "ACCOUNT"
	// RuleTypeVendor matches a vendor substring in the description
	RuleTypeVendor RuleType = "VENDOR"
	// RuleTypeVendorAmount matches vendor substring plus an amount band
	RuleTypeVendorAmount RuleType = "VENDOR_AMOUNT"
	// RuleTypeDescriptionPattern matches a free-text substring
	RuleTypeDescriptionPattern RuleType = "DESCRIPTION_PATTERN"
)

// String returns the string representation of RuleType
func (r RuleType) String() string {
	return string(r)
}

// IsValid checks if the rule type is valid
func (r RuleType) IsValid() bool {
	switch r {
	case RuleTypeAccount, RuleTypeVendor, RuleTypeVendorAmount, RuleTypeDescriptionPattern:
		return true
	}
	return false
}

// ParseRuleType parses and validates a rule type from string
func ParseRuleType(s string) (RuleType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ACCOUNT":
		return RuleTypeAccount, nil
	case "VENDOR":
		return RuleTypeVendor, nil
	case "VENDOR_AMOUNT", "VENDOR-AMOUNT":
		return RuleTypeVendorAmount, nil
	case "DESCRIPTION_PATTERN", "DESCRIPTION", "PATTERN":
		return RuleTypeDescriptionPattern, nil
	default:
		return "", fmt.Errorf("invalid rule type '%s'", s)
	}
}

// TransactionType filters rules to one direction of money movement
type TransactionType string

const (
	// TransactionIncome matches only positive amounts
	TransactionIncome TransactionType = "INCOME"
	// TransactionExpense matches only negative amounts
	TransactionExpense TransactionType = "EXPENSE"
)

// IsValid checks if the transaction type is valid
func (t TransactionType) IsValid() bool {
	return t == TransactionIncome || t == TransactionExpense
}

// ParseTransactionType parses a transaction type filter from string
func ParseTransactionType(s string) (TransactionType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "INCOME", "IN":
		return TransactionIncome, nil
	case "EXPENSE", "OUT":
		return TransactionExpense, nil
	default:
		return "", fmt.Errorf("invalid transaction type '%s': must be INCOME or EXPENSE", s)
	}
}

// DefinitionParticipant is one default cost-sharing participant on a
// recurring bill definition, optionally with a fixed percentage.
type DefinitionParticipant struct {
	ParticipantID string           `json:"participantId"`
	Percent       *decimal.Decimal `json:"percent,omitempty"`
}

// RecurringBillDefinition is a template from which dated bill
// instances are generated, one per applicable period.
type RecurringBillDefinition struct {
	ID             string                  `json:"id"`
	VendorName     string                  `json:"vendorName"`
	VendorCategory string                  `json:"vendorCategory"`
	Frequency      Frequency               `json:"frequency"`
	AmountType     AmountType              `json:"amountType"`
	FixedAmount    decimal.Decimal         `json:"fixedAmount"`
	DueDay         int                     `json:"dueDay"`
	DueMonth       int                     `json:"dueMonth"`
	Active         bool                    `json:"active"`
	Participants   []DefinitionParticipant `json:"participants,omitempty"`
	CreatedAt      time.Time               `json:"createdAt"`
	UpdatedAt      time.Time               `json:"updatedAt"`

	// DeactivatedReason records why a definition was soft-deleted,
	// keeping the vendor name untouched.
	DeactivatedReason string `json:"deactivatedReason,omitempty"`
}

// NewRecurringBillDefinition creates an active definition with sane defaults
func NewRecurringBillDefinition(vendor, category string, freq Frequency, amountType AmountType, fixedAmount decimal.Decimal, dueDay int) *RecurringBillDefinition {
	return &RecurringBillDefinition{
		VendorName:     vendor,
		VendorCategory: category,
		Frequency:      freq,
		AmountType:     amountType,
		FixedAmount:    fixedAmount,
		DueDay:         dueDay,
		DueMonth:       1,
		Active:         true,
	}
}

// Validate performs basic validation on the definition
func (d *RecurringBillDefinition) Validate() error {
	if strings.TrimSpace(d.VendorName) == "" {
		return fmt.Errorf("vendor name cannot be empty")
	}

	if !d.Frequency.IsValid() {
		return fmt.Errorf("invalid frequency: %s", d.Frequency)
	}

	if !d.AmountType.IsValid() {
		return fmt.Errorf("invalid amount type: %s", d.AmountType)
	}

	if d.AmountType == AmountTypeFixed && d.FixedAmount.IsNegative() {
		return fmt.Errorf("fixed amount cannot be negative")
	}

	if d.DueDay < 1 || d.DueDay > 31 {
		return fmt.Errorf("due day must be between 1 and 31, got %d", d.DueDay)
	}

	if d.DueMonth < 1 || d.DueMonth > 12 {
		return fmt.Errorf("due month must be between 1 and 12, got %d", d.DueMonth)
	}

	for _, p := range d.Participants {
		if strings.TrimSpace(p.ParticipantID) == "" {
			return fmt.Errorf("participant id cannot be empty")
		}
		if p.Percent != nil && (p.Percent.IsNegative() || p.Percent.GreaterThan(decimal.NewFromInt(100))) {
			return fmt.Errorf("participant percentage must be between 0 and 100")
		}
	}

	return nil
}

// VendorKey returns the normalized grouping key for duplicate detection
func (d *RecurringBillDefinition) VendorKey() string {
	return NormalizeVendorKey(d.VendorName)
}

// String returns a string representation of the definition
func (d *RecurringBillDefinition) String() string {
	return fmt.Sprintf("RecurringBillDefinition{ID: %s, Vendor: %s, Frequency: %s, AmountType: %s}",
		d.ID, d.VendorName, d.Frequency, d.AmountType)
}

// BillInstance is one concrete obligation for one (definition, period)
// pair. At most one instance exists per pair; the store enforces this
// with a unique constraint.
type BillInstance struct {
	ID                   string          `json:"id"`
	DefinitionID         string          `json:"definitionId"`
	PeriodKey            string          `json:"periodKey"`
	Amount               decimal.Decimal `json:"amount"`
	DueDate              time.Time       `json:"dueDate"`
	Status               InstanceStatus  `json:"status"`
	SettledTransactionID *string         `json:"settledTransactionId,omitempty"`
	CreatedAt            time.Time       `json:"createdAt"`
}

// Validate performs basic validation on the bill instance
func (b *BillInstance) Validate() error {
	if strings.TrimSpace(b.DefinitionID) == "" {
		return fmt.Errorf("definition id cannot be empty")
	}

	if strings.TrimSpace(b.PeriodKey) == "" {
		return fmt.Errorf("period key cannot be empty")
	}

	if b.Amount.IsNegative() {
		return fmt.Errorf("instance amount cannot be negative")
	}

	if !b.Status.IsValid() {
		return fmt.Errorf("invalid instance status: %s", b.Status)
	}

	if b.DueDate.IsZero() {
		return fmt.Errorf("due date cannot be zero")
	}

	return nil
}

// String returns a string representation of the bill instance
func (b *BillInstance) String() string {
	return fmt.Sprintf("BillInstance{ID: %s, Definition: %s, Period: %s, Amount: %s, Status: %s}",
		b.ID, b.DefinitionID, b.PeriodKey, b.Amount.String(), b.Status)
}

// BillSplit is one participant's share of one bill instance. Splits
// are created and replaced as a whole set, never edited individually.
type BillSplit struct {
	ID            string           `json:"id"`
	InstanceID    string           `json:"instanceId"`
	ParticipantID string           `json:"participantId"`
	Amount        decimal.Decimal  `json:"amount"`
	Percent       *decimal.Decimal `json:"percent,omitempty"`
	Status        InstanceStatus   `json:"status"`
}

// Validate performs basic validation on the bill split
func (s *BillSplit) Validate() error {
	if strings.TrimSpace(s.ParticipantID) == "" {
		return fmt.Errorf("participant id cannot be empty")
	}

	if s.Amount.IsNegative() {
		return fmt.Errorf("split amount cannot be negative")
	}

	return nil
}

// TransactionSkipRule classifies matching transactions as not a
// company expense. The Type discriminates which predicate fields are
// meaningful; predicate construction lives in the rules package.
type TransactionSkipRule struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	Type            RuleType         `json:"type"`
	AccountID       *string          `json:"accountId,omitempty"`
	TransactionType *TransactionType `json:"transactionType,omitempty"`
	Pattern         string           `json:"pattern"`
	Amount          *decimal.Decimal `json:"amount,omitempty"`
	VariancePercent *decimal.Decimal `json:"variancePercent,omitempty"`
	AmountMin       *decimal.Decimal `json:"amountMin,omitempty"`
	AmountMax       *decimal.Decimal `json:"amountMax,omitempty"`
	HitCount        int              `json:"hitCount"`
	Active          bool             `json:"active"`
	CreatedAt       time.Time        `json:"createdAt"`

	DeactivatedReason string `json:"deactivatedReason,omitempty"`
}

// Validate performs basic validation on the skip rule
func (r *TransactionSkipRule) Validate() error {
	if !r.Type.IsValid() {
		return fmt.Errorf("invalid rule type: %s", r.Type)
	}

	if r.TransactionType != nil && !r.TransactionType.IsValid() {
		return fmt.Errorf("invalid transaction type filter: %s", *r.TransactionType)
	}

	switch r.Type {
	case RuleTypeAccount:
		if r.AccountID == nil || strings.TrimSpace(*r.AccountID) == "" {
			return fmt.Errorf("account rules require a scoped account id")
		}
	case RuleTypeVendor, RuleTypeDescriptionPattern:
		if strings.TrimSpace(r.Pattern) == "" {
			return fmt.Errorf("%s rules require a non-empty pattern", strings.ToLower(string(r.Type)))
		}
	case RuleTypeVendorAmount:
		if strings.TrimSpace(r.Pattern) == "" {
			return fmt.Errorf("vendor_amount rules require a non-empty pattern")
		}
		hasRange := r.AmountMin != nil && r.AmountMax != nil
		if !hasRange && r.Amount == nil {
			return fmt.Errorf("vendor_amount rules require a stored amount or an explicit min/max range")
		}
		if hasRange && r.AmountMin.GreaterThan(*r.AmountMax) {
			return fmt.Errorf("amount range min cannot exceed max")
		}
	}

	return nil
}

// GroupKey returns the normalized identity used by duplicate-rule
// consolidation: rule type plus lower-cased pattern, with the stored
// amount (or, failing that, the explicit min/max range) for
// VENDOR_AMOUNT rules. Same-vendor rules with different bands must not
// collapse into one.
func (r *TransactionSkipRule) GroupKey() string {
	key := string(r.Type) + "|" + strings.ToLower(strings.TrimSpace(r.Pattern))
	if r.Type == RuleTypeAccount && r.AccountID != nil {
		key = string(r.Type) + "|" + strings.ToLower(*r.AccountID)
	}
	if r.Type == RuleTypeVendorAmount {
		switch {
		case r.Amount != nil:
			key += "|" + r.Amount.String()
		case r.AmountMin != nil && r.AmountMax != nil:
			key += "|" + r.AmountMin.String() + ".." + r.AmountMax.String()
		}
	}
	return key
}

// String returns a string representation of the skip rule
func (r *TransactionSkipRule) String() string {
	return fmt.Sprintf("TransactionSkipRule{ID: %s, Type: %s, Pattern: %s, Hits: %d}",
		r.ID, r.Type, r.Pattern, r.HitCount)
}

// LedgerTransaction is one observed bank or processor transaction.
// ExternalID is globally unique; re-fetching the same transaction is a
// no-op upsert instead of a duplicate row.
type LedgerTransaction struct {
	ID                string          `json:"id"`
	ExternalID        string          `json:"externalId"`
	AccountID         string          `json:"accountId"`
	Amount            decimal.Decimal `json:"amount"`
	Description       string          `json:"description"`
	TransactedAt      time.Time       `json:"transactedAt"`
	PostedAt          time.Time       `json:"postedAt"`
	ApprovalStatus    ApprovalStatus  `json:"approvalStatus"`
	ResolvedByRuleID  *string         `json:"resolvedByRuleId,omitempty"`
	MatchedInstanceID *string         `json:"matchedInstanceId,omitempty"`
}

// Validate performs basic validation on the ledger transaction
func (t *LedgerTransaction) Validate() error {
	if strings.TrimSpace(t.ExternalID) == "" {
		return fmt.Errorf("external id cannot be empty")
	}

	if strings.TrimSpace(t.AccountID) == "" {
		return fmt.Errorf("account id cannot be empty")
	}

	if t.TransactedAt.IsZero() {
		return fmt.Errorf("transacted-at time cannot be zero")
	}

	if !t.ApprovalStatus.IsValid() {
		return fmt.Errorf("invalid approval status: %s", t.ApprovalStatus)
	}

	return nil
}

// IsInflow returns true for positive amounts
func (t *LedgerTransaction) IsInflow() bool {
	return t.Amount.IsPositive()
}

// IsOutflow returns true for negative amounts
func (t *LedgerTransaction) IsOutflow() bool {
	return t.Amount.IsNegative()
}

// AbsAmount returns the absolute value of the transaction amount
func (t *LedgerTransaction) AbsAmount() decimal.Decimal {
	return t.Amount.Abs()
}

// String returns a string representation of the ledger transaction
func (t *LedgerTransaction) String() string {
	return fmt.Sprintf("LedgerTransaction{ExternalID: %s, Amount: %s, Status: %s}",
		t.ExternalID, t.Amount.String(), t.ApprovalStatus)
}

// Participant is an expense-sharing participant known to the engine
type Participant struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// ProposedBill is a candidate bill record produced by the external
// bill-text extraction pipeline, awaiting approval into a BillInstance.
type ProposedBill struct {
	Vendor        string           `json:"vendor"`
	Amount        *decimal.Decimal `json:"amount,omitempty"`
	DueDate       *time.Time       `json:"dueDate,omitempty"`
	IsPaid        bool             `json:"isPaid"`
	PaymentMethod string           `json:"paymentMethod,omitempty"`
}

// Validate performs basic validation on the proposed bill
func (p *ProposedBill) Validate() error {
	if strings.TrimSpace(p.Vendor) == "" {
		return fmt.Errorf("proposed bill vendor cannot be empty")
	}

	if p.Amount != nil && p.Amount.IsNegative() {
		return fmt.Errorf("proposed bill amount cannot be negative")
	}

	return nil
}

// NormalizeVendorKey reduces vendor text to its lower-cased
// alphanumeric characters for duplicate grouping and matching.
func NormalizeVendorKey(vendor string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(vendor) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ParseDecimalFromString parses a decimal value from string with validation
func ParseDecimalFromString(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount string cannot be empty")
	}

	// Remove common currency symbols and thousand separators
	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal format '%s': %w", s, err)
	}

	return d, nil
}

// ParseTimeWithFormats attempts to parse time from string using multiple common formats
func ParseTimeWithFormats(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("time string cannot be empty")
	}

	formats := []string{
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02",
		"01/02/2006",
		"2006/01/02",
	}

	var lastErr error
	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		} else {
			lastErr = err
		}
	}

	return time.Time{}, fmt.Errorf("unable to parse time '%s': %w", s, lastErr)
}
