package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestParseFrequency(t *testing.T) {
	tests := []struct {
		input     string
		expected  Frequency
		expectErr bool
	}{
		{"MONTHLY", FrequencyMonthly, false},
		{"monthly", FrequencyMonthly, false},
		{" Quarterly ", FrequencyQuarterly, false},
		{"ANNUAL", FrequencyAnnual, false},
		{"YEARLY", FrequencyAnnual, false},
		{"WEEKLY", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := ParseFrequency(tt.input)
		if tt.expectErr {
			if err == nil {
				t.Errorf("ParseFrequency(%q): expected error, got %s", tt.input, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseFrequency(%q): unexpected error: %v", tt.input, err)
			continue
		}
		if got != tt.expected {
			t.Errorf("ParseFrequency(%q): expected %s, got %s", tt.input, tt.expected, got)
		}
	}
}

func TestParseRuleType(t *testing.T) {
	tests := []struct {
		input     string
		expected  RuleType
		expectErr bool
	}{
		{"VENDOR", RuleTypeVendor, false},
		{"vendor_amount", RuleTypeVendorAmount, false},
		{"ACCOUNT", RuleTypeAccount, false},
		{"description", RuleTypeDescriptionPattern, false},
		{"REGEX", "", true},
	}

	for _, tt := range tests {
		got, err := ParseRuleType(tt.input)
		if tt.expectErr != (err != nil) {
			t.Errorf("ParseRuleType(%q): unexpected error state: %v", tt.input, err)
			continue
		}
		if err == nil && got != tt.expected {
			t.Errorf("ParseRuleType(%q): expected %s, got %s", tt.input, tt.expected, got)
		}
	}
}

func TestRecurringBillDefinitionValidate(t *testing.T) {
	def := NewRecurringBillDefinition("Netflix", "subscriptions", FrequencyMonthly, AmountTypeFixed, decimal.NewFromFloat(15.99), 5)

	if err := def.Validate(); err != nil {
		t.Errorf("Expected valid definition, got: %v", err)
	}

	// Empty vendor
	bad := *def
	bad.VendorName = "  "
	if err := bad.Validate(); err == nil {
		t.Error("Expected error for empty vendor name")
	}

	// Bad due day
	bad = *def
	bad.DueDay = 32
	if err := bad.Validate(); err == nil {
		t.Error("Expected error for due day out of range")
	}

	// Bad participant percentage
	bad = *def
	pct := decimal.NewFromInt(150)
	bad.Participants = []DefinitionParticipant{{ParticipantID: "p1", Percent: &pct}}
	if err := bad.Validate(); err == nil {
		t.Error("Expected error for percentage above 100")
	}
}

func TestBillInstanceValidate(t *testing.T) {
	inst := &BillInstance{
		DefinitionID: "def-1",
		PeriodKey:    "2025-03",
		Amount:       decimal.NewFromInt(120),
		DueDate:      time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC),
		Status:       InstancePending,
	}

	if err := inst.Validate(); err != nil {
		t.Errorf("Expected valid instance, got: %v", err)
	}

	bad := *inst
	bad.Amount = decimal.NewFromInt(-1)
	if err := bad.Validate(); err == nil {
		t.Error("Expected error for negative amount")
	}

	bad = *inst
	bad.Status = "SETTLED"
	if err := bad.Validate(); err == nil {
		t.Error("Expected error for unknown status")
	}
}

func TestSkipRuleValidate(t *testing.T) {
	amount := decimal.NewFromFloat(50.00)
	account := "acct-1"

	tests := []struct {
		name      string
		rule      TransactionSkipRule
		expectErr bool
	}{
		{
			name: "valid vendor rule",
			rule: TransactionSkipRule{Type: RuleTypeVendor, Pattern: "STARBUCKS"},
		},
		{
			name:      "vendor rule without pattern",
			rule:      TransactionSkipRule{Type: RuleTypeVendor},
			expectErr: true,
		},
		{
			name: "valid account rule",
			rule: TransactionSkipRule{Type: RuleTypeAccount, AccountID: &account},
		},
		{
			name:      "account rule without account",
			rule:      TransactionSkipRule{Type: RuleTypeAccount},
			expectErr: true,
		},
		{
			name: "valid vendor_amount rule with stored amount",
			rule: TransactionSkipRule{Type: RuleTypeVendorAmount, Pattern: "SPOTIFY", Amount: &amount},
		},
		{
			name:      "vendor_amount rule without amount or range",
			rule:      TransactionSkipRule{Type: RuleTypeVendorAmount, Pattern: "SPOTIFY"},
			expectErr: true,
		},
	}

	for _, tt := range tests {
		err := tt.rule.Validate()
		if tt.expectErr && err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
		if !tt.expectErr && err != nil {
			t.Errorf("%s: unexpected error: %v", tt.name, err)
		}
	}
}

func TestSkipRuleGroupKey(t *testing.T) {
	a := TransactionSkipRule{Type: RuleTypeVendor, Pattern: "Starbucks"}
	b := TransactionSkipRule{Type: RuleTypeVendor, Pattern: " STARBUCKS "}

	if a.GroupKey() != b.GroupKey() {
		t.Errorf("Expected equal group keys, got %q vs %q", a.GroupKey(), b.GroupKey())
	}

	amount := decimal.NewFromFloat(9.99)
	c := TransactionSkipRule{Type: RuleTypeVendorAmount, Pattern: "Starbucks", Amount: &amount}
	if a.GroupKey() == c.GroupKey() {
		t.Error("Expected vendor and vendor_amount rules to group separately")
	}
}

func TestSkipRuleGroupKeyDistinguishesRanges(t *testing.T) {
	lowMin, lowMax := decimal.NewFromInt(5), decimal.NewFromInt(15)
	highMin, highMax := decimal.NewFromInt(40), decimal.NewFromInt(60)

	low := TransactionSkipRule{Type: RuleTypeVendorAmount, Pattern: "Starbucks",
		AmountMin: &lowMin, AmountMax: &lowMax}
	high := TransactionSkipRule{Type: RuleTypeVendorAmount, Pattern: "Starbucks",
		AmountMin: &highMin, AmountMax: &highMax}

	if low.GroupKey() == high.GroupKey() {
		t.Errorf("Expected disjoint ranges to group separately, both keyed %q", low.GroupKey())
	}

	same := TransactionSkipRule{Type: RuleTypeVendorAmount, Pattern: " STARBUCKS ",
		AmountMin: &lowMin, AmountMax: &lowMax}
	if low.GroupKey() != same.GroupKey() {
		t.Errorf("Expected equal ranges to share a key, got %q vs %q", low.GroupKey(), same.GroupKey())
	}
}

func TestNormalizeVendorKey(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Netflix, Inc.", "netflixinc"},
		{"NET FLIX", "netflix"},
		{"AT&T Wireless", "attwireless"},
		{"  ", ""},
	}

	for _, tt := range tests {
		if got := NormalizeVendorKey(tt.input); got != tt.expected {
			t.Errorf("NormalizeVendorKey(%q): expected %q, got %q", tt.input, tt.expected, got)
		}
	}
}

func TestLedgerTransactionValidate(t *testing.T) {
	tx := &LedgerTransaction{
		ExternalID:     "ext-1",
		AccountID:      "acct-1",
		Amount:         decimal.NewFromFloat(-42.17),
		Description:    "STARBUCKS STORE 0234",
		TransactedAt:   time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC),
		ApprovalStatus: ApprovalPending,
	}

	if err := tx.Validate(); err != nil {
		t.Errorf("Expected valid transaction, got: %v", err)
	}

	if !tx.IsOutflow() || tx.IsInflow() {
		t.Error("Expected negative amount to be an outflow")
	}

	if !tx.AbsAmount().Equal(decimal.NewFromFloat(42.17)) {
		t.Errorf("Expected abs amount 42.17, got %s", tx.AbsAmount())
	}

	bad := *tx
	bad.ExternalID = ""
	if err := bad.Validate(); err == nil {
		t.Error("Expected error for empty external id")
	}
}

func TestParseDecimalFromString(t *testing.T) {
	tests := []struct {
		input     string
		expected  string
		expectErr bool
	}{
		{"12.34", "12.34", false},
		{"$1,234.56", "1234.56", false},
		{" 42 ", "42", false},
		{"", "", true},
		{"abc", "", true},
	}

	for _, tt := range tests {
		got, err := ParseDecimalFromString(tt.input)
		if tt.expectErr {
			if err == nil {
				t.Errorf("ParseDecimalFromString(%q): expected error", tt.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseDecimalFromString(%q): unexpected error: %v", tt.input, err)
			continue
		}
		if got.String() != tt.expected {
			t.Errorf("ParseDecimalFromString(%q): expected %s, got %s", tt.input, tt.expected, got)
		}
	}
}

func TestParseTimeWithFormats(t *testing.T) {
	got, err := ParseTimeWithFormats("2025-03-05")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got.Year() != 2025 || got.Month() != time.March || got.Day() != 5 {
		t.Errorf("Unexpected parsed time: %v", got)
	}

	if _, err := ParseTimeWithFormats("not a date"); err == nil {
		t.Error("Expected error for unparseable time")
	}
}
