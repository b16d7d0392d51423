package rules

import (
	"fmt"
	"strings"

	"expense-reconciliation-engine/internal/models"
)

// processorPrefixes are card-network and payment-processor tokens that
// precede the actual vendor text in raw descriptions.
var processorPrefixes = []string{
	"TST*", "TST *", "SQ *", "SQ*", "PAYPAL *", "PAYPAL*", "PP*",
	"POS ", "DEBIT ", "CREDIT ", "ACH ", "CHECKCARD ", "PURCHASE ",
	"RECURRING ", "WEB ", "CARD ",
}

// maxPatternWords limits how much of a cleaned description becomes the
// derived pattern; trailing store numbers and city names add noise, not
// identity.
const maxPatternWords = 3

// DerivePattern reduces a raw transaction description to a matching
// pattern: processor prefixes stripped, long numeric runs dropped, the
// first few significant words kept.
func DerivePattern(description string) string {
	s := strings.ToUpper(strings.TrimSpace(description))

	for changed := true; changed; {
		changed = false
		for _, prefix := range processorPrefixes {
			if strings.HasPrefix(s, prefix) {
				s = strings.TrimSpace(strings.TrimPrefix(s, prefix))
				changed = true
			}
		}
	}

	var words []string
	for _, word := range strings.Fields(s) {
		if isNumericRun(word) {
			continue
		}
		words = append(words, word)
		if len(words) == maxPatternWords {
			break
		}
	}

	return strings.Join(words, " ")
}

// isNumericRun reports whether a word is mostly digits: reference
// numbers, store ids, masked card fragments.
func isNumericRun(word string) bool {
	digits := 0
	for _, r := range word {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	return digits >= 4 || (len(word) > 0 && digits == len(word))
}

// RuleName builds a cosmetic display name for a rule. The name never
// participates in matching or in duplicate detection.
func RuleName(rule *models.TransactionSkipRule) string {
	direction := "transactions"
	if rule.TransactionType != nil {
		switch *rule.TransactionType {
		case models.TransactionIncome:
			direction = "income"
		case models.TransactionExpense:
			direction = "expenses"
		}
	}

	switch rule.Type {
	case models.RuleTypeAccount:
		account := ""
		if rule.AccountID != nil {
			account = *rule.AccountID
		}
		return fmt.Sprintf("Skip %s from account %s", direction, account)
	case models.RuleTypeVendorAmount:
		if rule.Amount != nil {
			return fmt.Sprintf("Skip %s at %s near $%s", direction, rule.Pattern, rule.Amount.StringFixed(2))
		}
		return fmt.Sprintf("Skip %s at %s in amount range", direction, rule.Pattern)
	case models.RuleTypeDescriptionPattern:
		return fmt.Sprintf("Skip %s matching '%s'", direction, rule.Pattern)
	default:
		return fmt.Sprintf("Skip %s at %s", direction, rule.Pattern)
	}
}
