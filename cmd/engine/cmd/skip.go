package cmd

import (
	"context"
	"fmt"

	"expense-reconciliation-engine/internal/models"
	"expense-reconciliation-engine/internal/rules"
	"expense-reconciliation-engine/pkg/errors"
	"expense-reconciliation-engine/pkg/logger"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

// Flags for the skip command
var (
	skipTransactionID string
	skipCreateRule    bool
	skipRuleType      string
	skipPattern       string
	skipScopeAccount  bool
	skipTxType        string
	skipVariancePct   float64
)

// skipCmd represents the skip command
var skipCmd = &cobra.Command{
	Use:   "skip",
	Short: "Skip a pending transaction, optionally deriving a reusable rule",
	Long: `Skip marks a pending ledger transaction as not bill-related. With
--create-rule it also derives a skip rule from the transaction so
future (and current pending) look-alikes are classified automatically.

Examples:
  # One-off manual skip
  engine skip --transaction-id tx-123

  # Derive a vendor rule and re-classify pending transactions
  engine skip --transaction-id tx-123 --create-rule

  # Vendor+amount rule scoped to outflows, with a wider band
  engine skip --transaction-id tx-123 --create-rule \
    --rule-type VENDOR_AMOUNT --transaction-type EXPENSE --variance 10`,
	PreRunE: validateSkipFlags,
	RunE:    runSkip,
}

func init() {
	rootCmd.AddCommand(skipCmd)

	skipCmd.Flags().StringVar(&skipTransactionID, "transaction-id", "", "transaction to skip (required)")
	skipCmd.Flags().BoolVar(&skipCreateRule, "create-rule", false, "derive a reusable skip rule from the transaction")
	skipCmd.Flags().StringVar(&skipRuleType, "rule-type", "", "rule type: VENDOR, VENDOR_AMOUNT, ACCOUNT, DESCRIPTION (default VENDOR)")
	skipCmd.Flags().StringVar(&skipPattern, "pattern", "", "override the derived match pattern")
	skipCmd.Flags().BoolVar(&skipScopeAccount, "scope-account", false, "restrict the rule to the transaction's account")
	skipCmd.Flags().StringVar(&skipTxType, "transaction-type", "", "restrict the rule to INCOME or EXPENSE")
	skipCmd.Flags().Float64Var(&skipVariancePct, "variance", 0, "variance band percentage for VENDOR_AMOUNT rules")

	skipCmd.MarkFlagRequired("transaction-id")
}

func validateSkipFlags(cmd *cobra.Command, args []string) error {
	if skipTransactionID == "" {
		return fmt.Errorf("transaction-id is required")
	}
	if !skipCreateRule {
		for _, set := range []bool{skipRuleType != "", skipPattern != "", skipScopeAccount, skipTxType != "", skipVariancePct != 0} {
			if set {
				return fmt.Errorf("rule flags require --create-rule")
			}
		}
	}
	if skipTxType != "" {
		t := models.TransactionType(skipTxType)
		if t != models.TransactionIncome && t != models.TransactionExpense {
			return fmt.Errorf("invalid transaction type '%s'. Valid types: INCOME, EXPENSE", skipTxType)
		}
	}
	if skipVariancePct < 0 || skipVariancePct > 100 {
		return fmt.Errorf("variance must be between 0 and 100")
	}
	return nil
}

func runSkip(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	txn, err := store.GetTransaction(ctx, skipTransactionID)
	if err != nil {
		return err
	}
	if txn.ApprovalStatus != models.ApprovalPending {
		return errors.ValidationError(errors.CodeInvalidStatus, "transaction", txn.ApprovalStatus, nil).
			WithContext("approval_status", txn.ApprovalStatus).
			WithSuggestion("only PENDING transactions can be skipped")
	}

	if !skipCreateRule {
		// One-off skip: no rule reference, no hit counting.
		if err := store.SkipTransaction(ctx, txn.ID, ""); err != nil {
			return err
		}
		return writeJSON(map[string]interface{}{
			"transactionId": txn.ID,
			"skipped":       true,
		})
	}

	engine := rules.NewEngine(store, logger.GetGlobalLogger())
	result, err := engine.CreateRuleFromTransaction(ctx, txn, buildRuleOptions())
	if err != nil {
		return err
	}

	return writeJSON(result)
}

func buildRuleOptions() rules.CreateRuleOptions {
	opts := rules.CreateRuleOptions{
		Type:           models.RuleType(skipRuleType),
		Pattern:        skipPattern,
		ScopeToAccount: skipScopeAccount,
	}
	if skipTxType != "" {
		t := models.TransactionType(skipTxType)
		opts.TransactionType = &t
	}
	if skipVariancePct > 0 {
		v := decimal.NewFromFloat(skipVariancePct)
		opts.VariancePercent = &v
	}
	return opts
}
