package cmd

import (
	"context"
	"fmt"
	"os"

	"expense-reconciliation-engine/internal/reconciler"
	"expense-reconciliation-engine/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flags for the sync command
var (
	syncAccountID       string
	syncAmountTolerance float64
	syncDateTolerance   int
)

// syncCmd represents the sync command
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync ledger transactions and reconcile them against open bills",
	Long: `Sync pulls transactions from the configured ledger source, ingests the
new ones, classifies them through the skip rules, and attaches matching
outflows to open bill instances. Ingestion is idempotent, so the
command is safe to re-run.

Examples:
  # All known accounts
  engine sync

  # One account with looser matching
  engine sync --account-id acc-checking --amount-tolerance 10 --date-tolerance 14`,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().StringVar(&syncAccountID, "account-id", "", "restrict the pass to one ledger account")
	syncCmd.Flags().Float64Var(&syncAmountTolerance, "amount-tolerance", 0, "amount tolerance percentage for attachment")
	syncCmd.Flags().IntVar(&syncDateTolerance, "date-tolerance", 0, "date tolerance in days for attachment")
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	log := logger.GetGlobalLogger()
	rec, err := buildReconciler(store, log)
	if err != nil {
		return err
	}

	result, err := rec.Sync(ctx, reconciler.SyncRequest{AccountID: syncAccountID})
	if err != nil {
		return err
	}

	if viper.GetBool("verbose") {
		fmt.Fprintf(os.Stderr, "Sync completed: %d fetched, %d new, %d skipped, %d attached across %d accounts.\n",
			result.Fetched, result.New, result.Skipped, result.Attached, len(result.Accounts))
		for _, accErr := range result.Errors {
			fmt.Fprintf(os.Stderr, "Account error: %v\n", accErr)
		}
	}

	return writeJSON(result)
}
