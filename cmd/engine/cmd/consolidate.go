package cmd

import (
	"context"
	"fmt"
	"os"

	"expense-reconciliation-engine/internal/consolidate"
	"expense-reconciliation-engine/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var consolidateAction string

// consolidateCmd groups the preview/apply subcommands.
var consolidateCmd = &cobra.Command{
	Use:   "consolidate",
	Short: "Detect and merge duplicate skip rules and bill definitions",
	Long: `Consolidate finds skip rules whose normalized patterns collide and
bill definitions sharing a vendor key and category, keeps the best
record of each group, and folds the rest into it. Merged records are
deactivated with an audit reason, never deleted.

Examples:
  engine consolidate preview
  engine consolidate apply --action rules
  engine consolidate apply --action all`,
}

// consolidatePreviewCmd computes duplicate groups without mutating.
var consolidatePreviewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Show the duplicate groups a merge would fold together",
	RunE:  runConsolidatePreview,
}

// consolidateApplyCmd performs the merge.
var consolidateApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Merge duplicate groups for the selected action",
	RunE:  runConsolidateApply,
}

func init() {
	rootCmd.AddCommand(consolidateCmd)
	consolidateCmd.AddCommand(consolidatePreviewCmd)
	consolidateCmd.AddCommand(consolidateApplyCmd)

	consolidateApplyCmd.Flags().StringVar(&consolidateAction, "action", "all", "what to merge: rules, bills, all")
}

func runConsolidatePreview(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	report, err := consolidate.New(store, logger.GetGlobalLogger()).Preview(ctx)
	if err != nil {
		return err
	}

	if report.Empty() && viper.GetBool("verbose") {
		fmt.Fprintf(os.Stderr, "No duplicates found.\n")
	}

	return writeJSON(report)
}

func runConsolidateApply(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	action, err := consolidate.ParseAction(consolidateAction)
	if err != nil {
		return err
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	result, err := consolidate.New(store, logger.GetGlobalLogger()).Apply(ctx, action)
	if err != nil {
		return err
	}

	if viper.GetBool("verbose") {
		fmt.Fprintf(os.Stderr, "Consolidation completed: %d rules merged, %d definitions merged.\n",
			result.RulesMerged, result.DefinitionsMerged)
	}

	return writeJSON(result)
}
