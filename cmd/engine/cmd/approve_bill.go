package cmd

import (
	"context"
	"fmt"
	"time"

	"expense-reconciliation-engine/cmd/engine/config"
	"expense-reconciliation-engine/internal/models"
	"expense-reconciliation-engine/internal/notify"
	"expense-reconciliation-engine/internal/reconciler"
	"expense-reconciliation-engine/pkg/logger"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

// Flags for the approve-bill command
var (
	approveVendor        string
	approveAmount        string
	approveDueDate       string
	approvePaid          bool
	approvePaymentMethod string
)

// approveBillCmd represents the approve-bill command
var approveBillCmd = &cobra.Command{
	Use:   "approve-bill",
	Short: "Approve an externally proposed bill into the current period",
	Long: `Approve-bill accepts a bill candidate (typically extracted from a
billing email or statement), fuzzily matches its vendor to a recurring
definition, and materializes the current period's instance the same way
scheduled generation would. An already-generated instance is reused, so
approval never duplicates.

Examples:
  engine approve-bill --vendor "Electric Co" --amount 120.50
  engine approve-bill --vendor "Water Works" --amount 48.20 --paid --payment-method autopay`,
	PreRunE: validateApproveBillFlags,
	RunE:    runApproveBill,
}

func init() {
	rootCmd.AddCommand(approveBillCmd)

	approveBillCmd.Flags().StringVar(&approveVendor, "vendor", "", "vendor name from the proposal (required)")
	approveBillCmd.Flags().StringVar(&approveAmount, "amount", "", "billed amount, decimal")
	approveBillCmd.Flags().StringVar(&approveDueDate, "due-date", "", "due date (YYYY-MM-DD)")
	approveBillCmd.Flags().BoolVar(&approvePaid, "paid", false, "mark the instance paid immediately")
	approveBillCmd.Flags().StringVar(&approvePaymentMethod, "payment-method", "", "payment method noted on the proposal")

	approveBillCmd.MarkFlagRequired("vendor")
}

func validateApproveBillFlags(cmd *cobra.Command, args []string) error {
	if approveVendor == "" {
		return fmt.Errorf("vendor is required")
	}
	if approveAmount != "" {
		if _, err := decimal.NewFromString(approveAmount); err != nil {
			return fmt.Errorf("invalid amount '%s': %w", approveAmount, err)
		}
	}
	if approveDueDate != "" {
		if _, err := time.Parse("2006-01-02", approveDueDate); err != nil {
			return fmt.Errorf("invalid due date format. Use YYYY-MM-DD: %w", err)
		}
	}
	return nil
}

func runApproveBill(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	// Approval never talks to the ledger, so no source is wired.
	log := logger.GetGlobalLogger()
	rec, err := reconciler.New(store, nil, nil, notify.NewLogSink(log),
		config.CreateReconcilerConfig(0, 0), log)
	if err != nil {
		return err
	}

	proposed := &models.ProposedBill{
		Vendor:        approveVendor,
		IsPaid:        approvePaid,
		PaymentMethod: approvePaymentMethod,
	}
	if approveAmount != "" {
		amount, _ := decimal.NewFromString(approveAmount)
		proposed.Amount = &amount
	}
	if approveDueDate != "" {
		due, _ := time.Parse("2006-01-02", approveDueDate)
		proposed.DueDate = &due
	}

	result, err := rec.ApproveProposedBill(ctx, proposed)
	if err != nil {
		return err
	}

	return writeJSON(result)
}
