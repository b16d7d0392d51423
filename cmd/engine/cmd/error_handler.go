package cmd

import (
	"fmt"
	"os"

	"expense-reconciliation-engine/pkg/errors"
	"expense-reconciliation-engine/pkg/logger"

	"github.com/spf13/viper"
)

// CLIErrorHandler provides user-friendly error handling for CLI operations
type CLIErrorHandler struct {
	logger  logger.Logger
	verbose bool
}

// NewCLIErrorHandler creates a new CLI error handler
func NewCLIErrorHandler() *CLIErrorHandler {
	return &CLIErrorHandler{
		logger:  logger.GetGlobalLogger().WithComponent("cli"),
		verbose: viper.GetBool("verbose"),
	}
}

// HandleError handles errors and provides user-friendly messages
func (h *CLIErrorHandler) HandleError(err error) int {
	if err == nil {
		return 0
	}

	// Log the error
	h.logger.WithError(err).Error("Command failed")

	// Handle EngineError with detailed information
	if engineErr, ok := errors.AsEngineError(err); ok {
		return h.handleEngineError(engineErr)
	}

	// Handle other error types
	return h.handleGenericError(err)
}

// handleEngineError handles EngineError with detailed context
func (h *CLIErrorHandler) handleEngineError(err *errors.EngineError) int {
	// Print the main error message
	fmt.Fprintf(os.Stderr, "Error: %s\n", err.Message)

	// Add context information if available
	if len(err.Context) > 0 {
		fmt.Fprintf(os.Stderr, "\nContext:\n")
		for key, value := range err.Context {
			fmt.Fprintf(os.Stderr, "  %s: %v\n", key, value)
		}
	}

	// Add suggestion if available
	if err.Suggestion != "" {
		fmt.Fprintf(os.Stderr, "\nSuggestion: %s\n", err.Suggestion)
	}

	// Add category-specific help
	fmt.Fprintf(os.Stderr, "\n%s\n", h.getCategoryHelp(err.Category))

	// Show underlying error in verbose mode
	if h.verbose && err.Cause != nil {
		fmt.Fprintf(os.Stderr, "\nUnderlying error: %v\n", err.Cause)
	}

	return err.GetExitCode()
}

// handleGenericError handles non-EngineError types
func (h *CLIErrorHandler) handleGenericError(err error) int {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)

	if h.verbose {
		fmt.Fprintf(os.Stderr, "\nFor more details, check the logs or run with --verbose flag\n")
	}

	return 1
}

// getCategoryHelp returns category-specific help text
func (h *CLIErrorHandler) getCategoryHelp(category errors.ErrorCategory) string {
	switch category {
	case errors.CategoryValidation:
		return `Validation error help:
• Check that all required fields have values
• Verify amounts are decimal numbers without currency symbols
• Verify dates use YYYY-MM-DD format
• Check that all values are within acceptable ranges`

	case errors.CategoryConfiguration:
		return `Configuration error help:
• Check your command-line flags and arguments
• Verify configuration file syntax if using --config
• Check ENGINE_* environment variables for typos
• Try running with default settings first`

	case errors.CategoryStorage:
		return `Storage error help:
• Check the database path and its directory permissions
• Verify no other process holds the database open
• Check available disk space
• Use --db-path to point at a different database`

	case errors.CategoryLedger:
		return `Ledger error help:
• Check the ledger base URL and API key configuration
• Verify the ledger service is reachable from this host
• Try increasing the request timeout
• Retry later if the service is temporarily unavailable`

	case errors.CategoryGeneration:
		return `Generation error help:
• Check that bill definitions have valid amounts and due days
• Variable-amount bills need at least one paid instance for history
• Verify active participants exist for split calculation
• Use 'engine generate --help' to see windowing options`

	case errors.CategoryReconciliation:
		return `Reconciliation error help:
• Check data quality in the ledger transactions
• Try adjusting matching tolerances (--date-tolerance, --amount-tolerance)
• Verify skip rule patterns against the transaction descriptions
• Re-run 'engine sync' after correcting rules`

	default:
		return `For more help:
• Use 'engine --help' for general help
• Use 'engine <command> --help' for command-specific help
• Run with --verbose for detailed error information`
	}
}
