// Package errors provides structured error types for the expense
// reconciliation engine.
//
// Every error carries a category, a machine-readable code, optional
// context values and a human-oriented suggestion. Batch operations in
// the engine never abort on a single bad record; they collect
// EngineError values per item and report them in the run result.
package errors

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ErrorCategory represents different categories of errors
type ErrorCategory string

const (
	CategoryValidation     ErrorCategory = "validation"
	CategoryConfiguration  ErrorCategory = "configuration"
	CategoryStorage        ErrorCategory = "storage"
	CategoryLedger         ErrorCategory = "ledger"
	CategoryGeneration     ErrorCategory = "generation"
	CategoryReconciliation ErrorCategory = "reconciliation"
	CategoryInternal       ErrorCategory = "internal"
)

// ErrorCode represents specific error codes within categories
type ErrorCode string

const (
	// Validation errors
	CodeInvalidAmount  ErrorCode = "invalid_amount"
	CodeInvalidDate    ErrorCode = "invalid_date"
	CodeMissingField   ErrorCode = "missing_field"
	CodeSplitMismatch  ErrorCode = "split_mismatch"
	CodeInvalidPattern ErrorCode = "invalid_pattern"
	CodeInvalidStatus  ErrorCode = "invalid_status"

	// Configuration errors
	CodeInvalidConfig    ErrorCode = "invalid_config"
	CodeMissingConfig    ErrorCode = "missing_config"
	CodeUnknownFrequency ErrorCode = "unknown_frequency"
	CodeNoParticipants   ErrorCode = "no_participants"

	// Storage errors
	CodeDuplicateRecord ErrorCode = "duplicate_record"
	CodeRecordNotFound  ErrorCode = "record_not_found"
	CodeStorageFailure  ErrorCode = "storage_failure"

	// Ledger source errors
	CodeLedgerUnavailable ErrorCode = "ledger_unavailable"
	CodeLedgerTimeout     ErrorCode = "ledger_timeout"
	CodeLedgerResponse    ErrorCode = "ledger_response"

	// Generation errors
	CodeUnknownVariableAmount ErrorCode = "unknown_variable_amount"
	CodePeriodNotApplicable   ErrorCode = "period_not_applicable"

	// Reconciliation errors
	CodeClassificationFailed ErrorCode = "classification_failed"
	CodeAttachmentFailed     ErrorCode = "attachment_failed"
	CodeSyncBusy             ErrorCode = "sync_busy"

	// Internal errors
	CodeUnexpectedError ErrorCode = "unexpected_error"
)

// EngineError is the base error type for all engine errors
type EngineError struct {
	Category   ErrorCategory     `json:"category"`
	Code       ErrorCode         `json:"code"`
	Message    string            `json:"message"`
	Suggestion string            `json:"suggestion,omitempty"`
	Context    Context           `json:"context,omitempty"`
	Cause      error             `json:"-"`
	StackTrace errors.StackTrace `json:"-"`
}

// Context provides additional information about the error
type Context map[string]interface{}

// Error implements the error interface
func (e *EngineError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s (suggestion: %s)", e.Message, e.Suggestion)
	}
	return e.Message
}

// Unwrap returns the underlying cause error
func (e *EngineError) Unwrap() error {
	return e.Cause
}

// GetExitCode returns an appropriate exit code for the error
func (e *EngineError) GetExitCode() int {
	switch e.Category {
	case CategoryValidation:
		return 2
	case CategoryConfiguration:
		return 3
	case CategoryStorage:
		return 4
	case CategoryGeneration, CategoryReconciliation, CategoryInternal:
		return 5
	case CategoryLedger:
		return 6
	default:
		return 1
	}
}

// WithContext adds context information to the error
func (e *EngineError) WithContext(key string, value interface{}) *EngineError {
	if e.Context == nil {
		e.Context = make(Context)
	}
	e.Context[key] = value
	return e
}

// WithSuggestion adds a suggestion for fixing the error
func (e *EngineError) WithSuggestion(suggestion string) *EngineError {
	e.Suggestion = suggestion
	return e
}

// New creates a new EngineError
func New(category ErrorCategory, code ErrorCode, message string) *EngineError {
	return &EngineError{
		Category:   category,
		Code:       code,
		Message:    message,
		StackTrace: errors.New("").(stackTracer).StackTrace(),
	}
}

// Wrap wraps an existing error with EngineError context
func Wrap(err error, category ErrorCategory, code ErrorCode, message string) *EngineError {
	if err == nil {
		return nil
	}

	return &EngineError{
		Category:   category,
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: errors.WithStack(err).(stackTracer).StackTrace(),
	}
}

// stackTracer interface for extracting stack traces
type stackTracer interface {
	StackTrace() errors.StackTrace
}

// AsEngineError attempts to extract an EngineError from an error chain
func AsEngineError(err error) (*EngineError, bool) {
	for err != nil {
		if engineErr, ok := err.(*EngineError); ok {
			return engineErr, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil, false
		}
		err = u.Unwrap()
	}
	return nil, false
}

// AsEngineErrorOr extracts the EngineError from the chain, wrapping
// foreign errors as internal so per-item results always carry a
// structured error.
func AsEngineErrorOr(err error) *EngineError {
	if err == nil {
		return nil
	}
	if engineErr, ok := AsEngineError(err); ok {
		return engineErr
	}
	return InternalError(CodeUnexpectedError, "operation", err)
}

// IsCode reports whether err carries the given engine error code
func IsCode(err error, code ErrorCode) bool {
	engineErr, ok := AsEngineError(err)
	return ok && engineErr.Code == code
}

// Specific error constructors

// ValidationError creates a validation-related error
func ValidationError(code ErrorCode, field string, value interface{}, err error) *EngineError {
	var message string
	var suggestion string

	switch code {
	case CodeInvalidAmount:
		message = fmt.Sprintf("invalid amount in field '%s': %v", field, value)
		suggestion = "ensure amounts are valid decimal numbers (e.g., '12.34')"
	case CodeInvalidDate:
		message = fmt.Sprintf("invalid date in field '%s': %v", field, value)
		suggestion = "use date format YYYY-MM-DD"
	case CodeMissingField:
		message = fmt.Sprintf("required field '%s' is missing or empty", field)
		suggestion = "provide a value for this required field"
	case CodeSplitMismatch:
		message = fmt.Sprintf("split amounts do not sum to the instance total for '%s': %v", field, value)
		suggestion = "check participant percentages and override amounts"
	case CodeInvalidPattern:
		message = fmt.Sprintf("invalid rule pattern in field '%s': %v", field, value)
		suggestion = "provide a non-empty matching pattern"
	case CodeInvalidStatus:
		message = fmt.Sprintf("operation not allowed for the current status of '%s': %v", field, value)
		suggestion = "check the record's current status before retrying"
	default:
		message = fmt.Sprintf("validation error in field '%s': %v", field, value)
		suggestion = "check the field value and format"
	}

	var result *EngineError
	if err != nil {
		result = Wrap(err, CategoryValidation, code, message)
	} else {
		result = New(CategoryValidation, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("field", field).
		WithContext("value", value)
}

// ConfigurationError creates a configuration-related error
func ConfigurationError(code ErrorCode, setting string, value interface{}, err error) *EngineError {
	var message string
	var suggestion string

	switch code {
	case CodeInvalidConfig:
		message = fmt.Sprintf("invalid configuration for '%s': %v", setting, value)
		suggestion = "check the configuration documentation for valid values"
	case CodeMissingConfig:
		message = fmt.Sprintf("missing required configuration: %s", setting)
		suggestion = "provide this configuration setting or use a config file"
	case CodeUnknownFrequency:
		message = fmt.Sprintf("unknown billing frequency for '%s': %v", setting, value)
		suggestion = "use one of MONTHLY, QUARTERLY or ANNUAL"
	case CodeNoParticipants:
		message = fmt.Sprintf("no participants available to split '%s'", setting)
		suggestion = "add default participants to the definition or activate sharing participants"
	default:
		message = fmt.Sprintf("configuration error: %s", setting)
		suggestion = "check your configuration and try again"
	}

	var result *EngineError
	if err != nil {
		result = Wrap(err, CategoryConfiguration, code, message)
	} else {
		result = New(CategoryConfiguration, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("setting", setting).
		WithContext("value", value)
}

// StorageError creates a storage-related error
func StorageError(code ErrorCode, entity string, err error) *EngineError {
	var message string
	var suggestion string

	switch code {
	case CodeDuplicateRecord:
		message = fmt.Sprintf("duplicate %s rejected by uniqueness constraint", entity)
		suggestion = "the record already exists; re-running is safe"
	case CodeRecordNotFound:
		message = fmt.Sprintf("%s not found", entity)
		suggestion = "check the identifier and try again"
	case CodeStorageFailure:
		message = fmt.Sprintf("storage operation failed for %s", entity)
		suggestion = "check database availability and permissions"
	default:
		message = fmt.Sprintf("storage error for %s", entity)
		suggestion = "check the database and try again"
	}

	var result *EngineError
	if err != nil {
		result = Wrap(err, CategoryStorage, code, message)
	} else {
		result = New(CategoryStorage, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("entity", entity)
}

// LedgerError creates an external ledger source error
func LedgerError(code ErrorCode, accountID string, err error) *EngineError {
	var message string
	var suggestion string

	switch code {
	case CodeLedgerUnavailable:
		message = fmt.Sprintf("ledger source unavailable for account %s", accountID)
		suggestion = "check connectivity to the ledger API; the account will be retried next run"
	case CodeLedgerTimeout:
		message = fmt.Sprintf("ledger source timed out for account %s", accountID)
		suggestion = "increase the ledger timeout or check network speed"
	case CodeLedgerResponse:
		message = fmt.Sprintf("unexpected ledger response for account %s", accountID)
		suggestion = "check the ledger API contract and credentials"
	default:
		message = fmt.Sprintf("ledger error for account %s", accountID)
		suggestion = "check the ledger source and try again"
	}

	var result *EngineError
	if err != nil {
		result = Wrap(err, CategoryLedger, code, message)
	} else {
		result = New(CategoryLedger, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("account_id", accountID)
}

// GenerationError creates a bill instance generation error
func GenerationError(code ErrorCode, definitionID, periodKey string, err error) *EngineError {
	var message string
	var suggestion string

	switch code {
	case CodeUnknownVariableAmount:
		message = fmt.Sprintf("no amount estimate for variable definition %s in period %s", definitionID, periodKey)
		suggestion = "variable amounts need a prior paid instance; the instance will appear when a real transaction is observed"
	case CodePeriodNotApplicable:
		message = fmt.Sprintf("period %s is not applicable for definition %s", periodKey, definitionID)
		suggestion = "quarterly definitions only bill in Jan/Apr/Jul/Oct; annual in their due month"
	default:
		message = fmt.Sprintf("generation error for definition %s period %s", definitionID, periodKey)
		suggestion = "check the definition configuration"
	}

	var result *EngineError
	if err != nil {
		result = Wrap(err, CategoryGeneration, code, message)
	} else {
		result = New(CategoryGeneration, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("definition_id", definitionID).
		WithContext("period_key", periodKey)
}

// ReconciliationError creates a reconciliation-related error
func ReconciliationError(code ErrorCode, operation string, err error) *EngineError {
	var message string
	var suggestion string

	switch code {
	case CodeClassificationFailed:
		message = fmt.Sprintf("skip rule classification failed during %s", operation)
		suggestion = "check the skip rules for invalid patterns"
	case CodeAttachmentFailed:
		message = fmt.Sprintf("instance attachment failed during %s", operation)
		suggestion = "the transaction remains pending for manual review"
	case CodeSyncBusy:
		message = fmt.Sprintf("a %s pass is already running; trigger dropped", operation)
		suggestion = "wait for the in-flight pass to finish before triggering again"
	default:
		message = fmt.Sprintf("reconciliation error during %s", operation)
		suggestion = "review the data and configuration"
	}

	var result *EngineError
	if err != nil {
		result = Wrap(err, CategoryReconciliation, code, message)
	} else {
		result = New(CategoryReconciliation, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("operation", operation)
}

// InternalError creates an internal error
func InternalError(code ErrorCode, operation string, err error) *EngineError {
	message := fmt.Sprintf("unexpected error during %s", operation)
	suggestion := "this is likely a bug - please report it with the error details"

	var result *EngineError
	if err != nil {
		result = Wrap(err, CategoryInternal, code, message)
	} else {
		result = New(CategoryInternal, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("operation", operation)
}

// ErrorSummary provides a summary of multiple errors
type ErrorSummary struct {
	Total      int                   `json:"total"`
	ByCategory map[ErrorCategory]int `json:"by_category"`
	ByCode     map[ErrorCode]int     `json:"by_code"`
	Errors     []*EngineError        `json:"errors"`
}

// NewErrorSummary creates a new error summary
func NewErrorSummary(errs []*EngineError) *ErrorSummary {
	summary := &ErrorSummary{
		Total:      len(errs),
		ByCategory: make(map[ErrorCategory]int),
		ByCode:     make(map[ErrorCode]int),
		Errors:     errs,
	}

	for _, err := range errs {
		summary.ByCategory[err.Category]++
		summary.ByCode[err.Code]++
	}

	return summary
}

// String returns a human-readable summary
func (s *ErrorSummary) String() string {
	if s.Total == 0 {
		return "no errors"
	}

	var parts []string
	for category, count := range s.ByCategory {
		parts = append(parts, fmt.Sprintf("%s: %d", category, count))
	}

	return fmt.Sprintf("%d errors (%s)", s.Total, strings.Join(parts, ", "))
}
