// Package ledger fetches observed transactions from the external
// ledger source (bank aggregation API). The engine never writes to the
// source; it reads, and the reconciler makes ingestion idempotent by
// external id.
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is one transaction as reported by the source, before the
// engine assigns its own id and approval state.
type Transaction struct {
	ExternalID   string          `json:"id"`
	AccountID    string          `json:"accountId"`
	Amount       decimal.Decimal `json:"amount"`
	Description  string          `json:"description"`
	TransactedAt time.Time       `json:"transactedAt"`
	PostedAt     time.Time       `json:"postedAt"`
}

// Source provides transactions per connected account.
type Source interface {
	// Refresh asks the source to pull fresh data for the account. It
	// is a best-effort hint: a failed refresh does not block listing
	// whatever the source already has.
	Refresh(ctx context.Context, accountID string) error

	// ListTransactions returns the account's transactions, most
	// recent window first as the source defines it.
	ListTransactions(ctx context.Context, accountID string) ([]Transaction, error)
}
