package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"expense-reconciliation-engine/internal/models"
	"expense-reconciliation-engine/pkg/errors"
	"expense-reconciliation-engine/pkg/logger"
)

// ClientConfig holds HTTP ledger source options.
type ClientConfig struct {
	BaseURL string        `json:"base_url"`
	APIKey  string        `json:"api_key"`
	Timeout time.Duration `json:"timeout"`
}

// DefaultClientConfig returns sane client defaults.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		Timeout: 30 * time.Second,
	}
}

// Validate checks the configuration for errors.
func (c *ClientConfig) Validate() error {
	if c.BaseURL == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "ledger.base_url", nil, nil)
	}
	if _, err := url.Parse(c.BaseURL); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "ledger.base_url", c.BaseURL, err)
	}
	if c.Timeout <= 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "ledger.timeout", c.Timeout, nil)
	}
	return nil
}

// Client is the HTTP implementation of Source.
type Client struct {
	config *ClientConfig
	http   *http.Client
	logger logger.Logger
}

var _ Source = (*Client)(nil)

// NewClient creates an HTTP ledger source client.
func NewClient(config *ClientConfig, log logger.Logger) (*Client, error) {
	if config == nil {
		config = DefaultClientConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	return &Client{
		config: config,
		http:   &http.Client{Timeout: config.Timeout},
		logger: log.WithComponent("ledger"),
	}, nil
}

// Refresh implements Source. Errors are returned for the caller to
// log; the reconciler treats them as non-fatal.
func (c *Client) Refresh(ctx context.Context, accountID string) error {
	endpoint := fmt.Sprintf("%s/accounts/%s/refresh", c.config.BaseURL, url.PathEscape(accountID))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return errors.LedgerError(errors.CodeLedgerUnavailable, accountID, err)
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return c.requestError(ctx, accountID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return errors.LedgerError(errors.CodeLedgerResponse, accountID, nil).
			WithContext("status", resp.StatusCode)
	}

	return nil
}

// wireTransaction is the source's JSON shape; amounts arrive as
// strings to avoid float rounding on the wire.
type wireTransaction struct {
	ID           string `json:"id"`
	AccountID    string `json:"accountId"`
	Amount       string `json:"amount"`
	Description  string `json:"description"`
	TransactedAt string `json:"transactedAt"`
	PostedAt     string `json:"postedAt"`
}

// ListTransactions implements Source.
func (c *Client) ListTransactions(ctx context.Context, accountID string) ([]Transaction, error) {
	endpoint := fmt.Sprintf("%s/accounts/%s/transactions", c.config.BaseURL, url.PathEscape(accountID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.LedgerError(errors.CodeLedgerUnavailable, accountID, err)
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.requestError(ctx, accountID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.LedgerError(errors.CodeLedgerResponse, accountID, nil).
			WithContext("status", resp.StatusCode)
	}

	var wire []wireTransaction
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, errors.LedgerError(errors.CodeLedgerResponse, accountID, err)
	}

	transactions := make([]Transaction, 0, len(wire))
	for _, w := range wire {
		txn, err := w.toTransaction(accountID)
		if err != nil {
			// One malformed record never discards the batch.
			c.logger.WithError(err).WithFields(logger.Fields{
				"account_id":  accountID,
				"external_id": w.ID,
			}).Warn("dropping malformed ledger transaction")
			continue
		}
		transactions = append(transactions, txn)
	}

	return transactions, nil
}

func (w wireTransaction) toTransaction(accountID string) (Transaction, error) {
	amount, err := models.ParseDecimalFromString(w.Amount)
	if err != nil {
		return Transaction{}, fmt.Errorf("amount: %w", err)
	}

	transactedAt, err := models.ParseTimeWithFormats(w.TransactedAt)
	if err != nil {
		return Transaction{}, fmt.Errorf("transactedAt: %w", err)
	}

	var postedAt time.Time
	if w.PostedAt != "" {
		postedAt, err = models.ParseTimeWithFormats(w.PostedAt)
		if err != nil {
			return Transaction{}, fmt.Errorf("postedAt: %w", err)
		}
	}

	account := w.AccountID
	if account == "" {
		account = accountID
	}

	return Transaction{
		ExternalID:   w.ID,
		AccountID:    account,
		Amount:       amount,
		Description:  w.Description,
		TransactedAt: transactedAt,
		PostedAt:     postedAt,
	}, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}
}

// requestError distinguishes timeouts from plain unavailability so the
// operator suggestion is accurate.
func (c *Client) requestError(ctx context.Context, accountID string, err error) error {
	if ctx.Err() == context.DeadlineExceeded {
		return errors.LedgerError(errors.CodeLedgerTimeout, accountID, err)
	}
	return errors.LedgerError(errors.CodeLedgerUnavailable, accountID, err)
}
