package ledger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	"expense-reconciliation-engine/pkg/errors"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(&ClientConfig{
		BaseURL: server.URL,
		APIKey:  "test-key",
		Timeout: DefaultClientConfig().Timeout,
	}, nil)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	return client
}

func TestListTransactions(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/accounts/acct-1/transactions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("unexpected auth header: %s", auth)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"id": "ext-1", "amount": "-12.50", "description": "COFFEE SHOP", "transactedAt": "2026-03-02"},
			{"id": "ext-2", "amount": "not-a-number", "description": "BROKEN", "transactedAt": "2026-03-03"},
			{"id": "ext-3", "accountId": "acct-1", "amount": "1500.00", "description": "PAYROLL", "transactedAt": "2026-03-05T09:00:00Z", "postedAt": "2026-03-06"}
		]`))
	})

	got, err := client.ListTransactions(context.Background(), "acct-1")
	if err != nil {
		t.Fatalf("ListTransactions failed: %v", err)
	}

	// The malformed record is dropped, not fatal.
	if len(got) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(got))
	}

	if got[0].ExternalID != "ext-1" || !got[0].Amount.Equal(decimal.NewFromFloat(-12.50)) {
		t.Errorf("unexpected first transaction: %+v", got[0])
	}
	if got[0].AccountID != "acct-1" {
		t.Errorf("expected requested account to backfill accountId, got %s", got[0].AccountID)
	}
	if got[1].PostedAt.IsZero() {
		t.Error("expected postedAt to be parsed")
	}
}

func TestListTransactionsBadStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	})

	_, err := client.ListTransactions(context.Background(), "acct-1")
	if !errors.IsCode(err, errors.CodeLedgerResponse) {
		t.Errorf("expected ledger-response error, got %v", err)
	}
}

func TestRefreshBestEffort(t *testing.T) {
	called := false
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		w.WriteHeader(http.StatusAccepted)
	})

	if err := client.Refresh(context.Background(), "acct-1"); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if !called {
		t.Error("expected the refresh endpoint to be hit")
	}
}

func TestClientConfigValidation(t *testing.T) {
	if _, err := NewClient(&ClientConfig{Timeout: DefaultClientConfig().Timeout}, nil); err == nil {
		t.Error("expected an error for a missing base URL")
	}
	if _, err := NewClient(&ClientConfig{BaseURL: "http://x", Timeout: 0}, nil); err == nil {
		t.Error("expected an error for a zero timeout")
	}
}
