package sqlite

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"expense-reconciliation-engine/internal/models"
	"expense-reconciliation-engine/pkg/errors"
)

const transactionColumns = `SELECT id, external_id, account_id, amount, description,
       transacted_at, posted_at, approval_status, resolved_by_rule_id, matched_instance_id
  FROM ledger_transactions`

// UpsertTransaction inserts the transaction unless its external id is
// already known. Returns whether a row was inserted; re-fetching the
// same transaction is a no-op.
func (s *SQLiteStore) UpsertTransaction(ctx context.Context, txn *models.LedgerTransaction) (bool, error) {
	if err := txn.Validate(); err != nil {
		return false, errors.ValidationError(errors.CodeMissingField, "ledger transaction", txn.ExternalID, err)
	}

	if txn.ID == "" {
		txn.ID = uuid.New().String()
	}
	if txn.ApprovalStatus == "" {
		txn.ApprovalStatus = models.ApprovalPending
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO ledger_transactions
		 (id, external_id, account_id, amount, description, transacted_at, posted_at,
		  approval_status, resolved_by_rule_id, matched_instance_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(external_id) DO NOTHING`,
		txn.ID, txn.ExternalID, txn.AccountID, txn.Amount.String(), txn.Description,
		fmtTime(txn.TransactedAt), nullTime(txn.PostedAt), string(txn.ApprovalStatus),
		nullString(txn.ResolvedByRuleID), nullString(txn.MatchedInstanceID),
	)
	if err != nil {
		return false, errors.StorageError(errors.CodeStorageFailure, "ledger transaction", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.StorageError(errors.CodeStorageFailure, "ledger transaction", err)
	}

	return n > 0, nil
}

// GetTransaction retrieves a transaction by engine id.
func (s *SQLiteStore) GetTransaction(ctx context.Context, id string) (*models.LedgerTransaction, error) {
	txn, err := scanTransaction(s.db.QueryRowContext(ctx,
		transactionColumns+` WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, errors.StorageError(errors.CodeRecordNotFound, "ledger transaction", nil).
			WithContext("id", id)
	}
	if err != nil {
		return nil, errors.StorageError(errors.CodeStorageFailure, "ledger transaction", err)
	}
	return txn, nil
}

// ListPendingTransactions returns transactions still awaiting
// classification or review, oldest first.
func (s *SQLiteStore) ListPendingTransactions(ctx context.Context) ([]*models.LedgerTransaction, error) {
	rows, err := s.db.QueryContext(ctx,
		transactionColumns+` WHERE approval_status = ? ORDER BY transacted_at, id`,
		string(models.ApprovalPending))
	if err != nil {
		return nil, errors.StorageError(errors.CodeStorageFailure, "ledger transactions", err)
	}
	defer rows.Close()

	var txns []*models.LedgerTransaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, errors.StorageError(errors.CodeStorageFailure, "ledger transaction row", err)
		}
		txns = append(txns, txn)
	}

	return txns, rows.Err()
}

// SkipTransaction marks the transaction SKIPPED, records the resolving
// rule and increments that rule's hit counter, all in one transaction.
// An empty ruleID is a one-off manual skip: no rule reference, no hit.
func (s *SQLiteStore) SkipTransaction(ctx context.Context, transactionID, ruleID string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var ruleRef interface{}
		if ruleID != "" {
			ruleRef = ruleID
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE ledger_transactions SET approval_status = ?, resolved_by_rule_id = ? WHERE id = ?`,
			string(models.ApprovalSkipped), ruleRef, transactionID)
		if err != nil {
			return errors.StorageError(errors.CodeStorageFailure, "ledger transaction", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return errors.StorageError(errors.CodeRecordNotFound, "ledger transaction", nil).
				WithContext("id", transactionID)
		}

		if ruleID != "" {
			res, err = tx.ExecContext(ctx,
				`UPDATE skip_rules SET hit_count = hit_count + 1 WHERE id = ?`, ruleID)
			if err != nil {
				return errors.StorageError(errors.CodeStorageFailure, "skip rule", err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return errors.StorageError(errors.CodeRecordNotFound, "skip rule", nil).
					WithContext("id", ruleID)
			}
		}

		return nil
	})
}

// AttachTransactionToInstance links the transaction to the instance it
// settles: transaction APPROVED, instance PAID with the settling
// transaction recorded, splits cascaded to PAID.
func (s *SQLiteStore) AttachTransactionToInstance(ctx context.Context, transactionID, instanceID string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE ledger_transactions SET approval_status = ?, matched_instance_id = ? WHERE id = ?`,
			string(models.ApprovalApproved), instanceID, transactionID)
		if err != nil {
			return errors.StorageError(errors.CodeStorageFailure, "ledger transaction", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return errors.StorageError(errors.CodeRecordNotFound, "ledger transaction", nil).
				WithContext("id", transactionID)
		}

		res, err = tx.ExecContext(ctx,
			`UPDATE bill_instances SET status = ?, settled_transaction_id = ? WHERE id = ?`,
			string(models.InstancePaid), transactionID, instanceID)
		if err != nil {
			return errors.StorageError(errors.CodeStorageFailure, "bill instance", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return errors.StorageError(errors.CodeRecordNotFound, "bill instance", nil).
				WithContext("id", instanceID)
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE bill_splits SET status = ? WHERE instance_id = ?`,
			string(models.InstancePaid), instanceID)
		if err != nil {
			return errors.StorageError(errors.CodeStorageFailure, "bill splits", err)
		}

		return nil
	})
}

func scanTransaction(row rowScanner) (*models.LedgerTransaction, error) {
	var txn models.LedgerTransaction
	var amount, transactedAt, status string
	var postedAt, ruleID, instanceID sql.NullString

	err := row.Scan(&txn.ID, &txn.ExternalID, &txn.AccountID, &amount, &txn.Description,
		&transactedAt, &postedAt, &status, &ruleID, &instanceID)
	if err != nil {
		return nil, err
	}

	txn.Amount = parseDecimal(amount)
	txn.TransactedAt = parseTime(transactedAt)
	txn.PostedAt = timeVal(postedAt)
	txn.ApprovalStatus = models.ApprovalStatus(status)
	txn.ResolvedByRuleID = stringPtr(ruleID)
	txn.MatchedInstanceID = stringPtr(instanceID)

	return &txn, nil
}
