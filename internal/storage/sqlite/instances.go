package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"expense-reconciliation-engine/internal/models"
	"expense-reconciliation-engine/pkg/errors"
)

// CreateInstanceWithSplits persists an instance and its splits
// atomically. A second instance for the same (definition, period) pair
// hits the unique constraint and is reported as a duplicate record.
func (s *SQLiteStore) CreateInstanceWithSplits(ctx context.Context, inst *models.BillInstance, splits []*models.BillSplit) error {
	if err := inst.Validate(); err != nil {
		return errors.ValidationError(errors.CodeMissingField, "bill instance", inst.PeriodKey, err)
	}

	if inst.ID == "" {
		inst.ID = uuid.New().String()
	}
	if inst.CreatedAt.IsZero() {
		inst.CreatedAt = time.Now().UTC()
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO bill_instances
			 (id, definition_id, period_key, amount, due_date, status, settled_transaction_id, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			inst.ID, inst.DefinitionID, inst.PeriodKey, inst.Amount.String(),
			fmtTime(inst.DueDate), string(inst.Status), nullString(inst.SettledTransactionID),
			fmtTime(inst.CreatedAt),
		)
		if isUniqueViolation(err) {
			return errors.StorageError(errors.CodeDuplicateRecord, "bill instance", err).
				WithContext("definition_id", inst.DefinitionID).
				WithContext("period_key", inst.PeriodKey)
		}
		if err != nil {
			return errors.StorageError(errors.CodeStorageFailure, "bill instance", err)
		}

		for _, split := range splits {
			if split.ID == "" {
				split.ID = uuid.New().String()
			}
			split.InstanceID = inst.ID
			if split.Status == "" {
				split.Status = models.InstancePending
			}

			_, err := tx.ExecContext(ctx,
				`INSERT INTO bill_splits (id, instance_id, participant_id, amount, percent, status)
				 VALUES (?, ?, ?, ?, ?, ?)`,
				split.ID, split.InstanceID, split.ParticipantID, split.Amount.String(),
				nullDecimal(split.Percent), string(split.Status),
			)
			if err != nil {
				return errors.StorageError(errors.CodeStorageFailure, "bill split", err)
			}
		}

		return nil
	})
}

// GetInstanceByDefinitionPeriod returns the instance for the pair, or
// (nil, nil) when none exists.
func (s *SQLiteStore) GetInstanceByDefinitionPeriod(ctx context.Context, definitionID, periodKey string) (*models.BillInstance, error) {
	inst, err := scanInstance(s.db.QueryRowContext(ctx,
		instanceColumns+` WHERE definition_id = ? AND period_key = ?`,
		definitionID, periodKey))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.StorageError(errors.CodeStorageFailure, "bill instance", err)
	}
	return inst, nil
}

// ListInstancesByDefinition returns a definition's instances, newest
// period first.
func (s *SQLiteStore) ListInstancesByDefinition(ctx context.Context, definitionID string) ([]*models.BillInstance, error) {
	return s.queryInstances(ctx,
		instanceColumns+` WHERE definition_id = ? ORDER BY period_key DESC`,
		definitionID)
}

// ListOpenInstances returns PENDING and OVERDUE instances, oldest due
// date first.
func (s *SQLiteStore) ListOpenInstances(ctx context.Context) ([]*models.BillInstance, error) {
	return s.queryInstances(ctx,
		instanceColumns+` WHERE status IN (?, ?) ORDER BY due_date, id`,
		string(models.InstancePending), string(models.InstanceOverdue))
}

// LatestPaidAmount returns the amount of the definition's most
// recently paid instance, or nil when none has been paid.
func (s *SQLiteStore) LatestPaidAmount(ctx context.Context, definitionID string) (*decimal.Decimal, error) {
	var amount string
	err := s.db.QueryRowContext(ctx,
		`SELECT amount FROM bill_instances
		 WHERE definition_id = ? AND status = ?
		 ORDER BY period_key DESC LIMIT 1`,
		definitionID, string(models.InstancePaid)).Scan(&amount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.StorageError(errors.CodeStorageFailure, "paid bill instance", err)
	}

	d := parseDecimal(amount)
	return &d, nil
}

// CountInstances returns how many instances a definition owns.
func (s *SQLiteStore) CountInstances(ctx context.Context, definitionID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM bill_instances WHERE definition_id = ?`, definitionID).Scan(&n)
	if err != nil {
		return 0, errors.StorageError(errors.CodeStorageFailure, "bill instances", err)
	}
	return n, nil
}

// MarkOverdueInstances flips PENDING instances past their due date to
// OVERDUE, returning how many changed.
func (s *SQLiteStore) MarkOverdueInstances(ctx context.Context, asOf time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE bill_instances SET status = ? WHERE status = ? AND due_date < ?`,
		string(models.InstanceOverdue), string(models.InstancePending), fmtTime(asOf))
	if err != nil {
		return 0, errors.StorageError(errors.CodeStorageFailure, "bill instances", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.StorageError(errors.CodeStorageFailure, "bill instances", err)
	}
	return int(n), nil
}

// MarkInstancePaid flips an instance and its splits to PAID without a
// settling transaction, for bills confirmed out of band.
func (s *SQLiteStore) MarkInstancePaid(ctx context.Context, instanceID string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE bill_instances SET status = ? WHERE id = ?`,
			string(models.InstancePaid), instanceID)
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

// GetSplits returns an instance's splits in creation order.
func (s *SQLiteStore) GetSplits(ctx context.Context, instanceID string) ([]*models.BillSplit, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, instance_id, participant_id, amount, percent, status
		 FROM bill_splits WHERE instance_id = ? ORDER BY rowid`, instanceID)
	if err != nil {
		return nil, errors.StorageError(errors.CodeStorageFailure, "bill splits", err)
	}
	defer rows.Close()

	var splits []*models.BillSplit
	for rows.Next() {
		var split models.BillSplit
		var amount, status string
		var percent sql.NullString
		if err := rows.Scan(&split.ID, &split.InstanceID, &split.ParticipantID, &amount, &percent, &status); err != nil {
			return nil, errors.StorageError(errors.CodeStorageFailure, "bill split row", err)
		}
		split.Amount = parseDecimal(amount)
		split.Percent = decimalPtr(percent)
		split.Status = models.InstanceStatus(status)
		splits = append(splits, &split)
	}

	return splits, rows.Err()
}

// MigrateInstances moves all instances from one definition to another.
// Periods the target already owns are left behind on the source so the
// historical record stays intact, only conflict-free rows move.
func (s *SQLiteStore) MigrateInstances(ctx context.Context, fromDefinitionID, toDefinitionID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE bill_instances SET definition_id = ?
		 WHERE definition_id = ?
		   AND period_key NOT IN (
		       SELECT period_key FROM bill_instances WHERE definition_id = ?
		   )`,
		toDefinitionID, fromDefinitionID, toDefinitionID)
	if err != nil {
		return 0, errors.StorageError(errors.CodeStorageFailure, "bill instance migration", err)
	}

	return res.RowsAffected()
}

// MigrateDefinitionParticipants copies participant rows from one
// definition to another, skipping participants already present.
func (s *SQLiteStore) MigrateDefinitionParticipants(ctx context.Context, fromDefinitionID, toDefinitionID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO definition_participants (definition_id, participant_id, percent)
		 SELECT ?, participant_id, percent FROM definition_participants WHERE definition_id = ?`,
		toDefinitionID, fromDefinitionID)
	if err != nil {
		return 0, errors.StorageError(errors.CodeStorageFailure, "definition participant migration", err)
	}

	return res.RowsAffected()
}

const instanceColumns = `SELECT id, definition_id, period_key, amount, due_date, status, settled_transaction_id, created_at FROM bill_instances`

func (s *SQLiteStore) queryInstances(ctx context.Context, query string, args ...interface{}) ([]*models.BillInstance, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.StorageError(errors.CodeStorageFailure, "bill instances", err)
	}
	defer rows.Close()

	var instances []*models.BillInstance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, errors.StorageError(errors.CodeStorageFailure, "bill instance row", err)
		}
		instances = append(instances, inst)
	}

	return instances, rows.Err()
}

func scanInstance(row rowScanner) (*models.BillInstance, error) {
	var inst models.BillInstance
	var amount, dueDate, status, createdAt string
	var settledTx sql.NullString

	err := row.Scan(&inst.ID, &inst.DefinitionID, &inst.PeriodKey, &amount, &dueDate,
		&status, &settledTx, &createdAt)
	if err != nil {
		return nil, err
	}

	inst.Amount = parseDecimal(amount)
	inst.DueDate = parseTime(dueDate)
	inst.Status = models.InstanceStatus(status)
	inst.SettledTransactionID = stringPtr(settledTx)
	inst.CreatedAt = parseTime(createdAt)

	return &inst, nil
}
