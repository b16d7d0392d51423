package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"expense-reconciliation-engine/internal/models"
	"expense-reconciliation-engine/pkg/errors"
)

// CreateDefinition persists a definition and its default participants.
func (s *SQLiteStore) CreateDefinition(ctx context.Context, def *models.RecurringBillDefinition) error {
	if err := def.Validate(); err != nil {
		return errors.ValidationError(errors.CodeMissingField, "definition", def.VendorName, err)
	}

	if def.ID == "" {
		def.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if def.CreatedAt.IsZero() {
		def.CreatedAt = now
	}
	def.UpdatedAt = now

	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO bill_definitions
			 (id, vendor_name, vendor_category, frequency, amount_type, fixed_amount,
			  due_day, due_month, active, created_at, updated_at, deactivated_reason)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			def.ID, def.VendorName, def.VendorCategory, string(def.Frequency), string(def.AmountType),
			def.FixedAmount.String(), def.DueDay, def.DueMonth, boolToInt(def.Active),
			fmtTime(def.CreatedAt), fmtTime(def.UpdatedAt), def.DeactivatedReason,
		)
		if err != nil {
			return errors.StorageError(errors.CodeStorageFailure, "bill definition", err)
		}

		for _, p := range def.Participants {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO definition_participants (definition_id, participant_id, percent) VALUES (?, ?, ?)`,
				def.ID, p.ParticipantID, nullDecimal(p.Percent),
			)
			if err != nil {
				return errors.StorageError(errors.CodeStorageFailure, "definition participant", err)
			}
		}

		return nil
	})
}

// GetDefinition retrieves a definition with its participants.
func (s *SQLiteStore) GetDefinition(ctx context.Context, id string) (*models.RecurringBillDefinition, error) {
	def, err := scanDefinition(s.db.QueryRowContext(ctx,
		`SELECT id, vendor_name, vendor_category, frequency, amount_type, fixed_amount,
		        due_day, due_month, active, created_at, updated_at, deactivated_reason
		 FROM bill_definitions WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, errors.StorageError(errors.CodeRecordNotFound, "bill definition", nil).
			WithContext("id", id)
	}
	if err != nil {
		return nil, errors.StorageError(errors.CodeStorageFailure, "bill definition", err)
	}

	if err := s.loadParticipants(ctx, def); err != nil {
		return nil, err
	}

	return def, nil
}

// ListDefinitions returns definitions ordered by creation time.
func (s *SQLiteStore) ListDefinitions(ctx context.Context, activeOnly bool) ([]*models.RecurringBillDefinition, error) {
	query := `SELECT id, vendor_name, vendor_category, frequency, amount_type, fixed_amount,
	                 due_day, due_month, active, created_at, updated_at, deactivated_reason
	          FROM bill_definitions`
	if activeOnly {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.StorageError(errors.CodeStorageFailure, "bill definitions", err)
	}
	defer rows.Close()

	var defs []*models.RecurringBillDefinition
	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return nil, errors.StorageError(errors.CodeStorageFailure, "bill definition row", err)
		}
		defs = append(defs, def)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StorageError(errors.CodeStorageFailure, "bill definitions", err)
	}

	for _, def := range defs {
		if err := s.loadParticipants(ctx, def); err != nil {
			return nil, err
		}
	}

	return defs, nil
}

// DeactivateDefinition soft-deletes a definition, keeping the vendor
// name untouched and recording the reason.
func (s *SQLiteStore) DeactivateDefinition(ctx context.Context, id, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE bill_definitions SET active = 0, deactivated_reason = ?, updated_at = ? WHERE id = ?`,
		reason, fmtTime(time.Now().UTC()), id,
	)
	if err != nil {
		return errors.StorageError(errors.CodeStorageFailure, "bill definition", err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return errors.StorageError(errors.CodeRecordNotFound, "bill definition", nil).
			WithContext("id", id)
	}

	return nil
}

func (s *SQLiteStore) loadParticipants(ctx context.Context, def *models.RecurringBillDefinition) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT participant_id, percent FROM definition_participants
		 WHERE definition_id = ? ORDER BY participant_id`, def.ID)
	if err != nil {
		return errors.StorageError(errors.CodeStorageFailure, "definition participants", err)
	}
	defer rows.Close()

	def.Participants = nil
	for rows.Next() {
		var p models.DefinitionParticipant
		var percent sql.NullString
		if err := rows.Scan(&p.ParticipantID, &percent); err != nil {
			return errors.StorageError(errors.CodeStorageFailure, "definition participant row", err)
		}
		p.Percent = decimalPtr(percent)
		def.Participants = append(def.Participants, p)
	}

	return rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDefinition(row rowScanner) (*models.RecurringBillDefinition, error) {
	var def models.RecurringBillDefinition
	var frequency, amountType, fixedAmount, createdAt, updatedAt string
	var active int

	err := row.Scan(&def.ID, &def.VendorName, &def.VendorCategory, &frequency, &amountType,
		&fixedAmount, &def.DueDay, &def.DueMonth, &active, &createdAt, &updatedAt,
		&def.DeactivatedReason)
	if err != nil {
		return nil, err
	}

	def.Frequency = models.Frequency(frequency)
	def.AmountType = models.AmountType(amountType)
	def.FixedAmount = parseDecimal(fixedAmount)
	def.Active = active == 1
	def.CreatedAt = parseTime(createdAt)
	def.UpdatedAt = parseTime(updatedAt)

	return &def, nil
}

// CreateParticipant persists an expense-sharing participant.
func (s *SQLiteStore) CreateParticipant(ctx context.Context, p *models.Participant) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO participants (id, name, active) VALUES (?, ?, ?)`,
		p.ID, p.Name, boolToInt(p.Active),
	)
	if err != nil {
		return errors.StorageError(errors.CodeStorageFailure, "participant", err)
	}

	return nil
}

// ListActiveParticipants returns the active expense-sharing set.
func (s *SQLiteStore) ListActiveParticipants(ctx context.Context) ([]*models.Participant, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, active FROM participants WHERE active = 1 ORDER BY name, id`)
	if err != nil {
		return nil, errors.StorageError(errors.CodeStorageFailure, "participants", err)
	}
	defer rows.Close()

	var participants []*models.Participant
	for rows.Next() {
		var p models.Participant
		var active int
		if err := rows.Scan(&p.ID, &p.Name, &active); err != nil {
			return nil, errors.StorageError(errors.CodeStorageFailure, "participant row", err)
		}
		p.Active = active == 1
		participants = append(participants, &p)
	}

	return participants, rows.Err()
}

// CreateLedgerAccount registers a connected ledger account.
func (s *SQLiteStore) CreateLedgerAccount(ctx context.Context, id, name string) error {
	if id == "" {
		id = uuid.New().String()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ledger_accounts (id, name, active) VALUES (?, ?, 1)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name, active = 1`,
		id, name,
	)
	if err != nil {
		return errors.StorageError(errors.CodeStorageFailure, "ledger account", err)
	}

	return nil
}

// ListLedgerAccounts returns the ids of active connected accounts.
func (s *SQLiteStore) ListLedgerAccounts(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM ledger_accounts WHERE active = 1 ORDER BY id`)
	if err != nil {
		return nil, errors.StorageError(errors.CodeStorageFailure, "ledger accounts", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.StorageError(errors.CodeStorageFailure, "ledger account row", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}
