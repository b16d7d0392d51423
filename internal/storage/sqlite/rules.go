package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"expense-reconciliation-engine/internal/models"
	"expense-reconciliation-engine/pkg/errors"
)

const ruleColumns = `SELECT id, name, type, account_id, transaction_type, pattern,
       amount, variance_percent, amount_min, amount_max,
       hit_count, active, created_at, deactivated_reason FROM skip_rules`

// CreateSkipRule persists the rule unconditionally, for externally
// supplied rules. Derivation goes through EnsureSkipRule.
func (s *SQLiteStore) CreateSkipRule(ctx context.Context, rule *models.TransactionSkipRule) error {
	if err := rule.Validate(); err != nil {
		return errors.ValidationError(errors.CodeInvalidPattern, "skip rule", rule.Pattern, err)
	}

	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}

	var txType interface{}
	if rule.TransactionType != nil {
		txType = string(*rule.TransactionType)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO skip_rules
		 (id, name, type, account_id, transaction_type, pattern,
		  amount, variance_percent, amount_min, amount_max,
		  hit_count, active, created_at, deactivated_reason)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.ID, rule.Name, string(rule.Type), nullString(rule.AccountID), txType,
		rule.Pattern, nullDecimal(rule.Amount), nullDecimal(rule.VariancePercent),
		nullDecimal(rule.AmountMin), nullDecimal(rule.AmountMax),
		rule.HitCount, boolToInt(rule.Active), fmtTime(rule.CreatedAt), rule.DeactivatedReason,
	)
	if err != nil {
		return errors.StorageError(errors.CodeStorageFailure, "skip rule", err)
	}

	return nil
}

// EnsureSkipRule persists the rule unless an active rule with the same
// normalized identity already exists. The check and insert run in one
// transaction so concurrent passes never create duplicate rules.
func (s *SQLiteStore) EnsureSkipRule(ctx context.Context, rule *models.TransactionSkipRule) (*models.TransactionSkipRule, bool, error) {
	if err := rule.Validate(); err != nil {
		return nil, false, errors.ValidationError(errors.CodeInvalidPattern, "skip rule", rule.Pattern, err)
	}

	var stored *models.TransactionSkipRule
	var created bool

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, ruleColumns+` WHERE active = 1 ORDER BY created_at, rowid`)
		if err != nil {
			return errors.StorageError(errors.CodeStorageFailure, "skip rules", err)
		}

		existing, err := collectRules(rows)
		if err != nil {
			return errors.StorageError(errors.CodeStorageFailure, "skip rule row", err)
		}

		key := rule.GroupKey()
		for _, r := range existing {
			if r.GroupKey() == key {
				stored = r
				return nil
			}
		}

		if rule.ID == "" {
			rule.ID = uuid.New().String()
		}
		if rule.CreatedAt.IsZero() {
			rule.CreatedAt = time.Now().UTC()
		}
		rule.Active = true

		var txType interface{}
		if rule.TransactionType != nil {
			txType = string(*rule.TransactionType)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO skip_rules
			 (id, name, type, account_id, transaction_type, pattern,
			  amount, variance_percent, amount_min, amount_max,
			  hit_count, active, created_at, deactivated_reason)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rule.ID, rule.Name, string(rule.Type), nullString(rule.AccountID), txType,
			rule.Pattern, nullDecimal(rule.Amount), nullDecimal(rule.VariancePercent),
			nullDecimal(rule.AmountMin), nullDecimal(rule.AmountMax),
			rule.HitCount, boolToInt(rule.Active), fmtTime(rule.CreatedAt), rule.DeactivatedReason,
		)
		if err != nil {
			return errors.StorageError(errors.CodeStorageFailure, "skip rule", err)
		}

		stored = rule
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	return stored, created, nil
}

// ListSkipRules returns rules in creation order, the order in which
// classification evaluates them.
func (s *SQLiteStore) ListSkipRules(ctx context.Context, activeOnly bool) ([]*models.TransactionSkipRule, error) {
	query := ruleColumns
	if activeOnly {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY created_at, rowid`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.StorageError(errors.CodeStorageFailure, "skip rules", err)
	}

	rules, err := collectRules(rows)
	if err != nil {
		return nil, errors.StorageError(errors.CodeStorageFailure, "skip rule row", err)
	}
	return rules, nil
}

// AddRuleHits adds n to a rule's hit counter.
func (s *SQLiteStore) AddRuleHits(ctx context.Context, ruleID string, n int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE skip_rules SET hit_count = hit_count + ? WHERE id = ?`, n, ruleID)
	if err != nil {
		return errors.StorageError(errors.CodeStorageFailure, "skip rule", err)
	}

	if affected, _ := res.RowsAffected(); affected == 0 {
		return errors.StorageError(errors.CodeRecordNotFound, "skip rule", nil).
			WithContext("id", ruleID)
	}

	return nil
}

// RepointRuleReferences moves every transaction resolved by one rule
// onto another, returning how many rows changed.
func (s *SQLiteStore) RepointRuleReferences(ctx context.Context, fromRuleID, toRuleID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE ledger_transactions SET resolved_by_rule_id = ? WHERE resolved_by_rule_id = ?`,
		toRuleID, fromRuleID)
	if err != nil {
		return 0, errors.StorageError(errors.CodeStorageFailure, "transaction rule references", err)
	}

	return res.RowsAffected()
}

// DeactivateSkipRule soft-deletes a rule, recording why.
func (s *SQLiteStore) DeactivateSkipRule(ctx context.Context, id, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE skip_rules SET active = 0, deactivated_reason = ? WHERE id = ?`, reason, id)
	if err != nil {
		return errors.StorageError(errors.CodeStorageFailure, "skip rule", err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return errors.StorageError(errors.CodeRecordNotFound, "skip rule", nil).
			WithContext("id", id)
	}

	return nil
}

// collectRules drains rows into skip rule records, closing rows.
func collectRules(rows *sql.Rows) ([]*models.TransactionSkipRule, error) {
	defer rows.Close()

	var rules []*models.TransactionSkipRule
	for rows.Next() {
		var rule models.TransactionSkipRule
		var ruleType, createdAt string
		var accountID, txType, amount, variance, amountMin, amountMax sql.NullString
		var active int

		err := rows.Scan(&rule.ID, &rule.Name, &ruleType, &accountID, &txType, &rule.Pattern,
			&amount, &variance, &amountMin, &amountMax,
			&rule.HitCount, &active, &createdAt, &rule.DeactivatedReason)
		if err != nil {
			return nil, err
		}

		rule.Type = models.RuleType(ruleType)
		rule.AccountID = stringPtr(accountID)
		if txType.Valid {
			t := models.TransactionType(txType.String)
			rule.TransactionType = &t
		}
		rule.Amount = decimalPtr(amount)
		rule.VariancePercent = decimalPtr(variance)
		rule.AmountMin = decimalPtr(amountMin)
		rule.AmountMax = decimalPtr(amountMax)
		rule.Active = active == 1
		rule.CreatedAt = parseTime(createdAt)

		rules = append(rules, &rule)
	}

	return rules, rows.Err()
}
