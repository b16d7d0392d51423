package sqlite

import "database/sql"

// schema contains the SQL statements to set up the engine tables.
// These run on startup to ensure tables exist.
//
// The UNIQUE indexes are load-bearing: bill_instances(definition_id,
// period_key) anchors idempotent generation and
// ledger_transactions(external_id) anchors idempotent sync. Amounts
// are stored as TEXT to preserve exact decimal values.
const schema = `
CREATE TABLE IF NOT EXISTS participants (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    active INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS ledger_accounts (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    active INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS bill_definitions (
    id TEXT PRIMARY KEY,
    vendor_name TEXT NOT NULL,
    vendor_category TEXT NOT NULL DEFAULT '',
    frequency TEXT NOT NULL,
    amount_type TEXT NOT NULL,
    fixed_amount TEXT NOT NULL DEFAULT '0',
    due_day INTEGER NOT NULL DEFAULT 1,
    due_month INTEGER NOT NULL DEFAULT 1,
    active INTEGER NOT NULL DEFAULT 1,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    deactivated_reason TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS definition_participants (
    definition_id TEXT NOT NULL,
    participant_id TEXT NOT NULL,
    percent TEXT,
    PRIMARY KEY (definition_id, participant_id),
    FOREIGN KEY (definition_id) REFERENCES bill_definitions(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS bill_instances (
    id TEXT PRIMARY KEY,
    definition_id TEXT NOT NULL,
    period_key TEXT NOT NULL,
    amount TEXT NOT NULL,
    due_date TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'PENDING',
    settled_transaction_id TEXT,
    created_at TEXT NOT NULL,
    UNIQUE (definition_id, period_key),
    FOREIGN KEY (definition_id) REFERENCES bill_definitions(id)
);

CREATE TABLE IF NOT EXISTS bill_splits (
    id TEXT PRIMARY KEY,
    instance_id TEXT NOT NULL,
    participant_id TEXT NOT NULL,
    amount TEXT NOT NULL,
    percent TEXT,
    status TEXT NOT NULL DEFAULT 'PENDING',
    FOREIGN KEY (instance_id) REFERENCES bill_instances(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS skip_rules (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL DEFAULT '',
    type TEXT NOT NULL,
    account_id TEXT,
    transaction_type TEXT,
    pattern TEXT NOT NULL DEFAULT '',
    amount TEXT,
    variance_percent TEXT,
    amount_min TEXT,
    amount_max TEXT,
    hit_count INTEGER NOT NULL DEFAULT 0,
    active INTEGER NOT NULL DEFAULT 1,
    created_at TEXT NOT NULL,
    deactivated_reason TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS ledger_transactions (
    id TEXT PRIMARY KEY,
    external_id TEXT NOT NULL UNIQUE,
    account_id TEXT NOT NULL,
    amount TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    transacted_at TEXT NOT NULL,
    posted_at TEXT,
    approval_status TEXT NOT NULL DEFAULT 'PENDING',
    resolved_by_rule_id TEXT,
    matched_instance_id TEXT
);

CREATE INDEX IF NOT EXISTS idx_instances_definition ON bill_instances(definition_id);
CREATE INDEX IF NOT EXISTS idx_instances_status ON bill_instances(status);
CREATE INDEX IF NOT EXISTS idx_splits_instance ON bill_splits(instance_id);
CREATE INDEX IF NOT EXISTS idx_rules_created ON skip_rules(created_at);
CREATE INDEX IF NOT EXISTS idx_transactions_status ON ledger_transactions(approval_status);
CREATE INDEX IF NOT EXISTS idx_transactions_account ON ledger_transactions(account_id);
CREATE INDEX IF NOT EXISTS idx_transactions_rule ON ledger_transactions(resolved_by_rule_id);
`

// runMigrations executes the schema setup.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
