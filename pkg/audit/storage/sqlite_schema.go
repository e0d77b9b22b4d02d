package storage

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// TimestampLayout is the fixed-width UTC layout timestamps are stored in, so
// that text comparison orders them chronologically.
const TimestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Schema contains the SQL statements to create the audit database schema.
// The triggers make the records table append-only.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_records (
    sequence INTEGER PRIMARY KEY,
    evaluation_id TEXT NOT NULL UNIQUE,
    timestamp TEXT NOT NULL,

    mode TEXT NOT NULL,
    policy_version TEXT NOT NULL,
    action TEXT NOT NULL,
    verdict TEXT NOT NULL,
    risk_score REAL NOT NULL,
    confidence REAL NOT NULL,
    decisive_rule TEXT NOT NULL,
    evidence_failed BOOLEAN NOT NULL,

    prev_hash TEXT NOT NULL,
    hash TEXT NOT NULL,

    -- Full record as JSON, the source of truth for hashing
    payload TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMP NOT NULL
);

CREATE TRIGGER IF NOT EXISTS audit_records_no_update
BEFORE UPDATE ON audit_records
BEGIN
    SELECT RAISE(ABORT, 'audit records are append-only');
END;

CREATE TRIGGER IF NOT EXISTS audit_records_no_delete
BEFORE DELETE ON audit_records
BEGIN
    SELECT RAISE(ABORT, 'audit records are append-only');
END;

CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_records(timestamp);
CREATE INDEX IF NOT EXISTS idx_audit_verdict ON audit_records(verdict);
CREATE INDEX IF NOT EXISTS idx_audit_action ON audit_records(action);
CREATE INDEX IF NOT EXISTS idx_audit_mode ON audit_records(mode);
`

// InsertSchemaVersion inserts the schema version into the schema_version table.
const InsertSchemaVersion = `
INSERT INTO schema_version (version, applied_at)
VALUES (?, datetime('now'))
ON CONFLICT(version) DO NOTHING;
`

// GetSchemaVersion retrieves the current schema version from the database.
const GetSchemaVersion = `
SELECT version FROM schema_version ORDER BY version DESC LIMIT 1;
`
