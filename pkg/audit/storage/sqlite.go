package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"aegis-hq/firewall/pkg/audit"
	"aegis-hq/firewall/pkg/firewall"
)

// SQLiteConfig contains configuration for the SQLite storage backend.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// MaxOpenConns is the maximum number of open connections to the database.
	// Default: 10
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int

	// WALMode enables Write-Ahead Logging mode for better concurrency.
	// Default: true
	WALMode bool

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:         "data/audit.db",
		MaxOpenConns: 10,
		MaxIdleConns: 5,
		WALMode:      true,
		BusyTimeout:  5 * time.Second,
	}
}

// SQLiteStorage implements audit.Storage using SQLite. Appends are
// serialized in-process; the schema triggers reject UPDATE and DELETE.
type SQLiteStorage struct {
	db     *sql.DB
	config *SQLiteConfig
	mu     sync.Mutex
	logger *slog.Logger
}

// NewSQLiteStorage creates a new SQLite storage backend.
// It initializes the database schema and enables WAL mode if configured.
func NewSQLiteStorage(config *SQLiteConfig) (*SQLiteStorage, error) {
	if config == nil {
		config = DefaultSQLiteConfig()
	}

	logger := slog.Default().With("component", "audit.storage.sqlite")

	db, err := sql.Open("sqlite3", config.Path)
	if err != nil {
		return nil, audit.NewStorageError("sqlite", "open", err)
	}

	// An in-memory database exists per connection.
	if config.Path == ":memory:" {
		config.MaxOpenConns = 1
		config.MaxIdleConns = 1
	}
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)

	s := &SQLiteStorage{
		db:     db,
		config: config,
		logger: logger,
	}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("SQLite audit storage initialized",
		"path", config.Path,
		"wal_mode", config.WALMode,
		"max_open_conns", config.MaxOpenConns,
	)

	return s, nil
}

func (s *SQLiteStorage) initialize() error {
	if s.config.WALMode {
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return audit.NewStorageError("sqlite", "enable_wal", err)
		}
		s.logger.Debug("WAL mode enabled")
	}

	busyTimeoutMs := s.config.BusyTimeout.Milliseconds()
	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", busyTimeoutMs)); err != nil {
		return audit.NewStorageError("sqlite", "set_busy_timeout", err)
	}

	if _, err := s.db.Exec(Schema); err != nil {
		return audit.NewStorageError("sqlite", "create_schema", err)
	}

	if _, err := s.db.Exec(InsertSchemaVersion, SchemaVersion); err != nil {
		return audit.NewStorageError("sqlite", "insert_schema_version", err)
	}

	var version int
	err := s.db.QueryRow(GetSchemaVersion).Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		return audit.NewStorageError("sqlite", "get_schema_version", err)
	}
	if version != SchemaVersion {
		return audit.NewStorageError("sqlite", "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}

	s.logger.Debug("schema version verified", "version", version)
	return nil
}

// Append persists a sealed record. It must extend the stored chain; re-appending
// an already stored record is a no-op.
func (s *SQLiteStorage) Append(ctx context.Context, record *audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.getBy(ctx, "sequence = ?", record.Sequence)
	switch {
	case err == nil:
		if existing.Hash == record.Hash {
			return nil
		}
		return audit.NewStorageError("sqlite", "append", audit.ErrSequenceConflict)
	case !errors.Is(err, audit.ErrRecordNotFound):
		return err
	}

	last, err := s.Last(ctx)
	if err != nil {
		return err
	}
	if err := checkExtends(last, record); err != nil {
		return audit.NewStorageError("sqlite", "append", err)
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return audit.NewStorageError("sqlite", "marshal", err)
	}

	query := `
		INSERT OR IGNORE INTO audit_records (
			sequence, evaluation_id, timestamp,
			mode, policy_version, action, verdict, risk_score, confidence,
			decisive_rule, evidence_failed,
			prev_hash, hash, payload
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	res, err := s.db.ExecContext(ctx, query,
		record.Sequence, record.EvaluationID, record.Timestamp.UTC().Format(TimestampLayout),
		record.Mode, record.PolicyVersion, record.Action, string(record.Result.Verdict),
		record.Result.RiskScore, record.Confidence,
		record.Result.Details.DecisiveRule, record.Result.HasFailedCheck(firewall.CheckEvidence),
		record.PrevHash, record.Hash, string(payload),
	)
	if err != nil {
		return audit.NewStorageError("sqlite", "append", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return audit.NewStorageError("sqlite", "append", audit.ErrDuplicateEvaluation)
	}
	return nil
}

// Last returns the record with the highest sequence, or nil when empty.
func (s *SQLiteStorage) Last(ctx context.Context) (*audit.Record, error) {
	row := s.db.QueryRowContext(ctx, "SELECT payload FROM audit_records ORDER BY sequence DESC LIMIT 1")
	r, err := scanPayload(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, audit.NewStorageError("sqlite", "last", err)
	}
	return r, nil
}

// Get returns the record for an evaluation ID.
func (s *SQLiteStorage) Get(ctx context.Context, evaluationID string) (*audit.Record, error) {
	return s.getBy(ctx, "evaluation_id = ?", evaluationID)
}

func (s *SQLiteStorage) getBy(ctx context.Context, cond string, arg any) (*audit.Record, error) {
	row := s.db.QueryRowContext(ctx, "SELECT payload FROM audit_records WHERE "+cond, arg)
	r, err := scanPayload(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, audit.ErrRecordNotFound
	}
	if err != nil {
		return nil, audit.NewStorageError("sqlite", "get", err)
	}
	return r, nil
}

// Query retrieves audit records matching the query filters.
func (s *SQLiteStorage) Query(ctx context.Context, query *audit.Query) ([]*audit.Record, error) {
	rows, err := s.db.QueryContext(ctx, s.selectQuery(query), s.whereArgs(query)...)
	if err != nil {
		return nil, audit.NewStorageError("sqlite", "query", err)
	}
	defer rows.Close()

	records := []*audit.Record{}
	for rows.Next() {
		record, err := scanPayload(rows)
		if err != nil {
			return nil, audit.NewStorageError("sqlite", "scan", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, audit.NewStorageError("sqlite", "query", err)
	}
	return records, nil
}

// QueryStream returns a channel of audit records for memory-efficient streaming.
// The channels will be closed when the query completes or errors.
func (s *SQLiteStorage) QueryStream(ctx context.Context, query *audit.Query) (<-chan *audit.Record, <-chan error, error) {
	recordsCh := make(chan *audit.Record, 100)
	errCh := make(chan error, 1)

	sqlQuery := s.selectQuery(query)
	args := s.whereArgs(query)

	go func() {
		defer close(recordsCh)
		defer close(errCh)

		rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
		if err != nil {
			errCh <- audit.NewStorageError("sqlite", "query_stream", err)
			return
		}
		defer rows.Close()

		for rows.Next() {
			record, err := scanPayload(rows)
			if err != nil {
				errCh <- audit.NewStorageError("sqlite", "scan", err)
				return
			}
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case recordsCh <- record:
			}
		}
		if err := rows.Err(); err != nil {
			errCh <- audit.NewStorageError("sqlite", "query_stream", err)
		}
	}()

	return recordsCh, errCh, nil
}

// Count returns the number of audit records matching the query filters.
func (s *SQLiteStorage) Count(ctx context.Context, query *audit.Query) (int64, error) {
	whereClause, args := buildWhereClause(query)
	sqlQuery := "SELECT COUNT(*) FROM audit_records"
	if whereClause != "" {
		sqlQuery += " WHERE " + whereClause
	}

	var count int64
	if err := s.db.QueryRowContext(ctx, sqlQuery, args...).Scan(&count); err != nil {
		return 0, audit.NewStorageError("sqlite", "count", err)
	}
	return count, nil
}

// Stats summarizes the records matching the query filters. Pagination is
// ignored.
func (s *SQLiteStorage) Stats(ctx context.Context, query *audit.Query) (*audit.Stats, error) {
	q := audit.Query{}
	if query != nil {
		q = *query
	}
	q.Limit, q.Offset, q.Order = 0, 0, "asc"

	records, errCh, err := s.QueryStream(ctx, &q)
	if err != nil {
		return nil, err
	}
	stats := audit.NewStats()
	for r := range records {
		stats.Add(r)
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	return stats, nil
}

// Close releases resources held by the storage backend.
func (s *SQLiteStorage) Close() error {
	if err := s.db.Close(); err != nil {
		return audit.NewStorageError("sqlite", "close", err)
	}
	s.logger.Info("SQLite audit storage closed")
	return nil
}

// DB exposes the underlying handle for maintenance tooling.
func (s *SQLiteStorage) DB() *sql.DB {
	return s.db
}

func (s *SQLiteStorage) selectQuery(query *audit.Query) string {
	whereClause, _ := buildWhereClause(query)
	sqlQuery := "SELECT payload FROM audit_records"
	if whereClause != "" {
		sqlQuery += " WHERE " + whereClause
	}

	order := "DESC"
	if query != nil && strings.EqualFold(query.Order, "asc") {
		order = "ASC"
	}
	sqlQuery += " ORDER BY sequence " + order

	if query != nil && query.Limit > 0 {
		sqlQuery += fmt.Sprintf(" LIMIT %d", query.Limit)
		if query.Offset > 0 {
			sqlQuery += fmt.Sprintf(" OFFSET %d", query.Offset)
		}
	} else if query != nil && query.Offset > 0 {
		sqlQuery += fmt.Sprintf(" LIMIT -1 OFFSET %d", query.Offset)
	}
	return sqlQuery
}

func (s *SQLiteStorage) whereArgs(query *audit.Query) []any {
	_, args := buildWhereClause(query)
	return args
}

// buildWhereClause builds a SQL WHERE clause from query filters.
// Returns the WHERE clause (without "WHERE" keyword) and the query arguments.
func buildWhereClause(query *audit.Query) (string, []any) {
	if query == nil {
		return "", nil
	}

	var conditions []string
	var args []any

	if query.StartTime != nil {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, query.StartTime.UTC().Format(TimestampLayout))
	}
	if query.EndTime != nil {
		conditions = append(conditions, "timestamp <= ?")
		args = append(args, query.EndTime.UTC().Format(TimestampLayout))
	}
	if query.EvaluationID != "" {
		conditions = append(conditions, "evaluation_id = ?")
		args = append(args, query.EvaluationID)
	}
	if query.Verdict != "" {
		conditions = append(conditions, "verdict = ?")
		args = append(args, query.Verdict)
	}
	if query.Action != "" {
		conditions = append(conditions, "action = ?")
		args = append(args, query.Action)
	}
	if query.Mode != "" {
		conditions = append(conditions, "mode = ?")
		args = append(args, query.Mode)
	}
	if query.MinRisk != nil {
		conditions = append(conditions, "risk_score >= ?")
		args = append(args, *query.MinRisk)
	}
	if query.AfterSequence > 0 {
		conditions = append(conditions, "sequence > ?")
		args = append(args, query.AfterSequence)
	}

	return strings.Join(conditions, " AND "), args
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPayload(row scanner) (*audit.Record, error) {
	var payload string
	if err := row.Scan(&payload); err != nil {
		return nil, err
	}
	var r audit.Record
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return &r, nil
}

// checkExtends reports whether r is the next link after last.
func checkExtends(last, r *audit.Record) error {
	wantSeq, wantPrev := int64(1), audit.GenesisHash
	if last != nil {
		wantSeq, wantPrev = last.Sequence+1, last.Hash
	}
	if r.Sequence != wantSeq {
		return fmt.Errorf("%w: sequence %d, expected %d", audit.ErrChainMismatch, r.Sequence, wantSeq)
	}
	if r.PrevHash != wantPrev {
		return fmt.Errorf("%w: previous hash mismatch at sequence %d", audit.ErrChainMismatch, r.Sequence)
	}
	return nil
}
