package learning

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"aegis-hq/firewall/pkg/firewall"
	"aegis-hq/firewall/pkg/policy"
)

const learningSchema = `
CREATE TABLE IF NOT EXISTS outcomes (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    evaluation_id TEXT NOT NULL,
    mode TEXT NOT NULL,
    original_verdict TEXT NOT NULL,
    decisive_rule TEXT NOT NULL,
    human_decision TEXT NOT NULL,
    check_name TEXT NOT NULL,
    classification TEXT NOT NULL,
    timestamp INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS adjustments (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    mode TEXT NOT NULL,
    check_name TEXT NOT NULL,
    direction TEXT NOT NULL,
    old_thresholds TEXT NOT NULL,
    new_thresholds TEXT NOT NULL,
    reason TEXT NOT NULL,
    timestamp INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_outcomes_evaluation ON outcomes(evaluation_id);
CREATE INDEX IF NOT EXISTS idx_adjustments_mode ON adjustments(mode);
`

// SQLiteStore persists learning history with the pure-Go SQLite driver.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (and creates if needed) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, NewStoreError("sqlite", "open", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL;", "PRAGMA busy_timeout=5000;"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, NewStoreError("sqlite", "pragma", err)
		}
	}
	if _, err := db.Exec(learningSchema); err != nil {
		db.Close()
		return nil, NewStoreError("sqlite", "create_schema", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: slog.Default().With("component", "learning.store.sqlite"),
	}
	s.logger.Info("Learning store initialized", "path", path)
	return s, nil
}

// RecordOutcome persists a processed outcome.
func (s *SQLiteStore) RecordOutcome(ctx context.Context, rec OutcomeRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO outcomes (evaluation_id, mode, original_verdict, decisive_rule,
			human_decision, check_name, classification, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.EvaluationID, string(rec.Mode), string(rec.OriginalVerdict), rec.DecisiveRule,
		string(rec.HumanDecision), string(rec.Check), string(rec.Classification), rec.Timestamp.UnixNano(),
	)
	if err != nil {
		return NewStoreError("sqlite", "record_outcome", err)
	}
	return nil
}

// RecordAdjustment persists an installed adjustment.
func (s *SQLiteStore) RecordAdjustment(ctx context.Context, adj Adjustment) error {
	oldJSON, err := json.Marshal(adj.Old)
	if err != nil {
		return NewStoreError("sqlite", "marshal", err)
	}
	newJSON, err := json.Marshal(adj.New)
	if err != nil {
		return NewStoreError("sqlite", "marshal", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO adjustments (mode, check_name, direction, old_thresholds, new_thresholds, reason, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(adj.Mode), string(adj.Check), adj.Direction, string(oldJSON), string(newJSON), adj.Reason,
		adj.Timestamp.UnixNano(),
	)
	if err != nil {
		return NewStoreError("sqlite", "record_adjustment", err)
	}
	return nil
}

// Outcomes returns the most recent outcomes, oldest first.
func (s *SQLiteStore) Outcomes(ctx context.Context, limit int) ([]OutcomeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT * FROM (
			SELECT id, evaluation_id, mode, original_verdict, decisive_rule,
				human_decision, check_name, classification, timestamp
			FROM outcomes ORDER BY id DESC`+limitClause(limit)+`
		) ORDER BY id ASC`)
	if err != nil {
		return nil, NewStoreError("sqlite", "outcomes", err)
	}
	defer rows.Close()

	out := []OutcomeRecord{}
	for rows.Next() {
		var (
			id                                  int64
			mode, verdict, decision, check, cls string
			ts                                  int64
			rec                                 OutcomeRecord
		)
		if err := rows.Scan(&id, &rec.EvaluationID, &mode, &verdict, &rec.DecisiveRule,
			&decision, &check, &cls, &ts); err != nil {
			return nil, NewStoreError("sqlite", "scan", err)
		}
		rec.Mode = policy.Mode(mode)
		rec.OriginalVerdict = firewall.Verdict(verdict)
		rec.HumanDecision = Decision(decision)
		rec.Check = Check(check)
		rec.Classification = Classification(cls)
		rec.Timestamp = time.Unix(0, ts).UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, NewStoreError("sqlite", "outcomes", err)
	}
	return out, nil
}

// Adjustments returns the most recent adjustments, oldest first.
func (s *SQLiteStore) Adjustments(ctx context.Context, limit int) ([]Adjustment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT * FROM (
			SELECT id, mode, check_name, direction, old_thresholds, new_thresholds, reason, timestamp
			FROM adjustments ORDER BY id DESC`+limitClause(limit)+`
		) ORDER BY id ASC`)
	if err != nil {
		return nil, NewStoreError("sqlite", "adjustments", err)
	}
	defer rows.Close()

	out := []Adjustment{}
	for rows.Next() {
		var (
			id               int64
			mode, check      string
			oldJSON, newJSON string
			ts               int64
			adj              Adjustment
		)
		if err := rows.Scan(&id, &mode, &check, &adj.Direction, &oldJSON, &newJSON, &adj.Reason, &ts); err != nil {
			return nil, NewStoreError("sqlite", "scan", err)
		}
		if err := json.Unmarshal([]byte(oldJSON), &adj.Old); err != nil {
			return nil, NewStoreError("sqlite", "decode", err)
		}
		if err := json.Unmarshal([]byte(newJSON), &adj.New); err != nil {
			return nil, NewStoreError("sqlite", "decode", err)
		}
		adj.Mode = policy.Mode(mode)
		adj.Check = Check(check)
		adj.Timestamp = time.Unix(0, ts).UTC()
		out = append(out, adj)
	}
	if err := rows.Err(); err != nil {
		return nil, NewStoreError("sqlite", "adjustments", err)
	}
	return out, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return NewStoreError("sqlite", "close", err)
	}
	return nil
}

func limitClause(limit int) string {
	if limit <= 0 {
		return ""
	}
	return fmt.Sprintf(" LIMIT %d", limit)
}
