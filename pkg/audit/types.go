package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"time"

	"aegis-hq/firewall/pkg/firewall"
)

// Record is one append-only audit entry. Records are chained: Hash covers
// every other field including PrevHash, so editing or removing a record
// breaks verification from that point forward.
type Record struct {
	Sequence     int64     `json:"sequence"`
	EvaluationID string    `json:"evaluation_id"`
	Timestamp    time.Time `json:"timestamp"`

	// Policy snapshot in effect.
	Mode          string `json:"mode"`
	PolicyVersion string `json:"policy_version"`

	// Request fingerprint. The output text itself is not stored.
	OutputHash   string  `json:"output_hash"`
	OutputLength int     `json:"output_length"`
	Confidence   float64 `json:"confidence"`
	Action       string  `json:"action"`
	SourceCount  int     `json:"source_count"`

	Result firewall.VerdictResult `json:"result"`

	PrevHash string `json:"prev_hash"`
	Hash     string `json:"hash,omitempty"`
}

// NewRecord builds an unsealed record for a completed evaluation. Sequence,
// PrevHash and Hash are assigned when the record is appended to a chain.
func NewRecord(evaluationID string, ts time.Time, req *firewall.Request, result firewall.VerdictResult) *Record {
	sum := sha256.Sum256([]byte(req.OutputText))
	return &Record{
		EvaluationID:  evaluationID,
		Timestamp:     ts.UTC(),
		Mode:          result.Details.Mode,
		PolicyVersion: result.Details.PolicyVersion,
		OutputHash:    hex.EncodeToString(sum[:]),
		OutputLength:  len(req.OutputText),
		Confidence:    req.Confidence,
		Action:        string(req.Action),
		SourceCount:   len(req.NormalizedSources()),
		Result:        result,
	}
}

// Verdict returns the recorded verdict.
func (r *Record) Verdict() firewall.Verdict {
	return r.Result.Verdict
}

// IsHallucinationBlock reports whether the record is a caught hallucination.
func (r *Record) IsHallucinationBlock() bool {
	return firewall.IsHallucinationBlock(&r.Result, r.Confidence)
}

// Query filters audit records. Zero values match everything.
type Query struct {
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`

	EvaluationID string   `json:"evaluation_id,omitempty"`
	Verdict      string   `json:"verdict,omitempty"`
	Action       string   `json:"action,omitempty"`
	Mode         string   `json:"mode,omitempty"`
	MinRisk      *float64 `json:"min_risk,omitempty"`

	// AfterSequence returns only records with a larger sequence number.
	AfterSequence int64 `json:"after_sequence,omitempty"`

	// Limit caps the result size; 0 means no limit.
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`

	// Order is "asc" or "desc" by sequence. Default: "desc".
	Order string `json:"order,omitempty"`
}

// Stats summarizes the records matching a query.
type Stats struct {
	Total               int64            `json:"total"`
	ByVerdict           map[string]int64 `json:"by_verdict"`
	ByAction            map[string]int64 `json:"by_action"`
	ByMode              map[string]int64 `json:"by_mode"`
	AvgRisk             float64          `json:"avg_risk"`
	MinRisk             float64          `json:"min_risk"`
	MaxRisk             float64          `json:"max_risk"`
	HallucinationBlocks int64            `json:"hallucination_blocks"`
	FirstTimestamp      *time.Time       `json:"first_timestamp,omitempty"`
	LastTimestamp       *time.Time       `json:"last_timestamp,omitempty"`
}

// NewStats returns empty statistics.
func NewStats() *Stats {
	return &Stats{
		ByVerdict: make(map[string]int64),
		ByAction:  make(map[string]int64),
		ByMode:    make(map[string]int64),
	}
}

// Add folds one record into the statistics.
func (s *Stats) Add(r *Record) {
	risk := r.Result.RiskScore
	if s.Total == 0 || risk < s.MinRisk {
		s.MinRisk = risk
	}
	if s.Total == 0 || risk > s.MaxRisk {
		s.MaxRisk = risk
	}
	s.AvgRisk = (s.AvgRisk*float64(s.Total) + risk) / float64(s.Total+1)
	s.Total++

	s.ByVerdict[string(r.Result.Verdict)]++
	s.ByAction[r.Action]++
	s.ByMode[r.Mode]++
	if r.IsHallucinationBlock() {
		s.HallucinationBlocks++
	}

	ts := r.Timestamp
	if s.FirstTimestamp == nil || ts.Before(*s.FirstTimestamp) {
		s.FirstTimestamp = &ts
	}
	if s.LastTimestamp == nil || ts.After(*s.LastTimestamp) {
		s.LastTimestamp = &ts
	}
}

// Storage is an append-only audit store. Implementations must be safe for
// concurrent use and must not offer any way to modify or delete records.
type Storage interface {
	// Append persists a sealed record. Appending a record whose sequence is
	// already stored with the same hash is a no-op, so writes can be retried.
	Append(ctx context.Context, record *Record) error

	// Last returns the record with the highest sequence, or nil when empty.
	Last(ctx context.Context) (*Record, error)

	// Get returns the record for an evaluation ID or ErrRecordNotFound.
	Get(ctx context.Context, evaluationID string) (*Record, error)

	// Query returns the records matching q.
	Query(ctx context.Context, q *Query) ([]*Record, error)

	// QueryStream streams the records matching q. Both channels are closed
	// when the query completes; errCh carries at most one error.
	QueryStream(ctx context.Context, q *Query) (<-chan *Record, <-chan error, error)

	// Count returns the number of records matching q.
	Count(ctx context.Context, q *Query) (int64, error)

	// Stats summarizes the records matching q.
	Stats(ctx context.Context, q *Query) (*Stats, error)

	// Close releases resources held by the store.
	Close() error
}

// Exporter writes audit records in a specific format.
type Exporter interface {
	Export(ctx context.Context, records []*Record, w io.Writer) error
	ExportStream(ctx context.Context, records <-chan *Record, w io.Writer) error
}
