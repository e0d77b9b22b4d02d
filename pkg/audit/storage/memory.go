package storage

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"aegis-hq/firewall/pkg/audit"
)

// MemoryStorage implements audit.Storage in memory. Records are stored as
// JSON so callers can never alias stored data. Intended for tests and
// ephemeral deployments.
type MemoryStorage struct {
	mu      sync.RWMutex
	records [][]byte
	byEval  map[string]int
}

// NewMemoryStorage creates a new in-memory storage backend.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{byEval: make(map[string]int)}
}

// Append persists a sealed record.
func (s *MemoryStorage) Append(ctx context.Context, record *audit.Record) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return audit.NewStorageError("memory", "marshal", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if record.Sequence >= 1 && record.Sequence <= int64(len(s.records)) {
		existing, _ := decode(s.records[record.Sequence-1])
		if existing != nil && existing.Hash == record.Hash {
			return nil
		}
		return audit.NewStorageError("memory", "append", audit.ErrSequenceConflict)
	}

	var last *audit.Record
	if n := len(s.records); n > 0 {
		last, _ = decode(s.records[n-1])
	}
	if err := checkExtends(last, record); err != nil {
		return audit.NewStorageError("memory", "append", err)
	}
	if _, dup := s.byEval[record.EvaluationID]; dup {
		return audit.NewStorageError("memory", "append", audit.ErrDuplicateEvaluation)
	}

	s.byEval[record.EvaluationID] = len(s.records)
	s.records = append(s.records, payload)
	return nil
}

// Last returns the record with the highest sequence, or nil when empty.
func (s *MemoryStorage) Last(ctx context.Context) (*audit.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.records) == 0 {
		return nil, nil
	}
	return s.decodeAt(len(s.records) - 1)
}

// Get returns the record for an evaluation ID.
func (s *MemoryStorage) Get(ctx context.Context, evaluationID string) (*audit.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.byEval[evaluationID]
	if !ok {
		return nil, audit.ErrRecordNotFound
	}
	return s.decodeAt(i)
}

// Query retrieves audit records matching the query filters.
func (s *MemoryStorage) Query(ctx context.Context, query *audit.Query) ([]*audit.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := query
	if q == nil {
		q = &audit.Query{}
	}

	results := []*audit.Record{}
	for i := range s.records {
		r, err := s.decodeAt(i)
		if err != nil {
			return nil, err
		}
		if q.Matches(r) {
			results = append(results, r)
		}
	}

	if !strings.EqualFold(q.Order, "asc") {
		sort.Slice(results, func(i, j int) bool { return results[i].Sequence > results[j].Sequence })
	}

	start := q.Offset
	if start > len(results) {
		return []*audit.Record{}, nil
	}
	results = results[start:]
	if q.Limit > 0 && q.Limit < len(results) {
		results = results[:q.Limit]
	}
	return results, nil
}

// QueryStream returns a channel of audit records. The result is materialized
// under the read lock before streaming.
func (s *MemoryStorage) QueryStream(ctx context.Context, query *audit.Query) (<-chan *audit.Record, <-chan error, error) {
	recordsCh := make(chan *audit.Record, 100)
	errCh := make(chan error, 1)

	results, err := s.Query(ctx, query)
	if err != nil {
		return nil, nil, err
	}

	go func() {
		defer close(recordsCh)
		defer close(errCh)

		for _, r := range results {
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case recordsCh <- r:
			}
		}
	}()

	return recordsCh, errCh, nil
}

// Count returns the number of audit records matching the query filters.
func (s *MemoryStorage) Count(ctx context.Context, query *audit.Query) (int64, error) {
	q := audit.Query{}
	if query != nil {
		q = *query
	}
	q.Limit, q.Offset = 0, 0
	results, err := s.Query(ctx, &q)
	if err != nil {
		return 0, err
	}
	return int64(len(results)), nil
}

// Stats summarizes the records matching the query filters.
func (s *MemoryStorage) Stats(ctx context.Context, query *audit.Query) (*audit.Stats, error) {
	q := audit.Query{}
	if query != nil {
		q = *query
	}
	q.Limit, q.Offset, q.Order = 0, 0, "asc"
	results, err := s.Query(ctx, &q)
	if err != nil {
		return nil, err
	}
	stats := audit.NewStats()
	for _, r := range results {
		stats.Add(r)
	}
	return stats, nil
}

// Close is a no-op for memory storage.
func (s *MemoryStorage) Close() error {
	return nil
}

func (s *MemoryStorage) decodeAt(i int) (*audit.Record, error) {
	r, err := decode(s.records[i])
	if err != nil {
		return nil, audit.NewStorageError("memory", "decode", err)
	}
	return r, nil
}

func decode(payload []byte) (*audit.Record, error) {
	var r audit.Record
	if err := json.Unmarshal(payload, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
