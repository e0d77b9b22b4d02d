package learning

import (
	"context"
	"sync"
)

// Store persists processed outcomes and threshold adjustments.
type Store interface {
	RecordOutcome(ctx context.Context, rec OutcomeRecord) error
	RecordAdjustment(ctx context.Context, adj Adjustment) error

	// Outcomes returns the most recent outcomes, oldest first. limit <= 0
	// returns all.
	Outcomes(ctx context.Context, limit int) ([]OutcomeRecord, error)

	// Adjustments returns the most recent adjustments, oldest first.
	// limit <= 0 returns all.
	Adjustments(ctx context.Context, limit int) ([]Adjustment, error)

	Close() error
}

// MemoryStore keeps learning history in memory.
type MemoryStore struct {
	mu          sync.RWMutex
	outcomes    []OutcomeRecord
	adjustments []Adjustment
}

// NewMemoryStore creates an empty memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) RecordOutcome(ctx context.Context, rec OutcomeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, rec)
	return nil
}

func (m *MemoryStore) RecordAdjustment(ctx context.Context, adj Adjustment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.adjustments = append(m.adjustments, adj)
	return nil
}

func (m *MemoryStore) Outcomes(ctx context.Context, limit int) ([]OutcomeRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return lastN(m.outcomes, limit), nil
}

func (m *MemoryStore) Adjustments(ctx context.Context, limit int) ([]Adjustment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return lastN(m.adjustments, limit), nil
}

func (m *MemoryStore) Close() error { return nil }

func lastN[T any](s []T, n int) []T {
	if n > 0 && len(s) > n {
		s = s[len(s)-n:]
	}
	return append([]T(nil), s...)
}
