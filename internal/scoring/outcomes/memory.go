// Package outcomes provides an in-process outcome history for deployments
// without a database.
package outcomes

import (
	"context"
	"sync"

	"lead_scoring_backend/internal/scoring/domain"
	"lead_scoring_backend/internal/scoring/ports"
)

// MemorySource is a mutex-guarded outcome history.
type MemorySource struct {
	mu   sync.RWMutex
	rows []domain.Outcome
}

var _ ports.OutcomeStore = (*MemorySource)(nil)

// NewMemorySource creates a source seeded with rows.
func NewMemorySource(rows []domain.Outcome) *MemorySource {
	return &MemorySource{rows: append([]domain.Outcome(nil), rows...)}
}

// Load returns a snapshot of the history in insertion order.
func (s *MemorySource) Load(_ context.Context) ([]domain.Outcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Outcome(nil), s.rows...), nil
}

// Record appends outcomes.
func (s *MemorySource) Record(_ context.Context, outcomes []domain.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, outcomes...)
	return nil
}

// Len reports the number of stored outcomes.
func (s *MemorySource) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}
