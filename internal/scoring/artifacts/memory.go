package artifacts

import (
	"context"
	"sort"
	"sync"
	"time"

	"lead_scoring_backend/internal/scoring/domain"
)

// MemoryStore keeps artifacts in process. A ttl of zero disables expiry.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[Key]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

type memoryEntry struct {
	artifact *Artifact
	storedAt time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		entries: make(map[Key]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (s *MemoryStore) expired(e memoryEntry) bool {
	return s.ttl > 0 && s.now().Sub(e.storedAt) >= s.ttl
}

func (s *MemoryStore) Get(_ context.Context, key Key) (*Artifact, error) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	if s.expired(e) {
		s.mu.Lock()
		if cur, ok := s.entries[key]; ok && cur.storedAt.Equal(e.storedAt) {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	return e.artifact, nil
}

func (s *MemoryStore) Put(_ context.Context, a *Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[a.Key()] = memoryEntry{artifact: a, storedAt: s.now()}
	return nil
}

func (s *MemoryStore) Invalidate(_ context.Context, kind domain.ModelKind) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for k := range s.entries {
		if k.Kind == kind {
			delete(s.entries, k)
			removed++
		}
	}
	return removed, nil
}

// List returns live artifacts, newest first.
func (s *MemoryStore) List(_ context.Context) ([]*Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Artifact, 0, len(s.entries))
	for _, e := range s.entries {
		if !s.expired(e) {
			out = append(out, e.artifact)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func sortNewestFirst(list []*Artifact) {
	sort.Slice(list, func(i, j int) bool {
		if !list[i].TrainedAt.Equal(list[j].TrainedAt) {
			return list[i].TrainedAt.After(list[j].TrainedAt)
		}
		return list[i].Version < list[j].Version
	})
}
