package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Protocol-Lattice/go-context/src/model"
)

// InMemoryStore implements InteractionStore for tests and lightweight
// deployments. Writes exist only so the external writer can be simulated;
// the engine itself never calls Add.
type InMemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	items  []model.Interaction
	clock  func() time.Time
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{clock: time.Now}
}

// WithClock overrides the time source, for tests.
func (s *InMemoryStore) WithClock(clock func() time.Time) *InMemoryStore {
	if clock != nil {
		s.clock = clock
	}
	return s
}

// Add appends one interaction, assigning a monotonically increasing id when
// none is set. Content fields are immutable after this call.
func (s *InMemoryStore) Add(in model.Interaction) model.Interaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	if in.ID == 0 {
		s.nextID++
		in.ID = s.nextID
	} else if in.ID > s.nextID {
		s.nextID = in.ID
	}
	s.items = append(s.items, in)
	return in
}

func (s *InMemoryStore) Recent(_ context.Context, window time.Duration, limit int) ([]model.Interaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cutoff := s.clock().UTC().Add(-window)
	out := make([]model.Interaction, 0, len(s.items))
	for _, in := range s.items {
		if window > 0 && in.Timestamp.Before(cutoff) {
			continue
		}
		out = append(out, in)
	}
	sortChronological(out)
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *InMemoryStore) BySession(_ context.Context, sessionID string) ([]model.Interaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Interaction, 0, len(s.items))
	for _, in := range s.items {
		if in.SessionID == sessionID {
			out = append(out, in)
		}
	}
	sortChronological(out)
	return out, nil
}

func sortChronological(items []model.Interaction) {
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].Timestamp.Equal(items[j].Timestamp) {
			return items[i].Timestamp.Before(items[j].Timestamp)
		}
		return items[i].ID < items[j].ID
	})
}
