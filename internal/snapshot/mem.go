package snapshot

import (
	"sort"
	"sync"
	"time"

	"github.com/venuewatch/refresh-cli/internal/fingerprint"
	"github.com/venuewatch/refresh-cli/internal/model"
)

// MemStore is an in-memory Store for tests and dry runs.
type MemStore struct {
	mu          sync.Mutex
	current     map[string]model.Snapshot
	previous    map[string]model.Snapshot
	lastRotated string
}

// NewMemStore creates an empty in-memory snapshot store.
func NewMemStore() *MemStore {
	return &MemStore{
		current:  make(map[string]model.Snapshot),
		previous: make(map[string]model.Snapshot),
	}
}

func (s *MemStore) Rotate(today time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lastRotated == dateOf(today) {
		return nil
	}

	if len(s.previous) == 0 && len(s.current) > 0 {
		for id, snap := range s.current {
			s.previous[id] = snap
		}
		s.lastRotated = dateOf(today)
		return nil
	}

	for id, snap := range s.current {
		s.previous[id] = snap
	}
	s.current = make(map[string]model.Snapshot)
	s.lastRotated = dateOf(today)
	return nil
}

func (s *MemStore) Write(venueID string, pages []model.Page) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current[venueID] = model.Snapshot{
		VenueID:     venueID,
		Pages:       pages,
		CapturedAt:  time.Now().UTC(),
		Fingerprint: fingerprint.Fingerprint(pages),
	}
	return nil
}

func (s *MemStore) Read(venueID string, gen model.Generation) (*model.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket := s.current
	if gen == model.GenerationPrevious {
		bucket = s.previous
	}
	snap, ok := bucket[venueID]
	if !ok {
		return nil, ErrNotFound
	}
	return &snap, nil
}

func (s *MemStore) List(gen model.Generation) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket := s.current
	if gen == model.GenerationPrevious {
		bucket = s.previous
	}
	ids := make([]string, 0, len(bucket))
	for id := range bucket {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// SeedPrevious writes a snapshot directly into the previous generation.
// Test helper for setting up comparison targets without a rotation.
func (s *MemStore) SeedPrevious(venueID string, pages []model.Page) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.previous[venueID] = model.Snapshot{
		VenueID:     venueID,
		Pages:       pages,
		CapturedAt:  time.Now().UTC(),
		Fingerprint: fingerprint.Fingerprint(pages),
	}
}
