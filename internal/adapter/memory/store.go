// Package memory is a process-local record store. Records are lost on restart.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/couchcryptid/geo-anchor-service/internal/domain"
)

// Store keeps records in an append-only slice.
type Store struct {
	mu      sync.RWMutex
	records []domain.Record
}

var _ domain.RecordStore = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{}
}

func (s *Store) Init(_ context.Context) error { return nil }

func (s *Store) Close(_ context.Context) error { return nil }

// Save appends r.
func (s *Store) Save(_ context.Context, r domain.Record) (domain.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, r)
	return r, nil
}

// ListAll returns a copy of every record in insertion order.
func (s *Store) ListAll(_ context.Context) ([]domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.records), nil
}

// FindNearest scans the slice for grid candidates in insertion order.
func (s *Store) FindNearest(_ context.Context, lat, lon, thresholdMeters float64) (domain.Match, bool, error) {
	s.mu.RLock()
	candidates := make([]domain.Record, 0, 8)
	for _, r := range s.records {
		if domain.WithinGrid(r, lat, lon) {
			candidates = append(candidates, r)
		}
	}
	s.mu.RUnlock()

	m, ok := domain.Nearest(lat, lon, thresholdMeters, candidates)
	return m, ok, nil
}
