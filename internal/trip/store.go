package trip

import (
	"context"
	"sync"

	"backend-tanquecheio/internal/shared/geo"
)

// Store persists trips for the Tracker. Implementations return
// ErrTripNotFound for unknown ids and ErrTripAlreadyActive when Create would
// leave a user with two active trips.
type Store interface {
	Create(ctx context.Context, t Trip) error
	Get(ctx context.Context, id string) (Trip, error)
	ActiveByUser(ctx context.Context, userID string) (Trip, error)
	Save(ctx context.Context, t Trip) error
	// SaveSample saves t and appends sample to its point log in one step.
	SaveSample(ctx context.Context, t Trip, sample geo.Point) error
	Points(ctx context.Context, tripID string) ([]geo.Point, error)
}

type MemoryStore struct {
	mu     sync.RWMutex
	trips  map[string]Trip
	active map[string]string
	points map[string][]geo.Point
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		trips:  map[string]Trip{},
		active: map[string]string{},
		points: map[string][]geo.Point{},
	}
}

func (s *MemoryStore) Create(_ context.Context, t Trip) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.Status == StatusActive {
		if _, ok := s.active[t.UserID]; ok {
			return ErrTripAlreadyActive
		}
		s.active[t.UserID] = t.ID
	}
	s.trips[t.ID] = t.clone()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Trip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.trips[id]
	if !ok {
		return Trip{}, ErrTripNotFound
	}
	return t.clone(), nil
}

func (s *MemoryStore) ActiveByUser(_ context.Context, userID string) (Trip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.active[userID]
	if !ok {
		return Trip{}, ErrTripNotFound
	}
	return s.trips[id].clone(), nil
}

func (s *MemoryStore) Save(_ context.Context, t Trip) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(t)
}

func (s *MemoryStore) SaveSample(_ context.Context, t Trip, sample geo.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.saveLocked(t); err != nil {
		return err
	}
	s.points[t.ID] = append(s.points[t.ID], sample)
	return nil
}

func (s *MemoryStore) Points(_ context.Context, tripID string) ([]geo.Point, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.trips[tripID]; !ok {
		return nil, ErrTripNotFound
	}
	return append([]geo.Point{}, s.points[tripID]...), nil
}

func (s *MemoryStore) saveLocked(t Trip) error {
	if _, ok := s.trips[t.ID]; !ok {
		return ErrTripNotFound
	}
	s.trips[t.ID] = t.clone()
	if t.Status != StatusActive && s.active[t.UserID] == t.ID {
		delete(s.active, t.UserID)
	}
	return nil
}

func (t Trip) clone() Trip {
	c := t
	if t.Destination != nil {
		d := *t.Destination
		c.Destination = &d
	}
	if t.LastSample != nil {
		s := *t.LastSample
		c.LastSample = &s
	}
	if t.EndedAt != nil {
		e := *t.EndedAt
		c.EndedAt = &e
	}
	return c
}
