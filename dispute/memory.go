package dispute

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"sealedcourt/oracle"
)

// MemoryStore is an in-process Store keyed by dispute id.
type MemoryStore struct {
	mu       sync.RWMutex
	nextID   uint64
	disputes map[uint64]Dispute
	pending  map[oracle.RequestID]Pending
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		disputes: make(map[uint64]Dispute),
		pending:  make(map[oracle.RequestID]Pending),
	}
}

func (s *MemoryStore) Create(_ context.Context, d Dispute) (Dispute, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	d.ID = s.nextID
	s.disputes[d.ID] = d.Clone()
	return d, nil
}

func (s *MemoryStore) Get(_ context.Context, id uint64) (Dispute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.disputes[id]
	if !ok {
		return Dispute{}, ErrNotFound
	}
	return d.Clone(), nil
}

func (s *MemoryStore) Update(_ context.Context, d Dispute) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.disputes[d.ID]; !ok {
		return ErrNotFound
	}
	s.disputes[d.ID] = d.Clone()
	return nil
}

func (s *MemoryStore) ListByStatus(_ context.Context, statuses ...Status) ([]Dispute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Dispute, 0, 8)
	for _, d := range s.disputes {
		if len(statuses) == 0 || slices.Contains(statuses, d.Status) {
			out = append(out, d.Clone())
		}
	}
	slices.SortFunc(out, func(a, b Dispute) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *MemoryStore) PutPending(_ context.Context, p Pending) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pending[p.RequestID]; ok {
		return ErrDuplicateRequest
	}
	s.pending[p.RequestID] = p
	return nil
}

func (s *MemoryStore) LookupPending(_ context.Context, id oracle.RequestID) (Pending, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.pending[id]
	if !ok || p.Consumed {
		return Pending{}, ErrUnknownRequest
	}
	return p, nil
}

func (s *MemoryStore) ConsumePending(_ context.Context, id oracle.RequestID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pending[id]
	if !ok || p.Consumed {
		return ErrUnknownRequest
	}
	p.Consumed = true
	p.ConsumedAt = at
	s.pending[id] = p
	return nil
}
