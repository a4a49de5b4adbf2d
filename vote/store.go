package vote

import (
	"context"
	"slices"
	"sync"

	"sealedcourt/account"
)

// Store persists vote records.
type Store interface {
	// Cast writes r once per (dispute, arbitrator) pair.
	Cast(ctx context.Context, r Record) error
	Get(ctx context.Context, disputeID uint64, arbitrator account.Address) (Record, error)
	// ListByDispute returns the dispute's records in cast order.
	ListByDispute(ctx context.Context, disputeID uint64) ([]Record, error)
}

type key struct {
	dispute    uint64
	arbitrator account.Address
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu        sync.RWMutex
	records   map[key]Record
	byDispute map[uint64][]account.Address
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:   make(map[key]Record),
		byDispute: make(map[uint64][]account.Address),
	}
}

func (s *MemoryStore) Cast(_ context.Context, r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{r.DisputeID, r.Arbitrator}
	if existing, ok := s.records[k]; ok && existing.HasVoted {
		return ErrAlreadyVoted
	}
	r.HasVoted = true
	s.records[k] = r
	s.byDispute[r.DisputeID] = append(s.byDispute[r.DisputeID], r.Arbitrator)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, disputeID uint64, arbitrator account.Address) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[key{disputeID, arbitrator}]
	if !ok {
		return Record{}, ErrNotFound
	}
	return r, nil
}

func (s *MemoryStore) ListByDispute(_ context.Context, disputeID uint64) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	voters := slices.Clone(s.byDispute[disputeID])
	out := make([]Record, 0, len(voters))
	for _, a := range voters {
		out = append(out, s.records[key{disputeID, a}])
	}
	return out, nil
}
