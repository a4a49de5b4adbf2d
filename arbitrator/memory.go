package arbitrator

import (
	"context"
	"sync"

	"sealedcourt/account"
)

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu       sync.RWMutex
	profiles map[account.Address]Profile
	order    []account.Address
	users    map[account.Address]int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profiles: make(map[account.Address]Profile),
		users:    make(map[account.Address]int64),
	}
}

func (s *MemoryStore) Get(_ context.Context, addr account.Address) (Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[addr]
	if !ok {
		return Profile{}, ErrNotRegistered
	}
	return p, nil
}

func (s *MemoryStore) Save(_ context.Context, p Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.profiles[p.Address]; !ok {
		s.order = append(s.order, p.Address)
	}
	s.profiles[p.Address] = p
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Profile, 0, len(s.order))
	for _, addr := range s.order {
		out = append(out, s.profiles[addr])
	}
	return out, nil
}

func (s *MemoryStore) CountActive(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, p := range s.profiles {
		if p.Active {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) UserReputation(_ context.Context, addr account.Address) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.users[addr], nil
}

func (s *MemoryStore) SetUserReputation(_ context.Context, addr account.Address, value int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[addr] = value
	return nil
}
