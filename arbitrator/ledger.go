package arbitrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sealedcourt/account"
	"sealedcourt/ciphertext"
)

// DefaultBaselineReputation is granted on registration.
const DefaultBaselineReputation = 100

// Ledger owns arbitrator identity and reputation for both arbitrators and
// dispute parties.
type Ledger struct {
	store    Store
	baseline int64
	now      func() time.Time
}

func NewLedger(store Store, baseline int64) *Ledger {
	if baseline <= 0 {
		baseline = DefaultBaselineReputation
	}
	return &Ledger{store: store, baseline: baseline, now: time.Now}
}

// WithClock overrides the time source. Intended for tests.
func (l *Ledger) WithClock(fn func() time.Time) *Ledger {
	if fn != nil {
		l.now = fn
	}
	return l
}

// Register creates or re-creates a verified, active profile with baseline
// reputation. Active arbitrators cannot register again.
func (l *Ledger) Register(ctx context.Context, addr account.Address, identity ciphertext.Handle) (Profile, error) {
	existing, err := l.store.Get(ctx, addr)
	switch {
	case err == nil && existing.Active:
		return Profile{}, ErrAlreadyRegistered
	case err != nil && !errors.Is(err, ErrNotRegistered):
		return Profile{}, err
	}

	p := Profile{
		Address:      addr,
		Active:       true,
		Reputation:   l.baseline,
		Identity:     identity,
		Verified:     true,
		RegisteredAt: l.now().UTC(),
	}
	if err := l.store.Save(ctx, p); err != nil {
		return Profile{}, err
	}
	return p, nil
}

func (l *Ledger) Pause(ctx context.Context, addr account.Address) (Profile, error) {
	p, err := l.store.Get(ctx, addr)
	if err != nil {
		if errors.Is(err, ErrNotRegistered) {
			return Profile{}, ErrNotActive
		}
		return Profile{}, err
	}
	if !p.Active {
		return Profile{}, ErrNotActive
	}
	p.Active = false
	if err := l.store.Save(ctx, p); err != nil {
		return Profile{}, err
	}
	return p, nil
}

func (l *Ledger) Unpause(ctx context.Context, addr account.Address) (Profile, error) {
	p, err := l.store.Get(ctx, addr)
	if err != nil {
		return Profile{}, err
	}
	if p.Reputation == 0 {
		return Profile{}, ErrNotRegistered
	}
	if p.Active {
		return Profile{}, ErrAlreadyActive
	}
	p.Active = true
	if err := l.store.Save(ctx, p); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// AdjustReputation applies delta to a party's reputation, flooring at zero,
// and returns the new value.
func (l *Ledger) AdjustReputation(ctx context.Context, addr account.Address, delta int64) (int64, error) {
	cur, err := l.store.UserReputation(ctx, addr)
	if err != nil {
		return 0, err
	}
	next := cur + delta
	if next < 0 {
		next = 0
	}
	if err := l.store.SetUserReputation(ctx, addr, next); err != nil {
		return 0, err
	}
	return next, nil
}

// RecordParticipation credits an arbitrator for taking part in a resolved
// dispute, regardless of how they voted.
func (l *Ledger) RecordParticipation(ctx context.Context, addr account.Address, reward int64) (Profile, error) {
	p, err := l.store.Get(ctx, addr)
	if err != nil {
		return Profile{}, fmt.Errorf("arbitrator: record participation %s: %w", addr, err)
	}
	p.TotalDisputes++
	p.SuccessfulDisputes++
	p.Reputation += reward
	if err := l.store.Save(ctx, p); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// ActiveCount is the size of the arbitrator pool.
func (l *Ledger) ActiveCount(ctx context.Context) (int, error) {
	return l.store.CountActive(ctx)
}

// Candidates lists every registered profile in registration order, paused
// ones included.
func (l *Ledger) Candidates(ctx context.Context) ([]Profile, error) {
	return l.store.List(ctx)
}

func (l *Ledger) Get(ctx context.Context, addr account.Address) (Profile, error) {
	return l.store.Get(ctx, addr)
}

// Reputation returns a party's reputation; unknown addresses have zero.
func (l *Ledger) Reputation(ctx context.Context, addr account.Address) (int64, error) {
	return l.store.UserReputation(ctx, addr)
}
