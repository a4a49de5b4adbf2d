package arbitrator

import (
	"context"
	"errors"

	"sealedcourt/account"
)

var (
	// ErrNotRegistered signals the address has no profile.
	ErrNotRegistered = errors.New("arbitrator: not registered")
	// ErrAlreadyRegistered rejects registration of an active arbitrator.
	ErrAlreadyRegistered = errors.New("arbitrator: already registered")
	// ErrNotActive rejects pausing an arbitrator that is not active.
	ErrNotActive = errors.New("arbitrator: not active")
	// ErrAlreadyActive rejects unpausing an active arbitrator.
	ErrAlreadyActive = errors.New("arbitrator: already active")
)

// Store persists arbitrator profiles and party reputation.
type Store interface {
	Get(ctx context.Context, addr account.Address) (Profile, error)
	// Save inserts or replaces a profile. Replacing keeps the original
	// registration position.
	Save(ctx context.Context, p Profile) error
	// List returns every profile in registration order.
	List(ctx context.Context) ([]Profile, error)
	CountActive(ctx context.Context) (int, error)

	UserReputation(ctx context.Context, addr account.Address) (int64, error)
	SetUserReputation(ctx context.Context, addr account.Address, value int64) error
}
