package dispute

import (
	"context"
	"errors"
	"time"

	"sealedcourt/oracle"
)

var (
	ErrNotFound  = errors.New("dispute: not found")
	ErrBadStatus = errors.New("dispute: invalid status transition")
	// ErrUnknownRequest covers request ids that were never issued or are consumed.
	ErrUnknownRequest = errors.New("dispute: unknown or consumed request id")
	// ErrDuplicateRequest signals an oracle reused a request id.
	ErrDuplicateRequest = errors.New("dispute: duplicate request id")
)

// Store persists disputes and the pending decryption index.
type Store interface {
	// Create assigns the next id and returns the stored dispute.
	Create(ctx context.Context, d Dispute) (Dispute, error)
	Get(ctx context.Context, id uint64) (Dispute, error)
	Update(ctx context.Context, d Dispute) error
	// ListByStatus returns disputes in id order.
	ListByStatus(ctx context.Context, statuses ...Status) ([]Dispute, error)

	PutPending(ctx context.Context, p Pending) error
	// LookupPending returns ErrUnknownRequest for missing or consumed ids.
	LookupPending(ctx context.Context, id oracle.RequestID) (Pending, error)
	ConsumePending(ctx context.Context, id oracle.RequestID, at time.Time) error
}
