package payout

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sealedcourt/account"
	"sealedcourt/db"
)

var (
	// ErrIntentSettled is returned when another attempt already settled the intent.
	ErrIntentSettled  = errors.New("payout: intent already settled")
	ErrIntentNotFound = errors.New("payout: intent not found")
)

// Kind says why funds leave the court.
type Kind string

const (
	KindRefund     Kind = "refund"
	KindRelease    Kind = "release"
	KindWithdrawal Kind = "withdrawal"
)

// Settlement outcomes.
const (
	OutcomePaid     = "paid"
	OutcomeCredited = "credited"
)

// Intent is a payout recorded in the same transaction that commits to it.
// It stays unsettled until the transfer succeeds or the amount is credited.
type Intent struct {
	ID        uuid.UUID
	DisputeID uint64
	To        account.Address
	Amount    uint64
	Kind      Kind
	CreatedAt time.Time
	SettledAt time.Time
	Outcome   string
}

// Ref is the idempotency key handed to the Transferer.
func (i Intent) Ref() string {
	return i.ID.String()
}

// IntentStore persists payout intents.
type IntentStore interface {
	Record(ctx context.Context, in Intent) error
	// Get returns ErrIntentNotFound for unknown ids. Inside a transaction the
	// row is locked.
	Get(ctx context.Context, id uuid.UUID) (Intent, error)
	// Settle marks the intent done; a second call returns ErrIntentSettled.
	Settle(ctx context.Context, id uuid.UUID, outcome string, at time.Time) error
	// Unsettled lists open intents created before cutoff, oldest first.
	Unsettled(ctx context.Context, cutoff time.Time, limit int) ([]Intent, error)
}

// MemoryIntents is an in-process IntentStore.
type MemoryIntents struct {
	mu      sync.Mutex
	intents map[uuid.UUID]Intent
}

func NewMemoryIntents() *MemoryIntents {
	return &MemoryIntents{intents: make(map[uuid.UUID]Intent)}
}

func (m *MemoryIntents) Record(_ context.Context, in Intent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.intents[in.ID]; ok {
		return fmt.Errorf("payout: intent %s exists", in.ID)
	}
	m.intents[in.ID] = in
	return nil
}

func (m *MemoryIntents) Get(_ context.Context, id uuid.UUID) (Intent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	in, ok := m.intents[id]
	if !ok {
		return Intent{}, ErrIntentNotFound
	}
	return in, nil
}

func (m *MemoryIntents) Settle(_ context.Context, id uuid.UUID, outcome string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	in, ok := m.intents[id]
	if !ok || !in.SettledAt.IsZero() {
		return ErrIntentSettled
	}
	in.SettledAt = at
	in.Outcome = outcome
	m.intents[id] = in
	return nil
}

func (m *MemoryIntents) Unsettled(_ context.Context, cutoff time.Time, limit int) ([]Intent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Intent, 0)
	for _, in := range m.intents {
		if in.SettledAt.IsZero() && in.CreatedAt.Before(cutoff) {
			out = append(out, in)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// IntentRepository is the Postgres IntentStore.
type IntentRepository struct {
	pool *pgxpool.Pool
}

func NewIntentRepository(pool *pgxpool.Pool) *IntentRepository {
	return &IntentRepository{pool: pool}
}

func (r *IntentRepository) Record(ctx context.Context, in Intent) error {
	const query = `
		INSERT INTO payout_intents (id, dispute_id, recipient, amount, kind, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := db.Conn(ctx, r.pool).Exec(ctx, query,
		in.ID, int64(in.DisputeID), in.To, int64(in.Amount), string(in.Kind), in.CreatedAt)
	if err != nil {
		return fmt.Errorf("payout: record intent: %w", err)
	}
	return nil
}

func (r *IntentRepository) Get(ctx context.Context, id uuid.UUID) (Intent, error) {
	query := `
		SELECT id, dispute_id, recipient, amount, kind, created_at, settled_at, outcome
		FROM payout_intents
		WHERE id = $1
	`
	if _, ok := db.TxFrom(ctx); ok {
		query += ` FOR UPDATE`
	}

	var (
		in        Intent
		disputeID int64
		amount    int64
		to, kind  string
		settledAt *time.Time
	)
	err := db.Conn(ctx, r.pool).QueryRow(ctx, query, id).Scan(
		&in.ID, &disputeID, &to, &amount, &kind, &in.CreatedAt, &settledAt, &in.Outcome)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Intent{}, ErrIntentNotFound
		}
		return Intent{}, fmt.Errorf("payout: get intent: %w", err)
	}
	in.DisputeID = uint64(disputeID)
	in.Amount = uint64(amount)
	in.To = account.Address(to)
	in.Kind = Kind(kind)
	if settledAt != nil {
		in.SettledAt = *settledAt
	}
	return in, nil
}

func (r *IntentRepository) Settle(ctx context.Context, id uuid.UUID, outcome string, at time.Time) error {
	const query = `
		UPDATE payout_intents SET settled_at = $2, outcome = $3
		WHERE id = $1 AND settled_at IS NULL
	`
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, query, id, at, outcome)
	if err != nil {
		return fmt.Errorf("payout: settle intent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrIntentSettled
	}
	return nil
}

func (r *IntentRepository) Unsettled(ctx context.Context, cutoff time.Time, limit int) ([]Intent, error) {
	const query = `
		SELECT id, dispute_id, recipient, amount, kind, created_at
		FROM payout_intents
		WHERE settled_at IS NULL AND created_at < $1
		ORDER BY created_at
		LIMIT $2
	`
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Conn(ctx, r.pool).Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("payout: list intents: %w", err)
	}
	defer rows.Close()

	var out []Intent
	for rows.Next() {
		var (
			in        Intent
			disputeID int64
			amount    int64
			to, kind  string
		)
		if err := rows.Scan(&in.ID, &disputeID, &to, &amount, &kind, &in.CreatedAt); err != nil {
			return nil, fmt.Errorf("payout: scan intent: %w", err)
		}
		in.DisputeID = uint64(disputeID)
		in.Amount = uint64(amount)
		in.To = account.Address(to)
		in.Kind = Kind(kind)
		out = append(out, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("payout: iterate intents: %w", err)
	}
	return out, nil
}
