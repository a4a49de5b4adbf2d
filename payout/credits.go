package payout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sealedcourt/account"
	"sealedcourt/db"
)

// CreditStore tracks amounts owed to addresses after a failed push.
type CreditStore interface {
	Credit(ctx context.Context, addr account.Address, amount uint64, at time.Time) error
	Balance(ctx context.Context, addr account.Address) (uint64, error)
	// Take zeroes the balance and returns what it held.
	Take(ctx context.Context, addr account.Address, at time.Time) (uint64, error)
}

// MemoryCredits is an in-process CreditStore.
type MemoryCredits struct {
	mu       sync.Mutex
	balances map[account.Address]uint64
}

func NewMemoryCredits() *MemoryCredits {
	return &MemoryCredits{balances: make(map[account.Address]uint64)}
}

func (m *MemoryCredits) Credit(_ context.Context, addr account.Address, amount uint64, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[addr] += amount
	return nil
}

func (m *MemoryCredits) Balance(_ context.Context, addr account.Address) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[addr], nil
}

func (m *MemoryCredits) Take(_ context.Context, addr account.Address, _ time.Time) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	amount := m.balances[addr]
	if amount == 0 {
		return 0, ErrNothingToWithdraw
	}
	delete(m.balances, addr)
	return amount, nil
}

// CreditRepository is the Postgres CreditStore.
type CreditRepository struct {
	pool *pgxpool.Pool
}

func NewCreditRepository(pool *pgxpool.Pool) *CreditRepository {
	return &CreditRepository{pool: pool}
}

func (r *CreditRepository) Credit(ctx context.Context, addr account.Address, amount uint64, at time.Time) error {
	const query = `
		INSERT INTO credits (address, amount, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (address) DO UPDATE
		SET amount = credits.amount + EXCLUDED.amount, updated_at = EXCLUDED.updated_at
	`
	if _, err := db.Conn(ctx, r.pool).Exec(ctx, query, addr, int64(amount), at); err != nil {
		return fmt.Errorf("payout: credit: %w", err)
	}
	return nil
}

func (r *CreditRepository) Balance(ctx context.Context, addr account.Address) (uint64, error) {
	var amount int64
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT amount FROM credits WHERE address = $1`, addr).Scan(&amount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("payout: balance: %w", err)
	}
	return uint64(amount), nil
}

// Take zeroes the row with a single conditional update so concurrent
// withdrawals cannot both observe the balance.
func (r *CreditRepository) Take(ctx context.Context, addr account.Address, at time.Time) (uint64, error) {
	const query = `
		UPDATE credits c
		SET amount = 0, updated_at = $2
		FROM (SELECT address, amount FROM credits WHERE address = $1 FOR UPDATE) prev
		WHERE c.address = prev.address AND prev.amount > 0
		RETURNING prev.amount
	`
	var amount int64
	err := db.Conn(ctx, r.pool).QueryRow(ctx, query, addr, at).Scan(&amount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNothingToWithdraw
		}
		return 0, fmt.Errorf("payout: take: %w", err)
	}
	return uint64(amount), nil
}
