package arbitrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sealedcourt/account"
	"sealedcourt/ciphertext"
	"sealedcourt/db"
)

// Repository is the Postgres Store. It joins the transaction carried by ctx.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository wires a pgxpool-backed repository implementation.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const profileColumns = `address, active, reputation, total_disputes, successful_disputes, identity_handle, verified, registered_at`

// Get fetches a profile by address, locking the row inside a transaction.
func (r *Repository) Get(ctx context.Context, addr account.Address) (Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM arbitrators WHERE address = $1`
	if _, ok := db.TxFrom(ctx); ok {
		query += ` FOR UPDATE`
	}

	p, err := scanProfile(db.Conn(ctx, r.pool).QueryRow(ctx, query, addr))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{}, ErrNotRegistered
		}
		return Profile{}, fmt.Errorf("arbitrator: query by address: %w", err)
	}
	return p, nil
}

func (r *Repository) Save(ctx context.Context, p Profile) error {
	const query = `
		INSERT INTO arbitrators (address, active, reputation, total_disputes, successful_disputes, identity_handle, verified, registered_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (address) DO UPDATE SET
			active = EXCLUDED.active,
			reputation = EXCLUDED.reputation,
			total_disputes = EXCLUDED.total_disputes,
			successful_disputes = EXCLUDED.successful_disputes,
			identity_handle = EXCLUDED.identity_handle,
			verified = EXCLUDED.verified,
			registered_at = EXCLUDED.registered_at
	`
	_, err := db.Conn(ctx, r.pool).Exec(ctx, query,
		p.Address,
		p.Active,
		p.Reputation,
		p.TotalDisputes,
		p.SuccessfulDisputes,
		p.Identity,
		p.Verified,
		p.RegisteredAt,
	)
	if err != nil {
		return fmt.Errorf("arbitrator: save: %w", err)
	}
	return nil
}

// List fetches all profiles ordered by registration.
func (r *Repository) List(ctx context.Context) ([]Profile, error) {
	const query = `SELECT ` + profileColumns + ` FROM arbitrators ORDER BY seq ASC`

	rows, err := db.Conn(ctx, r.pool).Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("arbitrator: list: %w", err)
	}
	defer rows.Close()

	profiles := make([]Profile, 0, 16)
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("arbitrator: scan profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("arbitrator: iterate profiles: %w", err)
	}
	return profiles, nil
}

func (r *Repository) CountActive(ctx context.Context) (int, error) {
	var n int
	if err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT count(*) FROM arbitrators WHERE active`).Scan(&n); err != nil {
		return 0, fmt.Errorf("arbitrator: count active: %w", err)
	}
	return n, nil
}

func (r *Repository) UserReputation(ctx context.Context, addr account.Address) (int64, error) {
	var v int64
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT reputation FROM user_reputation WHERE address = $1`, addr).Scan(&v)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("arbitrator: user reputation: %w", err)
	}
	return v, nil
}

func (r *Repository) SetUserReputation(ctx context.Context, addr account.Address, value int64) error {
	const query = `
		INSERT INTO user_reputation (address, reputation) VALUES ($1, $2)
		ON CONFLICT (address) DO UPDATE SET reputation = EXCLUDED.reputation
	`
	if _, err := db.Conn(ctx, r.pool).Exec(ctx, query, addr, value); err != nil {
		return fmt.Errorf("arbitrator: set user reputation: %w", err)
	}
	return nil
}

func scanProfile(row pgx.Row) (Profile, error) {
	var (
		p        Profile
		addr     string
		identity string
	)
	err := row.Scan(
		&addr,
		&p.Active,
		&p.Reputation,
		&p.TotalDisputes,
		&p.SuccessfulDisputes,
		&identity,
		&p.Verified,
		&p.RegisteredAt,
	)
	if err != nil {
		return Profile{}, err
	}
	p.Address = account.Address(addr)
	p.Identity = ciphertext.Handle(identity)
	return p, nil
}
