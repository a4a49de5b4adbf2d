package vote

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"sealedcourt/account"
	"sealedcourt/ciphertext"
	"sealedcourt/db"
)

// Repository is the Postgres Store.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Cast relies on the (dispute_id, arbitrator) primary key for exclusivity.
func (r *Repository) Cast(ctx context.Context, rec Record) error {
	const query = `
		INSERT INTO votes (dispute_id, arbitrator, encrypted_vote, encrypted_justification, has_voted, cast_at)
		VALUES ($1, $2, $3, $4, TRUE, $5)
	`
	_, err := db.Conn(ctx, r.pool).Exec(ctx, query,
		int64(rec.DisputeID),
		rec.Arbitrator,
		rec.EncryptedVote,
		rec.EncryptedJustification,
		rec.CastAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAlreadyVoted
		}
		return fmt.Errorf("vote: cast: %w", err)
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, disputeID uint64, arbitrator account.Address) (Record, error) {
	const query = `
		SELECT dispute_id, arbitrator, encrypted_vote, encrypted_justification, has_voted, cast_at
		FROM votes
		WHERE dispute_id = $1 AND arbitrator = $2
	`
	rec, err := scanRecord(db.Conn(ctx, r.pool).QueryRow(ctx, query, int64(disputeID), arbitrator))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("vote: get: %w", err)
	}
	return rec, nil
}

func (r *Repository) ListByDispute(ctx context.Context, disputeID uint64) ([]Record, error) {
	const query = `
		SELECT dispute_id, arbitrator, encrypted_vote, encrypted_justification, has_voted, cast_at
		FROM votes
		WHERE dispute_id = $1
		ORDER BY cast_at ASC, arbitrator ASC
	`
	rows, err := db.Conn(ctx, r.pool).Query(ctx, query, int64(disputeID))
	if err != nil {
		return nil, fmt.Errorf("vote: list: %w", err)
	}
	defer rows.Close()

	out := make([]Record, 0, 4)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("vote: scan: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vote: iterate: %w", err)
	}
	return out, nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var (
		rec                  Record
		id                   int64
		arbitrator           string
		encVote, encJustific string
	)
	if err := row.Scan(&id, &arbitrator, &encVote, &encJustific, &rec.HasVoted, &rec.CastAt); err != nil {
		return Record{}, err
	}
	rec.DisputeID = uint64(id)
	rec.Arbitrator = account.Address(arbitrator)
	rec.EncryptedVote = ciphertext.Handle(encVote)
	rec.EncryptedJustification = ciphertext.Handle(encJustific)
	return rec, nil
}
