package dispute

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"sealedcourt/account"
	"sealedcourt/ciphertext"
	"sealedcourt/db"
	"sealedcourt/oracle"
)

// Repository is the Postgres Store. It joins the transaction carried by ctx
// and locks the rows it reads there.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const disputeColumns = `
	id, plaintiff, defendant, encrypted_stake, encrypted_evidence, encrypted_escrow,
	encrypted_tally, status, created_at, voting_deadline, decryption_requested_at,
	arbitrators, encrypted_decision, decision_revealed, winner, escrow_amount,
	request_id, decryption_in_flight, refund_processed, failure_reason, updated_at`

func (r *Repository) Create(ctx context.Context, d Dispute) (Dispute, error) {
	const query = `
		INSERT INTO disputes (
			plaintiff, defendant, encrypted_stake, encrypted_evidence, encrypted_escrow,
			encrypted_tally, status, created_at, escrow_amount, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`
	err := db.Conn(ctx, r.pool).QueryRow(ctx, query,
		d.Plaintiff,
		d.Defendant,
		d.EncryptedStake,
		d.EncryptedEvidence,
		d.EncryptedEscrow,
		d.EncryptedTally,
		d.Status,
		d.CreatedAt,
		int64(d.EscrowAmount),
		d.UpdatedAt,
	).Scan(&d.ID)
	if err != nil {
		return Dispute{}, fmt.Errorf("dispute: create: %w", err)
	}
	return d, nil
}

func (r *Repository) Get(ctx context.Context, id uint64) (Dispute, error) {
	query := `SELECT ` + disputeColumns + ` FROM disputes WHERE id = $1`
	if _, ok := db.TxFrom(ctx); ok {
		query += ` FOR UPDATE`
	}

	d, err := scanDispute(db.Conn(ctx, r.pool).QueryRow(ctx, query, int64(id)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Dispute{}, ErrNotFound
		}
		return Dispute{}, fmt.Errorf("dispute: query by id: %w", err)
	}
	return d, nil
}

func (r *Repository) Update(ctx context.Context, d Dispute) error {
	const query = `
		UPDATE disputes SET
			encrypted_tally = $2,
			status = $3,
			voting_deadline = $4,
			decryption_requested_at = $5,
			arbitrators = $6,
			encrypted_decision = $7,
			decision_revealed = $8,
			winner = $9,
			request_id = $10,
			decryption_in_flight = $11,
			refund_processed = $12,
			failure_reason = $13,
			updated_at = $14
		WHERE id = $1
	`
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, query,
		int64(d.ID),
		d.EncryptedTally,
		d.Status,
		nullTime(d.VotingDeadline),
		nullTime(d.DecryptionRequestedAt),
		addressStrings(d.Arbitrators),
		d.EncryptedDecision,
		d.DecisionRevealed,
		d.Winner,
		d.RequestID,
		d.DecryptionInFlight,
		d.RefundProcessed,
		d.FailureReason,
		d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("dispute: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) ListByStatus(ctx context.Context, statuses ...Status) ([]Dispute, error) {
	query := `SELECT ` + disputeColumns + ` FROM disputes`
	var args []any
	if len(statuses) > 0 {
		values := make([]string, len(statuses))
		for i, s := range statuses {
			values[i] = string(s)
		}
		query += ` WHERE status = ANY($1)`
		args = append(args, values)
	}
	query += ` ORDER BY id ASC`

	rows, err := db.Conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("dispute: list: %w", err)
	}
	defer rows.Close()

	out := make([]Dispute, 0, 8)
	for rows.Next() {
		d, err := scanDispute(rows)
		if err != nil {
			return nil, fmt.Errorf("dispute: scan: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dispute: iterate: %w", err)
	}
	return out, nil
}

func (r *Repository) PutPending(ctx context.Context, p Pending) error {
	const query = `
		INSERT INTO pending_decryptions (request_id, dispute_id, requested_at)
		VALUES ($1, $2, $3)
	`
	_, err := db.Conn(ctx, r.pool).Exec(ctx, query, p.RequestID, int64(p.DisputeID), p.RequestedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateRequest
		}
		return fmt.Errorf("dispute: insert pending: %w", err)
	}
	return nil
}

func (r *Repository) LookupPending(ctx context.Context, id oracle.RequestID) (Pending, error) {
	query := `
		SELECT request_id, dispute_id, requested_at
		FROM pending_decryptions
		WHERE request_id = $1 AND NOT consumed
	`
	if _, ok := db.TxFrom(ctx); ok {
		query += ` FOR UPDATE`
	}

	var (
		p   Pending
		rid string
		did int64
	)
	err := db.Conn(ctx, r.pool).QueryRow(ctx, query, id).Scan(&rid, &did, &p.RequestedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Pending{}, ErrUnknownRequest
		}
		return Pending{}, fmt.Errorf("dispute: lookup pending: %w", err)
	}
	p.RequestID = oracle.RequestID(rid)
	p.DisputeID = uint64(did)
	return p, nil
}

func (r *Repository) ConsumePending(ctx context.Context, id oracle.RequestID, at time.Time) error {
	const query = `
		UPDATE pending_decryptions
		SET consumed = TRUE, consumed_at = $2
		WHERE request_id = $1 AND NOT consumed
	`
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("dispute: consume pending: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUnknownRequest
	}
	return nil
}

func scanDispute(row pgx.Row) (Dispute, error) {
	var (
		d                     Dispute
		id, escrow            int64
		plaintiff, defendant  string
		winner, status        string
		stake, evidence       string
		escrowH, tally, dec   string
		requestID             string
		deadline, requestedAt *time.Time
		arbitrators           []string
	)
	err := row.Scan(
		&id, &plaintiff, &defendant, &stake, &evidence, &escrowH,
		&tally, &status, &d.CreatedAt, &deadline, &requestedAt,
		&arbitrators, &dec, &d.DecisionRevealed, &winner, &escrow,
		&requestID, &d.DecryptionInFlight, &d.RefundProcessed, &d.FailureReason, &d.UpdatedAt,
	)
	if err != nil {
		return Dispute{}, err
	}

	d.ID = uint64(id)
	d.Plaintiff = account.Address(plaintiff)
	d.Defendant = account.Address(defendant)
	d.EncryptedStake = ciphertext.Handle(stake)
	d.EncryptedEvidence = ciphertext.Handle(evidence)
	d.EncryptedEscrow = ciphertext.Handle(escrowH)
	d.EncryptedTally = ciphertext.Handle(tally)
	d.Status = Status(status)
	d.EncryptedDecision = ciphertext.Handle(dec)
	d.Winner = account.Address(winner)
	d.EscrowAmount = uint64(escrow)
	d.RequestID = oracle.RequestID(requestID)
	if deadline != nil {
		d.VotingDeadline = *deadline
	}
	if requestedAt != nil {
		d.DecryptionRequestedAt = *requestedAt
	}
	d.Arbitrators = make([]account.Address, len(arbitrators))
	for i, a := range arbitrators {
		d.Arbitrators[i] = account.Address(a)
	}
	return d, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func addressStrings(in []account.Address) []string {
	out := make([]string, len(in))
	for i, a := range in {
		out[i] = string(a)
	}
	return out
}
