package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"sealedcourt/db"
)

// Outbox is the Postgres Store.
type Outbox struct {
	pool *pgxpool.Pool
}

func NewOutbox(pool *pgxpool.Pool) *Outbox {
	return &Outbox{pool: pool}
}

func (o *Outbox) Emit(ctx context.Context, ev Event) error {
	payloadBytes, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("journal: marshal outbox payload: %w", err)
	}

	const insertSQL = `
INSERT INTO outbox (id, topic, dispute_id, payload, created_at)
VALUES ($1, $2, $3, $4, $5);
`
	if _, err := db.Conn(ctx, o.pool).Exec(ctx, insertSQL, ev.ID, ev.Topic, int64(ev.DisputeID), payloadBytes, ev.OccurredAt); err != nil {
		return fmt.Errorf("journal: insert outbox message: %w", err)
	}
	return nil
}

func (o *Outbox) Claim(ctx context.Context, limit int) ([]Message, error) {
	if limit <= 0 {
		return nil, nil
	}

	const claimSQL = `
SELECT id, topic, dispute_id, payload, created_at, attempts
FROM outbox
WHERE processed_at IS NULL AND dead_lettered_at IS NULL
ORDER BY created_at
FOR UPDATE SKIP LOCKED
LIMIT $1
`
	rows, err := db.Conn(ctx, o.pool).Query(ctx, claimSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: claim: %w", err)
	}
	defer rows.Close()

	out := make([]Message, 0, limit)
	for rows.Next() {
		var (
			m         Message
			disputeID int64
			payload   []byte
		)
		if err := rows.Scan(&m.ID, &m.Topic, &disputeID, &payload, &m.OccurredAt, &m.Attempts); err != nil {
			return nil, fmt.Errorf("journal: scan outbox: %w", err)
		}
		m.DisputeID = uint64(disputeID)
		if err := json.Unmarshal(payload, &m.Payload); err != nil {
			return nil, fmt.Errorf("journal: decode payload %s: %w", m.ID, err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: iterate outbox: %w", err)
	}
	return out, nil
}

func (o *Outbox) MarkProcessed(ctx context.Context, id uuid.UUID, at time.Time) error {
	if _, err := db.Conn(ctx, o.pool).Exec(ctx, `UPDATE outbox SET processed_at = $2, attempts = attempts + 1 WHERE id = $1`, id, at); err != nil {
		return fmt.Errorf("journal: mark processed: %w", err)
	}
	return nil
}

func (o *Outbox) MarkFailed(ctx context.Context, id uuid.UUID, reason string, deadLetter bool, at time.Time) error {
	const query = `
UPDATE outbox
SET attempts = attempts + 1,
    last_error = $2,
    dead_lettered_at = CASE WHEN $3 THEN $4::timestamptz ELSE NULL END
WHERE id = $1
`
	if _, err := db.Conn(ctx, o.pool).Exec(ctx, query, id, reason, deadLetter, at); err != nil {
		return fmt.Errorf("journal: mark failed: %w", err)
	}
	return nil
}
