// Package oracles holds SQL invariant checks run against a live court
// database. Each query returns rows only when the invariant is broken.
package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

// All returns the invariant queries for a court with the given panel size.
func All(panel int) []Oracle {
	return []Oracle{
		{
			Name: "O1_failed_without_refund_guard",
			SQL: `SELECT id, status FROM disputes
                  WHERE status IN ('decryption_failed','refunded') AND NOT refund_processed`,
		},
		{
			Name: "O2_panel_size",
			SQL: fmt.Sprintf(`SELECT id, cardinality(arbitrators) FROM disputes
                  WHERE cardinality(arbitrators) NOT IN (0, %d)`, panel),
		},
		{
			Name: "O3_vote_by_outsider",
			SQL: `SELECT v.dispute_id, v.arbitrator FROM votes v
                  JOIN disputes d ON d.id = v.dispute_id
                  WHERE NOT (v.arbitrator = ANY (d.arbitrators))`,
		},
		{
			Name: "O4_tally_overflow",
			SQL: fmt.Sprintf(`SELECT dispute_id, COUNT(*) FROM votes
                  GROUP BY dispute_id HAVING COUNT(*) > %d`, panel),
		},
		{
			Name: "O5_resolved_without_decision",
			SQL: `SELECT id FROM disputes
                  WHERE status = 'resolved' AND (NOT decision_revealed OR decryption_in_flight)`,
		},
		{
			Name: "O6_in_flight_outside_voting",
			SQL: `SELECT id, status FROM disputes
                  WHERE decryption_in_flight AND status <> 'voting'`,
		},
		{
			Name: "O7_live_request_on_settled_dispute",
			SQL: `SELECT p.request_id, d.status FROM pending_decryptions p
                  JOIN disputes d ON d.id = p.dispute_id
                  WHERE NOT p.consumed AND d.status <> 'voting'`,
		},
		{
			Name: "O8_duplicate_live_request",
			SQL: `SELECT dispute_id, COUNT(*) FROM pending_decryptions
                  WHERE NOT consumed GROUP BY dispute_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O9_escrow_paid_twice",
			SQL: `SELECT dispute_id, COUNT(*) FROM outbox
                  WHERE dispute_id <> 0
                    AND (topic IN ('refund.issued','escrow.released')
                         OR (topic = 'refund.failed' AND payload->>'kind' <> 'withdrawal'))
                  GROUP BY dispute_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O10_winner_without_resolution",
			SQL: `SELECT id, status, winner FROM disputes
                  WHERE winner <> '' AND status <> 'resolved'`,
		},
		{
			Name: "O11_escrow_intents_mismatch",
			SQL: `SELECT d.id, d.escrow_amount, d.refund_processed, COALESCE(SUM(i.amount),0)
                  FROM disputes d
                  LEFT JOIN payout_intents i
                    ON i.dispute_id = d.id AND i.kind IN ('refund','release')
                  GROUP BY d.id, d.escrow_amount, d.refund_processed
                  HAVING COALESCE(SUM(i.amount),0) <> CASE WHEN d.refund_processed THEN d.escrow_amount ELSE 0 END`,
		},
		{
			Name: "O12_intent_bad_settlement",
			SQL: `SELECT id, settled_at, outcome FROM payout_intents
                  WHERE (settled_at IS NULL) <> (outcome = '')
                     OR outcome NOT IN ('', 'paid', 'credited')`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row text) or empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool, panel int) (string, string, error) {
	for _, o := range All(panel) {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		if rows.Next() {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
	}
	return "", "", nil
}
