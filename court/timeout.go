package court

import (
	"context"
	"fmt"

	"sealedcourt/dispute"
	"sealedcourt/journal"
)

// CheckVotingTimeout cancels a dispute whose voting stalled past the deadline
// plus the grace window and refunds it. Anyone may call it.
func (c *Court) CheckVotingTimeout(ctx context.Context, disputeID uint64) error {
	return c.run(ctx, func(ctx context.Context, o *op) error {
		d, err := c.disputes.Get(ctx, disputeID)
		if err != nil {
			return err
		}
		if d.Status != dispute.StatusInArbitration {
			return fmt.Errorf("%w: dispute %d is %s", ErrBadStatus, d.ID, d.Status)
		}
		if !c.now().After(d.VotingDeadline.Add(c.params.VotingTimeout)) {
			return ErrTimeoutNotReached
		}

		if err := c.transition(o, &d, dispute.StatusCancelled); err != nil {
			return err
		}
		if err := c.emit(ctx, journal.TopicTimeoutTriggered, d.ID, map[string]any{
			"kind": "voting",
		}); err != nil {
			return err
		}
		return c.handleFailure(ctx, o, &d, ReasonVotingTimeout)
	})
}

// CheckDecryptionTimeout fails a dispute whose decryption request went
// unanswered for the decryption window. Any later callback for the request
// is rejected.
func (c *Court) CheckDecryptionTimeout(ctx context.Context, disputeID uint64) error {
	return c.run(ctx, func(ctx context.Context, o *op) error {
		d, err := c.disputes.Get(ctx, disputeID)
		if err != nil {
			return err
		}
		if d.Status != dispute.StatusVoting || !d.DecryptionInFlight {
			return fmt.Errorf("%w: dispute %d is %s with no decryption in flight", ErrBadStatus, d.ID, d.Status)
		}
		if !c.now().After(d.DecryptionRequestedAt.Add(c.params.DecryptionTimeout)) {
			return ErrTimeoutNotReached
		}

		if err := c.emit(ctx, journal.TopicTimeoutTriggered, d.ID, map[string]any{
			"kind":       "decryption",
			"request_id": d.RequestID.String(),
		}); err != nil {
			return err
		}
		o.after(c.metrics.DecryptionSettled)
		return c.handleFailure(ctx, o, &d, ReasonDecryptionTimeout)
	})
}
