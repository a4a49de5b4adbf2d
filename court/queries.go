package court

import (
	"context"
	"time"

	"sealedcourt/account"
	"sealedcourt/arbitrator"
	"sealedcourt/dispute"
	"sealedcourt/vote"
)

func (c *Court) Dispute(ctx context.Context, id uint64) (dispute.Dispute, error) {
	return c.disputes.Get(ctx, id)
}

func (c *Court) Arbitrator(ctx context.Context, addr account.Address) (arbitrator.Profile, error) {
	return c.ledger.Get(ctx, addr)
}

// UserReputation returns a party's reputation. Addresses never involved in a
// resolved dispute have zero.
func (c *Court) UserReputation(ctx context.Context, addr account.Address) (int64, error) {
	return c.ledger.Reputation(ctx, addr)
}

// ActiveArbitrators is the size of the eligible pool.
func (c *Court) ActiveArbitrators(ctx context.Context) (int, error) {
	return c.ledger.ActiveCount(ctx)
}

// Votes lists the sealed ballots of a dispute.
func (c *Court) Votes(ctx context.Context, disputeID uint64) ([]vote.Record, error) {
	if _, err := c.disputes.Get(ctx, disputeID); err != nil {
		return nil, err
	}
	return c.votes.ListByDispute(ctx, disputeID)
}

// TimeoutStatus reports the dispute's deadlines and whether either timeout
// check would currently succeed.
type TimeoutStatus struct {
	DisputeID          uint64         `json:"dispute_id"`
	Status             dispute.Status `json:"status"`
	VotingDeadline     time.Time      `json:"voting_deadline,omitzero"`
	VotingTimeoutAt    time.Time      `json:"voting_timeout_at,omitzero"`
	VotingTimedOut     bool           `json:"voting_timed_out"`
	DecryptionDeadline time.Time      `json:"decryption_deadline,omitzero"`
	DecryptionTimedOut bool           `json:"decryption_timed_out"`
}

func (c *Court) TimeoutStatus(ctx context.Context, disputeID uint64) (TimeoutStatus, error) {
	d, err := c.disputes.Get(ctx, disputeID)
	if err != nil {
		return TimeoutStatus{}, err
	}
	now := c.now()
	ts := TimeoutStatus{DisputeID: d.ID, Status: d.Status}
	if !d.VotingDeadline.IsZero() {
		ts.VotingDeadline = d.VotingDeadline
		ts.VotingTimeoutAt = d.VotingDeadline.Add(c.params.VotingTimeout)
		ts.VotingTimedOut = d.Status == dispute.StatusInArbitration && now.After(ts.VotingTimeoutAt)
	}
	if d.DecryptionInFlight {
		ts.DecryptionDeadline = d.DecryptionRequestedAt.Add(c.params.DecryptionTimeout)
		ts.DecryptionTimedOut = d.Status == dispute.StatusVoting && now.After(ts.DecryptionDeadline)
	}
	return ts, nil
}

// RefundStatus reports whether a dispute's escrow has left the court.
type RefundStatus struct {
	DisputeID     uint64         `json:"dispute_id"`
	Status        dispute.Status `json:"status"`
	Escrow        uint64         `json:"escrow"`
	Processed     bool           `json:"processed"`
	FailureReason string         `json:"failure_reason,omitempty"`
}

func (c *Court) RefundStatus(ctx context.Context, disputeID uint64) (RefundStatus, error) {
	d, err := c.disputes.Get(ctx, disputeID)
	if err != nil {
		return RefundStatus{}, err
	}
	return RefundStatus{
		DisputeID:     d.ID,
		Status:        d.Status,
		Escrow:        d.EscrowAmount,
		Processed:     d.RefundProcessed,
		FailureReason: d.FailureReason,
	}, nil
}

// PendingWithdrawal is the amount credited to addr by failed transfers.
func (c *Court) PendingWithdrawal(ctx context.Context, addr account.Address) (uint64, error) {
	return c.credits.Balance(ctx, addr)
}
