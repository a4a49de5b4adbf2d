package court

import (
	"context"
	"fmt"

	"sealedcourt/account"
	"sealedcourt/dispute"
	"sealedcourt/journal"
	"sealedcourt/oracle"
	"sealedcourt/payout"
	"sealedcourt/vote"
)

// CallbackOutcome describes what a decryption callback did to its dispute.
type CallbackOutcome struct {
	DisputeID uint64
	Status    dispute.Status
	Winner    account.Address
	Outcome   vote.Outcome
	// Reason is set when the callback was routed to failure handling.
	Reason string
}

// OnDecryptionCallback consumes the oracle's answer for id. Proof, lateness
// and decoding problems do not fail the call; they fail the dispute and
// refund its escrow. Unknown or already consumed ids are rejected without
// touching any state.
func (c *Court) OnDecryptionCallback(ctx context.Context, id oracle.RequestID, cleartexts, proof []byte) (CallbackOutcome, error) {
	var out CallbackOutcome
	err := c.run(ctx, func(ctx context.Context, o *op) error {
		p, err := c.disputes.LookupPending(ctx, id)
		if err != nil {
			return err
		}
		d, err := c.disputes.Get(ctx, p.DisputeID)
		if err != nil {
			return err
		}
		if d.Status != dispute.StatusVoting || !d.DecryptionInFlight || d.RequestID != id {
			return fmt.Errorf("%w: dispute %d no longer awaits %s", ErrUnknownRequest, d.ID, id)
		}
		out.DisputeID = d.ID

		now := c.now().UTC()
		reason := ""
		var options []uint8
		switch {
		case !c.verifier.Verify(id, cleartexts, proof):
			reason = ReasonBadProof
		case now.After(d.DecryptionRequestedAt.Add(c.params.DecryptionTimeout)):
			reason = ReasonLateCallback
		default:
			if options, err = oracle.DecodeWords(cleartexts); err != nil {
				reason = ReasonDecodeFailed
				break
			}
			ballots, err := c.votes.ListByDispute(ctx, d.ID)
			if err != nil {
				return err
			}
			if !vote.MatchesBallots(options, len(ballots)) {
				reason = ReasonDecodeFailed
			}
		}

		latency := now.Sub(d.DecryptionRequestedAt)
		o.after(func() {
			c.metrics.DecryptionSettled()
			c.metrics.ObserveDecryption(latency)
		})

		if reason != "" {
			out.Reason = reason
			o.after(func() { c.metrics.IncCallback("failed") })
			if err := c.handleFailure(ctx, o, &d, reason); err != nil {
				return err
			}
			out.Status = d.Status
			return nil
		}

		if err := c.resolve(ctx, o, &d, options); err != nil {
			return err
		}
		o.after(func() { c.metrics.IncCallback("resolved") })
		out.Status = d.Status
		out.Winner = d.Winner
		out.Outcome = vote.Count(options, c.params.ArbitratorCount).Outcome()
		return nil
	})
	if err != nil {
		c.metrics.IncCallback("rejected")
		c.log.Warn().Err(err).Str("request_id", id.String()).Msg("decryption callback rejected")
		return CallbackOutcome{}, err
	}

	c.log.Info().
		Uint64("dispute_id", out.DisputeID).
		Str("request_id", id.String()).
		Str("status", out.Status.String()).
		Str("winner", out.Winner.String()).
		Str("reason", out.Reason).
		Msg("decryption callback processed")
	return out, nil
}

// resolve tallies the decoded ballots, records the verdict, settles
// reputation and releases the escrow.
func (c *Court) resolve(ctx context.Context, o *op, d *dispute.Dispute, options []uint8) error {
	tally := vote.Count(options, c.params.ArbitratorCount)
	outcome := tally.Outcome()

	var winner, loser account.Address
	switch outcome {
	case vote.PlaintiffWins:
		winner, loser = d.Plaintiff, d.Defendant
	case vote.DefendantWins:
		winner, loser = d.Defendant, d.Plaintiff
	}

	decision, err := c.ciphers.Encrypt(ctx, uint64(outcome))
	if err != nil {
		return fmt.Errorf("court: encrypt decision: %w", err)
	}

	if err := c.disputes.ConsumePending(ctx, d.RequestID, c.now().UTC()); err != nil {
		return err
	}
	if err := c.transition(o, d, dispute.StatusResolved); err != nil {
		return err
	}
	d.DecryptionInFlight = false
	d.DecisionRevealed = true
	d.EncryptedDecision = decision
	d.Winner = winner

	if !winner.IsZero() {
		if err := c.adjustReputation(ctx, d.ID, winner, c.params.WinnerReward); err != nil {
			return err
		}
		if err := c.adjustReputation(ctx, d.ID, loser, -c.params.LoserPenalty); err != nil {
			return err
		}
	}
	for _, a := range d.Arbitrators {
		p, err := c.ledger.RecordParticipation(ctx, a, c.params.ArbitratorReward)
		if err != nil {
			return err
		}
		if err := c.emit(ctx, journal.TopicReputationUpdated, d.ID, map[string]any{
			"address":    a.String(),
			"role":       "arbitrator",
			"reputation": p.Reputation,
		}); err != nil {
			return err
		}
	}

	if !d.RefundProcessed {
		d.RefundProcessed = true
		to := winner
		if to.IsZero() {
			to = d.Plaintiff
		}
		if err := c.pay(ctx, o, d.ID, to, d.EscrowAmount, payout.KindRelease); err != nil {
			return err
		}
	}

	if err := c.save(ctx, d); err != nil {
		return err
	}
	return c.emit(ctx, journal.TopicDisputeResolved, d.ID, map[string]any{
		"winner":    winner.String(),
		"plaintiff": tally.Plaintiff,
		"defendant": tally.Defendant,
		"neutral":   tally.Neutral,
	})
}

func (c *Court) adjustReputation(ctx context.Context, disputeID uint64, addr account.Address, delta int64) error {
	next, err := c.ledger.AdjustReputation(ctx, addr, delta)
	if err != nil {
		return err
	}
	return c.emit(ctx, journal.TopicReputationUpdated, disputeID, map[string]any{
		"address":    addr.String(),
		"role":       "party",
		"delta":      delta,
		"reputation": next,
	})
}
