package court

import (
	"context"
	"errors"
	"fmt"

	"sealedcourt/account"
	"sealedcourt/ciphertext"
	"sealedcourt/dispute"
	"sealedcourt/journal"
	"sealedcourt/oracle"
	"sealedcourt/vote"
)

// VoteResult reports whether a vote closed the ballot.
type VoteResult struct {
	DisputeID uint64
	// Completed is set when this vote moved the dispute to Voting.
	Completed bool
	RequestID oracle.RequestID
}

// SubmitVote records caller's encrypted ballot. The vote that completes the
// panel, or any vote cast at the deadline, closes voting and requests
// decryption of every ballot.
func (c *Court) SubmitVote(ctx context.Context, caller account.Address, disputeID uint64, option vote.Option, justification ciphertext.Handle) (VoteResult, error) {
	if !option.Valid() {
		return VoteResult{}, ErrInvalidOption
	}
	if justification.IsZero() {
		return VoteResult{}, ErrInvalidHandle
	}

	res := VoteResult{DisputeID: disputeID}
	err := c.run(ctx, func(ctx context.Context, o *op) error {
		d, err := c.disputes.Get(ctx, disputeID)
		if err != nil {
			return err
		}
		if d.Status != dispute.StatusInArbitration {
			return fmt.Errorf("%w: dispute %d is %s", ErrBadStatus, d.ID, d.Status)
		}
		if !d.IsAssigned(caller) {
			return ErrNotAssigned
		}
		now := c.now().UTC()
		if now.After(d.VotingDeadline) {
			return ErrVotingClosed
		}
		switch _, err := c.votes.Get(ctx, d.ID, caller); {
		case err == nil:
			return ErrAlreadyVoted
		case !errors.Is(err, vote.ErrNotFound):
			return err
		}

		prior, err := c.votes.ListByDispute(ctx, d.ID)
		if err != nil {
			return err
		}

		// Ciphertext work and the oracle request happen before anything is
		// written so a failure leaves no trace.
		encVote, err := c.ciphers.Encrypt(ctx, uint64(option))
		if err != nil {
			return fmt.Errorf("court: encrypt vote: %w", err)
		}
		tally, err := c.ciphers.Add(ctx, d.EncryptedTally, encVote)
		if err != nil {
			return fmt.Errorf("court: accumulate tally: %w", err)
		}

		complete := len(prior)+1 >= len(d.Arbitrators) || !now.Before(d.VotingDeadline)
		var reqID oracle.RequestID
		if complete {
			handles := make([]ciphertext.Handle, 0, len(prior)+1)
			for _, r := range prior {
				handles = append(handles, r.EncryptedVote)
			}
			handles = append(handles, encVote)
			reqID, err = c.oracle.RequestDecryption(ctx, handles)
			if err != nil {
				return fmt.Errorf("court: request decryption: %w", err)
			}
		}

		if err := c.votes.Cast(ctx, vote.Record{
			DisputeID:              d.ID,
			Arbitrator:             caller,
			EncryptedVote:          encVote,
			EncryptedJustification: justification,
			HasVoted:               true,
			CastAt:                 now,
		}); err != nil {
			return err
		}
		d.EncryptedTally = tally
		if err := c.emit(ctx, journal.TopicVoteSubmitted, d.ID, map[string]any{
			"arbitrator": caller.String(),
		}); err != nil {
			return err
		}

		if complete {
			if err := c.transition(o, &d, dispute.StatusVoting); err != nil {
				return err
			}
			d.RequestID = reqID
			d.DecryptionRequestedAt = now
			d.DecryptionInFlight = true
			if err := c.disputes.PutPending(ctx, dispute.Pending{
				RequestID:   reqID,
				DisputeID:   d.ID,
				RequestedAt: now,
			}); err != nil {
				return err
			}
			if err := c.emit(ctx, journal.TopicDecryptionRequested, d.ID, map[string]any{
				"request_id": reqID.String(),
				"votes":      len(prior) + 1,
			}); err != nil {
				return err
			}
			o.after(c.metrics.DecryptionStarted)
			res.Completed = true
			res.RequestID = reqID
		}
		return c.save(ctx, &d)
	})
	if err != nil {
		return VoteResult{}, err
	}

	log := c.log.Info().Uint64("dispute_id", disputeID).Str("arbitrator", caller.String())
	if res.Completed {
		log = log.Str("request_id", res.RequestID.String())
	}
	log.Bool("completed", res.Completed).Msg("vote submitted")
	return res, nil
}
