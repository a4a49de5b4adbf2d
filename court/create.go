package court

import (
	"context"
	"fmt"

	"sealedcourt/account"
	"sealedcourt/ciphertext"
	"sealedcourt/dispute"
	"sealedcourt/journal"
	"sealedcourt/selection"
)

// CreateInput carries the plaintiff's filing.
type CreateInput struct {
	Defendant         account.Address
	EncryptedStake    ciphertext.Handle
	EncryptedEvidence ciphertext.Handle
	// Escrow is the amount the plaintiff locks with the filing.
	Escrow uint64
}

// CreateDispute files a new dispute on behalf of caller and returns its id.
func (c *Court) CreateDispute(ctx context.Context, caller account.Address, in CreateInput) (uint64, error) {
	switch {
	case caller.IsZero():
		return 0, ErrInvalidCaller
	case in.Defendant.IsZero() || in.Defendant == caller:
		return 0, ErrInvalidDefendant
	case in.EncryptedStake.IsZero() || in.EncryptedEvidence.IsZero():
		return 0, ErrInvalidHandle
	case in.Escrow < c.params.MinEscrow:
		return 0, ErrInsufficientEscrow
	case in.Escrow > c.params.maxEscrow():
		return 0, ErrEscrowTooLarge
	}

	encEscrow, err := c.ciphers.Encrypt(ctx, in.Escrow*c.params.ObfuscationMultiplier)
	if err != nil {
		return 0, fmt.Errorf("court: encrypt escrow: %w", err)
	}
	encTally, err := c.ciphers.Encrypt(ctx, 0)
	if err != nil {
		return 0, fmt.Errorf("court: encrypt tally: %w", err)
	}

	var id uint64
	err = c.run(ctx, func(ctx context.Context, o *op) error {
		now := c.now().UTC()
		d, err := c.disputes.Create(ctx, dispute.Dispute{
			Plaintiff:         caller,
			Defendant:         in.Defendant,
			EncryptedStake:    in.EncryptedStake,
			EncryptedEvidence: in.EncryptedEvidence,
			EncryptedEscrow:   encEscrow,
			EncryptedTally:    encTally,
			Status:            dispute.StatusCreated,
			CreatedAt:         now,
			EscrowAmount:      in.Escrow,
			UpdatedAt:         now,
		})
		if err != nil {
			return err
		}
		id = d.ID
		o.after(func() { c.metrics.IncTransition(dispute.StatusCreated.String()) })
		return c.emit(ctx, journal.TopicDisputeCreated, d.ID, map[string]any{
			"plaintiff": caller.String(),
			"defendant": in.Defendant.String(),
			"escrow":    in.Escrow,
		})
	})
	if err != nil {
		return 0, err
	}
	c.log.Info().Uint64("dispute_id", id).Str("plaintiff", caller.String()).Msg("dispute created")
	return id, nil
}

// AssignArbitrators draws the panel for a Created dispute and opens voting.
// The voting deadline runs from the dispute's creation time.
func (c *Court) AssignArbitrators(ctx context.Context, disputeID uint64) ([]account.Address, error) {
	var panel []account.Address
	err := c.run(ctx, func(ctx context.Context, o *op) error {
		d, err := c.disputes.Get(ctx, disputeID)
		if err != nil {
			return err
		}
		if d.Status != dispute.StatusCreated {
			return fmt.Errorf("%w: dispute %d is %s", ErrBadStatus, d.ID, d.Status)
		}

		active, err := c.ledger.ActiveCount(ctx)
		if err != nil {
			return err
		}
		if active < c.params.ArbitratorCount {
			return ErrInsufficientArbitrators
		}
		profiles, err := c.ledger.Candidates(ctx)
		if err != nil {
			return err
		}
		candidates := make([]selection.Candidate, 0, len(profiles))
		for _, p := range profiles {
			candidates = append(candidates, selection.Candidate{Address: p.Address, Active: p.Active})
		}
		chosen, err := c.selector.Select(d.ID, candidates, []account.Address{d.Plaintiff, d.Defendant}, c.params.ArbitratorCount)
		if err != nil {
			return err
		}

		if err := c.transition(o, &d, dispute.StatusInArbitration); err != nil {
			return err
		}
		d.Arbitrators = chosen
		d.VotingDeadline = d.CreatedAt.Add(c.params.VotingWindow)
		if err := c.save(ctx, &d); err != nil {
			return err
		}
		panel = chosen

		names := make([]string, len(chosen))
		for i, a := range chosen {
			names[i] = a.String()
		}
		return c.emit(ctx, journal.TopicArbitratorsAssigned, d.ID, map[string]any{
			"arbitrators":     names,
			"voting_deadline": d.VotingDeadline,
		})
	})
	if err != nil {
		return nil, err
	}
	return panel, nil
}
