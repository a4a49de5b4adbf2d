package court

import (
	"context"
	"fmt"

	"sealedcourt/account"
	"sealedcourt/dispute"
	"sealedcourt/journal"
	"sealedcourt/payout"
)

// handleFailure routes d into the refund path. The guard is set before any
// transfer is queued; transfers run only after the surrounding transaction
// commits.
//
// Both parties are refunded their EscrowShare. Escrow is posted by the
// plaintiff alone, so in practice the whole escrow returns to the plaintiff
// and the defendant's zero share queues no transfer; the defendant is not
// paid anything on failure.
func (c *Court) handleFailure(ctx context.Context, o *op, d *dispute.Dispute, reason string) error {
	if d.RefundProcessed {
		return ErrAlreadyRefunded
	}
	d.RefundProcessed = true

	if d.DecryptionInFlight && d.RequestID != "" {
		if err := c.disputes.ConsumePending(ctx, d.RequestID, c.now().UTC()); err != nil {
			return err
		}
	}
	if err := c.transition(o, d, dispute.StatusDecryptionFailed); err != nil {
		return err
	}
	d.DecryptionInFlight = false
	d.FailureReason = reason
	if err := c.save(ctx, d); err != nil {
		return err
	}

	for _, party := range []account.Address{d.Plaintiff, d.Defendant} {
		if err := c.pay(ctx, o, d.ID, party, d.EscrowShare(party), payout.KindRefund); err != nil {
			return err
		}
	}
	o.after(func() { c.metrics.IncFailure(reason) })

	c.log.Warn().Uint64("dispute_id", d.ID).Str("reason", reason).Msg("dispute failed, refunding escrow")
	return c.emit(ctx, journal.TopicDecryptionFailed, d.ID, map[string]any{
		"reason": reason,
		"escrow": d.EscrowAmount,
	})
}

// ClaimRefund pays caller's escrow share of a failed or cancelled dispute.
// It only succeeds while no other path has moved the escrow.
func (c *Court) ClaimRefund(ctx context.Context, caller account.Address, disputeID uint64) (uint64, error) {
	var amount uint64
	err := c.run(ctx, func(ctx context.Context, o *op) error {
		d, err := c.disputes.Get(ctx, disputeID)
		if err != nil {
			return err
		}
		if !d.IsParty(caller) {
			return ErrNotParty
		}
		if !d.Status.Refundable() {
			return fmt.Errorf("%w: dispute %d is %s", ErrBadStatus, d.ID, d.Status)
		}
		if d.RefundProcessed {
			return ErrAlreadyRefunded
		}
		share := d.EscrowShare(caller)
		if share == 0 {
			return ErrNothingToClaim
		}

		d.RefundProcessed = true
		if err := c.transition(o, &d, dispute.StatusRefunded); err != nil {
			return err
		}
		if err := c.save(ctx, &d); err != nil {
			return err
		}
		amount = share
		return c.pay(ctx, o, d.ID, caller, share, payout.KindRefund)
	})
	if err != nil {
		return 0, err
	}
	c.log.Info().Uint64("dispute_id", disputeID).Str("recipient", caller.String()).Uint64("amount", amount).Msg("refund claimed")
	return amount, nil
}

// Withdraw pays out everything credited to caller by failed transfers. A
// failed withdrawal is credited back.
func (c *Court) Withdraw(ctx context.Context, caller account.Address) (uint64, error) {
	if caller.IsZero() {
		return 0, ErrInvalidCaller
	}
	var amount uint64
	err := c.run(ctx, func(ctx context.Context, o *op) error {
		taken, err := c.credits.Take(ctx, caller, c.now().UTC())
		if err != nil {
			return err
		}
		amount = taken
		return c.pay(ctx, o, 0, caller, taken, payout.KindWithdrawal)
	})
	if err != nil {
		return 0, err
	}
	return amount, nil
}
