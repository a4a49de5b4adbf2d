package court

import (
	"context"

	"sealedcourt/account"
	"sealedcourt/arbitrator"
	"sealedcourt/ciphertext"
	"sealedcourt/journal"
)

// Register enrols caller as an active arbitrator with baseline reputation.
func (c *Court) Register(ctx context.Context, caller account.Address, identity ciphertext.Handle) (arbitrator.Profile, error) {
	if caller.IsZero() {
		return arbitrator.Profile{}, ErrInvalidCaller
	}
	if identity.IsZero() {
		return arbitrator.Profile{}, ErrInvalidHandle
	}

	var profile arbitrator.Profile
	err := c.run(ctx, func(ctx context.Context, _ *op) error {
		p, err := c.ledger.Register(ctx, caller, identity)
		if err != nil {
			return err
		}
		profile = p
		return c.emit(ctx, journal.TopicArbitratorRegistered, 0, map[string]any{
			"arbitrator": caller.String(),
			"reputation": p.Reputation,
		})
	})
	if err != nil {
		return arbitrator.Profile{}, err
	}
	c.log.Info().Str("arbitrator", caller.String()).Msg("arbitrator registered")
	return profile, nil
}

// PauseArbitrator removes target from the eligible pool. Owner only.
func (c *Court) PauseArbitrator(ctx context.Context, caller, target account.Address) error {
	return c.setActive(ctx, caller, target, false)
}

// UnpauseArbitrator returns target to the eligible pool. Owner only.
func (c *Court) UnpauseArbitrator(ctx context.Context, caller, target account.Address) error {
	return c.setActive(ctx, caller, target, true)
}

func (c *Court) setActive(ctx context.Context, caller, target account.Address, active bool) error {
	if caller != c.params.Owner {
		return ErrUnauthorized
	}
	if target.IsZero() {
		return ErrInvalidCaller
	}

	topic := journal.TopicArbitratorPaused
	if active {
		topic = journal.TopicArbitratorUnpaused
	}
	err := c.run(ctx, func(ctx context.Context, _ *op) error {
		var err error
		if active {
			_, err = c.ledger.Unpause(ctx, target)
		} else {
			_, err = c.ledger.Pause(ctx, target)
		}
		if err != nil {
			return err
		}
		return c.emit(ctx, topic, 0, map[string]any{"arbitrator": target.String()})
	})
	if err != nil {
		return err
	}
	c.log.Info().Str("arbitrator", target.String()).Bool("active", active).Msg("arbitrator status changed")
	return nil
}
