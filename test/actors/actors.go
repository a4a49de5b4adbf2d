// Package actors drives a court concurrently the way its users would:
// plaintiffs filing disputes, arbitrators voting and parties chasing refunds.
package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"sealedcourt/account"
	"sealedcourt/ciphertext"
	"sealedcourt/court"
	"sealedcourt/dispute"
	"sealedcourt/vote"
)

// Env is the shared surface every actor works against.
type Env struct {
	Court    *court.Court
	Disputes dispute.Store
	Ciphers  ciphertext.Service
	Stats    *Stats
}

// Stats counts what the actors managed to do. Transient counts storage or
// connection errors the actors shrugged off.
type Stats struct {
	Created   atomic.Int64
	Assigned  atomic.Int64
	Votes     atomic.Int64
	Refunds   atomic.Int64
	Withdrawn atomic.Int64
	Expected  atomic.Int64
	Transient atomic.Int64
}

func (s *Stats) String() string {
	return fmt.Sprintf("created=%d assigned=%d votes=%d refunds=%d withdrawn=%d expected=%d transient=%d",
		s.Created.Load(), s.Assigned.Load(), s.Votes.Load(), s.Refunds.Load(),
		s.Withdrawn.Load(), s.Expected.Load(), s.Transient.Load())
}

// expected lists the rejections concurrent actors provoke against each other.
var expected = []error{
	court.ErrNotFound,
	court.ErrBadStatus,
	court.ErrAlreadyVoted,
	court.ErrAlreadyRegistered,
	court.ErrAlreadyRefunded,
	court.ErrInsufficientArbitrators,
	court.ErrNothingToClaim,
	court.ErrNothingToWithdraw,
	court.ErrVotingClosed,
	court.ErrNotAssigned,
	court.ErrNotParty,
	court.ErrTimeoutNotReached,
	court.ErrUnknownRequest,
}

// tally classifies err. Only a closed court or a cancelled context stops an actor.
func (e Env) tally(ctx context.Context, err error) error {
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, court.ErrClosed):
		return err
	}
	for _, target := range expected {
		if errors.Is(err, target) {
			e.Stats.Expected.Add(1)
			return nil
		}
	}
	e.Stats.Transient.Add(1)
	return nil
}

func pause(ctx context.Context, rng *rand.Rand, base int) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(time.Duration(base+rng.Intn(base)) * time.Millisecond):
		return true
	}
}

func stopped(ctx context.Context, stop <-chan struct{}) bool {
	select {
	case <-ctx.Done():
		return true
	case <-stop:
		return true
	default:
		return false
	}
}

// Plaintiff files disputes against random defendants and asks for panels.
func Plaintiff(ctx context.Context, env Env, self account.Address, defendants []account.Address, seed int64, stop <-chan struct{}) error {
	rng := rand.New(rand.NewSource(seed))
	escrow := env.Court.Params().MinEscrow

	for !stopped(ctx, stop) {
		stake, err := env.Ciphers.Encrypt(ctx, uint64(rng.Intn(100)))
		if err != nil {
			return fmt.Errorf("plaintiff %s: encrypt stake: %w", self, err)
		}
		evidence, err := env.Ciphers.Encrypt(ctx, uint64(rng.Intn(100)))
		if err != nil {
			return fmt.Errorf("plaintiff %s: encrypt evidence: %w", self, err)
		}

		id, err := env.Court.CreateDispute(ctx, self, court.CreateInput{
			Defendant:         defendants[rng.Intn(len(defendants))],
			EncryptedStake:    stake,
			EncryptedEvidence: evidence,
			Escrow:            escrow + uint64(rng.Intn(1000)),
		})
		if err := env.tally(ctx, err); err != nil {
			return err
		}
		if err == nil {
			env.Stats.Created.Add(1)
			_, err = env.Court.AssignArbitrators(ctx, id)
			if err == nil {
				env.Stats.Assigned.Add(1)
			} else if err := env.tally(ctx, err); err != nil {
				return err
			}
		}

		if !pause(ctx, rng, 20) {
			return nil
		}
	}
	return nil
}

// Arbitrator votes on every open dispute it sits on. Some votes are left out
// on purpose so voting timeouts fire.
func Arbitrator(ctx context.Context, env Env, self account.Address, seed int64, stop <-chan struct{}) error {
	rng := rand.New(rand.NewSource(seed))

	for !stopped(ctx, stop) {
		open, err := env.Disputes.ListByStatus(ctx, dispute.StatusInArbitration)
		if err := env.tally(ctx, err); err != nil {
			return err
		}
		for _, d := range open {
			if !d.IsAssigned(self) || rng.Intn(10) == 0 {
				continue
			}
			justification, err := env.Ciphers.Encrypt(ctx, 0)
			if err != nil {
				return fmt.Errorf("arbitrator %s: encrypt justification: %w", self, err)
			}
			option := vote.Option(1 + rng.Intn(3))
			_, err = env.Court.SubmitVote(ctx, self, d.ID, option, justification)
			if err == nil {
				env.Stats.Votes.Add(1)
			} else if err := env.tally(ctx, err); err != nil {
				return err
			}
		}

		if !pause(ctx, rng, 15) {
			return nil
		}
	}
	return nil
}

// Claimant chases refunds on failed disputes and drains its credit balance.
func Claimant(ctx context.Context, env Env, self account.Address, seed int64, stop <-chan struct{}) error {
	rng := rand.New(rand.NewSource(seed))

	for !stopped(ctx, stop) {
		failed, err := env.Disputes.ListByStatus(ctx, dispute.StatusCancelled, dispute.StatusDecryptionFailed)
		if err := env.tally(ctx, err); err != nil {
			return err
		}
		for _, d := range failed {
			if !d.IsParty(self) {
				continue
			}
			if _, err := env.Court.ClaimRefund(ctx, self, d.ID); err == nil {
				env.Stats.Refunds.Add(1)
			} else if err := env.tally(ctx, err); err != nil {
				return err
			}
		}

		if _, err := env.Court.Withdraw(ctx, self); err == nil {
			env.Stats.Withdrawn.Add(1)
		} else if err := env.tally(ctx, err); err != nil {
			return err
		}

		if !pause(ctx, rng, 40) {
			return nil
		}
	}
	return nil
}
