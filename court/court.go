// Package court runs the confidential dispute lifecycle: registration,
// assignment, encrypted voting, the asynchronous decryption round-trip and
// every path that returns escrow.
package court

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"sealedcourt/account"
	"sealedcourt/arbitrator"
	"sealedcourt/ciphertext"
	"sealedcourt/db"
	"sealedcourt/dispute"
	"sealedcourt/journal"
	"sealedcourt/metrics"
	"sealedcourt/oracle"
	"sealedcourt/payout"
	"sealedcourt/selection"
	"sealedcourt/vote"
)

var (
	ErrClosed             = errors.New("court: closed")
	ErrUnauthorized       = errors.New("court: caller is not the owner")
	ErrInvalidCaller      = errors.New("court: caller address is required")
	ErrInvalidHandle      = errors.New("court: ciphertext handle is required")
	ErrInsufficientEscrow = errors.New("court: escrow below minimum")
	ErrEscrowTooLarge     = errors.New("court: escrow too large")
	ErrInvalidDefendant   = errors.New("court: defendant must be set and differ from the plaintiff")
	ErrNotAssigned        = errors.New("court: caller is not an assigned arbitrator")
	ErrVotingClosed       = errors.New("court: voting closed")
	ErrInvalidOption      = errors.New("court: invalid vote option")
	ErrTimeoutNotReached  = errors.New("court: timeout not reached")
	ErrAlreadyRefunded    = errors.New("court: refund already processed")
	ErrNotParty           = errors.New("court: caller is not a party to the dispute")
	ErrNothingToClaim     = errors.New("court: no escrow owed to caller")

	ErrNotFound                = dispute.ErrNotFound
	ErrBadStatus               = dispute.ErrBadStatus
	ErrUnknownRequest          = dispute.ErrUnknownRequest
	ErrAlreadyVoted            = vote.ErrAlreadyVoted
	ErrAlreadyRegistered       = arbitrator.ErrAlreadyRegistered
	ErrInsufficientArbitrators = selection.ErrInsufficientArbitrators
	ErrNothingToWithdraw       = payout.ErrNothingToWithdraw
)

// Failure reasons recorded on disputes routed into the refund path.
const (
	ReasonBadProof          = "signature verification failed"
	ReasonLateCallback      = "timeout exceeded"
	ReasonDecodeFailed      = "decode failed"
	ReasonVotingTimeout     = "voting timeout"
	ReasonDecryptionTimeout = "decryption timeout"
)

// Deps are the external collaborators.
type Deps struct {
	Ciphers   ciphertext.Service
	Oracle    oracle.Oracle
	Verifier  oracle.Verifier
	Transfers payout.Transferer
	Metrics   *metrics.Metrics
	Logger    zerolog.Logger
}

// Court is the single owner of all dispute state. Operations are serialised
// and each runs inside one storage transaction; outgoing transfers happen
// only after that transaction commits.
type Court struct {
	mu     sync.Mutex
	closed bool

	params   Params
	ledger   *arbitrator.Ledger
	disputes dispute.Store
	votes    vote.Store
	credits  payout.CreditStore
	intents  payout.IntentStore
	journal  journal.Emitter
	runner   db.TxRunner

	ciphers   ciphertext.Service
	oracle    oracle.Oracle
	verifier  oracle.Verifier
	transfers payout.Transferer
	selector  *selection.Selector

	metrics *metrics.Metrics
	log     zerolog.Logger
	now     func() time.Time
}

type Option func(*Court)

// WithClock overrides the time source.
func WithClock(fn func() time.Time) Option {
	return func(c *Court) {
		if fn != nil {
			c.now = fn
		}
	}
}

// WithRandomSource replaces the arbitrator draw source.
func WithRandomSource(src selection.RandomSource) Option {
	return func(c *Court) {
		c.selector = selection.NewSelector(src)
	}
}

func New(params Params, stores Stores, deps Deps, opts ...Option) (*Court, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	switch {
	case stores.Arbitrators == nil || stores.Disputes == nil || stores.Votes == nil ||
		stores.Credits == nil || stores.Intents == nil || stores.Journal == nil:
		return nil, fmt.Errorf("court: incomplete stores")
	case deps.Ciphers == nil || deps.Oracle == nil || deps.Verifier == nil || deps.Transfers == nil:
		return nil, fmt.Errorf("court: incomplete dependencies")
	}
	runner := stores.Runner
	if runner == nil {
		runner = db.Direct{}
	}

	c := &Court{
		params:    params,
		disputes:  stores.Disputes,
		votes:     stores.Votes,
		credits:   stores.Credits,
		intents:   stores.Intents,
		journal:   stores.Journal,
		runner:    runner,
		ciphers:   deps.Ciphers,
		oracle:    deps.Oracle,
		verifier:  deps.Verifier,
		transfers: deps.Transfers,
		metrics:   deps.Metrics,
		log:       deps.Logger.With().Str("component", "court").Logger(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.selector == nil {
		c.selector = selection.NewSelector(selection.KeccakSource{Now: c.now})
	}
	c.ledger = arbitrator.NewLedger(stores.Arbitrators, params.BaselineReputation).WithClock(c.now)
	return c, nil
}

// Close rejects further operations. Queries keep working.
func (c *Court) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Params returns the configuration the court runs with.
func (c *Court) Params() Params {
	return c.params
}

// op collects the effects of one operation that must wait for commit.
type op struct {
	payouts  []payout.Intent
	onCommit []func()
}

// pay records a payout intent inside the operation's transaction. The
// transfer itself runs after commit; until it settles the intent is retried
// by the monitor.
func (c *Court) pay(ctx context.Context, o *op, disputeID uint64, to account.Address, amount uint64, kind payout.Kind) error {
	if amount == 0 || to.IsZero() {
		return nil
	}
	in := payout.Intent{
		ID:        uuid.New(),
		DisputeID: disputeID,
		To:        to,
		Amount:    amount,
		Kind:      kind,
		CreatedAt: c.now().UTC(),
	}
	if err := c.intents.Record(ctx, in); err != nil {
		return err
	}
	o.payouts = append(o.payouts, in)
	return nil
}

func (o *op) after(fn func()) {
	o.onCommit = append(o.onCommit, fn)
}

// run serialises fn, executes it in one transaction and, once committed,
// performs the transfers it queued outside the lock.
func (c *Court) run(ctx context.Context, fn func(ctx context.Context, o *op) error) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	var o *op
	err := c.runner.RunInTx(ctx, func(ctx context.Context) error {
		o = &op{}
		return fn(ctx, o)
	})
	c.mu.Unlock()
	if err != nil {
		return err
	}

	for _, fn := range o.onCommit {
		fn()
	}
	c.settle(context.WithoutCancel(ctx), o.payouts)
	return nil
}

func (c *Court) settle(ctx context.Context, intents []payout.Intent) {
	for _, in := range intents {
		tctx, cancel := context.WithTimeout(ctx, c.params.TransferTimeout)
		err := c.transfers.Transfer(tctx, in.Ref(), in.To, in.Amount)
		cancel()
		c.recordTransfer(ctx, in, err)
	}
}

// recordTransfer settles an intent with its transfer result. A failed push
// is credited to the recipient's withdrawable balance in the same
// transaction. If nothing can be recorded the intent stays open for retry.
func (c *Court) recordTransfer(ctx context.Context, in payout.Intent, transferErr error) {
	log := c.log.With().
		Str("intent_id", in.Ref()).
		Uint64("dispute_id", in.DisputeID).
		Str("recipient", in.To.String()).
		Uint64("amount", in.Amount).
		Str("kind", string(in.Kind)).
		Logger()

	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.runner.RunInTx(ctx, func(ctx context.Context) error {
		now := c.now().UTC()
		payload := map[string]any{
			"intent_id": in.Ref(),
			"recipient": in.To.String(),
			"amount":    in.Amount,
			"kind":      string(in.Kind),
		}
		current, err := c.intents.Get(ctx, in.ID)
		if err != nil {
			return err
		}
		if !current.SettledAt.IsZero() {
			return payout.ErrIntentSettled
		}
		if transferErr == nil {
			if err := c.intents.Settle(ctx, in.ID, payout.OutcomePaid, now); err != nil {
				return err
			}
			return c.emit(ctx, successTopic(in.Kind), in.DisputeID, payload)
		}
		if err := c.credits.Credit(ctx, in.To, in.Amount, now); err != nil {
			return err
		}
		if err := c.intents.Settle(ctx, in.ID, payout.OutcomeCredited, now); err != nil {
			return err
		}
		payload["error"] = transferErr.Error()
		payload["credited"] = true
		return c.emit(ctx, journal.TopicRefundFailed, in.DisputeID, payload)
	})
	switch {
	case errors.Is(err, payout.ErrIntentSettled):
		log.Debug().Msg("intent already settled")
		return
	case err != nil:
		log.Error().Err(err).AnErr("transfer_error", transferErr).Msg("record transfer outcome, intent left open")
		return
	}

	if transferErr != nil {
		c.metrics.IncRefund("failed")
		log.Warn().Err(transferErr).Msg("transfer failed, amount credited for withdrawal")
		return
	}
	c.metrics.IncRefund(string(in.Kind))
	log.Info().Msg("transfer completed")
}

// RetryPayouts pushes intents that were committed but never settled, for
// example because the process stopped before the transfer or the outcome
// could not be written. Only intents older than the retry delay are taken so
// a transfer still in progress is left alone.
func (c *Court) RetryPayouts(ctx context.Context) (int, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, ErrClosed
	}
	c.mu.Unlock()

	cutoff := c.now().UTC().Add(-c.params.retryDelay())
	open, err := c.intents.Unsettled(ctx, cutoff, retryBatch)
	if err != nil {
		return 0, fmt.Errorf("court: list unsettled payouts: %w", err)
	}
	c.settle(context.WithoutCancel(ctx), open)
	return len(open), nil
}

const retryBatch = 100

func successTopic(k payout.Kind) string {
	switch k {
	case payout.KindRelease:
		return journal.TopicEscrowReleased
	case payout.KindWithdrawal:
		return journal.TopicRefundWithdrawn
	default:
		return journal.TopicRefundIssued
	}
}

func (c *Court) emit(ctx context.Context, topic string, disputeID uint64, payload map[string]any) error {
	if err := c.journal.Emit(ctx, journal.New(topic, disputeID, c.now(), payload)); err != nil {
		return fmt.Errorf("court: emit %s: %w", topic, err)
	}
	return nil
}

// transition moves d to next and records the change for metrics and logs.
func (c *Court) transition(o *op, d *dispute.Dispute, next dispute.Status) error {
	prev := d.Status
	if err := d.Transition(next); err != nil {
		return err
	}
	id := d.ID
	o.after(func() {
		c.metrics.IncTransition(next.String())
		c.log.Info().
			Uint64("dispute_id", id).
			Str("from", prev.String()).
			Str("to", next.String()).
			Msg("dispute transition")
	})
	return nil
}

func (c *Court) save(ctx context.Context, d *dispute.Dispute) error {
	d.UpdatedAt = c.now().UTC()
	return c.disputes.Update(ctx, *d)
}
