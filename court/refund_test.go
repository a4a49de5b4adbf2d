package court

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sealedcourt/account"
	"sealedcourt/dispute"
	"sealedcourt/journal"
	"sealedcourt/payout"
	"sealedcourt/vote"
)

// forceCancelled parks a dispute in Cancelled with its escrow untouched, the
// only state in which a manual claim can pay out.
func (h *harness) forceCancelled(id uint64) {
	h.t.Helper()
	ctx := context.Background()
	d, err := h.court.disputes.Get(ctx, id)
	require.NoError(h.t, err)
	require.NoError(h.t, d.Transition(dispute.StatusCancelled))
	require.NoError(h.t, h.court.disputes.Update(ctx, d))
}

func TestClaimRefund_PaysCallingPartyOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.assigned()

	_, err := h.court.ClaimRefund(ctx, plaintiff, id)
	require.ErrorIs(t, err, ErrBadStatus)

	h.forceCancelled(id)

	_, err = h.court.ClaimRefund(ctx, "0xstranger", id)
	require.ErrorIs(t, err, ErrNotParty)
	_, err = h.court.ClaimRefund(ctx, defendant, id)
	require.ErrorIs(t, err, ErrNothingToClaim)

	amount, err := h.court.ClaimRefund(ctx, plaintiff, id)
	require.NoError(t, err)
	assert.Equal(t, h.params.MinEscrow, amount)
	assert.Equal(t, dispute.StatusRefunded, h.dispute(id).Status)

	_, err = h.court.ClaimRefund(ctx, plaintiff, id)
	require.ErrorIs(t, err, ErrAlreadyRefunded)
	_, err = h.court.ClaimRefund(ctx, defendant, id)
	require.ErrorIs(t, err, ErrAlreadyRefunded)

	assert.Equal(t, h.params.MinEscrow, h.vault.TotalPaid())
	assert.Len(t, h.journal.Topic(journal.TopicRefundIssued, id), 1)

	rs, err := h.court.RefundStatus(ctx, id)
	require.NoError(t, err)
	assert.True(t, rs.Processed)
	assert.Equal(t, dispute.StatusRefunded, rs.Status)
}

func TestRefund_FailedPushIsWithdrawable(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.vault.Reject(plaintiff, nil)

	id, req := h.voted(vote.FavorPlaintiff, vote.FavorPlaintiff, vote.FavorPlaintiff)
	cleartexts, _ := h.fulfil(req)
	_, err := h.court.OnDecryptionCallback(ctx, req.ID, cleartexts, nil)
	require.NoError(t, err)

	assert.Zero(t, h.vault.TotalPaid())
	failed := h.journal.Topic(journal.TopicRefundFailed, id)
	require.Len(t, failed, 1)
	assert.Equal(t, "refund", failed[0].Payload["kind"])

	owed, err := h.court.PendingWithdrawal(ctx, plaintiff)
	require.NoError(t, err)
	assert.Equal(t, h.params.MinEscrow, owed)

	// A failed withdrawal is credited back.
	_, err = h.court.Withdraw(ctx, plaintiff)
	require.NoError(t, err)
	owed, err = h.court.PendingWithdrawal(ctx, plaintiff)
	require.NoError(t, err)
	assert.Equal(t, h.params.MinEscrow, owed)

	h.vault.Accept(plaintiff)
	amount, err := h.court.Withdraw(ctx, plaintiff)
	require.NoError(t, err)
	assert.Equal(t, h.params.MinEscrow, amount)
	assert.Equal(t, h.params.MinEscrow, h.vault.Paid(plaintiff))
	assert.Len(t, h.journal.Topic(journal.TopicRefundWithdrawn, 0), 1)

	_, err = h.court.Withdraw(ctx, plaintiff)
	require.ErrorIs(t, err, ErrNothingToWithdraw)
}

func TestRefund_StalledRecipientIsBounded(t *testing.T) {
	h := newHarness(t)
	h.court.params.TransferTimeout = 20 * time.Millisecond
	ctx := context.Background()
	h.vault.Stall(plaintiff)

	id := h.assigned()
	h.clock.Advance(h.params.VotingWindow + h.params.VotingTimeout + time.Second)
	require.NoError(t, h.court.CheckVotingTimeout(ctx, id))

	owed, err := h.court.PendingWithdrawal(ctx, plaintiff)
	require.NoError(t, err)
	assert.Equal(t, h.params.MinEscrow, owed)
}

// reentrant tries to claim the refund again from inside the transfer.
type reentrant struct {
	vault *payout.Vault
	court *Court
	id    uint64
	errs  []error
}

func (r *reentrant) Transfer(ctx context.Context, ref string, to account.Address, amount uint64) error {
	if r.court != nil {
		_, err := r.court.ClaimRefund(ctx, to, r.id)
		r.errs = append(r.errs, err)
		r.errs = append(r.errs, r.court.CheckVotingTimeout(ctx, r.id))
	}
	return r.vault.Transfer(ctx, ref, to, amount)
}

func TestRefund_ReentrantRecipientCannotDoubleSpend(t *testing.T) {
	tr := &reentrant{vault: payout.NewVault()}
	h := newHarness(t, withTransfers(tr))
	ctx := context.Background()

	id := h.assigned()
	tr.court, tr.id = h.court, id
	h.clock.Advance(h.params.VotingWindow + h.params.VotingTimeout + time.Second)
	require.NoError(t, h.court.CheckVotingTimeout(ctx, id))

	require.Len(t, tr.errs, 2)
	assert.ErrorIs(t, tr.errs[0], ErrAlreadyRefunded)
	assert.ErrorIs(t, tr.errs[1], ErrBadStatus)
	assert.Equal(t, h.params.MinEscrow, tr.vault.TotalPaid())
}

func TestRefund_ConcurrentPathsPayOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.assigned()
	h.clock.Advance(h.params.VotingWindow + h.params.VotingTimeout + time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = h.court.CheckVotingTimeout(ctx, id)
		}()
		go func() {
			defer wg.Done()
			_, _ = h.court.ClaimRefund(ctx, plaintiff, id)
		}()
	}
	wg.Wait()

	assert.Equal(t, h.params.MinEscrow, h.vault.TotalPaid())
	assert.Len(t, h.vault.Transfers(), 1)
	assert.True(t, h.dispute(id).RefundProcessed)
}

func TestPause_OwnerOnly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.registerPanel()

	require.ErrorIs(t, h.court.PauseArbitrator(ctx, plaintiff, arbitrators[0]), ErrUnauthorized)
	require.NoError(t, h.court.PauseArbitrator(ctx, owner, arbitrators[0]))
	require.Error(t, h.court.PauseArbitrator(ctx, owner, arbitrators[0]))

	n, err := h.court.ActiveArbitrators(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.ErrorIs(t, h.court.UnpauseArbitrator(ctx, defendant, arbitrators[0]), ErrUnauthorized)
	require.NoError(t, h.court.UnpauseArbitrator(ctx, owner, arbitrators[0]))
	require.Error(t, h.court.UnpauseArbitrator(ctx, owner, "0xghost"))

	_, err = h.court.Register(ctx, arbitrators[0], h.handle(1))
	require.ErrorIs(t, err, ErrAlreadyRegistered)
	assert.Len(t, h.journal.Topic(journal.TopicArbitratorPaused, 0), 1)
	assert.Len(t, h.journal.Topic(journal.TopicArbitratorUnpaused, 0), 1)
}

func TestClose_RejectsOperations(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.createDispute()

	require.NoError(t, h.court.Close())
	_, err := h.court.AssignArbitrators(ctx, id)
	require.ErrorIs(t, err, ErrClosed)

	_, err = h.court.Dispute(ctx, id)
	require.NoError(t, err)
}

func TestMonitor_SweepsStalledDisputes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	stalled := h.assigned()
	pending := h.createDispute()
	_, err := h.court.AssignArbitrators(ctx, pending)
	require.NoError(t, err)
	for _, a := range arbitrators {
		_, err := h.court.SubmitVote(ctx, a, pending, vote.Neutral, h.handle(0))
		require.NoError(t, err)
	}

	m := NewMonitor(h.court, time.Minute, h.court.log)
	assert.Zero(t, m.Sweep(ctx))

	h.clock.Advance(h.params.DecryptionTimeout + time.Second)
	assert.Equal(t, 1, m.Sweep(ctx))
	assert.Equal(t, ReasonDecryptionTimeout, h.dispute(pending).FailureReason)
	assert.Equal(t, dispute.StatusInArbitration, h.dispute(stalled).Status)

	h.clock.Advance(h.params.VotingWindow + h.params.VotingTimeout)
	assert.Equal(t, 1, m.Sweep(ctx))
	assert.Equal(t, ReasonVotingTimeout, h.dispute(stalled).FailureReason)
	assert.Zero(t, m.Sweep(ctx))
}

var errStoreDown = errors.New("store down")

// flakyCredits fails every Credit while down is set.
type flakyCredits struct {
	payout.CreditStore
	down atomic.Bool
}

func (f *flakyCredits) Credit(ctx context.Context, addr account.Address, amount uint64, at time.Time) error {
	if f.down.Load() {
		return errStoreDown
	}
	return f.CreditStore.Credit(ctx, addr, amount, at)
}

// flakyIntents fails the next failSettles calls to Settle.
type flakyIntents struct {
	payout.IntentStore
	failSettles atomic.Int32
}

func (f *flakyIntents) Settle(ctx context.Context, id uuid.UUID, outcome string, at time.Time) error {
	if f.failSettles.Add(-1) >= 0 {
		return errStoreDown
	}
	return f.IntentStore.Settle(ctx, id, outcome, at)
}

func TestRefund_UnrecordedFailureIsRetriedIntoCredit(t *testing.T) {
	credits := &flakyCredits{}
	credits.down.Store(true)
	h := newHarness(t, withStores(func(s *Stores) {
		credits.CreditStore = s.Credits
		s.Credits = credits
	}))
	ctx := context.Background()
	h.vault.Reject(plaintiff, nil)

	id := h.assigned()
	h.clock.Advance(h.params.VotingWindow + h.params.VotingTimeout + time.Second)
	require.NoError(t, h.court.CheckVotingTimeout(ctx, id))

	d := h.dispute(id)
	assert.Equal(t, dispute.StatusDecryptionFailed, d.Status)
	assert.True(t, d.RefundProcessed)
	assert.Zero(t, h.vault.TotalPaid())
	owed, err := h.court.PendingWithdrawal(ctx, plaintiff)
	require.NoError(t, err)
	assert.Zero(t, owed)

	credits.down.Store(false)

	n, err := h.court.RetryPayouts(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "fresh intents must be left to the first attempt")

	h.clock.Advance(h.params.retryDelay() + time.Second)
	m := NewMonitor(h.court, time.Minute, h.court.log)
	m.Sweep(ctx)

	owed, err = h.court.PendingWithdrawal(ctx, plaintiff)
	require.NoError(t, err)
	assert.Equal(t, h.params.MinEscrow, owed)
	assert.Len(t, h.journal.Topic(journal.TopicRefundFailed, id), 1)

	n, err = h.court.RetryPayouts(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	h.vault.Accept(plaintiff)
	amount, err := h.court.Withdraw(ctx, plaintiff)
	require.NoError(t, err)
	assert.Equal(t, h.params.MinEscrow, amount)
	assert.Equal(t, h.params.MinEscrow, h.vault.Paid(plaintiff))

	owed, err = h.court.PendingWithdrawal(ctx, plaintiff)
	require.NoError(t, err)
	assert.Zero(t, owed)
}

func TestRefund_RetryAfterLostSettlementPaysOnce(t *testing.T) {
	intents := &flakyIntents{}
	intents.failSettles.Store(1)
	h := newHarness(t, withStores(func(s *Stores) {
		intents.IntentStore = s.Intents
		s.Intents = intents
	}))
	ctx := context.Background()

	id := h.assigned()
	h.clock.Advance(h.params.VotingWindow + h.params.VotingTimeout + time.Second)
	require.NoError(t, h.court.CheckVotingTimeout(ctx, id))
	require.Len(t, h.vault.Transfers(), 1)
	assert.Empty(t, h.journal.Topic(journal.TopicRefundIssued, id))

	h.clock.Advance(h.params.retryDelay() + time.Second)
	n, err := h.court.RetryPayouts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Len(t, h.vault.Transfers(), 1)
	assert.Equal(t, h.params.MinEscrow, h.vault.TotalPaid())
	assert.Len(t, h.journal.Topic(journal.TopicRefundIssued, id), 1)

	owed, err := h.court.PendingWithdrawal(ctx, plaintiff)
	require.NoError(t, err)
	assert.Zero(t, owed)

	n, err = h.court.RetryPayouts(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
