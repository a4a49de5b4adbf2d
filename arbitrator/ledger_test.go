package arbitrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sealedcourt/account"
)

func newTestLedger() *Ledger {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return NewLedger(NewMemoryStore(), 0).WithClock(func() time.Time { return fixed })
}

func TestLedger_Register(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()

	p, err := l.Register(ctx, "0xa", "id-a")
	require.NoError(t, err)
	assert.True(t, p.Active)
	assert.True(t, p.Verified)
	assert.Equal(t, int64(DefaultBaselineReputation), p.Reputation)

	_, err = l.Register(ctx, "0xa", "id-a2")
	require.ErrorIs(t, err, ErrAlreadyRegistered)

	n, err := l.ActiveCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestLedger_PauseUnpause(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()

	_, err := l.Pause(ctx, "0xghost")
	require.ErrorIs(t, err, ErrNotActive)
	_, err = l.Unpause(ctx, "0xghost")
	require.ErrorIs(t, err, ErrNotRegistered)

	_, err = l.Register(ctx, "0xa", "id")
	require.NoError(t, err)

	_, err = l.Unpause(ctx, "0xa")
	require.ErrorIs(t, err, ErrAlreadyActive)

	p, err := l.Pause(ctx, "0xa")
	require.NoError(t, err)
	assert.False(t, p.Active)

	_, err = l.Pause(ctx, "0xa")
	require.ErrorIs(t, err, ErrNotActive)

	n, _ := l.ActiveCount(ctx)
	assert.Zero(t, n)

	p, err = l.Unpause(ctx, "0xa")
	require.NoError(t, err)
	assert.True(t, p.Active)
	n, _ = l.ActiveCount(ctx)
	assert.Equal(t, 1, n)
}

func TestLedger_ReregisterAfterPauseKeepsOrder(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()

	for _, a := range []account.Address{"0xa", "0xb", "0xc"} {
		_, err := l.Register(ctx, a, "id")
		require.NoError(t, err)
	}
	_, err := l.Pause(ctx, "0xa")
	require.NoError(t, err)
	_, err = l.Register(ctx, "0xa", "id-new")
	require.NoError(t, err)

	cands, err := l.Candidates(ctx)
	require.NoError(t, err)
	require.Len(t, cands, 3)
	assert.Equal(t, account.Address("0xa"), cands[0].Address)
	assert.Equal(t, "id-new", cands[0].Identity.String())
}

func TestLedger_AdjustReputationFloorsAtZero(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()

	v, err := l.AdjustReputation(ctx, "0xp", 10)
	require.NoError(t, err)
	assert.Equal(t, int64(10), v)

	v, err = l.AdjustReputation(ctx, "0xd", -5)
	require.NoError(t, err)
	assert.Zero(t, v)

	v, err = l.AdjustReputation(ctx, "0xp", -15)
	require.NoError(t, err)
	assert.Zero(t, v)
}

func TestLedger_RecordParticipation(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()

	_, err := l.RecordParticipation(ctx, "0xnobody", 2)
	require.ErrorIs(t, err, ErrNotRegistered)

	_, err = l.Register(ctx, "0xa", "id")
	require.NoError(t, err)
	p, err := l.RecordParticipation(ctx, "0xa", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.TotalDisputes)
	assert.Equal(t, int64(1), p.SuccessfulDisputes)
	assert.Equal(t, int64(DefaultBaselineReputation+2), p.Reputation)
}
