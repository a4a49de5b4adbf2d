package payout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVault_RecordsTransfers(t *testing.T) {
	v := NewVault()
	ctx := context.Background()

	require.NoError(t, v.Transfer(ctx, "", "0xa", 10))
	require.NoError(t, v.Transfer(ctx, "", "0xa", 5))
	require.NoError(t, v.Transfer(ctx, "", "0xb", 1))

	assert.Equal(t, uint64(15), v.Paid("0xa"))
	assert.Equal(t, uint64(16), v.TotalPaid())
	assert.Len(t, v.Transfers(), 3)
}

func TestVault_RejectAndAccept(t *testing.T) {
	v := NewVault()
	ctx := context.Background()
	custom := errors.New("out of gas")

	v.Reject("0xa", nil)
	v.Reject("0xb", custom)
	require.ErrorIs(t, v.Transfer(ctx, "", "0xa", 1), ErrTransferRejected)
	require.ErrorIs(t, v.Transfer(ctx, "", "0xb", 1), custom)
	assert.Zero(t, v.TotalPaid())

	v.Accept("0xa")
	require.NoError(t, v.Transfer(ctx, "", "0xa", 1))
	assert.Equal(t, uint64(1), v.Paid("0xa"))
}

func TestVault_RepeatedRefPaysOnce(t *testing.T) {
	v := NewVault()
	ctx := context.Background()

	require.NoError(t, v.Transfer(ctx, "intent-1", "0xa", 10))
	require.NoError(t, v.Transfer(ctx, "intent-1", "0xa", 10))
	require.NoError(t, v.Transfer(ctx, "intent-2", "0xa", 10))

	assert.Equal(t, uint64(20), v.Paid("0xa"))
	assert.Len(t, v.Transfers(), 2)
}

func TestVault_StallHonoursDeadline(t *testing.T) {
	v := NewVault()
	v.Stall("0xa")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := v.Transfer(ctx, "", "0xa", 1)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, v.Paid("0xa"))
}

func TestMemoryCredits_TakeOnce(t *testing.T) {
	c := NewMemoryCredits()
	ctx := context.Background()
	now := time.Now()

	_, err := c.Take(ctx, "0xa", now)
	require.ErrorIs(t, err, ErrNothingToWithdraw)

	require.NoError(t, c.Credit(ctx, "0xa", 7, now))
	require.NoError(t, c.Credit(ctx, "0xa", 3, now))
	bal, _ := c.Balance(ctx, "0xa")
	assert.Equal(t, uint64(10), bal)

	got, err := c.Take(ctx, "0xa", now)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), got)

	_, err = c.Take(ctx, "0xa", now)
	require.ErrorIs(t, err, ErrNothingToWithdraw)
}

func TestMemoryIntents_SettleOnce(t *testing.T) {
	m := NewMemoryIntents()
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	in := Intent{ID: uuid.New(), DisputeID: 1, To: "0xa", Amount: 10, Kind: KindRefund, CreatedAt: at}

	require.NoError(t, m.Record(ctx, in))
	require.Error(t, m.Record(ctx, in))

	require.NoError(t, m.Settle(ctx, in.ID, OutcomePaid, at.Add(time.Second)))
	require.ErrorIs(t, m.Settle(ctx, in.ID, OutcomeCredited, at.Add(2*time.Second)), ErrIntentSettled)

	got, err := m.Get(ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomePaid, got.Outcome)
	assert.Equal(t, at.Add(time.Second), got.SettledAt)

	_, err = m.Get(ctx, uuid.New())
	require.ErrorIs(t, err, ErrIntentNotFound)
}

func TestMemoryIntents_UnsettledBeforeCutoff(t *testing.T) {
	m := NewMemoryIntents()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	ids := make([]uuid.UUID, 4)
	for i := range ids {
		ids[i] = uuid.New()
		require.NoError(t, m.Record(ctx, Intent{
			ID: ids[i], To: "0xa", Amount: 1, Kind: KindRelease,
			CreatedAt: base.Add(time.Duration(3-i) * time.Minute),
		}))
	}
	require.NoError(t, m.Settle(ctx, ids[2], OutcomePaid, base))

	open, err := m.Unsettled(ctx, base.Add(150*time.Second), 10)
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, ids[3], open[0].ID)
	assert.Equal(t, ids[1], open[1].ID)

	open, err = m.Unsettled(ctx, base.Add(time.Hour), 1)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, ids[3], open[0].ID)
}
