package dispute

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"sealedcourt/account"
	"sealedcourt/db"
	"sealedcourt/oracle"
)

func integrationPool(t *testing.T) (context.Context, *pgxpool.Pool) {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL is empty; set it to a live PostgreSQL to run integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect pool: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := db.Migrate(ctx, pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return ctx, pool
}

func seedDispute(t *testing.T, ctx context.Context, repo *Repository) Dispute {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	suffix := now.UnixNano()
	d, err := repo.Create(ctx, Dispute{
		Plaintiff:         account.Address(fmt.Sprintf("0xplaintiff%d", suffix)),
		Defendant:         account.Address(fmt.Sprintf("0xdefendant%d", suffix)),
		EncryptedStake:    "stake",
		EncryptedEvidence: "evidence",
		EncryptedEscrow:   "escrow",
		EncryptedTally:    "tally",
		Status:            StatusCreated,
		CreatedAt:         now,
		EscrowAmount:      10_000_000,
		UpdatedAt:         now,
	})
	if err != nil {
		t.Fatalf("create dispute: %v", err)
	}
	t.Cleanup(func() {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel2()
		_, _ = repo.pool.Exec(ctx2, `DELETE FROM pending_decryptions WHERE dispute_id = $1`, int64(d.ID))
		_, _ = repo.pool.Exec(ctx2, `DELETE FROM disputes WHERE id = $1`, int64(d.ID))
	})
	return d
}

func TestRepositoryRoundTrip_Integration(t *testing.T) {
	ctx, pool := integrationPool(t)
	repo := NewRepository(pool)
	d := seedDispute(t, ctx, repo)

	d.Status = StatusInArbitration
	d.Arbitrators = []account.Address{"0xa", "0xb", "0xc"}
	d.VotingDeadline = d.CreatedAt.Add(time.Hour)
	d.UpdatedAt = d.CreatedAt.Add(time.Second)
	if err := repo.Update(ctx, d); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := repo.Get(ctx, d.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusInArbitration || len(got.Arbitrators) != 3 {
		t.Fatalf("unexpected dispute after update: %+v", got)
	}
	if !got.VotingDeadline.Equal(d.VotingDeadline) {
		t.Fatalf("deadline: got %s want %s", got.VotingDeadline, d.VotingDeadline)
	}

	open, err := repo.ListByStatus(ctx, StatusInArbitration)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	found := false
	for _, o := range open {
		found = found || o.ID == d.ID
	}
	if !found {
		t.Fatalf("dispute %d missing from in_arbitration listing", d.ID)
	}

	if _, err := repo.Get(ctx, d.ID+1_000_000); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPendingLifecycle_Integration(t *testing.T) {
	ctx, pool := integrationPool(t)
	repo := NewRepository(pool)
	d := seedDispute(t, ctx, repo)

	id := oracle.RequestID(fmt.Sprintf("req-%d", time.Now().UnixNano()))
	p := Pending{RequestID: id, DisputeID: d.ID, RequestedAt: time.Now().UTC()}
	if err := repo.PutPending(ctx, p); err != nil {
		t.Fatalf("put pending: %v", err)
	}
	if err := repo.PutPending(ctx, p); !errors.Is(err, ErrDuplicateRequest) {
		t.Fatalf("expected ErrDuplicateRequest, got %v", err)
	}

	got, err := repo.LookupPending(ctx, id)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got.DisputeID != d.ID {
		t.Fatalf("lookup dispute: got %d want %d", got.DisputeID, d.ID)
	}

	if err := repo.ConsumePending(ctx, id, time.Now()); err != nil {
		t.Fatalf("consume: %v", err)
	}
	// Consumed ids are indistinguishable from unknown ones.
	if _, err := repo.LookupPending(ctx, id); !errors.Is(err, ErrUnknownRequest) {
		t.Fatalf("expected ErrUnknownRequest after consume, got %v", err)
	}
	if err := repo.ConsumePending(ctx, id, time.Now()); !errors.Is(err, ErrUnknownRequest) {
		t.Fatalf("expected second consume to fail, got %v", err)
	}
}
