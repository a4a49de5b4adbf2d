// Package chaos injects faults into a running court: dropped backend
// connections, misbehaving oracle deliveries and refusing recipients.
package chaos

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"sealedcourt/account"
	"sealedcourt/oracle"
	"sealedcourt/payout"
)

// TerminateBackends periodically kills a random backend connection of the
// current database other than the caller's own. It returns the number of
// terminations attempted once ctx is done or stop is closed.
func TerminateBackends(ctx context.Context, pool *pgxpool.Pool, every time.Duration, rng *rand.Rand, stop <-chan struct{}) int {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	killed := 0
	for {
		select {
		case <-ctx.Done():
			return killed
		case <-stop:
			return killed
		case <-ticker.C:
			if rng.Intn(5) != 0 {
				continue
			}
			_, err := pool.Exec(ctx, `SELECT pg_terminate_backend(pid) FROM pg_stat_activity
                                      WHERE datname = current_database() AND pid <> pg_backend_pid()
                                      ORDER BY random() LIMIT 1`)
			if err == nil {
				killed++
			}
		}
	}
}

// Faults configures the probability, in percent, of each delivery fault.
type Faults struct {
	Drop      int
	Forge     int
	Duplicate int
	Delay     time.Duration
}

// Delivery wraps an oracle callback with random faults. Forged deliveries
// flip a byte of the proof; duplicates redeliver the same response.
type Delivery struct {
	next   oracle.Callback
	faults Faults

	mu  sync.Mutex
	rng *rand.Rand

	Dropped    atomic.Int64
	Forged     atomic.Int64
	Duplicated atomic.Int64
}

func NewDelivery(next oracle.Callback, faults Faults, seed int64) *Delivery {
	return &Delivery{next: next, faults: faults, rng: rand.New(rand.NewSource(seed))}
}

func (d *Delivery) roll(pct int) bool {
	if pct <= 0 {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rng.Intn(100) < pct
}

// Deliver matches oracle.Callback.
func (d *Delivery) Deliver(ctx context.Context, id oracle.RequestID, cleartexts, proof []byte) error {
	if d.roll(d.faults.Drop) {
		d.Dropped.Add(1)
		return nil
	}
	if d.faults.Delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.faults.Delay):
		}
	}
	if d.roll(d.faults.Forge) && len(proof) > 0 {
		forged := append([]byte(nil), proof...)
		forged[len(forged)/2] ^= 0xff
		d.Forged.Add(1)
		return d.next(ctx, id, cleartexts, forged)
	}
	err := d.next(ctx, id, cleartexts, proof)
	if d.roll(d.faults.Duplicate) {
		d.Duplicated.Add(1)
		_ = d.next(ctx, id, cleartexts, proof)
	}
	return err
}

// Recipients makes a payout.Vault refuse or stall random addresses for a
// while, then accept them again.
func Recipients(ctx context.Context, vault *payout.Vault, addrs []account.Address, rng *rand.Rand, every time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			addr := addrs[rng.Intn(len(addrs))]
			switch rng.Intn(3) {
			case 0:
				vault.Reject(addr, nil)
			case 1:
				vault.Stall(addr)
			default:
				vault.Accept(addr)
			}
		}
	}
}
