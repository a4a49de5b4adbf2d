package court

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"sealedcourt/account"
	"sealedcourt/ciphertext"
	"sealedcourt/dispute"
	"sealedcourt/journal"
	"sealedcourt/oracle"
	"sealedcourt/payout"
	"sealedcourt/vote"
)

const (
	owner     account.Address = "0xowner"
	plaintiff account.Address = "0xplaintiff"
	defendant account.Address = "0xdefendant"
)

var arbitrators = []account.Address{"0xarb1", "0xarb2", "0xarb3"}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// sequential draws candidates in registration order.
type sequential struct{}

func (sequential) Index(_ uint64, attempt int, n int) int { return attempt % n }

type harness struct {
	t       *testing.T
	court   *Court
	params  Params
	clock   *fakeClock
	ciphers *ciphertext.Sealed
	local   *oracle.Local
	signer  *oracle.ProofSigner
	vault   *payout.Vault
	journal *journal.Recorder
}

type harnessOption func(*Deps, *Stores)

func withTransfers(tr payout.Transferer) harnessOption {
	return func(d *Deps, _ *Stores) { d.Transfers = tr }
}

func withOracle(o oracle.Oracle) harnessOption {
	return func(d *Deps, _ *Stores) { d.Oracle = o }
}

// withStores lets a test wrap the in-memory stores.
func withStores(wrap func(*Stores)) harnessOption {
	return func(_ *Deps, s *Stores) { wrap(s) }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	sealed, err := ciphertext.NewSealedRandom()
	require.NoError(t, err)

	var seq atomic.Int64
	signer := oracle.NewProofSigner(priv, "")
	local := oracle.NewLocal(sealed, signer, zerolog.Nop(), oracle.WithRequestIDs(func() oracle.RequestID {
		return oracle.RequestID(fmt.Sprintf("req-%d", seq.Add(1)))
	}))

	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	params := DefaultParams()
	params.Owner = owner

	vault := payout.NewVault()
	deps := Deps{
		Ciphers:   sealed,
		Oracle:    local,
		Verifier:  oracle.NewProofVerifier(pub, ""),
		Transfers: vault,
		Logger:    zerolog.Nop(),
	}
	stores, rec := NewMemoryStores()
	for _, opt := range opts {
		opt(&deps, &stores)
	}

	c, err := New(params, stores, deps, WithClock(clock.Now), WithRandomSource(sequential{}))
	require.NoError(t, err)

	return &harness{
		t:       t,
		court:   c,
		params:  params,
		clock:   clock,
		ciphers: sealed,
		local:   local,
		signer:  signer,
		vault:   vault,
		journal: rec,
	}
}

func (h *harness) handle(v uint64) ciphertext.Handle {
	h.t.Helper()
	hd, err := h.ciphers.Encrypt(context.Background(), v)
	require.NoError(h.t, err)
	return hd
}

func (h *harness) registerPanel() {
	h.t.Helper()
	for _, a := range arbitrators {
		_, err := h.court.Register(context.Background(), a, h.handle(1))
		require.NoError(h.t, err)
	}
}

func (h *harness) createDispute() uint64 {
	h.t.Helper()
	id, err := h.court.CreateDispute(context.Background(), plaintiff, CreateInput{
		Defendant:         defendant,
		EncryptedStake:    h.handle(5),
		EncryptedEvidence: h.handle(7),
		Escrow:            h.params.MinEscrow,
	})
	require.NoError(h.t, err)
	return id
}

// assigned registers the panel, files a dispute and assigns it.
func (h *harness) assigned() uint64 {
	h.t.Helper()
	h.registerPanel()
	id := h.createDispute()
	_, err := h.court.AssignArbitrators(context.Background(), id)
	require.NoError(h.t, err)
	return id
}

// voted runs a dispute through a full ballot and returns the pending request.
func (h *harness) voted(options ...vote.Option) (uint64, oracle.Request) {
	h.t.Helper()
	id := h.assigned()
	ctx := context.Background()
	for i, o := range options {
		_, err := h.court.SubmitVote(ctx, arbitrators[i], id, o, h.handle(0))
		require.NoError(h.t, err)
	}
	req, ok := h.local.Next()
	require.True(h.t, ok, "no decryption request queued")
	return id, req
}

func (h *harness) fulfil(req oracle.Request) ([]byte, []byte) {
	h.t.Helper()
	cleartexts, proof, err := h.local.Fulfil(context.Background(), req)
	require.NoError(h.t, err)
	return cleartexts, proof
}

func (h *harness) dispute(id uint64) dispute.Dispute {
	h.t.Helper()
	d, err := h.court.Dispute(context.Background(), id)
	require.NoError(h.t, err)
	return d
}
