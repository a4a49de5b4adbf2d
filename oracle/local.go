package oracle

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"sealedcourt/ciphertext"
)

// Callback delivers a fulfilled request back to the court.
type Callback func(ctx context.Context, id RequestID, cleartexts, proof []byte) error

// Request is one queued decryption batch.
type Request struct {
	ID      RequestID
	Handles []ciphertext.Handle
}

// Local is an in-process oracle for development and tests. It decrypts with
// a ciphertext.Decrypter, signs with a ProofSigner and hands results to a
// Callback from its own goroutine.
type Local struct {
	dec    ciphertext.Decrypter
	signer *ProofSigner
	queue  chan Request
	log    zerolog.Logger
	served atomic.Int64
	newID  func() RequestID
}

type LocalOption func(*Local)

// WithRequestIDs overrides request id generation.
func WithRequestIDs(fn func() RequestID) LocalOption {
	return func(l *Local) { l.newID = fn }
}

// WithQueueSize sets the request buffer capacity.
func WithQueueSize(n int) LocalOption {
	return func(l *Local) {
		if n > 0 {
			l.queue = make(chan Request, n)
		}
	}
}

func NewLocal(dec ciphertext.Decrypter, signer *ProofSigner, log zerolog.Logger, opts ...LocalOption) *Local {
	l := &Local{
		dec:    dec,
		signer: signer,
		queue:  make(chan Request, 256),
		log:    log.With().Str("component", "local-oracle").Logger(),
		newID:  func() RequestID { return RequestID(uuid.NewString()) },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// RequestDecryption queues the batch and returns immediately.
func (l *Local) RequestDecryption(_ context.Context, handles []ciphertext.Handle) (RequestID, error) {
	if len(handles) == 0 {
		return "", ErrNoHandles
	}
	req := Request{ID: l.newID(), Handles: append([]ciphertext.Handle(nil), handles...)}
	select {
	case l.queue <- req:
		return req.ID, nil
	default:
		return "", ErrQueueFull
	}
}

// Next pops a queued request without blocking.
func (l *Local) Next() (Request, bool) {
	select {
	case req := <-l.queue:
		return req, true
	default:
		return Request{}, false
	}
}

// Fulfil decrypts a request and produces its signed response.
func (l *Local) Fulfil(ctx context.Context, req Request) ([]byte, []byte, error) {
	values := make([]uint8, 0, len(req.Handles))
	for _, h := range req.Handles {
		v, err := l.dec.Decrypt(ctx, h)
		if err != nil {
			return nil, nil, fmt.Errorf("oracle: decrypt %s: %w", h, err)
		}
		if v > maxVoteValue {
			return nil, nil, fmt.Errorf("oracle: value for %s exceeds a word", h)
		}
		values = append(values, uint8(v))
	}
	cleartexts := EncodeWords(values)
	proof, err := l.signer.Sign(req.ID, cleartexts)
	if err != nil {
		return nil, nil, err
	}
	return cleartexts, proof, nil
}

// Run serves queued requests until ctx is cancelled. Failures are logged and
// dropped; the court's decryption timeout recovers the dispute.
func (l *Local) Run(ctx context.Context, deliver Callback) error {
	l.log.Info().Msg("local oracle started")
	defer l.log.Info().Msg("local oracle stopped")

	for {
		select {
		case <-ctx.Done():
			return nil
		case req := <-l.queue:
			l.serve(ctx, req, deliver)
		}
	}
}

func (l *Local) serve(ctx context.Context, req Request, deliver Callback) {
	log := l.log.With().Str("request_id", req.ID.String()).Int("handles", len(req.Handles)).Logger()

	cleartexts, proof, err := l.Fulfil(ctx, req)
	if err != nil {
		log.Warn().Err(err).Msg("fulfil request")
		return
	}
	if err := deliver(ctx, req.ID, cleartexts, proof); err != nil {
		log.Warn().Err(err).Msg("deliver callback")
		return
	}
	l.served.Add(1)
	log.Debug().Msg("callback delivered")
}

// Served reports how many callbacks were delivered successfully.
func (l *Local) Served() int64 {
	return l.served.Load()
}

// Pending reports the number of queued requests.
func (l *Local) Pending() int {
	return len(l.queue)
}
