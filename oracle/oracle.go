// Package oracle describes the external decryption oracle: how requests are
// submitted, how its callbacks are authenticated, and the wire format of the
// cleartexts it returns.
package oracle

import (
	"context"
	"errors"

	"sealedcourt/ciphertext"
)

var (
	// ErrMalformedCleartexts signals a payload that is not a list of vote words.
	ErrMalformedCleartexts = errors.New("oracle: malformed cleartexts")
	// ErrQueueFull is returned by Local when its request buffer is saturated.
	ErrQueueFull = errors.New("oracle: request queue full")
	// ErrNoHandles rejects empty decryption batches.
	ErrNoHandles = errors.New("oracle: no handles to decrypt")
)

// RequestID identifies one decryption batch.
type RequestID string

func (id RequestID) String() string { return string(id) }

// Oracle accepts decryption requests. Implementations must return promptly;
// the cleartexts arrive later through a separate callback.
type Oracle interface {
	RequestDecryption(ctx context.Context, handles []ciphertext.Handle) (RequestID, error)
}

// Verifier authenticates a callback for an exact (request id, cleartexts) pair.
type Verifier interface {
	Verify(id RequestID, cleartexts, proof []byte) bool
}

// VerifierFunc adapts a plain function to Verifier.
type VerifierFunc func(id RequestID, cleartexts, proof []byte) bool

func (f VerifierFunc) Verify(id RequestID, cleartexts, proof []byte) bool {
	return f(id, cleartexts, proof)
}
