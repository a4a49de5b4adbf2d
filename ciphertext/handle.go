// Package ciphertext models values that only exist in encrypted form. The
// court never sees their representation; it only passes handles around and
// asks a Service to combine them.
package ciphertext

import (
	"context"
	"errors"
)

var (
	// ErrUnknownHandle is returned when a handle was never issued by the service.
	ErrUnknownHandle = errors.New("ciphertext: unknown handle")
	// ErrTampered signals that a sealed value failed authentication.
	ErrTampered = errors.New("ciphertext: sealed value failed authentication")
)

// Handle is an opaque reference to an encrypted value.
type Handle string

func (h Handle) IsZero() bool { return h == "" }

func (h Handle) String() string { return string(h) }

// Service performs homomorphic operations over handles.
type Service interface {
	Encrypt(ctx context.Context, value uint64) (Handle, error)
	Add(ctx context.Context, a, b Handle) (Handle, error)
	// Select returns a handle to ifTrue when cond is non-zero, ifFalse otherwise,
	// without revealing which branch was taken.
	Select(ctx context.Context, cond, ifTrue, ifFalse Handle) (Handle, error)
}

// Decrypter reveals a handle's value. Only the decryption oracle holds one.
type Decrypter interface {
	Decrypt(ctx context.Context, h Handle) (uint64, error)
}
