package ciphertext

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

// Sealed is a development stand-in for a homomorphic encryption backend.
// Values are sealed with secretbox under a single key held by the process,
// so "homomorphic" operations open, combine and re-seal. It satisfies both
// Service and Decrypter and must never be deployed next to real funds.
type Sealed struct {
	mu    sync.RWMutex
	key   [32]byte
	boxes map[Handle][]byte
	rand  io.Reader
}

// NewSealed creates a sealed service keyed by key.
func NewSealed(key [32]byte) *Sealed {
	return &Sealed{
		key:   key,
		boxes: make(map[Handle][]byte),
		rand:  rand.Reader,
	}
}

// NewSealedRandom creates a sealed service with a freshly generated key.
func NewSealedRandom() (*Sealed, error) {
	var key [32]byte
	if _, err := io.ReadFull(rand.Reader, key[:]); err != nil {
		return nil, fmt.Errorf("ciphertext: generate key: %w", err)
	}
	return NewSealed(key), nil
}

func (s *Sealed) Encrypt(_ context.Context, value uint64) (Handle, error) {
	return s.seal(value)
}

func (s *Sealed) Add(_ context.Context, a, b Handle) (Handle, error) {
	av, err := s.open(a)
	if err != nil {
		return "", err
	}
	bv, err := s.open(b)
	if err != nil {
		return "", err
	}
	return s.seal(av + bv)
}

func (s *Sealed) Select(_ context.Context, cond, ifTrue, ifFalse Handle) (Handle, error) {
	c, err := s.open(cond)
	if err != nil {
		return "", err
	}
	pick := ifFalse
	if c != 0 {
		pick = ifTrue
	}
	v, err := s.open(pick)
	if err != nil {
		return "", err
	}
	// Re-seal so the caller cannot compare the result against either input.
	return s.seal(v)
}

func (s *Sealed) Decrypt(_ context.Context, h Handle) (uint64, error) {
	return s.open(h)
}

func (s *Sealed) seal(value uint64) (Handle, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(s.rand, nonce[:]); err != nil {
		return "", fmt.Errorf("ciphertext: nonce: %w", err)
	}
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], value)
	box := secretbox.Seal(nonce[:], msg[:], &nonce, &s.key)

	h := Handle(uuid.NewString())
	s.mu.Lock()
	s.boxes[h] = box
	s.mu.Unlock()
	return h, nil
}

func (s *Sealed) open(h Handle) (uint64, error) {
	s.mu.RLock()
	box, ok := s.boxes[h]
	s.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownHandle, h)
	}
	if len(box) < nonceSize {
		return 0, ErrTampered
	}
	var nonce [nonceSize]byte
	copy(nonce[:], box[:nonceSize])
	msg, ok := secretbox.Open(nil, box[nonceSize:], &nonce, &s.key)
	if !ok || len(msg) != 8 {
		return 0, ErrTampered
	}
	return binary.BigEndian.Uint64(msg), nil
}
