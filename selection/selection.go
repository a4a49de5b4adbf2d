// Package selection draws arbitrators for a dispute. The default source is
// derived from public inputs and is predictable; it must not be relied on to
// resist a motivated party.
package selection

import (
	"encoding/binary"
	"errors"
	"math/big"
	"slices"
	"time"

	"golang.org/x/crypto/sha3"

	"sealedcourt/account"
)

var ErrInsufficientArbitrators = errors.New("selection: insufficient arbitrators")

// DrawsPerSeat bounds the draws made per requested arbitrator.
const DrawsPerSeat = 10

// RandomSource yields an index in [0, n) for one draw.
type RandomSource interface {
	Index(disputeID uint64, attempt int, n int) int
}

// KeccakSource hashes (timestamp, attempt, dispute id) with Keccak-256.
type KeccakSource struct {
	Now func() time.Time
}

func (k KeccakSource) Index(disputeID uint64, attempt int, n int) int {
	if n <= 0 {
		return 0
	}
	now := time.Now
	if k.Now != nil {
		now = k.Now
	}

	var buf [24]byte
	binary.BigEndian.PutUint64(buf[0:8], uint64(now().Unix()))
	binary.BigEndian.PutUint64(buf[8:16], uint64(attempt))
	binary.BigEndian.PutUint64(buf[16:24], disputeID)

	h := sha3.NewLegacyKeccak256()
	h.Write(buf[:])
	sum := new(big.Int).SetBytes(h.Sum(nil))
	return int(sum.Mod(sum, big.NewInt(int64(n))).Int64())
}

// Candidate is the view of an arbitrator the selector needs.
type Candidate struct {
	Address account.Address
	Active  bool
}

// Selector picks distinct eligible arbitrators.
type Selector struct {
	source RandomSource
}

func NewSelector(source RandomSource) *Selector {
	if source == nil {
		source = KeccakSource{}
	}
	return &Selector{source: source}
}

// Select draws up to n*DrawsPerSeat times from candidates and returns n
// addresses that are active, not a party and not already chosen.
func (s *Selector) Select(disputeID uint64, candidates []Candidate, parties []account.Address, n int) ([]account.Address, error) {
	if n <= 0 || len(candidates) == 0 {
		return nil, ErrInsufficientArbitrators
	}

	chosen := make([]account.Address, 0, n)
	maxDraws := n * DrawsPerSeat
	for attempt := 0; attempt < maxDraws && len(chosen) < n; attempt++ {
		c := candidates[s.source.Index(disputeID, attempt, len(candidates))]
		if !c.Active || slices.Contains(parties, c.Address) || slices.Contains(chosen, c.Address) {
			continue
		}
		chosen = append(chosen, c.Address)
	}

	if len(chosen) < n {
		return nil, ErrInsufficientArbitrators
	}
	return chosen, nil
}
