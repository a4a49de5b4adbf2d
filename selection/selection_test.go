package selection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sealedcourt/account"
)

// sequence returns attempt modulo n, walking the candidate list in order.
type sequence struct{}

func (sequence) Index(_ uint64, attempt int, n int) int { return attempt % n }

// stuck always returns the same index.
type stuck int

func (s stuck) Index(uint64, int, int) int { return int(s) }

func candidates(addrs ...string) []Candidate {
	out := make([]Candidate, len(addrs))
	for i, a := range addrs {
		out[i] = Candidate{Address: account.Address(a), Active: true}
	}
	return out
}

func TestSelect_SkipsPartiesInactiveAndDuplicates(t *testing.T) {
	cands := candidates("0xp", "0xa", "0xa2", "0xb", "0xc")
	cands[2].Active = false

	got, err := NewSelector(sequence{}).Select(1, cands, []account.Address{"0xp", "0xd"}, 3)
	require.NoError(t, err)
	assert.Equal(t, []account.Address{"0xa", "0xb", "0xc"}, got)
}

func TestSelect_InsufficientWhenDrawsExhausted(t *testing.T) {
	_, err := NewSelector(stuck(0)).Select(1, candidates("0xa", "0xb", "0xc"), nil, 3)
	require.ErrorIs(t, err, ErrInsufficientArbitrators)

	_, err = NewSelector(sequence{}).Select(1, candidates("0xa", "0xb"), nil, 3)
	require.ErrorIs(t, err, ErrInsufficientArbitrators)

	_, err = NewSelector(nil).Select(1, nil, nil, 3)
	require.ErrorIs(t, err, ErrInsufficientArbitrators)
}

func TestKeccakSource_DeterministicForSameInputs(t *testing.T) {
	fixed := time.Unix(1_700_000_000, 0)
	src := KeccakSource{Now: func() time.Time { return fixed }}

	a := src.Index(42, 3, 17)
	b := src.Index(42, 3, 17)
	assert.Equal(t, a, b)
	assert.GreaterOrEqual(t, a, 0)
	assert.Less(t, a, 17)

	seen := map[int]bool{}
	for attempt := 0; attempt < 50; attempt++ {
		seen[src.Index(42, attempt, 17)] = true
	}
	assert.Greater(t, len(seen), 1)
}
