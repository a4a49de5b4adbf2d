package oracle

import (
	"fmt"
	"math/big"
)

// WordSize is the width of one encoded cleartext value.
const WordSize = 32

const maxVoteValue = 255

// EncodeWords packs values as consecutive 32-byte big-endian words.
func EncodeWords(values []uint8) []byte {
	out := make([]byte, len(values)*WordSize)
	for i, v := range values {
		out[(i+1)*WordSize-1] = v
	}
	return out
}

// DecodeWords reverses EncodeWords. It rejects empty payloads, trailing
// partial words and any word that does not fit in a uint8.
func DecodeWords(payload []byte) ([]uint8, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformedCleartexts)
	}
	if len(payload)%WordSize != 0 {
		return nil, fmt.Errorf("%w: length %d is not a multiple of %d", ErrMalformedCleartexts, len(payload), WordSize)
	}

	n := len(payload) / WordSize
	out := make([]uint8, 0, n)
	limit := big.NewInt(maxVoteValue)
	for i := 0; i < n; i++ {
		w := new(big.Int).SetBytes(payload[i*WordSize : (i+1)*WordSize])
		if w.Cmp(limit) > 0 {
			return nil, fmt.Errorf("%w: word %d out of range", ErrMalformedCleartexts, i)
		}
		out = append(out, uint8(w.Uint64()))
	}
	return out, nil
}
