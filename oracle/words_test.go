package oracle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeWords(t *testing.T) {
	payload := EncodeWords([]uint8{1, 1, 2})
	require.Len(t, payload, 3*WordSize)
	assert.Equal(t, byte(2), payload[3*WordSize-1])

	got, err := DecodeWords(payload)
	require.NoError(t, err)
	assert.Equal(t, []uint8{1, 1, 2}, got)
}

func TestDecodeWords_Malformed(t *testing.T) {
	tooBig := EncodeWords([]uint8{1})
	tooBig[WordSize-2] = 1

	cases := map[string][]byte{
		"empty":        nil,
		"partial word": make([]byte, WordSize+5),
		"out of range": tooBig,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeWords(payload)
			require.ErrorIs(t, err, ErrMalformedCleartexts)
		})
	}
}
