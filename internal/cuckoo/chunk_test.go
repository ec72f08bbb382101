package cuckoo

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunker_EncodeNeverZero(t *testing.T) {
	var tweak [KeySize]byte
	tweak[0] = 7
	c, err := NewChunker(5, 52, tweak)
	require.NoError(t, err)

	for i := uint64(0); i < 1000; i++ {
		v := new(uint256.Int).SetUint64(i)
		chunks := c.Encode(v)
		require.Len(t, chunks, 5)
		for _, ch := range chunks {
			assert.NotZero(t, ch)
		}
	}
}

func TestChunker_DeterministicAndInjectiveOverSmallRange(t *testing.T) {
	var tweak [KeySize]byte
	c, err := NewChunker(5, 52, tweak)
	require.NoError(t, err)

	seen := make(map[[5]uint64]uint64)
	for i := uint64(1); i < 500; i++ {
		v := new(uint256.Int).SetUint64(i)
		chunks := c.Encode(v)
		var key [5]uint64
		copy(key[:], chunks)
		if other, ok := seen[key]; ok {
			t.Fatalf("encode(%d) collides with encode(%d)", i, other)
		}
		seen[key] = i

		again := c.Encode(v)
		assert.Equal(t, chunks, again)
	}
}

func TestNewChunker_RejectsInsufficientCoverage(t *testing.T) {
	var tweak [KeySize]byte
	_, err := NewChunker(2, 10, tweak) // 20 bits < 256
	assert.Error(t, err)
}
