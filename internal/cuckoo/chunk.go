package cuckoo

import (
	"fmt"

	"github.com/holiman/uint256"
	"golang.org/x/crypto/blake2b"
)

// Chunker splits a 256-bit value into PSI_PT_SLOTS field elements of
// ChunkBits bits each, low chunk first, each element living in [0, P). The
// all-zero chunk is reserved as the InnerBox "empty" sentinel (spec.md §4.1,
// §9), so any value whose natural chunking produces a zero chunk is
// rejection-sampled through a domain-separated tweak hash until it isn't.
type Chunker struct {
	slots     int
	bits      uint
	mask      uint256.Int
	tweakKey  [KeySize]byte
}

// NewChunker builds a Chunker. slots*bits must be >= 256, and P (the BFV
// plaintext modulus, checked by the caller) must exceed 2^bits so every
// chunk is a valid field element.
func NewChunker(slots int, bits uint, tweakKey [KeySize]byte) (*Chunker, error) {
	if uint(slots)*bits < 256 {
		return nil, fmt.Errorf("cuckoo: PSI_PT_SLOTS*CHUNK_BITS = %d < 256", uint(slots)*bits)
	}
	if bits == 0 || bits > 63 {
		return nil, fmt.Errorf("cuckoo: CHUNK_BITS must be in [1,63], got %d", bits)
	}
	mask := uint256.NewInt(1)
	mask.Lsh(mask, bits)
	mask.SubUint64(mask, 1)
	return &Chunker{slots: slots, bits: bits, mask: *mask, tweakKey: tweakKey}, nil
}

// Slots returns PSI_PT_SLOTS.
func (c *Chunker) Slots() int { return c.slots }

// rawChunks splits v without any zero-chunk handling. ok is false if any
// produced chunk is the reserved zero sentinel.
func (c *Chunker) rawChunks(v *uint256.Int) (chunks []uint64, ok bool) {
	chunks = make([]uint64, c.slots)
	tmp := new(uint256.Int).Set(v)
	masked := new(uint256.Int)
	ok = true
	for i := 0; i < c.slots; i++ {
		masked.And(tmp, &c.mask)
		chunks[i] = masked.Uint64()
		if chunks[i] == 0 {
			ok = false
		}
		tmp.Rsh(tmp, c.bits)
	}
	return chunks, ok
}

// Encode returns the PSI_PT_SLOTS chunk encoding of v, tweaking v through a
// domain-separated blake2b hash (as many times as needed, in practice at
// most once or twice) whenever the natural chunking would hit the reserved
// zero sentinel. Both client and server derive the same tweaked value from
// the same v, so Encode stays deterministic and injective over permitted
// inputs without any coordination.
func (c *Chunker) Encode(v *uint256.Int) []uint64 {
	cur := v
	for attempt := 0; ; attempt++ {
		chunks, ok := c.rawChunks(cur)
		if ok {
			return chunks
		}
		cur = c.tweak(cur, attempt)
	}
}

func (c *Chunker) tweak(v *uint256.Int, attempt int) *uint256.Int {
	mac, err := blake2b.New256(c.tweakKey[:])
	if err != nil {
		panic(fmt.Sprintf("cuckoo: blake2b keyed hash: %v", err))
	}
	b := v.Bytes32()
	mac.Write(b[:])
	mac.Write([]byte{byte(attempt)})
	sum := mac.Sum(nil)
	return new(uint256.Int).SetBytes(sum)
}
