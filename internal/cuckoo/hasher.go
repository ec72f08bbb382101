// Package cuckoo implements the keyed hash family used to place 256-bit
// items into the H cuckoo tables, and the fixed chunker that splits an item
// or label into PSI_PT_SLOTS field elements. Both client and server run the
// identical family over the identical keys, so placement and chunking agree
// bit-for-bit without any communication.
package cuckoo

import (
	"encoding/binary"
	"fmt"

	"github.com/holiman/uint256"
	"golang.org/x/crypto/blake2b"
)

// KeySize is the blake2b keyed-mode key length used for every hash table
// key and for the chunk-encoding tweak key.
const KeySize = 32

// Hasher realizes H_k(v) = row_index(k, v) for k in [0, H) using one
// independently keyed blake2b-256 instance per table, following the same
// "one seed per hash function" shape as a classic cuckoo filter (each
// function is otherwise identical, only the key differs).
type Hasher struct {
	keys    [][KeySize]byte
	htSize  uint64
}

// NewHasher builds a Hasher over H independent keys. len(keys) == H.
func NewHasher(keys [][KeySize]byte, htSize uint64) (*Hasher, error) {
	if htSize == 0 || htSize&(htSize-1) != 0 {
		return nil, fmt.Errorf("cuckoo: HT_SIZE must be a power of two, got %d", htSize)
	}
	return &Hasher{keys: keys, htSize: htSize}, nil
}

// NumTables returns H.
func (h *Hasher) NumTables() int { return len(h.keys) }

// TableSize returns HT_SIZE.
func (h *Hasher) TableSize() uint64 { return h.htSize }

// RowIndex computes h_k(v) mod HT_SIZE for table k.
func (h *Hasher) RowIndex(table int, v *uint256.Int) uint64 {
	mac, err := blake2b.New256(h.keys[table][:])
	if err != nil {
		// Only returns an error for an invalid key length, which NewHasher's
		// fixed-size key array makes impossible.
		panic(fmt.Sprintf("cuckoo: blake2b keyed hash: %v", err))
	}
	b := v.Bytes32()
	mac.Write(b[:])
	sum := mac.Sum(nil)
	return binary.BigEndian.Uint64(sum[:8]) % h.htSize
}
