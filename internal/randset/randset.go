// Package randset generates random server and client sets for benchmarks
// and end-to-end tests; it is explicitly a thin, out-of-core-scope
// collaborator (spec.md §1) used only to exercise the engine.
package randset

import (
	"crypto/rand"
	"fmt"
	mrand "math/rand"

	"github.com/holiman/uint256"

	"github.com/Janmajayamall/ulpsi/internal/preprocess"
)

func randomUint256() (*uint256.Int, error) {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return nil, err
	}
	return new(uint256.Int).SetBytes(b[:]), nil
}

// ServerSet generates n random (item, label) pairs with no item collisions.
func ServerSet(n int) ([]preprocess.Item, error) {
	seen := make(map[[32]byte]struct{}, n)
	items := make([]preprocess.Item, 0, n)
	for len(items) < n {
		v, err := randomUint256()
		if err != nil {
			return nil, fmt.Errorf("randset: generating item: %w", err)
		}
		key := v.Bytes32()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}

		label, err := randomUint256()
		if err != nil {
			return nil, fmt.Errorf("randset: generating label: %w", err)
		}
		items = append(items, preprocess.Item{V: v, Label: label})
	}
	return items, nil
}

// ClientSet draws clientSize items: nOverlap copied from server (so the
// client is guaranteed to see those in the intersection), the remainder
// fresh random values confirmed absent from server.
func ClientSet(server []preprocess.Item, clientSize, nOverlap int) ([]*uint256.Int, error) {
	if nOverlap > clientSize {
		return nil, fmt.Errorf("randset: overlap %d exceeds client size %d", nOverlap, clientSize)
	}
	if nOverlap > len(server) {
		return nil, fmt.Errorf("randset: overlap %d exceeds server size %d", nOverlap, len(server))
	}

	present := make(map[[32]byte]struct{}, len(server))
	for _, it := range server {
		present[it.V.Bytes32()] = struct{}{}
	}

	perm := mrand.Perm(len(server))
	out := make([]*uint256.Int, 0, clientSize)
	for i := 0; i < nOverlap; i++ {
		out = append(out, server[perm[i]].V)
	}
	for len(out) < clientSize {
		v, err := randomUint256()
		if err != nil {
			return nil, fmt.Errorf("randset: generating client item: %w", err)
		}
		if _, ok := present[v.Bytes32()]; ok {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}
