// Package query implements the server-side homomorphic evaluation pipeline:
// expanding a client's SRC_POWERS into the full TARGET_POWERS set, taking
// the per-InnerBox plaintext-ciphertext inner product, and folding the H
// cuckoo tables' contributions into one response ciphertext per Segment
// (spec.md §4.5).
package query

import (
	"fmt"

	"github.com/Janmajayamall/ulpsi/internal/fhe"
)

// expandPowers fills basis with every power in target, deriving any power
// not already present via the same recursive halving construction lattigo's
// own rlwe.PowerBasis.GenPower uses: pow[n] = pow[n/2] * pow[n-n/2],
// relinearized and mod-switched down one level. Sub-powers are generated
// on demand and memoized in basis, so a covering SRC_POWERS set of size
// O(log EVAL_DEGREE) reaches every target power in O(EVAL_DEGREE)
// multiplications total, not per-power from scratch.
func expandPowers(eval *fhe.Evaluator, basis map[int]*fhe.Ciphertext, target []int) error {
	for _, n := range target {
		if err := genPower(eval, basis, n); err != nil {
			return fmt.Errorf("query: expanding power %d: %w", n, err)
		}
	}
	return nil
}

func genPower(eval *fhe.Evaluator, basis map[int]*fhe.Ciphertext, n int) error {
	if n <= 0 {
		return fmt.Errorf("query: requested non-positive power %d", n)
	}
	if _, ok := basis[n]; ok {
		return nil
	}

	a := n / 2
	b := n - a
	if err := genPower(eval, basis, a); err != nil {
		return err
	}
	if err := genPower(eval, basis, b); err != nil {
		return err
	}

	prod, err := eval.MulRelinNew(basis[a], basis[b])
	if err != nil {
		return fmt.Errorf("multiplying powers %d and %d: %w", a, b, err)
	}
	if fhe.Level(prod) > 0 {
		prod, err = eval.ModSwitch(prod)
		if err != nil {
			return fmt.Errorf("mod-switching power %d: %w", n, err)
		}
	}
	basis[n] = prod
	return nil
}
