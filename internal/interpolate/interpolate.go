// Package interpolate computes, for one InnerBox real row, the monomial
// coefficients of the unique polynomial of degree EVAL_DEGREE passing
// through that row's (item, label) pairs, via Newton divided differences
// followed by a Horner-style expansion into the monomial basis — all
// modulo the BFV plaintext prime P. Modular multiplication reuses the
// teacher's own Barrett-reduction helpers (lattigo's ring.BRed/BRedParams)
// instead of a second hand-rolled modular arithmetic layer.
package interpolate

import (
	"fmt"

	"github.com/tuneinsight/lattigo/v5/ring"
)

// Point is one (x, y) pair over Z_p.
type Point struct {
	X, Y uint64
}

func addMod(a, b, p uint64) uint64 {
	s := a + b
	if s >= p {
		s -= p
	}
	return s
}

func subMod(a, b, p uint64) uint64 {
	if a >= b {
		return a - b
	}
	return p - (b - a)
}

// Coeffs returns the monomial coefficients [c_0, c_1, ..., c_{n-1}] such
// that sum_i c_i * x^i == y for every (x, y) in points, modulo the prime p.
// All x-values must be pairwise distinct mod p (guaranteed by InnerBox's
// insertion invariant I2 for real data, and by construction for filler
// padding).
func Coeffs(points []Point, p uint64) ([]uint64, error) {
	n := len(points)
	if n == 0 {
		return nil, fmt.Errorf("interpolate: need at least one point")
	}

	bred := ring.BRedParams(p)

	xs := make([]uint64, n)
	table := make([]uint64, n) // divided-difference column, reused/shrunk in place
	for i, pt := range points {
		xs[i] = pt.X % p
		table[i] = pt.Y % p
	}

	// newton[j] is the j-th Newton divided-difference coefficient, i.e.
	// table[0][0] after j rounds of the recurrence below.
	newton := make([]uint64, n)
	newton[0] = table[0]
	for j := 1; j < n; j++ {
		next := make([]uint64, n-j)
		for i := 0; i < n-j; i++ {
			num := subMod(table[i+1], table[i], p)
			den := subMod(xs[i+j], xs[i], p)
			if den == 0 {
				return nil, fmt.Errorf("interpolate: duplicate x-value %d", xs[i+j])
			}
			invDen := ring.ModExp(den, p-2, p)
			next[i] = ring.BRed(num, invDen, p, bred)
		}
		newton[j] = next[0]
		table = next
	}

	// Horner expansion of
	//   newton[0] + (x-x0)(newton[1] + (x-x1)(newton[2] + ... ))
	// into the monomial basis, built from the innermost term outward. poly
	// is kept low-degree-first so poly[i] is always the coefficient of x^i.
	poly := []uint64{newton[n-1]}
	for j := n - 2; j >= 0; j-- {
		poly = mulByMonicLinear(poly, xs[j], p, bred)
		poly[0] = addMod(poly[0], newton[j], p)
	}

	return poly, nil
}

// mulByMonicLinear multiplies poly (low-degree-first) by (x - root) mod p.
func mulByMonicLinear(poly []uint64, root, p uint64, bred []uint64) []uint64 {
	out := make([]uint64, len(poly)+1)
	for i, c := range poly {
		out[i] = subMod(out[i], ring.BRed(c, root, p, bred), p)
		out[i+1] = addMod(out[i+1], c, p)
	}
	return out
}

// Eval evaluates sum_i coeffs[i]*x^i mod p, using the same Horner scheme as
// lattigo's own ring.EvalPolyModP. Used by tests (property I3); never on
// the server's hot path.
func Eval(coeffs []uint64, x, p uint64) uint64 {
	return ring.EvalPolyModP(x%p, coeffs, p)
}
