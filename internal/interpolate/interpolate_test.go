package interpolate

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPrime = 0x10000000060001 // same shape as the default PsiParams plaintext modulus

func TestCoeffs_SmallKnown(t *testing.T) {
	// y = 2 + 3x mod p over x in {1, 2, 3}
	p := uint64(97)
	points := []Point{{X: 1, Y: 5}, {X: 2, Y: 8}, {X: 3, Y: 11}}
	coeffs, err := Coeffs(points, p)
	require.NoError(t, err)
	for _, pt := range points {
		assert.Equal(t, pt.Y, Eval(coeffs, pt.X, p))
	}
}

func TestCoeffs_DuplicateXRejected(t *testing.T) {
	_, err := Coeffs([]Point{{X: 1, Y: 1}, {X: 1, Y: 2}}, 97)
	assert.Error(t, err)
}

// TestCoeffs_RandomRows covers spec scenario 5: for many random rows of
// distinct x-values and random y-values, evaluating the interpolated
// polynomial at each x reproduces that row's y exactly.
func TestCoeffs_RandomRows(t *testing.T) {
	const degree = 64 // columns = degree+1 points per row
	const rows = 2000

	r := rand.New(rand.NewSource(1))
	for row := 0; row < rows; row++ {
		xs := randDistinct(r, degree+1, testPrime)
		points := make([]Point, degree+1)
		for i, x := range xs {
			points[i] = Point{X: x, Y: uint64(r.Int63()) % testPrime}
		}
		coeffs, err := Coeffs(points, testPrime)
		require.NoError(t, err)
		for _, pt := range points {
			assert.Equal(t, pt.Y, Eval(coeffs, pt.X, testPrime), "row %d", row)
		}
	}
}

func randDistinct(r *rand.Rand, n int, p uint64) []uint64 {
	seen := make(map[uint64]bool, n)
	out := make([]uint64, 0, n)
	for len(out) < n {
		x := uint64(r.Int63()) % p
		if seen[x] {
			continue
		}
		seen[x] = true
		out = append(out, x)
	}
	return out
}
