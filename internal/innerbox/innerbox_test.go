package innerbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Janmajayamall/ulpsi/internal/interpolate"
)

func testShape() Shape {
	return Shape{CTSlots: 10, PsiPtSlots: 2, EvalDegree: 4, P: 97}
}

func TestTryInsert_FirstFreeColumn(t *testing.T) {
	b := New(testShape())
	res, col := b.TryInsert(0, []uint64{1, 2}, []uint64{10, 20})
	require.Equal(t, Inserted, res)
	assert.Equal(t, 0, col)

	res, col = b.TryInsert(0, []uint64{3, 4}, []uint64{30, 40})
	require.Equal(t, Inserted, res)
	assert.Equal(t, 1, col)
}

func TestTryInsert_ChunkCollisionSkipsColumn(t *testing.T) {
	b := New(testShape())
	_, _ = b.TryInsert(0, []uint64{1, 2}, []uint64{10, 20})

	// real row 0 already holds chunk value 1 at column 0; reusing it at a
	// later column for the same real row must be rejected.
	res, col := b.TryInsert(0, []uint64{1, 99}, []uint64{11, 21})
	assert.Equal(t, ChunkCollision, res)
	assert.Equal(t, -1, col)
}

func TestTryInsert_FullWhenNoColumnsLeft(t *testing.T) {
	shape := Shape{CTSlots: 2, PsiPtSlots: 2, EvalDegree: 0, P: 97} // 1 column
	b := New(shape)
	res, _ := b.TryInsert(0, []uint64{1, 2}, []uint64{10, 20})
	require.Equal(t, Inserted, res)

	res, _ = b.TryInsert(0, []uint64{3, 4}, []uint64{30, 40})
	assert.Equal(t, Full, res)
}

func TestInterpolate_ReconstructsInsertedPairs(t *testing.T) {
	shape := testShape()
	b := New(shape)
	_, _ = b.TryInsert(0, []uint64{1, 2}, []uint64{11, 22})
	_, _ = b.TryInsert(1, []uint64{3, 4}, []uint64{33, 44})

	require.NoError(t, b.Interpolate())
	assert.True(t, b.Frozen())

	cases := []struct {
		realRow int
		x, y    uint64
	}{
		{0, 1, 11}, {1, 2, 22}, {2, 3, 33}, {3, 4, 44},
	}
	for _, c := range cases {
		col := columnOf(b, c.realRow, shape)
		assert.Equal(t, c.y, interpolate.Eval(col, c.x, shape.P))
	}
}

// columnOf reconstructs the per-row coefficient vector from InnerBox's
// column-major Column accessor, for readability in the assertion above.
func columnOf(b *InnerBox, realRow int, shape Shape) []uint64 {
	out := make([]uint64, shape.Columns())
	for j := 0; j < shape.Columns(); j++ {
		out[j] = b.Column(j)[realRow]
	}
	return out
}
