package bigbox

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Janmajayamall/ulpsi/internal/cuckoo"
	"github.com/Janmajayamall/ulpsi/internal/innerbox"
)

func testHasher(t *testing.T) *cuckoo.Hasher {
	t.Helper()
	keys := make([][cuckoo.KeySize]byte, 3)
	for i := range keys {
		keys[i][0] = byte(i + 1)
	}
	h, err := cuckoo.NewHasher(keys, 16)
	require.NoError(t, err)
	return h
}

func testShape() innerbox.Shape {
	return innerbox.Shape{CTSlots: 4, PsiPtSlots: 2, EvalDegree: 3, P: 97}
}

func TestBigBox_InsertThenFreezeReconstructsEveryItem(t *testing.T) {
	hasher := testHasher(t)
	shape := testShape()
	segRows := shape.SegRows()
	bb, err := New(0, hasher, shape)
	require.NoError(t, err)

	items := make([]*uint256.Int, 30)
	chunksOf := make(map[uint64][]uint64, len(items))
	for i := range items {
		items[i] = uint256.NewInt(uint64(1000 + i))
		chunksOf[items[i].Uint64()] = []uint64{items[i].Uint64() % 89, (items[i].Uint64() / 89 % 89) + 1}
	}
	for _, v := range items {
		require.NoError(t, bb.Insert(v, chunksOf[v.Uint64()], []uint64{1, 2}))
	}
	require.NoError(t, bb.Freeze())

	// I1: every inserted item is reachable via its row's (segment,
	// logical row) at exactly one column of some InnerBox.
	for _, v := range items {
		row := hasher.RowIndex(0, v)
		seg := bb.Segments()[row/uint64(segRows)]
		logical := int(row % uint64(segRows))
		base := logical * shape.PsiPtSlots
		chunks := chunksOf[v.Uint64()]

		found := 0
		for _, ib := range seg.InnerBoxes() {
			for j := 0; j < shape.Columns(); j++ {
				if ib.ItemChunkAt(base, j) == chunks[0] && ib.ItemChunkAt(base+1, j) == chunks[1] {
					found++
				}
			}
		}
		assert.Equal(t, 1, found)
	}
}

func TestBigBox_InsertAfterFreezeFails(t *testing.T) {
	hasher := testHasher(t)
	bb, err := New(0, hasher, testShape())
	require.NoError(t, err)
	require.NoError(t, bb.Freeze())

	err = bb.Insert(uint256.NewInt(1), []uint64{1, 2}, []uint64{3, 4})
	assert.Error(t, err)
}

func TestNew_RejectsMismatchedSegRows(t *testing.T) {
	hasher := testHasher(t)
	badShape := innerbox.Shape{CTSlots: 10, PsiPtSlots: 3, EvalDegree: 1, P: 97} // SegRows=3, 16%3!=0
	_, err := New(0, hasher, badShape)
	assert.Error(t, err)
}
