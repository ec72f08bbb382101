// Package innerbox implements the InnerBox: a dense (CT_SLOTS x
// EVAL_DEGREE+1) tile of item/label chunks plus the monomial coefficients
// interpolated from them, per spec.md §3 and §4.2.
package innerbox

import (
	"fmt"

	"github.com/Janmajayamall/ulpsi/internal/interpolate"
)

// InsertResult is the outcome of a TryInsert call.
type InsertResult int

const (
	Inserted InsertResult = iota
	Full
	ChunkCollision
)

func (r InsertResult) String() string {
	switch r {
	case Inserted:
		return "inserted"
	case Full:
		return "full"
	case ChunkCollision:
		return "chunk_collision"
	default:
		return "unknown"
	}
}

// emptySentinel is the reserved "unwritten cell" chunk value (spec.md §4.1,
// §9): a legitimate chunk is never zero because Chunker rejection-samples
// it away.
const emptySentinel = uint64(0)

// Shape describes the fixed geometry shared by every InnerBox of a given
// PsiParams: CT_SLOTS real rows grouped into SEG_ROWS logical rows of
// PsiPtSlots real rows each, and EvalDegree+1 columns.
type Shape struct {
	CTSlots    int
	PsiPtSlots int
	EvalDegree int
	P          uint64 // BFV plaintext modulus
}

func (s Shape) Columns() int  { return s.EvalDegree + 1 }
func (s Shape) SegRows() int  { return s.CTSlots / s.PsiPtSlots }

// InnerBox is a fixed-shape tile of item/label chunks, plus (after
// Interpolate) one row of monomial coefficients per real row.
type InnerBox struct {
	shape  Shape
	item   [][]uint64 // [realRow][col]
	label  [][]uint64
	coeffs [][]uint64
	frozen bool
}

// New allocates an empty InnerBox of the given shape. Every cell starts at
// the empty sentinel.
func New(shape Shape) *InnerBox {
	b := &InnerBox{
		shape: shape,
		item:  make([][]uint64, shape.CTSlots),
		label: make([][]uint64, shape.CTSlots),
	}
	cols := shape.Columns()
	for r := range b.item {
		b.item[r] = make([]uint64, cols)
		b.label[r] = make([]uint64, cols)
	}
	return b
}

// TryInsert finds the smallest column j such that writing itemChunks/
// labelChunks across the PsiPtSlots real rows of logicalRow at column j
// would neither overwrite an occupied cell nor duplicate an item chunk
// already present in any of those real rows, per spec.md §4.2. len
// (itemChunks) == len(labelChunks) == shape.PsiPtSlots.
func (b *InnerBox) TryInsert(logicalRow int, itemChunks, labelChunks []uint64) (InsertResult, int) {
	if b.frozen {
		panic("innerbox: TryInsert on a frozen InnerBox")
	}

	cols := b.shape.Columns()
	base := logicalRow * b.shape.PsiPtSlots

	anyColumnFree := false

columns:
	for j := 0; j < cols; j++ {
		for i := 0; i < b.shape.PsiPtSlots; i++ {
			if b.item[base+i][j] != emptySentinel {
				continue columns
			}
		}
		anyColumnFree = true

		for i := 0; i < b.shape.PsiPtSlots; i++ {
			row := b.item[base+i]
			for jj := 0; jj < cols; jj++ {
				if jj == j {
					continue
				}
				if row[jj] != emptySentinel && row[jj] == itemChunks[i] {
					continue columns
				}
			}
		}

		for i := 0; i < b.shape.PsiPtSlots; i++ {
			b.item[base+i][j] = itemChunks[i]
			b.label[base+i][j] = labelChunks[i]
		}
		return Inserted, j
	}

	if !anyColumnFree {
		return Full, -1
	}
	return ChunkCollision, -1
}

// Interpolate computes, independently for every real row, the monomial
// coefficients of the degree-EVAL_DEGREE polynomial agreeing with the
// row's occupied (item, label) pairs, padding unoccupied columns with
// filler x-values drawn from the reserved dense range [P-(EVAL_DEGREE+1),
// P) paired with y=0 (spec.md §4.2, §9). Interpolate touches only this
// box, so callers may run it on different InnerBoxes concurrently; within
// one box the rows are processed sequentially.
func (b *InnerBox) Interpolate() error {
	cols := b.shape.Columns()
	fillerBase := b.shape.P - uint64(cols)

	coeffs := make([][]uint64, b.shape.CTSlots)
	for r := 0; r < b.shape.CTSlots; r++ {
		points := make([]interpolate.Point, cols)
		fillerN := 0
		for j := 0; j < cols; j++ {
			x, y := b.item[r][j], b.label[r][j]
			if x == emptySentinel {
				x = fillerBase + uint64(fillerN)
				fillerN++
				y = 0
			}
			points[j] = interpolate.Point{X: x, Y: y}
		}
		c, err := interpolate.Coeffs(points, b.shape.P)
		if err != nil {
			return fmt.Errorf("innerbox: interpolating real row %d: %w", r, err)
		}
		coeffs[r] = c
	}

	b.coeffs = coeffs
	b.frozen = true
	return nil
}

// Frozen reports whether Interpolate has run.
func (b *InnerBox) Frozen() bool { return b.frozen }

// Column returns coeffs[:, j], the CT_SLOTS-length SIMD vector that a
// serving-layout plaintext for column j is encoded from. Panics if the box
// has not been frozen.
func (b *InnerBox) Column(j int) []uint64 {
	if !b.frozen {
		panic("innerbox: Column read before Interpolate")
	}
	out := make([]uint64, b.shape.CTSlots)
	for r := range out {
		out[r] = b.coeffs[r][j]
	}
	return out
}

// ItemChunkAt and LabelChunkAt expose raw cells for testing invariants I1-I3
// without reaching into unexported fields.
func (b *InnerBox) ItemChunkAt(realRow, col int) uint64  { return b.item[realRow][col] }
func (b *InnerBox) LabelChunkAt(realRow, col int) uint64 { return b.label[realRow][col] }

func (b *InnerBox) Shape() Shape { return b.shape }
