// Package bigbox implements Segment and BigBox: the grow-as-needed
// cuckoo-table mirror described in spec.md §3-§4.3. One BigBox exists per
// cuckoo hash function; each BigBox is cut into fixed-size Segments, and
// each Segment owns an ordered, append-only list of InnerBoxes.
package bigbox

import (
	"fmt"

	"github.com/holiman/uint256"
	"golang.org/x/sync/errgroup"

	"github.com/Janmajayamall/ulpsi/internal/cuckoo"
	"github.com/Janmajayamall/ulpsi/internal/innerbox"
	"github.com/Janmajayamall/ulpsi/internal/psierr"
)

// Segment is SEG_ROWS consecutive logical rows of one BigBox.
type Segment struct {
	shape innerbox.Shape
	boxes []*innerbox.InnerBox
}

func newSegment(shape innerbox.Shape) *Segment {
	return &Segment{shape: shape}
}

// Insert places one (item, label) chunk set at the given logical row,
// scanning existing InnerBoxes in order and appending a fresh one only when
// every existing box rejects the row (spec.md §4.3). A fresh InnerBox
// cannot return Full (it is empty) and cannot return ChunkCollision on an
// empty row, so progress is always made; if it somehow doesn't, that is an
// Internal invariant violation rather than a caller mistake.
func (s *Segment) Insert(logicalRow int, itemChunks, labelChunks []uint64) error {
	for _, b := range s.boxes {
		if res, _ := b.TryInsert(logicalRow, itemChunks, labelChunks); res == innerbox.Inserted {
			return nil
		}
	}

	fresh := innerbox.New(s.shape)
	res, _ := fresh.TryInsert(logicalRow, itemChunks, labelChunks)
	if res != innerbox.Inserted {
		return psierr.New(psierr.Internal, "bigbox.Segment.Insert",
			fmt.Errorf("fresh InnerBox rejected insertion at logical row %d with %s", logicalRow, res))
	}
	s.boxes = append(s.boxes, fresh)
	return nil
}

// Freeze interpolates every InnerBox in the Segment. Each InnerBox's
// interpolation is independent, so callers may run Freeze on many Segments
// (and dispatch the InnerBoxes within one Segment) concurrently.
func (s *Segment) Freeze() error {
	for _, b := range s.boxes {
		if err := b.Interpolate(); err != nil {
			return err
		}
	}
	return nil
}

// InnerBoxes returns the Segment's InnerBoxes in insertion order.
func (s *Segment) InnerBoxes() []*innerbox.InnerBox { return s.boxes }

// BigBox is the server's mirror of one client cuckoo table: the row
// assignment for item v is h_k(v) mod HT_SIZE, but unlike the client's
// table, a BigBox's columns are unbounded.
type BigBox struct {
	table    int
	hasher   *cuckoo.Hasher
	shape    innerbox.Shape
	segRows  int
	segments []*Segment
	frozen   bool
}

// New allocates an empty BigBox for hash table `table`, with
// HT_SIZE/shape.SegRows() Segments (HT_SIZE is taken from hasher).
func New(table int, hasher *cuckoo.Hasher, shape innerbox.Shape) (*BigBox, error) {
	segRows := shape.SegRows()
	if segRows == 0 || hasher.TableSize()%uint64(segRows) != 0 {
		return nil, fmt.Errorf("bigbox: SEG_ROWS=%d must divide HT_SIZE=%d", segRows, hasher.TableSize())
	}
	numSegments := hasher.TableSize() / uint64(segRows)
	segments := make([]*Segment, numSegments)
	for i := range segments {
		segments[i] = newSegment(shape)
	}
	return &BigBox{table: table, hasher: hasher, shape: shape, segRows: segRows, segments: segments}, nil
}

// Insert routes (v, label) to its row via h_k, then to the owning Segment.
func (bb *BigBox) Insert(v *uint256.Int, itemChunks, labelChunks []uint64) error {
	if bb.frozen {
		return psierr.New(psierr.Internal, "bigbox.Insert", fmt.Errorf("insert into a frozen BigBox"))
	}
	row := bb.hasher.RowIndex(bb.table, v)
	seg := row / uint64(bb.segRows)
	logical := row % uint64(bb.segRows)
	return bb.segments[seg].Insert(int(logical), itemChunks, labelChunks)
}

// Freeze interpolates every InnerBox of every Segment, concurrently across
// InnerBoxes, and marks the BigBox read-only.
func (bb *BigBox) Freeze() error {
	var g errgroup.Group
	for _, s := range bb.segments {
		for _, b := range s.boxes {
			g.Go(b.Interpolate)
		}
	}
	if err := g.Wait(); err != nil {
		return err
	}
	bb.frozen = true
	return nil
}

// Segments returns the BigBox's Segments in row-major order.
func (bb *BigBox) Segments() []*Segment { return bb.segments }

// Table returns which cuckoo hash function (k) this BigBox mirrors.
func (bb *BigBox) Table() int { return bb.table }
