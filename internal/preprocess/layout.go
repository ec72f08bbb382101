package preprocess

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/Janmajayamall/ulpsi/internal/bigbox"
	"github.com/Janmajayamall/ulpsi/internal/fhe"
	"github.com/Janmajayamall/ulpsi/internal/params"
)

// ServingLayout is the flat, row-major encoding of every InnerBox column
// across every Segment of every BigBox, ready for the Query Engine to walk
// in lock-step with a client Query (spec.md §4.4, §6). Indexing is
// [table][segment][innerBox][column].
type ServingLayout struct {
	Params params.PsiParams
	Tables [][][][]*fhe.Plaintext
}

// BuildLayout BFV-encodes every InnerBox column of boxes into a
// ServingLayout, using enc under pp's parameters.
func (pp *Preprocessor) BuildLayout(boxes []*bigbox.BigBox, enc *fhe.Encoder) (*ServingLayout, error) {
	tables := make([][][][]*fhe.Plaintext, len(boxes))
	for k, bb := range boxes {
		segs := bb.Segments()
		tSegs := make([][][]*fhe.Plaintext, len(segs))
		for si, seg := range segs {
			ibs := seg.InnerBoxes()
			tIbs := make([][]*fhe.Plaintext, len(ibs))
			for ii, ib := range ibs {
				cols := ib.Shape().Columns()
				ptCols := make([]*fhe.Plaintext, cols)
				for j := 0; j < cols; j++ {
					pt := fhe.NewPlaintext(pp.fheP)
					if err := enc.Encode(ib.Column(j), pt); err != nil {
						return nil, fmt.Errorf("preprocess: encoding table %d segment %d box %d column %d: %w", k, si, ii, j, err)
					}
					ptCols[j] = pt
				}
				tIbs[ii] = ptCols
			}
			tSegs[si] = tIbs
		}
		tables[k] = tSegs
	}
	return &ServingLayout{Params: pp.params, Tables: tables}, nil
}

// NumInnerBoxes returns, for each (table, segment), how many InnerBoxes the
// Query Engine must evaluate against.
func (l *ServingLayout) NumInnerBoxes(table, segment int) int {
	return len(l.Tables[table][segment])
}

// Save persists params.bin and serving_layout.bin under dir (spec.md §6),
// creating dir if necessary.
func (l *ServingLayout) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("preprocess: creating %s: %w", dir, err)
	}

	paramsBytes, err := l.Params.MarshalBinary()
	if err != nil {
		return fmt.Errorf("preprocess: marshaling params: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "params.bin"), paramsBytes, 0o644); err != nil {
		return fmt.Errorf("preprocess: writing params.bin: %w", err)
	}

	buf := new(bytes.Buffer)
	writeUint64(buf, uint64(len(l.Tables)))
	for _, segs := range l.Tables {
		writeUint64(buf, uint64(len(segs)))
		for _, boxes := range segs {
			writeUint64(buf, uint64(len(boxes)))
			for _, cols := range boxes {
				writeUint64(buf, uint64(len(cols)))
				for _, pt := range cols {
					b, err := pt.MarshalBinary()
					if err != nil {
						return fmt.Errorf("preprocess: marshaling plaintext: %w", err)
					}
					writeUint64(buf, uint64(len(b)))
					buf.Write(b)
				}
			}
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "serving_layout.bin"), buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("preprocess: writing serving_layout.bin: %w", err)
	}
	return nil
}

// LoadServingLayout reads back what Save wrote, deriving the BFV parameters
// needed to allocate each *fhe.Plaintext from the recovered PsiParams.
func LoadServingLayout(dir string) (*ServingLayout, error) {
	paramsBytes, err := os.ReadFile(filepath.Join(dir, "params.bin"))
	if err != nil {
		return nil, fmt.Errorf("preprocess: reading params.bin: %w", err)
	}
	var p params.PsiParams
	if err := p.UnmarshalBinary(paramsBytes); err != nil {
		return nil, fmt.Errorf("preprocess: unmarshaling params.bin: %w", err)
	}
	fheP, err := p.FHEParameters()
	if err != nil {
		return nil, fmt.Errorf("preprocess: deriving fhe parameters: %w", err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "serving_layout.bin"))
	if err != nil {
		return nil, fmt.Errorf("preprocess: reading serving_layout.bin: %w", err)
	}
	r := bytes.NewReader(raw)

	numTables, err := readUint64(r)
	if err != nil {
		return nil, fmt.Errorf("preprocess: reading table count: %w", err)
	}
	tables := make([][][][]*fhe.Plaintext, numTables)
	for k := range tables {
		numSegs, err := readUint64(r)
		if err != nil {
			return nil, fmt.Errorf("preprocess: reading segment count: %w", err)
		}
		segs := make([][][]*fhe.Plaintext, numSegs)
		for si := range segs {
			numBoxes, err := readUint64(r)
			if err != nil {
				return nil, fmt.Errorf("preprocess: reading box count: %w", err)
			}
			boxes := make([][]*fhe.Plaintext, numBoxes)
			for ii := range boxes {
				numCols, err := readUint64(r)
				if err != nil {
					return nil, fmt.Errorf("preprocess: reading column count: %w", err)
				}
				cols := make([]*fhe.Plaintext, numCols)
				for j := range cols {
					n, err := readUint64(r)
					if err != nil {
						return nil, fmt.Errorf("preprocess: reading plaintext length: %w", err)
					}
					b := make([]byte, n)
					if _, err := io.ReadFull(r, b); err != nil {
						return nil, fmt.Errorf("preprocess: reading plaintext bytes: %w", err)
					}
					pt := fhe.NewPlaintext(fheP)
					if err := pt.UnmarshalBinary(b); err != nil {
						return nil, fmt.Errorf("preprocess: unmarshaling plaintext: %w", err)
					}
					cols[j] = pt
				}
				boxes[ii] = cols
			}
			segs[si] = boxes
		}
		tables[k] = segs
	}

	return &ServingLayout{Params: p, Tables: tables}, nil
}

func writeUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func readUint64(r *bytes.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}
