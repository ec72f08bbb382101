// Package wire implements the length-prefixed binary codec for Query and
// Response messages described in spec.md §6, mirroring the framing
// params.PsiParams.MarshalBinary already uses for the parameter record.
package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"github.com/Janmajayamall/ulpsi/internal/fhe"
	"github.com/Janmajayamall/ulpsi/internal/query"
)

func writeUint64(w *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.Write(b[:])
}

func readUint64(r *bytes.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func writeBytes(w *bytes.Buffer, b []byte) {
	writeUint64(w, uint64(len(b)))
	w.Write(b)
}

func readBytes(r *bytes.Reader) ([]byte, error) {
	n, err := readUint64(r)
	if err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

func writeCiphertext(w *bytes.Buffer, ct *fhe.Ciphertext) error {
	b, err := ct.MarshalBinary()
	if err != nil {
		return fmt.Errorf("wire: marshaling ciphertext: %w", err)
	}
	writeBytes(w, b)
	return nil
}

func readCiphertext(r *bytes.Reader) (*fhe.Ciphertext, error) {
	b, err := readBytes(r)
	if err != nil {
		return nil, fmt.Errorf("wire: reading ciphertext bytes: %w", err)
	}
	ct := new(fhe.Ciphertext)
	if err := ct.UnmarshalBinary(b); err != nil {
		return nil, fmt.Errorf("wire: unmarshaling ciphertext: %w", err)
	}
	return ct, nil
}

func sortedPowers(m map[int]*fhe.Ciphertext) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

// EncodeQuery serializes a Query as [numTables][numSegments][numPowers(power,
// ciphertext)...]..., powers in ascending order for determinism.
func EncodeQuery(q *query.Query) ([]byte, error) {
	buf := new(bytes.Buffer)
	writeUint64(buf, uint64(len(q.Tables)))
	for k, segs := range q.Tables {
		writeUint64(buf, uint64(len(segs)))
		for s, sq := range segs {
			powers := sortedPowers(sq.SrcPowers)
			writeUint64(buf, uint64(len(powers)))
			for _, p := range powers {
				writeUint64(buf, uint64(p))
				if err := writeCiphertext(buf, sq.SrcPowers[p]); err != nil {
					return nil, fmt.Errorf("wire: table %d segment %d power %d: %w", k, s, p, err)
				}
			}
		}
	}
	return buf.Bytes(), nil
}

// DecodeQuery is the inverse of EncodeQuery.
func DecodeQuery(data []byte) (*query.Query, error) {
	r := bytes.NewReader(data)
	numTables, err := readUint64(r)
	if err != nil {
		return nil, fmt.Errorf("wire: reading table count: %w", err)
	}
	tables := make([][]query.SegmentQuery, numTables)
	for k := range tables {
		numSegs, err := readUint64(r)
		if err != nil {
			return nil, fmt.Errorf("wire: reading segment count: %w", err)
		}
		segs := make([]query.SegmentQuery, numSegs)
		for s := range segs {
			numPowers, err := readUint64(r)
			if err != nil {
				return nil, fmt.Errorf("wire: reading power count: %w", err)
			}
			powers := make(map[int]*fhe.Ciphertext, numPowers)
			for i := uint64(0); i < numPowers; i++ {
				p, err := readUint64(r)
				if err != nil {
					return nil, fmt.Errorf("wire: reading power exponent: %w", err)
				}
				ct, err := readCiphertext(r)
				if err != nil {
					return nil, fmt.Errorf("wire: table %d segment %d power %d: %w", k, s, p, err)
				}
				powers[int(p)] = ct
			}
			segs[s] = query.SegmentQuery{SrcPowers: powers}
		}
		tables[k] = segs
	}
	return &query.Query{Tables: tables}, nil
}

// EncodeResponse serializes a Response as [numSegments][ciphertext]....
func EncodeResponse(resp *query.Response) ([]byte, error) {
	buf := new(bytes.Buffer)
	writeUint64(buf, uint64(len(resp.Segments)))
	for s, ct := range resp.Segments {
		if err := writeCiphertext(buf, ct); err != nil {
			return nil, fmt.Errorf("wire: segment %d: %w", s, err)
		}
	}
	return buf.Bytes(), nil
}

// DecodeResponse is the inverse of EncodeResponse.
func DecodeResponse(data []byte) (*query.Response, error) {
	r := bytes.NewReader(data)
	n, err := readUint64(r)
	if err != nil {
		return nil, fmt.Errorf("wire: reading segment count: %w", err)
	}
	segs := make([]*fhe.Ciphertext, n)
	for s := range segs {
		ct, err := readCiphertext(r)
		if err != nil {
			return nil, fmt.Errorf("wire: segment %d: %w", s, err)
		}
		segs[s] = ct
	}
	return &query.Response{Segments: segs}, nil
}

// EncodeEvalKeys serializes the relinearization key and the Galois keys the
// client hands the server at connection setup, in the order gks is given.
func EncodeEvalKeys(rlk *fhe.RelinKeys, gks []*fhe.GaloisKeys) ([]byte, error) {
	buf := new(bytes.Buffer)
	rb, err := rlk.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("wire: marshaling relinearization key: %w", err)
	}
	writeBytes(buf, rb)

	writeUint64(buf, uint64(len(gks)))
	for i, gk := range gks {
		b, err := gk.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("wire: marshaling galois key %d: %w", i, err)
		}
		writeBytes(buf, b)
	}
	return buf.Bytes(), nil
}

// DecodeEvalKeys is the inverse of EncodeEvalKeys.
func DecodeEvalKeys(data []byte) (*fhe.RelinKeys, []*fhe.GaloisKeys, error) {
	r := bytes.NewReader(data)
	rb, err := readBytes(r)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: reading relinearization key bytes: %w", err)
	}
	rlk := new(fhe.RelinKeys)
	if err := rlk.UnmarshalBinary(rb); err != nil {
		return nil, nil, fmt.Errorf("wire: unmarshaling relinearization key: %w", err)
	}

	n, err := readUint64(r)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: reading galois key count: %w", err)
	}
	gks := make([]*fhe.GaloisKeys, n)
	for i := range gks {
		b, err := readBytes(r)
		if err != nil {
			return nil, nil, fmt.Errorf("wire: reading galois key %d bytes: %w", i, err)
		}
		gk := new(fhe.GaloisKeys)
		if err := gk.UnmarshalBinary(b); err != nil {
			return nil, nil, fmt.Errorf("wire: unmarshaling galois key %d: %w", i, err)
		}
		gks[i] = gk
	}
	return rlk, gks, nil
}
