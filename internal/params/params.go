// Package params defines PsiParams, the fully deterministic, serializable
// value both peers must agree on bit-for-bit before any query is processed
// (spec.md §4.6, §6).
package params

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/Janmajayamall/ulpsi/internal/cuckoo"
	"github.com/Janmajayamall/ulpsi/internal/fhe"
	"github.com/Janmajayamall/ulpsi/internal/innerbox"
)

// PsiParams is the static, build-time-fixed parameter set shared by client
// and server: cuckoo table shape, polynomial degree, chunking, the source
// power set the client transmits, and the underlying BFV parameters.
type PsiParams struct {
	H          int
	HTSize     uint64
	EvalDegree int
	PsiPtSlots int
	ChunkBits  uint
	SrcPowers  []int
	HashKeys   [][cuckoo.KeySize]byte
	TweakKey   [cuckoo.KeySize]byte
	FHE        fhe.ParamsLiteral
}

// Default returns the default recipe from spec.md §4.6, targeting
// HT_SIZE=4096 with H=3 cuckoo tables. Keys are left zeroed; callers
// generating a fresh server set must call Randomize (or otherwise populate
// HashKeys/TweakKey from a CSPRNG) before use.
func Default() PsiParams {
	return PsiParams{
		H:          3,
		HTSize:     4096,
		EvalDegree: 1304,
		// PsiPtSlots must divide CT_SLOTS (2^LogN = 8192 below) so every
		// InnerBox's SEG_ROWS = CT_SLOTS/PsiPtSlots is exact; 8 is the
		// smallest power of two clearing PsiPtSlots*ChunkBits >= 256 at
		// ChunkBits=32.
		PsiPtSlots: 8,
		ChunkBits:  32,
		SrcPowers:  defaultSrcPowers(1304),
		FHE: fhe.ParamsLiteral{
			LogN: 13,
			Q: []uint64{0x3fffffffef8001, 0x4000000011c001, 0x40000000120001},
			P: []uint64{0x7ffffffffb4001},
			// NTT-friendly prime > 2^32, large enough for ChunkBits=32
			// chunks and for the EVAL_DEGREE+1 filler range reserved at its
			// top (spec.md §9).
			PlaintextModulus: 0x10000000060001,
		},
	}
}

// defaultSrcPowers picks a small covering set for 1..degree: the powers of
// two up to degree, plus degree itself, which is enough for
// query.expandPowers' addition chain to reach every target power in O(log
// degree) multiplications (spec.md §9, Open Question (a)).
func defaultSrcPowers(degree int) []int {
	seen := map[int]bool{1: true}
	out := []int{1}
	for p := 2; p <= degree; p *= 2 {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	if !seen[degree] {
		out = append(out, degree)
	}
	return out
}

// TargetPowers returns the full power set 1..EVAL_DEGREE the Query Engine
// must derive from SrcPowers before evaluating any InnerBox column.
func (p PsiParams) TargetPowers() []int {
	out := make([]int, p.EvalDegree)
	for i := range out {
		out[i] = i + 1
	}
	return out
}

// Randomize draws fresh H hash keys and a tweak key from crypto/rand. Every
// fresh server-set build calls this exactly once; the resulting keys become
// part of the serialized, shared PsiParams.
func (p *PsiParams) Randomize() error {
	keys := make([][cuckoo.KeySize]byte, p.H)
	for i := range keys {
		if _, err := rand.Read(keys[i][:]); err != nil {
			return fmt.Errorf("params: generating hash key %d: %w", i, err)
		}
	}
	var tweak [cuckoo.KeySize]byte
	if _, err := rand.Read(tweak[:]); err != nil {
		return fmt.Errorf("params: generating tweak key: %w", err)
	}
	p.HashKeys = keys
	p.TweakKey = tweak
	return nil
}

// FHEParameters derives the BFV parameter set.
func (p PsiParams) FHEParameters() (fhe.Parameters, error) {
	return fhe.NewParameters(p.FHE)
}

// InnerBoxShape derives the InnerBox geometry implied by these parameters.
func (p PsiParams) InnerBoxShape(ctSlots int) innerbox.Shape {
	return innerbox.Shape{
		CTSlots:    ctSlots,
		PsiPtSlots: p.PsiPtSlots,
		EvalDegree: p.EvalDegree,
		P:          p.FHE.PlaintextModulus,
	}
}

// Validate checks the invariants spec.md §2 and §4.6 require before the
// parameters can be used to build a Hasher/Chunker/InnerBox.
func (p PsiParams) Validate() error {
	if p.H <= 0 {
		return fmt.Errorf("params: H must be positive, got %d", p.H)
	}
	if p.HTSize == 0 || p.HTSize&(p.HTSize-1) != 0 || p.HTSize < 512 {
		return fmt.Errorf("params: HT_SIZE must be a power of two >= 512, got %d", p.HTSize)
	}
	if p.EvalDegree < 1 {
		return fmt.Errorf("params: EVAL_DEGREE must be at least 1, got %d", p.EvalDegree)
	}
	if uint(p.PsiPtSlots)*p.ChunkBits < 256 {
		return fmt.Errorf("params: PSI_PT_SLOTS*CHUNK_BITS = %d < 256", uint(p.PsiPtSlots)*p.ChunkBits)
	}
	maxChunk := uint64(1) << p.ChunkBits
	if p.FHE.PlaintextModulus <= maxChunk {
		return fmt.Errorf("params: plaintext modulus P=%d must exceed 2^CHUNK_BITS=%d", p.FHE.PlaintextModulus, maxChunk)
	}
	if p.FHE.PlaintextModulus <= uint64(p.EvalDegree)+maxChunk {
		return fmt.Errorf("params: plaintext modulus too small to reserve %d filler values above the chunk range", p.EvalDegree+1)
	}
	if len(p.HashKeys) != p.H {
		return fmt.Errorf("params: need %d hash keys, have %d", p.H, len(p.HashKeys))
	}

	fheP, err := p.FHEParameters()
	if err != nil {
		return fmt.Errorf("params: deriving fhe parameters: %w", err)
	}
	ctSlots := fheP.Slots()
	if p.PsiPtSlots <= 0 || ctSlots%p.PsiPtSlots != 0 {
		return fmt.Errorf("params: CT_SLOTS=%d must be divisible by PSI_PT_SLOTS=%d", ctSlots, p.PsiPtSlots)
	}
	segRows := ctSlots / p.PsiPtSlots
	if p.HTSize%uint64(segRows) != 0 {
		return fmt.Errorf("params: HT_SIZE=%d must be divisible by SEG_ROWS=%d", p.HTSize, segRows)
	}
	return nil
}

// MarshalBinary encodes PsiParams as the length-prefixed record of
// primitive integers followed by H hash keys described in spec.md §6.
func (p PsiParams) MarshalBinary() ([]byte, error) {
	buf := new(bytes.Buffer)

	writeUint64(buf, uint64(p.H))
	writeUint64(buf, p.HTSize)
	writeUint64(buf, uint64(p.EvalDegree))
	writeUint64(buf, uint64(p.PsiPtSlots))
	writeUint64(buf, uint64(p.ChunkBits))

	writeIntSlice(buf, p.SrcPowers)

	writeUint64(buf, uint64(p.FHE.LogN))
	writeUint64Slice(buf, p.FHE.Q)
	writeUint64Slice(buf, p.FHE.P)
	writeUint64(buf, p.FHE.PlaintextModulus)

	writeUint64(buf, uint64(len(p.HashKeys)))
	for _, k := range p.HashKeys {
		buf.Write(k[:])
	}
	buf.Write(p.TweakKey[:])

	return buf.Bytes(), nil
}

// UnmarshalBinary decodes a record produced by MarshalBinary.
func (p *PsiParams) UnmarshalBinary(data []byte) error {
	r := bytes.NewReader(data)

	h, err := readUint64(r)
	if err != nil {
		return fmt.Errorf("params: reading H: %w", err)
	}
	htSize, err := readUint64(r)
	if err != nil {
		return fmt.Errorf("params: reading HT_SIZE: %w", err)
	}
	degree, err := readUint64(r)
	if err != nil {
		return fmt.Errorf("params: reading EVAL_DEGREE: %w", err)
	}
	slots, err := readUint64(r)
	if err != nil {
		return fmt.Errorf("params: reading PSI_PT_SLOTS: %w", err)
	}
	chunkBits, err := readUint64(r)
	if err != nil {
		return fmt.Errorf("params: reading CHUNK_BITS: %w", err)
	}

	srcPowers, err := readIntSlice(r)
	if err != nil {
		return fmt.Errorf("params: reading SRC_POWERS: %w", err)
	}

	logN, err := readUint64(r)
	if err != nil {
		return fmt.Errorf("params: reading LogN: %w", err)
	}
	q, err := readUint64Slice(r)
	if err != nil {
		return fmt.Errorf("params: reading Q: %w", err)
	}
	pp, err := readUint64Slice(r)
	if err != nil {
		return fmt.Errorf("params: reading P: %w", err)
	}
	t, err := readUint64(r)
	if err != nil {
		return fmt.Errorf("params: reading plaintext modulus: %w", err)
	}

	numKeys, err := readUint64(r)
	if err != nil {
		return fmt.Errorf("params: reading hash key count: %w", err)
	}
	keys := make([][cuckoo.KeySize]byte, numKeys)
	for i := range keys {
		if _, err := io.ReadFull(r, keys[i][:]); err != nil {
			return fmt.Errorf("params: reading hash key %d: %w", i, err)
		}
	}
	var tweak [cuckoo.KeySize]byte
	if _, err := io.ReadFull(r, tweak[:]); err != nil {
		return fmt.Errorf("params: reading tweak key: %w", err)
	}

	p.H = int(h)
	p.HTSize = htSize
	p.EvalDegree = int(degree)
	p.PsiPtSlots = int(slots)
	p.ChunkBits = uint(chunkBits)
	p.SrcPowers = srcPowers
	p.FHE = fhe.ParamsLiteral{LogN: int(logN), Q: q, P: pp, PlaintextModulus: t}
	p.HashKeys = keys
	p.TweakKey = tweak
	return nil
}

// Equal reports bit-for-bit equality, used by the ConfigMismatch check at
// connection setup and by the I5 round-trip property test.
func (p PsiParams) Equal(o PsiParams) bool {
	a, err1 := p.MarshalBinary()
	b, err2 := o.MarshalBinary()
	return err1 == nil && err2 == nil && bytes.Equal(a, b)
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

func writeUint64Slice(buf *bytes.Buffer, s []uint64) {
	writeUint64(buf, uint64(len(s)))
	for _, v := range s {
		writeUint64(buf, v)
	}
}

func readUint64Slice(r *bytes.Reader) ([]uint64, error) {
	n, err := readUint64(r)
	if err != nil {
		return nil, err
	}
	out := make([]uint64, n)
	for i := range out {
		if out[i], err = readUint64(r); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func writeIntSlice(buf *bytes.Buffer, s []int) {
	writeUint64(buf, uint64(len(s)))
	for _, v := range s {
		writeUint64(buf, uint64(v))
	}
}

func readIntSlice(r *bytes.Reader) ([]int, error) {
	n, err := readUint64(r)
	if err != nil {
		return nil, err
	}
	out := make([]int, n)
	for i := range out {
		v, err := readUint64(r)
		if err != nil {
			return nil, err
		}
		out[i] = int(v)
	}
	return out, nil
}
