package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Janmajayamall/ulpsi/internal/fhe"
	"github.com/Janmajayamall/ulpsi/internal/params"
	"github.com/Janmajayamall/ulpsi/internal/preprocess"
)

func testFHE(t *testing.T) (fhe.Parameters, *fhe.Encoder, *fhe.Encryptor, *fhe.Decryptor, *fhe.Evaluator) {
	t.Helper()
	p := params.Default()
	fheP, err := p.FHEParameters()
	require.NoError(t, err)

	kgen := fhe.NewKeyGenerator(fheP)
	sk := kgen.GenSecretKey()
	pk := kgen.GenPublicKey(sk)
	rlk := kgen.GenRelinearizationKey(sk)

	ecd := fhe.NewEncoder(fheP)
	enc, err := fhe.NewEncryptor(fheP, pk)
	require.NoError(t, err)
	dec := fhe.NewDecryptor(fheP, sk)
	eval := fhe.NewEvaluator(fheP, fhe.NewEvaluationKeySet(rlk))

	return fheP, ecd, enc, dec, eval
}

// encryptConst builds a CT_SLOTS-wide ciphertext with every slot set to v.
func encryptConst(t *testing.T, fheP fhe.Parameters, ecd *fhe.Encoder, enc *fhe.Encryptor, v uint64) *fhe.Ciphertext {
	t.Helper()
	values := make([]uint64, fheP.Slots())
	for i := range values {
		values[i] = v
	}
	pt := fhe.NewPlaintext(fheP)
	require.NoError(t, ecd.Encode(values, pt))
	ct, err := enc.EncryptNew(pt)
	require.NoError(t, err)
	return ct
}

func encodeConst(t *testing.T, fheP fhe.Parameters, ecd *fhe.Encoder, v uint64) *fhe.Plaintext {
	t.Helper()
	values := make([]uint64, fheP.Slots())
	for i := range values {
		values[i] = v
	}
	pt := fhe.NewPlaintext(fheP)
	require.NoError(t, ecd.Encode(values, pt))
	return pt
}

// TestEngine_SingleSegmentLinearPolynomial evaluates a single InnerBox
// holding the linear polynomial y = 3 + 2x against an encrypted x=5, and
// checks the decrypted response equals 13 in every slot.
func TestEngine_SingleSegmentLinearPolynomial(t *testing.T) {
	fheP, ecd, enc, dec, eval := testFHE(t)

	box := [][]*fhe.Plaintext{
		{encodeConst(t, fheP, ecd, 3), encodeConst(t, fheP, ecd, 2)},
	}
	layout := &preprocess.ServingLayout{
		Params: params.Default(),
		Tables: [][][][]*fhe.Plaintext{{box}},
	}

	e, err := NewEngine(layout, fheP, ecd)
	require.NoError(t, err)

	q := &Query{Tables: [][]SegmentQuery{
		{{SrcPowers: map[int]*fhe.Ciphertext{1: encryptConst(t, fheP, ecd, enc, 5)}}},
	}}

	resp, err := e.Evaluate(context.Background(), q, eval)
	require.NoError(t, err)
	require.Len(t, resp.Segments, 1)

	values := make([]uint64, fheP.Slots())
	require.NoError(t, ecd.Decode(dec.DecryptNew(resp.Segments[0]), values))
	for _, v := range values {
		assert.Equal(t, uint64(13), v)
	}
}

// TestEngine_EmptySegmentYieldsZero covers a table/segment pair with no
// InnerBoxes at all: the engine must still return a well-formed ciphertext
// decrypting to all-zero slots.
func TestEngine_EmptySegmentYieldsZero(t *testing.T) {
	fheP, ecd, enc, dec, eval := testFHE(t)

	layout := &preprocess.ServingLayout{
		Params: params.Default(),
		Tables: [][][][]*fhe.Plaintext{{{}}},
	}

	e, err := NewEngine(layout, fheP, ecd)
	require.NoError(t, err)

	q := &Query{Tables: [][]SegmentQuery{
		{{SrcPowers: map[int]*fhe.Ciphertext{1: encryptConst(t, fheP, ecd, enc, 9)}}},
	}}

	resp, err := e.Evaluate(context.Background(), q, eval)
	require.NoError(t, err)

	values := make([]uint64, fheP.Slots())
	require.NoError(t, ecd.Decode(dec.DecryptNew(resp.Segments[0]), values))
	for _, v := range values {
		assert.Equal(t, uint64(0), v)
	}
}

func TestGenPower_ExpandsHigherPowerFromBasis(t *testing.T) {
	fheP, ecd, enc, dec, eval := testFHE(t)

	basis := map[int]*fhe.Ciphertext{1: encryptConst(t, fheP, ecd, enc, 3)}
	require.NoError(t, expandPowers(eval, basis, []int{1, 2, 4}))

	ct, ok := basis[4]
	require.True(t, ok)

	values := make([]uint64, fheP.Slots())
	require.NoError(t, ecd.Decode(dec.DecryptNew(ct), values))
	assert.Equal(t, uint64(81), values[0])
}
