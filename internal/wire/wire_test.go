package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Janmajayamall/ulpsi/internal/fhe"
	"github.com/Janmajayamall/ulpsi/internal/params"
	"github.com/Janmajayamall/ulpsi/internal/query"
)

func testEnv(t *testing.T) (fhe.Parameters, *fhe.Encoder, *fhe.Encryptor, *fhe.KeyGenerator, *fhe.SecretKey) {
	t.Helper()
	p := params.Default()
	fheP, err := p.FHEParameters()
	require.NoError(t, err)

	kgen := fhe.NewKeyGenerator(fheP)
	sk := kgen.GenSecretKey()
	pk := kgen.GenPublicKey(sk)

	enc, err := fhe.NewEncryptor(fheP, pk)
	require.NoError(t, err)

	return fheP, fhe.NewEncoder(fheP), enc, kgen, sk
}

func testCiphertext(t *testing.T, fheP fhe.Parameters, ecd *fhe.Encoder, enc *fhe.Encryptor, v uint64) *fhe.Ciphertext {
	t.Helper()
	values := make([]uint64, fheP.Slots())
	values[0] = v
	pt := fhe.NewPlaintext(fheP)
	require.NoError(t, ecd.Encode(values, pt))
	ct, err := enc.EncryptNew(pt)
	require.NoError(t, err)
	return ct
}

func TestQueryRoundTrip(t *testing.T) {
	fheP, ecd, enc, _, _ := testEnv(t)

	q := &query.Query{
		Tables: [][]query.SegmentQuery{
			{
				{SrcPowers: map[int]*fhe.Ciphertext{1: testCiphertext(t, fheP, ecd, enc, 5), 2: testCiphertext(t, fheP, ecd, enc, 25)}},
				{SrcPowers: map[int]*fhe.Ciphertext{1: testCiphertext(t, fheP, ecd, enc, 7)}},
			},
		},
	}

	data, err := EncodeQuery(q)
	require.NoError(t, err)

	got, err := DecodeQuery(data)
	require.NoError(t, err)

	require.Len(t, got.Tables, 1)
	require.Len(t, got.Tables[0], 2)
	assert.Len(t, got.Tables[0][0].SrcPowers, 2)
	assert.Len(t, got.Tables[0][1].SrcPowers, 1)
	assert.Contains(t, got.Tables[0][0].SrcPowers, 1)
	assert.Contains(t, got.Tables[0][0].SrcPowers, 2)
}

func TestResponseRoundTrip(t *testing.T) {
	fheP, ecd, enc, _, _ := testEnv(t)

	resp := &query.Response{Segments: []*fhe.Ciphertext{
		testCiphertext(t, fheP, ecd, enc, 1),
		testCiphertext(t, fheP, ecd, enc, 2),
		testCiphertext(t, fheP, ecd, enc, 3),
	}}

	data, err := EncodeResponse(resp)
	require.NoError(t, err)

	got, err := DecodeResponse(data)
	require.NoError(t, err)
	assert.Len(t, got.Segments, 3)
}

func TestEvalKeysRoundTrip(t *testing.T) {
	fheP, _, _, kgen, sk := testEnv(t)

	rlk := kgen.GenRelinearizationKey(sk)
	gks := kgen.GenGaloisKeys([]uint64{fheP.GaloisElement(1)}, sk)

	data, err := EncodeEvalKeys(rlk, gks)
	require.NoError(t, err)

	gotRlk, gotGks, err := DecodeEvalKeys(data)
	require.NoError(t, err)
	require.NotNil(t, gotRlk)
	assert.Len(t, gotGks, 1)
}
