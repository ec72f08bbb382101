package params

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRoundTrip covers spec scenario 4 / invariant I5: serialize then
// deserialize yields bit-equal parameters.
func TestRoundTrip(t *testing.T) {
	p := Default()
	require.NoError(t, p.Randomize())

	data, err := p.MarshalBinary()
	require.NoError(t, err)

	var got PsiParams
	require.NoError(t, got.UnmarshalBinary(data))

	assert.True(t, p.Equal(got))
	assert.Equal(t, p.H, got.H)
	assert.Equal(t, p.HTSize, got.HTSize)
	assert.Equal(t, p.SrcPowers, got.SrcPowers)
	assert.Equal(t, p.HashKeys, got.HashKeys)
	assert.Equal(t, p.TweakKey, got.TweakKey)
	assert.Equal(t, p.FHE, got.FHE)
}

func TestValidate_DefaultIsValid(t *testing.T) {
	p := Default()
	require.NoError(t, p.Randomize())
	assert.NoError(t, p.Validate())
}

func TestValidate_RejectsTooFewHashKeys(t *testing.T) {
	p := Default()
	p.HashKeys = p.HashKeys[:0]
	assert.Error(t, p.Validate())
}

func TestValidate_RejectsUndersizedChunking(t *testing.T) {
	p := Default()
	require.NoError(t, p.Randomize())
	p.PsiPtSlots = 1
	p.ChunkBits = 8
	assert.Error(t, p.Validate())
}

func TestTargetPowers_CoversFullRange(t *testing.T) {
	p := Default()
	target := p.TargetPowers()
	require.Len(t, target, p.EvalDegree)
	assert.Equal(t, 1, target[0])
	assert.Equal(t, p.EvalDegree, target[len(target)-1])
}
