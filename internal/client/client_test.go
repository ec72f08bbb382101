package client

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Janmajayamall/ulpsi/internal/params"
	"github.com/Janmajayamall/ulpsi/internal/psierr"
)

// testParams builds a cuckoo-table shape small enough to exercise eviction
// and capacity failure cheaply, reusing Default()'s BFV literal since client
// construction always derives a full fhe.Parameters regardless of table
// size.
func testParams(t *testing.T, h int, htSize uint64) params.PsiParams {
	t.Helper()
	p := params.Default()
	p.H = h
	p.HTSize = htSize
	require.NoError(t, p.Randomize())
	return p
}

func distinctItems(n int) []*uint256.Int {
	items := make([]*uint256.Int, n)
	for i := range items {
		items[i] = uint256.NewInt(uint64(10_000 + i))
	}
	return items
}

func TestPlace_DeterministicAcrossCalls(t *testing.T) {
	c, err := New(testParams(t, 3, 64))
	require.NoError(t, err)

	items := distinctItems(20)
	p1, err := c.place(items)
	require.NoError(t, err)
	p2, err := c.place(items)
	require.NoError(t, err)

	for k := range p1.tables {
		for row := range p1.tables[k] {
			a, b := p1.tables[k][row], p2.tables[k][row]
			if a == nil || b == nil {
				assert.Equal(t, a, b)
				continue
			}
			assert.True(t, a.Eq(b), "table %d row %d: %s != %s", k, row, a, b)
		}
	}
}

func TestPlace_EveryItemReachableAtItsHashedRow(t *testing.T) {
	c, err := New(testParams(t, 3, 64))
	require.NoError(t, err)

	items := distinctItems(30)
	pl, err := c.place(items)
	require.NoError(t, err)

	for _, v := range items {
		found := false
		for k := 0; k < c.params.H; k++ {
			row := c.hasher.RowIndex(k, v)
			if pl.tables[k][row] != nil && pl.tables[k][row].Eq(v) {
				found = true
				break
			}
		}
		assert.True(t, found, "item %s not reachable in any table", v)
	}
}

// TestPlace_FailsWhenOverCapacity relies on the pigeonhole bound: H tables
// of HTSize rows each hold at most H*HTSize items regardless of hash
// distribution, so exceeding that count must return a CuckooFailure.
func TestPlace_FailsWhenOverCapacity(t *testing.T) {
	const h, htSize = 2, 4
	c, err := New(testParams(t, h, htSize))
	require.NoError(t, err)

	items := distinctItems(h*htSize + 1)
	_, err = c.place(items)
	require.Error(t, err)
	assert.True(t, psierr.Is(err, psierr.CuckooFailure))
}

func TestPlace_EmptySetSucceeds(t *testing.T) {
	c, err := New(testParams(t, 3, 64))
	require.NoError(t, err)

	pl, err := c.place(nil)
	require.NoError(t, err)
	for _, table := range pl.tables {
		for _, v := range table {
			assert.Nil(t, v)
		}
	}
}
