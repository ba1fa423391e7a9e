package mem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewArenaReservesZeroPage(t *testing.T) {
	a := NewArena(4)
	assert.EqualValues(t, 1<<30, a.Refcount(Zeropg), "the zero page must never reach a zero refcount")
	assert.EqualValues(t, 3, a.Avail())
}

func TestAllocExhaustion(t *testing.T) {
	a := NewArena(3)
	_, _, ok1 := a.Alloc()
	_, _, ok2 := a.Alloc()
	require.True(t, ok1)
	require.True(t, ok2)
	_, _, ok3 := a.Alloc()
	assert.False(t, ok3, "arena has only 2 free pages beyond the zero page")
}

func TestRefupRefdownFreesPage(t *testing.T) {
	a := NewArena(4)
	pa, _, ok := a.Alloc()
	require.True(t, ok)
	a.Refup(pa)
	assert.EqualValues(t, 2, a.Refcount(pa))

	a.Refdown(pa)
	assert.EqualValues(t, 1, a.Refcount(pa))
	avail := a.Avail()

	a.Refdown(pa)
	assert.EqualValues(t, 0, a.Refcount(pa))
	assert.EqualValues(t, avail+1, a.Avail(), "freeing the last reference returns the page to the budget")

	pa2, _, ok := a.Alloc()
	require.True(t, ok)
	assert.Equal(t, pa, pa2, "the freed slot should be reused")
}

func TestDmapReturnsDistinctBuffers(t *testing.T) {
	a := NewArena(4)
	pa1, pg1, _ := a.Alloc()
	pa2, pg2, _ := a.Alloc()
	pg1[0] = 7
	assert.EqualValues(t, 0, pg2[0])
	assert.Same(t, pg1, a.Dmap(pa1))
	assert.NotSame(t, a.Dmap(pa1), a.Dmap(pa2))
}
