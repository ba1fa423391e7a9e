package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labkernel/internal/defs"
	"labkernel/internal/mem"
)

func TestClassifyDispatch(t *testing.T) {
	assert.Equal(t, ActionNone, Classify(defs.PTE_V, false))
	assert.Equal(t, ActionPanic, Classify(0, false), "read to unmapped page is illegal")
	assert.Equal(t, ActionRemapCopy, Classify(defs.PTE_V|defs.PTE_COW, true))
	assert.Equal(t, ActionNone, Classify(defs.PTE_V|defs.PTE_W, true))
	assert.Equal(t, ActionPanic, Classify(defs.PTE_V, true), "write to a page without W or COW is illegal")
}

func TestInsertTakesReference(t *testing.T) {
	a := mem.NewArena(4)
	as := NewVm(a)
	pa, _, ok := a.Alloc()
	require.True(t, ok)

	as.Insert(0x1000, pa, defs.PTE_W)
	a.Refdown(pa) // drop Alloc's own ref, keep the one Insert takes
	assert.EqualValues(t, 1, a.Refcount(pa))
	pte, ok := as.Lookup(0x1000)
	require.True(t, ok)
	assert.Equal(t, pa, pte.Pa)
	assert.True(t, pte.Perm&defs.PTE_V != 0)

	as.Remove(0x1000)
	assert.EqualValues(t, 0, a.Refcount(pa))
}

// scenario: two processes share a writable page through fork; a write
// in the child must not become visible to the parent (spec 8 scenario 4).
func TestForkCowDivergentWrites(t *testing.T) {
	a := mem.NewArena(8)
	parent := NewVm(a)
	child := NewVm(a)

	const va = uintptr(0x2000)
	require.Equal(t, defs.Err_t(0), parent.Alloc(va, defs.PTE_W))
	pg := parent.Dmap(va)
	pg[0] = 'P'

	require.Equal(t, defs.Err_t(0), Fork(parent, child))

	ppte, _ := parent.Lookup(va)
	cpte, _ := child.Lookup(va)
	assert.True(t, ppte.Perm&defs.PTE_COW != 0, "parent's mapping becomes CoW after fork")
	assert.True(t, cpte.Perm&defs.PTE_COW != 0, "child's mapping is CoW after fork")
	assert.Equal(t, ppte.Pa, cpte.Pa, "both share the same frame until a write")

	require.Equal(t, defs.Err_t(0), child.Pgfault(va))
	child.Dmap(va)[0] = 'C'

	assert.Equal(t, uint8('P'), parent.Dmap(va)[0], "parent's page must be untouched by the child's write")
	assert.Equal(t, uint8('C'), child.Dmap(va)[0])

	cpte2, _ := child.Lookup(va)
	assert.False(t, cpte2.Perm&defs.PTE_COW != 0, "child's page is no longer CoW after the fault resolves")
}

func TestForkSharesLibraryPagesWithoutCow(t *testing.T) {
	a := mem.NewArena(8)
	parent := NewVm(a)
	child := NewVm(a)
	const va = uintptr(0x3000)
	require.Equal(t, defs.Err_t(0), parent.Alloc(va, defs.PTE_W|defs.PTE_LIBRARY))

	require.Equal(t, defs.Err_t(0), Fork(parent, child))

	ppte, _ := parent.Lookup(va)
	cpte, _ := child.Lookup(va)
	assert.False(t, ppte.Perm&defs.PTE_COW != 0)
	assert.Equal(t, ppte.Pa, cpte.Pa)

	child.Dmap(va)[0] = 'X'
	assert.Equal(t, uint8('X'), parent.Dmap(va)[0], "library pages stay shared after fork, not copy-on-write")
}

func TestPgfaultOnUnmappedPageIsInvalid(t *testing.T) {
	a := mem.NewArena(4)
	as := NewVm(a)
	assert.Equal(t, defs.EINVAL, as.Pgfault(0x9000))
}

func TestAllocRejectsCowPermission(t *testing.T) {
	a := mem.NewArena(4)
	as := NewVm(a)
	assert.Equal(t, defs.EINVAL, as.Alloc(0x4000, defs.PTE_W|defs.PTE_COW))
}

func TestUserbufRoundTrip(t *testing.T) {
	a := mem.NewArena(4)
	as := NewVm(a)
	require.Equal(t, defs.Err_t(0), as.Alloc(0x4000, defs.PTE_W))

	ub := MkUserbuf(as, 0x4000, 5)
	n, err := ub.Uiowrite([]byte("hello"))
	require.Equal(t, defs.Err_t(0), err)
	assert.Equal(t, 5, n)

	ub2 := MkUserbuf(as, 0x4000, 5)
	buf := make([]byte, 5)
	n, err = ub2.Uioread(buf)
	require.Equal(t, defs.Err_t(0), err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello", string(buf))
}
