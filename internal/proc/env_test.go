package proc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labkernel/internal/defs"
	"labkernel/internal/mem"
)

func TestTableAllocAssignsDistinctSlots(t *testing.T) {
	arena := mem.NewArena(16)
	tbl := NewTable(2)

	e1, err := tbl.Alloc(0, 3, arena)
	require.Equal(t, defs.Err_t(0), err)
	e2, err := tbl.Alloc(e1.Id, 1, arena)
	require.Equal(t, defs.Err_t(0), err)
	assert.NotEqual(t, e1.Id, e2.Id)
	assert.Equal(t, e1.Id, e2.ParentId)

	_, err = tbl.Alloc(0, 1, arena)
	assert.Equal(t, defs.ENOFREEENV, err, "table has only 2 slots")
}

func TestTableFreeRecyclesSlotWithNewGeneration(t *testing.T) {
	arena := mem.NewArena(16)
	tbl := NewTable(1)

	e1, err := tbl.Alloc(0, 1, arena)
	require.Equal(t, defs.Err_t(0), err)
	oldId := e1.Id
	tbl.Free(oldId)

	_, ok := tbl.Get(oldId)
	assert.False(t, ok, "a freed id must not resolve, even to its old slot")

	e2, err := tbl.Alloc(0, 1, arena)
	require.Equal(t, defs.Err_t(0), err)
	assert.Equal(t, oldId.Slot(), e2.Id.Slot())
	assert.NotEqual(t, oldId, e2.Id, "the generation must differ after recycling")
}
