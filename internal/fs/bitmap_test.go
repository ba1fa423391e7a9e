package fs

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labkernel/internal/defs"
	"labkernel/internal/ide"
	"labkernel/internal/mem"
)

func mkbitmap(t *testing.T, nblocks int) *Bitmap_t {
	t.Helper()
	disk, err := ide.Open(filepath.Join(t.TempDir(), "disk.img"))
	require.NoError(t, err)
	t.Cleanup(func() { disk.Close() })
	cache := NewCache(disk, mem.NewArena(32))
	bm := NewBitmap(cache, 0, nblocks)
	for b := 0; b < nblocks; b++ {
		bm.setBit(b, true)
	}
	return bm
}

func TestAllocReturnsLowestFreeBlock(t *testing.T) {
	bm := mkbitmap(t, 16)
	bm.MarkUsed(0)
	bm.MarkUsed(1)

	b, err := bm.Alloc()
	require.Equal(t, defs.Err_t(0), err)
	assert.Equal(t, 2, b)
}

func TestFreeRestoresBitForReallocation(t *testing.T) {
	bm := mkbitmap(t, 4)
	b, _ := bm.Alloc()
	bm.Free(b)
	assert.True(t, bm.IsFree(b))

	b2, err := bm.Alloc()
	require.Equal(t, defs.Err_t(0), err)
	assert.Equal(t, b, b2)
}

func TestAllocExhaustionReturnsENODISK(t *testing.T) {
	bm := mkbitmap(t, 2)
	_, err := bm.Alloc()
	require.Equal(t, defs.Err_t(0), err)
	_, err = bm.Alloc()
	require.Equal(t, defs.Err_t(0), err)
	_, err = bm.Alloc()
	assert.Equal(t, defs.ENODISK, err)
}
