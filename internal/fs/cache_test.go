package fs

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labkernel/internal/ide"
	"labkernel/internal/mem"
)

func mkcache(t *testing.T) *Cache_t {
	t.Helper()
	disk, err := ide.Open(filepath.Join(t.TempDir(), "disk.img"))
	require.NoError(t, err)
	t.Cleanup(func() { disk.Close() })
	return NewCache(disk, mem.NewArena(32))
}

func TestCacheWriteSurvivesFlushAndReload(t *testing.T) {
	disk, err := ide.Open(filepath.Join(t.TempDir(), "disk.img"))
	require.NoError(t, err)
	defer disk.Close()
	arena := mem.NewArena(32)

	c1 := NewCache(disk, arena)
	pg := c1.Get(3)
	pg[0] = 0x42
	c1.Dirty(3)
	c1.Flush()

	c2 := NewCache(disk, arena)
	pg2 := c2.Get(3)
	assert.Equal(t, byte(0x42), pg2[0])
}

func TestCacheGetIsIdempotentWithoutReload(t *testing.T) {
	c := mkcache(t)
	pg := c.Get(1)
	pg[5] = 7
	pg2 := c.Get(1)
	assert.Equal(t, byte(7), pg2[5], "a second Get of an already-mapped block must not re-read from disk")
}
