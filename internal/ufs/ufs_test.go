package ufs

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labkernel/internal/defs"
	"labkernel/internal/ustr"
)

func mkimage(t *testing.T) *Ufs_t {
	t.Helper()
	path := filepath.Join(t.TempDir(), "disk.img")
	u, err := Mkfs(path, 128)
	require.NoError(t, err)
	t.Cleanup(func() { u.Close() })
	return u
}

func TestMkFileThenReadRoundTrips(t *testing.T) {
	u := mkimage(t)
	data := []byte("hello, image builder")
	require.Equal(t, defs.Err_t(0), u.MkFile(ustr.Ustr("/a"), data))

	got, err := u.Read(ustr.Ustr("/a"))
	require.Equal(t, defs.Err_t(0), err)
	assert.Equal(t, data, got)
}

func TestMkFileSpanningMultipleBlocksRoundTrips(t *testing.T) {
	u := mkimage(t)
	data := make([]byte, 3*defs.PGSIZE+17)
	for i := range data {
		data[i] = byte(i)
	}
	require.Equal(t, defs.Err_t(0), u.MkFile(ustr.Ustr("/big"), data))

	got, err := u.Read(ustr.Ustr("/big"))
	require.Equal(t, defs.Err_t(0), err)
	assert.Equal(t, data, got)
}

func TestMkDirThenMkFileInside(t *testing.T) {
	u := mkimage(t)
	require.Equal(t, defs.Err_t(0), u.MkDir(ustr.Ustr("/sub")))
	require.Equal(t, defs.Err_t(0), u.MkFile(ustr.Ustr("/sub/f"), []byte("x")))

	size, ftype, err := u.Stat(ustr.Ustr("/sub/f"))
	require.Equal(t, defs.Err_t(0), err)
	assert.Equal(t, 1, size)
	assert.Equal(t, defs.FtypeRegular, ftype)
}

func TestAppendGrowsExistingFile(t *testing.T) {
	u := mkimage(t)
	require.Equal(t, defs.Err_t(0), u.MkFile(ustr.Ustr("/log"), []byte("first;")))
	require.Equal(t, defs.Err_t(0), u.Append(ustr.Ustr("/log"), []byte("second;")))

	got, err := u.Read(ustr.Ustr("/log"))
	require.Equal(t, defs.Err_t(0), err)
	assert.Equal(t, "first;second;", string(got))
}

func TestBootReopensFormattedImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	u, err := Mkfs(path, 128)
	require.NoError(t, err)
	require.Equal(t, defs.Err_t(0), u.MkFile(ustr.Ustr("/persisted"), []byte("data")))
	require.NoError(t, u.Close())

	reopened, err := Boot(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, ferr := reopened.Read(ustr.Ustr("/persisted"))
	require.Equal(t, defs.Err_t(0), ferr)
	assert.Equal(t, "data", string(got))
}

func TestBootRejectsUnformattedImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	_, err := Boot(path)
	assert.Error(t, err)
}
