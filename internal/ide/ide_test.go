package ide

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labkernel/internal/defs"
)

func TestWriteSectorThenReadSectorRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	d, err := Open(path)
	require.NoError(t, err)
	defer d.Close()

	src := make([]byte, defs.SectorSize)
	for i := range src {
		src[i] = byte(i)
	}
	d.WriteSector(3*defs.SectorSize, src)

	dst := make([]byte, defs.SectorSize)
	d.ReadSector(3*defs.SectorSize, dst)
	assert.Equal(t, src, dst)
}

func TestStatusRegisterReflectsLastOp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	d, err := Open(path)
	require.NoError(t, err)
	defer d.Close()

	buf := make([]byte, defs.SectorSize)
	d.WriteSector(0, buf)
	st, _ := d.ReadReg(RegStatus)
	assert.EqualValues(t, 1, st)
}
