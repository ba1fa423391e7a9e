package fsrv

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labkernel/internal/defs"
	"labkernel/internal/fd"
	"labkernel/internal/fs"
	"labkernel/internal/ide"
	"labkernel/internal/mem"
	"labkernel/internal/proc"
	"labkernel/internal/ustr"
)

const testServerReqva = uintptr(0xc0000000)

// mkserver boots a filesystem and an IPC-addressable Server_t serving
// it, the way spec §4.5 has every file operation cross to the server
// over ipc.Send/ipc.Recv rather than by a direct Go call. It returns
// srv and a second env standing in for the client making requests;
// Loop runs in its own goroutine for the life of the test.
func mkserver(t *testing.T) (*Server_t, *proc.Env_t) {
	t.Helper()
	disk, err := ide.Open(filepath.Join(t.TempDir(), "disk.img"))
	require.NoError(t, err)
	t.Cleanup(func() { disk.Close() })

	arena := mem.NewArena(256)
	fsys, ferr := fs.Mkfs(disk, arena, 128)
	require.Equal(t, defs.Err_t(0), ferr)

	procs := proc.NewTable(4)
	sched := proc.NewSched()
	srvEnv, perr := procs.Alloc(0, 1, arena)
	require.Equal(t, defs.Err_t(0), perr)
	client, cerr := procs.Alloc(0, 1, arena)
	require.Equal(t, defs.Err_t(0), cerr)

	srv := NewServer(fsys)
	srv.Serve(srvEnv, procs, sched, testServerReqva)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go srv.Loop(ctx)

	return srv, client
}

func TestCreateWriteCloseOpenReadRoundTrips(t *testing.T) {
	srv, client := mkserver(t)

	rf, err := CreateFile(srv, client, ustr.Ustr("/greeting"), defs.FtypeRegular)
	require.Equal(t, defs.Err_t(0), err)
	fdw := &fd.Fd_t{Fops: rf, Perms: fd.FD_READ | fd.FD_WRITE}
	n, werr := fdw.Write([]byte("hello, fs"))
	require.Equal(t, defs.Err_t(0), werr)
	assert.Equal(t, 9, n)
	require.Equal(t, defs.Err_t(0), fdw.Fops.Close())
	require.Equal(t, defs.Err_t(0), srv.Sync())

	rf2, err := OpenFile(srv, client, ustr.Ustr("/greeting"))
	require.Equal(t, defs.Err_t(0), err)
	fdr := &fd.Fd_t{Fops: rf2, Perms: fd.FD_READ}
	buf := make([]byte, 32)
	n2, rerr := fdr.Read(buf)
	require.Equal(t, defs.Err_t(0), rerr)
	assert.Equal(t, "hello, fs", string(buf[:n2]))
}

func TestWriteRejectedWithoutWritePermission(t *testing.T) {
	srv, client := mkserver(t)
	rf, err := CreateFile(srv, client, ustr.Ustr("/ro"), defs.FtypeRegular)
	require.Equal(t, defs.Err_t(0), err)
	fdw := &fd.Fd_t{Fops: rf, Perms: fd.FD_READ}
	_, werr := fdw.Write([]byte("nope"))
	assert.Equal(t, defs.EINVAL, werr)
}

func TestReopenKeepsFileLiveUntilLastClose(t *testing.T) {
	srv, client := mkserver(t)
	rf, err := CreateFile(srv, client, ustr.Ustr("/shared"), defs.FtypeRegular)
	require.Equal(t, defs.Err_t(0), err)
	fd1 := &fd.Fd_t{Fops: rf, Perms: fd.FD_READ | fd.FD_WRITE}
	fd2, err := fd.Copyfd(fd1)
	require.Equal(t, defs.Err_t(0), err)

	require.Equal(t, defs.Err_t(0), fd1.Fops.Close())
	// a write through the still-open duplicate must still succeed
	_, werr := fd2.Write([]byte("x"))
	assert.Equal(t, defs.Err_t(0), werr)
	require.Equal(t, defs.Err_t(0), fd2.Fops.Close())
}

func TestFstatReportsSizeAndIsdir(t *testing.T) {
	srv, client := mkserver(t)
	rf, err := CreateFile(srv, client, ustr.Ustr("/f"), defs.FtypeRegular)
	require.Equal(t, defs.Err_t(0), err)
	fdw := &fd.Fd_t{Fops: rf, Perms: fd.FD_READ | fd.FD_WRITE}
	// 19 characters plus the C string's terminating NUL: 20 bytes.
	_, werr := fdw.Write([]byte("hello world, hello!\x00"))
	require.Equal(t, defs.Err_t(0), werr)

	st, serr := fdw.Fstat()
	require.Equal(t, defs.Err_t(0), serr)
	assert.EqualValues(t, 20, st.Size())
	assert.False(t, st.Isdir())
}

func TestRemoveThenOpenFails(t *testing.T) {
	srv, client := mkserver(t)
	_, err := CreateFile(srv, client, ustr.Ustr("/gone"), defs.FtypeRegular)
	require.Equal(t, defs.Err_t(0), err)
	require.Equal(t, defs.Err_t(0), srv.Remove(ustr.Ustr("/gone")))

	_, err = OpenFile(srv, client, ustr.Ustr("/gone"))
	assert.Equal(t, defs.ENOENT, err)
}
