package ipc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labkernel/internal/defs"
	"labkernel/internal/mem"
	"labkernel/internal/proc"
)

func mkEnv(arena *mem.Arena_t) *proc.Env_t {
	tbl := proc.NewTable(1)
	e, err := tbl.Alloc(0, 1, arena)
	if err != 0 {
		panic(err)
	}
	return e
}

func TestSendBeforeRecvFailsNonBlocking(t *testing.T) {
	arena := mem.NewArena(8)
	sched := proc.NewSched()
	a := mkEnv(arena)
	b := mkEnv(arena)

	err := Send(a, b, sched, 42, 0, 0)
	assert.Equal(t, defs.EIPCNOTRECV, err, "a send that races ahead of recv must fail, not queue")
}

func TestRecvThenSendDeliversValueAndPage(t *testing.T) {
	arena := mem.NewArena(8)
	sched := proc.NewSched()
	a := mkEnv(arena)
	b := mkEnv(arena)

	const srcva = uintptr(0x5000)
	const dstva = uintptr(0x6000)
	require.Equal(t, defs.Err_t(0), a.Vm.Alloc(srcva, defs.PTE_W))
	a.Vm.Dmap(srcva)[0] = 'Z'
	b.IpcDstva = dstva

	Recv(b, sched, dstva)
	assert.True(t, b.IpcRecving)
	assert.Equal(t, defs.EnvNotRunnable, b.Status)

	err := Send(a, b, sched, 99, srcva, defs.PTE_W)
	require.Equal(t, defs.Err_t(0), err)
	assert.False(t, b.IpcRecving)
	assert.Equal(t, defs.EnvRunnable, b.Status)
	assert.EqualValues(t, 99, b.IpcValue)
	assert.Equal(t, a.Id, b.IpcFrom)

	bpg := b.Vm.Dmap(dstva)
	require.NotNil(t, bpg)
	assert.Equal(t, uint8('Z'), bpg[0], "the sender's page must be visible at the receiver's destination VA")
}

func TestSendRejectsElevatingReadOnlyToWritable(t *testing.T) {
	arena := mem.NewArena(8)
	sched := proc.NewSched()
	a := mkEnv(arena)
	b := mkEnv(arena)

	const srcva = uintptr(0x5000)
	require.Equal(t, defs.Err_t(0), a.Vm.Alloc(srcva, 0))
	Recv(b, sched, 0x6000)

	err := Send(a, b, sched, 1, srcva, defs.PTE_W)
	assert.Equal(t, defs.EINVAL, err)
}

func TestRecvRejectsDstvaAtOrAboveUtop(t *testing.T) {
	arena := mem.NewArena(8)
	sched := proc.NewSched()
	b := mkEnv(arena)
	b.Status = defs.EnvRunnable

	Recv(b, sched, defs.UTOP)
	assert.False(t, b.IpcRecving, "recv with an out-of-range dstva must be a no-op")
	assert.Equal(t, defs.EnvRunnable, b.Status)
}
