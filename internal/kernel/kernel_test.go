package kernel

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labkernel/internal/defs"
	"labkernel/internal/ide"
)

func mkkernel(t *testing.T) *Kernel_t {
	t.Helper()
	disk, err := ide.Open(filepath.Join(t.TempDir(), "disk.img"))
	require.NoError(t, err)
	t.Cleanup(func() { disk.Close() })
	return New(64, 8, disk)
}

func TestForkGivesChildDistinctWritablePage(t *testing.T) {
	k := mkkernel(t)
	parent, err := k.EnvAlloc(nil, 1)
	require.Equal(t, defs.Err_t(0), err)
	const va = uintptr(0x4000)
	require.Equal(t, defs.Err_t(0), k.MemAlloc(parent, va, defs.PTE_W))
	parent.Vm.Dmap(va)[0] = 1

	child, err := k.Fork(parent, 1)
	require.Equal(t, defs.Err_t(0), err)
	assert.Equal(t, parent.Id, child.ParentId)
	assert.EqualValues(t, 0, child.Tf.Retval)

	// A raw write to the shared frame would corrupt both sides; a real
	// write must first fault through Pgfault to get a private copy.
	require.Equal(t, defs.Err_t(0), parent.Vm.Pgfault(va))
	parent.Vm.Dmap(va)[0] = 9
	assert.Equal(t, uint8(1), child.Vm.Dmap(va)[0], "a parent's post-fault write must not leak into the child")
}

func TestPageFaultDuplicatesCowPage(t *testing.T) {
	k := mkkernel(t)
	parent, err := k.EnvAlloc(nil, 1)
	require.Equal(t, defs.Err_t(0), err)
	const va = uintptr(0x4000)
	require.Equal(t, defs.Err_t(0), k.MemAlloc(parent, va, defs.PTE_W))
	parent.Vm.Dmap(va)[0] = 1

	child, err := k.Fork(parent, 1)
	require.Equal(t, defs.Err_t(0), err)

	require.Equal(t, defs.Err_t(0), k.PageFault(parent, va))
	parent.Vm.Dmap(va)[0] = 9
	assert.Equal(t, uint8(1), child.Vm.Dmap(va)[0])
}

func TestPageFaultOnNonCowWritablePageIsANoop(t *testing.T) {
	k := mkkernel(t)
	e, err := k.EnvAlloc(nil, 1)
	require.Equal(t, defs.Err_t(0), err)
	const va = uintptr(0x4000)
	require.Equal(t, defs.Err_t(0), k.MemAlloc(e, va, defs.PTE_W))
	assert.Equal(t, defs.Err_t(0), k.PageFault(e, va))
}

func TestPageFaultCreditsSystemTime(t *testing.T) {
	k := mkkernel(t)
	e, err := k.EnvAlloc(nil, 1)
	require.Equal(t, defs.Err_t(0), err)
	const va = uintptr(0x4000)
	require.Equal(t, defs.Err_t(0), k.MemAlloc(e, va, defs.PTE_W))

	require.Equal(t, defs.Err_t(0), k.PageFault(e, va))
	require.Equal(t, defs.Err_t(0), k.PageFault(e, va))
	assert.EqualValues(t, 2*pageFaultSysCost, e.Acct.Sysns)
}

func TestMemAllocRejectsCowPermission(t *testing.T) {
	k := mkkernel(t)
	e, err := k.EnvAlloc(nil, 1)
	require.Equal(t, defs.Err_t(0), err)
	assert.Equal(t, defs.EINVAL, k.MemAlloc(e, 0x4000, defs.PTE_W|defs.PTE_COW))
}

func TestSetEnvStatusDrivesSchedulerQueues(t *testing.T) {
	k := mkkernel(t)
	a, err := k.EnvAlloc(nil, 2)
	require.Equal(t, defs.Err_t(0), err)
	b, err := k.EnvAlloc(nil, 2)
	require.Equal(t, defs.Err_t(0), err)

	require.Equal(t, defs.Err_t(0), k.SetEnvStatus(a, defs.EnvRunnable))
	require.Equal(t, defs.Err_t(0), k.SetEnvStatus(b, defs.EnvRunnable))
	assert.Equal(t, a, k.Yield())

	require.Equal(t, defs.Err_t(0), k.SetEnvStatus(a, defs.EnvNotRunnable))
	assert.Equal(t, b, k.Yield(), "dequeuing the current env mid-quantum must force a reschedule onto the other runnable env")
}

func TestYieldCreditsDispatchedEnvsAccounting(t *testing.T) {
	k := mkkernel(t)
	e, err := k.EnvAlloc(nil, 3)
	require.Equal(t, defs.Err_t(0), err)
	require.Equal(t, defs.Err_t(0), k.SetEnvStatus(e, defs.EnvRunnable))

	require.Equal(t, e, k.Yield())
	assert.EqualValues(t, 3, e.Acct.Userns)
}

func TestEnvDestroyInvalidatesId(t *testing.T) {
	k := mkkernel(t)
	e, err := k.EnvAlloc(nil, 1)
	require.Equal(t, defs.Err_t(0), err)
	id := e.Id
	k.EnvDestroy(e)

	_, ok := k.Procs.Get(id)
	assert.False(t, ok)
}

func TestWriteDevReadDevRoundTripThroughIde(t *testing.T) {
	k := mkkernel(t)
	const ideBase = 0x13000000
	require.Equal(t, defs.Err_t(0), k.WriteDev(ideBase+ide.RegDisk, 0))
	require.Equal(t, defs.Err_t(0), k.WriteDev(ideBase+ide.RegOffset, 0))
	require.Equal(t, defs.Err_t(0), k.WriteDev(ideBase+ide.RegOp, ide.OpWrite))

	st, err := k.ReadDev(ideBase + ide.RegStatus)
	require.Equal(t, defs.Err_t(0), err)
	assert.EqualValues(t, 1, st)
}

func TestReadDevOutsideAnyMmioRangeFails(t *testing.T) {
	k := mkkernel(t)
	_, err := k.ReadDev(0xdeadbeef)
	assert.Equal(t, defs.EINVAL, err)
}
