// Package proc holds environment (process) lifecycle and the
// two-queue priority-quantum round-robin scheduler. The retrieval
// pack's snapshot of the teacher's proc/ package carries only its
// go.mod with no source, so Env_t and Table_t are written fresh,
// grounded on original_source/include/env.h's field list and on the
// style of sibling teacher packages (accnt/accnt.go, fs/super.go):
// `_t`-suffixed structs, exported fields, small single-purpose
// accessor methods.
package proc

import (
	"sync"

	"labkernel/internal/accnt"
	"labkernel/internal/defs"
	"labkernel/internal/mem"
	"labkernel/internal/vm"
)

/// Tid_t is an environment's stable identifier: low bits are the
/// slot index in Table_t, high bits are a generation counter that
/// increments every time the slot is recycled, matching env.h's
/// ENVX/GET_ENV_ASID split.
type Tid_t uint64

const slotBits = 16
const slotMask = (1 << slotBits) - 1

func mkTid(slot int, gen uint64) Tid_t {
	return Tid_t(gen<<slotBits | uint64(slot&slotMask))
}

/// Slot extracts the table index embedded in a Tid_t.
func (t Tid_t) Slot() int { return int(t & slotMask) }

/// Trapframe_t is the saved register set restored on dispatch. Only
/// the fields the simulator's dispatch loop actually touches are
/// modeled; a real trap frame also carries segment and flag
/// registers the simulator never interprets.
type Trapframe_t struct {
	PC     uintptr
	Retval uintptr
}

/// Env_t is one environment (process). Field-for-field grounded on
/// original_source/include/env.h's struct Env.
type Env_t struct {
	Id       Tid_t
	ParentId Tid_t
	Status   defs.EnvStatus
	Tf       Trapframe_t
	Vm       *vm.Vm_t
	Priority int

	/// IPC fields, mirroring env_ipc_value/env_ipc_from/
	/// env_ipc_recving/env_ipc_dstva/env_ipc_perm.
	IpcRecving bool
	IpcFrom    Tid_t
	IpcValue   uintptr
	IpcDstva   uintptr
	IpcPerm    defs.Perm_t

	/// Page-fault handler entry and exception-stack top
	/// (env_pgfault_handler / env_xstacktop).
	PgfaultHandler uintptr
	XstackTop      uintptr

	/// Run count (env_runs).
	Runs int

	Acct accnt.Accnt_t

	/// enqueued records whether a scheduler queue currently holds
	/// this env -- the data-model invariant that an env is on
	/// exactly one queue iff Runnable and has been enqueued.
	enqueued bool
}

/// Table_t is the fixed-size arena of environments, analogous to the
/// teacher's global `envs` array plus a free-slot allocator.
type Table_t struct {
	mu    sync.Mutex
	slots []*Env_t
	gens  []uint64
	free  []int
}

/// NewTable allocates a table with room for n environments.
func NewTable(n int) *Table_t {
	t := &Table_t{
		slots: make([]*Env_t, n),
		gens:  make([]uint64, n),
	}
	for i := n - 1; i >= 0; i-- {
		t.free = append(t.free, i)
	}
	return t
}

/// Alloc reserves a free slot, builds a new Env_t with the given
/// parent and priority backed by a fresh address space over arena,
/// and returns it. It reports ENOFREEENV if the table is exhausted
/// (env.h's env_alloc failing with -E_NO_FREE_ENV).
func (t *Table_t) Alloc(parent Tid_t, priority int, arena *mem.Arena_t) (*Env_t, defs.Err_t) {
	t.mu.Lock()
	if len(t.free) == 0 {
		t.mu.Unlock()
		return nil, defs.ENOFREEENV
	}
	n := len(t.free)
	slot := t.free[n-1]
	t.free = t.free[:n-1]
	gen := t.gens[slot]
	t.mu.Unlock()

	e := &Env_t{
		Id:       mkTid(slot, gen),
		ParentId: parent,
		Status:   defs.EnvNotRunnable,
		Priority: priority,
		Vm:       vm.NewVm(arena),
	}
	t.mu.Lock()
	t.slots[slot] = e
	t.mu.Unlock()
	return e, 0
}

/// Get resolves a Tid_t to its Env_t, verifying the embedded
/// generation so a stale id (referring to a slot that has since been
/// recycled) is rejected -- the data-model invariant that identifiers
/// are never reused within a tag without incrementing the
/// generation.
func (t *Table_t) Get(id Tid_t) (*Env_t, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	slot := id.Slot()
	if slot < 0 || slot >= len(t.slots) {
		return nil, false
	}
	e := t.slots[slot]
	if e == nil || e.Id != id {
		return nil, false
	}
	return e, true
}

/// Free returns e's slot to the free list and bumps its generation,
/// invalidating any outstanding Tid_t referring to it.
func (t *Table_t) Free(id Tid_t) {
	t.mu.Lock()
	defer t.mu.Unlock()
	slot := id.Slot()
	if slot < 0 || slot >= len(t.slots) {
		return
	}
	if e := t.slots[slot]; e != nil && e.Id == id {
		t.slots[slot] = nil
		t.gens[slot]++
		t.free = append(t.free, slot)
	}
}
