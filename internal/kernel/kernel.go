// Package kernel wires together the scheduler, environment table,
// memory arena, IPC primitives and the syscall surface a simulated
// environment sees (spec ch. 6: putchar, yield, env_destroy,
// set_pgfault_handler, mem_alloc, mem_map, mem_unmap,
// env_alloc/fork, set_env_status, set_trapframe, panic, ipc_recv,
// ipc_can_send, write_dev, read_dev; there is no getenvid method, an
// env's id is read directly from Env_t.Id). Grounded on the teacher's
// top-level wiring style (one struct holding every subsystem,
// exported verb methods) and on original_source/include/env.h /
// lib/syscall_all.c for each call's exact semantics.
package kernel

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"labkernel/internal/defs"
	"labkernel/internal/ide"
	"labkernel/internal/ipc"
	"labkernel/internal/mem"
	"labkernel/internal/proc"
	"labkernel/internal/stats"
	"labkernel/internal/vm"
)

/// Kernel_t is the simulator's single instance of kernel state: one
/// physical memory arena, one environment table, one scheduler, and
/// the MMIO devices every environment's write_dev/read_dev syscalls
/// may reach.
type Kernel_t struct {
	Mem   *mem.Arena_t
	Procs *proc.Table_t
	Sched *proc.Sched_t
	Disk  *ide.Disk_t
	log   *logrus.Entry

	console []byte
}

/// New builds a kernel with npages of physical memory, room for nenvs
/// environments, and disk backing the IDE device.
func New(npages, nenvs int, disk *ide.Disk_t) *Kernel_t {
	return &Kernel_t{
		Mem:   mem.NewArena(npages),
		Procs: proc.NewTable(nenvs),
		Sched: proc.NewSched(),
		Disk:  disk,
		log:   logrus.WithField("component", "kernel"),
	}
}

func parentID(e *proc.Env_t) proc.Tid_t {
	if e == nil {
		return 0
	}
	return e.Id
}

/// EnvAlloc creates a new, initially not-runnable environment, the
/// non-fork half of env_alloc (fork additionally copies the parent's
/// address space -- see Fork).
func (k *Kernel_t) EnvAlloc(parent *proc.Env_t, priority int) (*proc.Env_t, defs.Err_t) {
	return k.Procs.Alloc(parentID(parent), priority, k.Mem)
}

/// Fork allocates a child environment and gives it a copy-on-write
/// copy of parent's address space, grounded on
/// original_source/user/fork.c's top-level fork() driving duppage
/// over every mapped page (here: vm.Fork in one pass).
func (k *Kernel_t) Fork(parent *proc.Env_t, priority int) (*proc.Env_t, defs.Err_t) {
	child, err := k.Procs.Alloc(parent.Id, priority, k.Mem)
	if err != 0 {
		return nil, err
	}
	if err := vm.Fork(parent.Vm, child.Vm); err != 0 {
		k.Procs.Free(child.Id)
		return nil, err
	}
	child.PgfaultHandler = parent.PgfaultHandler
	child.XstackTop = parent.XstackTop
	child.Tf = parent.Tf
	child.Tf.Retval = 0 // the child sees fork() return 0
	return child, 0
}

// pageFaultSysCost is the simulated system time a trap into the page
// fault handler costs its env, credited the way a real kernel's
// accnt_sysenter/accnt_sysexit bracket the trap handler's wall-clock
// duration -- fixed rather than timed, since nothing here executes
// instructions for a duration to measure.
const pageFaultSysCost = 200

/// PageFault is the kernel's trap entry for a write fault at va in e,
/// the simulator's stand-in for a hardware trap delivering control to
/// the CoW fault path of spec §4.9 step 4 (Vm_t.Pgfault). It classifies the fault first purely to label the
/// outcome for metrics; Pgfault reclassifies internally to act on it.
func (k *Kernel_t) PageFault(e *proc.Env_t, va uintptr) defs.Err_t {
	e.Acct.Systadd(pageFaultSysCost)
	action := "panic"
	if pte, ok := e.Vm.Lookup(va); ok {
		switch vm.Classify(pte.Perm, true) {
		case vm.ActionRemapCopy:
			action = "remap_copy"
		case vm.ActionNone:
			action = "none"
		}
	}
	stats.PageFaults.WithLabelValues(action).Inc()
	return e.Vm.Pgfault(va)
}

/// EnvDestroy tears down e's address space and frees its table slot.
func (k *Kernel_t) EnvDestroy(e *proc.Env_t) {
	k.Sched.Dequeue(e)
	e.Vm.Teardown()
	e.Status = defs.EnvFree
	k.Procs.Free(e.Id)
}

/// SetEnvStatus transitions e between Runnable and NotRunnable,
/// keeping the scheduler's queues consistent.
func (k *Kernel_t) SetEnvStatus(e *proc.Env_t, status defs.EnvStatus) defs.Err_t {
	switch status {
	case defs.EnvRunnable:
		e.Status = status
		k.Sched.Enqueue(e)
	case defs.EnvNotRunnable:
		e.Status = status
		k.Sched.Dequeue(e)
	default:
		return defs.EINVAL
	}
	return 0
}

/// SetTrapframe overwrites e's saved registers, used by a debugger
/// environment or by an environment restoring a signal-like handler
/// return context.
func (k *Kernel_t) SetTrapframe(e *proc.Env_t, tf proc.Trapframe_t) defs.Err_t {
	e.Tf = tf
	return 0
}

/// SetPgfaultHandler records e's user-level page-fault entry point.
func (k *Kernel_t) SetPgfaultHandler(e *proc.Env_t, handlerVA uintptr) {
	e.PgfaultHandler = handlerVA
}

/// MemAlloc allocates and maps a fresh page at va in e's space. CoW
/// must not be passed to alloc -- it is assigned only by Fork.
func (k *Kernel_t) MemAlloc(e *proc.Env_t, va uintptr, perm defs.Perm_t) defs.Err_t {
	if va >= defs.UTOP || perm&defs.PTE_COW != 0 {
		return defs.EINVAL
	}
	return e.Vm.Alloc(va, perm)
}

/// MemMap shares the page mapped at srcva in src into dst at dstva
/// with perm, used by IPC page transfer's non-messaging counterpart
/// and by a debugger mapping a child's memory into itself.
func (k *Kernel_t) MemMap(src *proc.Env_t, srcva uintptr, dst *proc.Env_t, dstva uintptr, perm defs.Perm_t) defs.Err_t {
	if srcva >= defs.UTOP || dstva >= defs.UTOP {
		return defs.EINVAL
	}
	pte, ok := src.Vm.Lookup(srcva)
	if !ok {
		return defs.EINVAL
	}
	dst.Vm.Insert(dstva, pte.Pa, perm)
	return 0
}

/// MemUnmap removes va's mapping in e.
func (k *Kernel_t) MemUnmap(e *proc.Env_t, va uintptr) defs.Err_t {
	if va >= defs.UTOP {
		return defs.EINVAL
	}
	e.Vm.Remove(va)
	return 0
}

/// Yield reschedules, returning the next env to dispatch. On every
/// call that returns an env, that env's Accnt_t is credited with its
/// Priority as user time, the simulator's stand-in for the teacher's real
/// trap-entry/trap-exit timestamping (there is no wall clock to sample
/// around instruction execution here, since there are no instructions).
func (k *Kernel_t) Yield() *proc.Env_t {
	stats.Yields.Inc()
	e := k.Sched.Yield()
	stats.RunnableEnvs.Set(float64(k.Sched.NumRunnable()))
	if e != nil {
		e.Acct.Utadd(e.Priority)
	}
	return e
}

/// IpcRecv blocks e waiting for a message.
func (k *Kernel_t) IpcRecv(e *proc.Env_t, dstva uintptr) {
	ipc.Recv(e, k.Sched, dstva)
}

/// IpcCanSend attempts non-blocking delivery from self to dst.
func (k *Kernel_t) IpcCanSend(self, dst *proc.Env_t, value, srcva uintptr, perm defs.Perm_t) defs.Err_t {
	err := ipc.Send(self, dst, k.Sched, value, srcva, perm)
	if err == 0 {
		stats.IpcSends.Inc()
	}
	return err
}

/// Putchar appends b to the simulated console's output buffer.
func (k *Kernel_t) Putchar(b byte) {
	k.console = append(k.console, b)
	k.log.WithField("byte", b).Trace("putchar")
}

/// Console returns everything written via Putchar so far.
func (k *Kernel_t) Console() []byte { return k.console }

/// Panic logs a fatal user-environment panic and destroys e, the
/// simulator's analogue of a real kernel halting the offending
/// environment rather than the whole machine.
func (k *Kernel_t) Panic(e *proc.Env_t, msg string) {
	k.log.WithField("env", e.Id).Error(fmt.Sprintf("env panic: %s", msg))
	k.EnvDestroy(e)
}

/// WriteDev dispatches a write_dev syscall to the MMIO device owning
/// pa, currently only the IDE disk.
func (k *Kernel_t) WriteDev(pa uintptr, val uint64) defs.Err_t {
	dev, ok := defs.ClassifyMMIO(pa)
	if !ok {
		return defs.EINVAL
	}
	switch dev {
	case defs.DevIDE:
		return k.Disk.WriteReg(pa-0x13000000, val)
	default:
		return defs.EINVAL
	}
}

/// ReadDev dispatches a read_dev syscall.
func (k *Kernel_t) ReadDev(pa uintptr) (uint64, defs.Err_t) {
	dev, ok := defs.ClassifyMMIO(pa)
	if !ok {
		return 0, defs.EINVAL
	}
	switch dev {
	case defs.DevIDE:
		return k.Disk.ReadReg(pa - 0x13000000)
	default:
		return 0, defs.EINVAL
	}
}
