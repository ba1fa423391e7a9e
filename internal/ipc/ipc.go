// Package ipc implements synchronous rendezvous message-passing with
// optional single-page transfer. Grounded line-for-line on
// original_source/lib/syscall_all.c's sys_ipc_recv/sys_ipc_can_send.
package ipc

import (
	"labkernel/internal/defs"
	"labkernel/internal/proc"
)

/// Recv blocks self waiting for a message, recording dstva as the
/// virtual address a transferred page should land at. It silently
/// does nothing if dstva is at or above UTOP, matching
/// sys_ipc_recv's early "if(dstva >= UTOP) return" -- the syscall has
/// no error return channel for this case in the original, so neither
/// does this one.
func Recv(self *proc.Env_t, sched *proc.Sched_t, dstva uintptr) {
	if dstva >= defs.UTOP {
		return
	}
	self.IpcRecving = true
	self.Status = defs.EnvNotRunnable
	self.IpcDstva = dstva
	sched.Dequeue(self)
}

/// Send attempts to deliver value (and, if srcva != 0, the page
/// mapped at srcva in self) to the env identified by dst. It fails
/// non-blockingly with EIPCNOTRECV if dst is not currently in
/// Recv, and with EINVAL if srcva names an address at or above UTOP
/// or if the transfer would elevate a read-only page to writable.
/// Grounded on sys_ipc_can_send, including its send-observes-recv
/// ordering: a send that races ahead of a matching recv fails rather
/// than queuing.
func Send(self, dst *proc.Env_t, sched *proc.Sched_t, value uintptr, srcva uintptr, perm defs.Perm_t) defs.Err_t {
	perm |= defs.PTE_V
	if srcva >= defs.UTOP {
		return defs.EINVAL
	}
	if !dst.IpcRecving {
		return defs.EIPCNOTRECV
	}

	if srcva != 0 {
		pte, ok := self.Vm.Lookup(srcva)
		if !ok {
			return defs.EINVAL
		}
		if pte.Perm&defs.PTE_W == 0 && perm&defs.PTE_W != 0 {
			return defs.EINVAL
		}
		dst.Vm.Insert(dst.IpcDstva, pte.Pa, perm)
	}

	dst.IpcPerm = perm
	dst.IpcRecving = false
	dst.Status = defs.EnvRunnable
	dst.IpcValue = value
	dst.IpcFrom = self.Id
	sched.Enqueue(dst)
	return 0
}
