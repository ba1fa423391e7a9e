// Page-fault dispatch and copy-on-write fork, grounded on
// original_source/user/fork.c's pgfault/duppage/fork. Re-architected
// per the spec's guidance: the dispatcher is a pure function of
// (perm, write?) that returns an action instead of reaching into
// global process state, which is what makes it practical to unit
// test without a running scheduler.
package vm

import (
	"labkernel/internal/defs"
)

/// FaultAction is the verdict Classify reaches for a fault.
type FaultAction int

const (
	/// ActionPanic means the access is illegal: no mapping, or a
	/// write to a page that is neither CoW nor writable.
	ActionPanic FaultAction = iota
	/// ActionNone means the access is already permitted (a read of a
	/// mapped page, or a write to a writable non-CoW page); nothing to do.
	ActionNone
	/// ActionRemapCopy means the handler must duplicate the page and
	/// remap it writable, clearing CoW.
	ActionRemapCopy
)

/// Classify is the pure dispatcher described by the spec: given a
/// page's permission bits and whether the fault was a write, decide
/// what the handler must do. It touches no process or memory state,
/// matching original_source/user/fork.c's pgfault() structure (check
/// FEC_WR, check PTE_COW, else panic) without its global exception
/// stack machinery.
func Classify(perm defs.Perm_t, write bool) FaultAction {
	if !write {
		if perm&defs.PTE_V != 0 {
			return ActionNone
		}
		return ActionPanic
	}
	if perm&defs.PTE_COW != 0 {
		return ActionRemapCopy
	}
	if perm&defs.PTE_W != 0 {
		return ActionNone
	}
	return ActionPanic
}

/// Pgfault handles a write fault at va: it duplicates the
/// copy-on-write page into a fresh frame and remaps va with the CoW
/// bit cleared, as pgfault's scratch-page dance does (map at UTEMP,
/// copy, remap, unmap UTEMP) but without needing a temporary
/// virtual address since the simulator can copy frame-to-frame
/// directly. Returns EINVAL if there is no mapping at va, ENOMEM if
/// the arena is exhausted, 0 without copying if the page is writable
/// and not CoW, and panics (mirroring the original's "panic" on an
/// unexpected fault) if the page is neither CoW nor writable.
func (as *Vm_t) Pgfault(va uintptr) defs.Err_t {
	pte, ok := as.Lookup(va)
	if !ok {
		return defs.EINVAL
	}
	switch Classify(pte.Perm, true) {
	case ActionNone:
		return 0
	case ActionPanic:
		panic("pgfault: write to non-writable, non-cow page")
	}

	old := as.Mem.Dmap(pte.Pa)
	npa, npg, ok := as.Mem.Alloc()
	if !ok {
		return defs.ENOMEM
	}
	*npg = *old
	newperm := (pte.Perm &^ defs.PTE_COW) | defs.PTE_W | defs.PTE_V
	as.Insert(va, npa, newperm)
	as.Mem.Refdown(npa) // Insert above took its own reference
	as.SetDirty(va, true)
	return 0
}

/// Fork populates child from parent's mappings, implementing the
/// spec's copy-on-write fork step: pages already marked Library (an
/// explicitly shared mapping) are
/// shared read-write in both address spaces with no CoW bit; every
/// other writable-or-already-CoW page is marked CoW in both parent
/// and child so a subsequent write duplicates it. Grounded on
/// fork.c's duppage(), which ORs PTE_COW onto the existing
/// permission bits in both mappings rather than clearing the
/// original writable bit -- the writable bit recorded in Perm is
/// metadata for Pgfault to restore after the copy, not a live
/// hardware permission; actual write enforcement always checks
/// PTE_COW first via Classify.
func Fork(parent, child *Vm_t) defs.Err_t {
	parent.Lock()
	pages := make([]uintptr, 0, len(parent.table))
	for va := range parent.table {
		pages = append(pages, va)
	}
	parent.Unlock()

	for _, va := range pages {
		pte, ok := parent.Lookup(va)
		if !ok {
			continue
		}
		switch {
		case pte.Perm&defs.PTE_LIBRARY != 0:
			child.Insert(va, pte.Pa, pte.Perm)
		case pte.Perm&(defs.PTE_W|defs.PTE_COW) != 0:
			newperm := pte.Perm | defs.PTE_COW | defs.PTE_V
			child.Insert(va, pte.Pa, newperm)
			parent.Insert(va, pte.Pa, newperm)
			parent.SetDirty(va, false)
		default:
			child.Insert(va, pte.Pa, pte.Perm)
		}
	}
	return 0
}

/// CopyPage duplicates one page va-to-va between two unrelated
/// address spaces without establishing any CoW relationship; used
/// when seeding a freshly-Alloc'd env's stack or argument pages from
/// a template image.
func CopyPage(dst, src *Vm_t, va uintptr, perm defs.Perm_t) defs.Err_t {
	spg := src.Dmap(va)
	if spg == nil {
		return defs.EINVAL
	}
	pa, dpg, ok := dst.Mem.Alloc()
	if !ok {
		return defs.ENOMEM
	}
	*dpg = *spg
	dst.Insert(va, pa, perm)
	dst.Mem.Refdown(pa)
	return 0
}
