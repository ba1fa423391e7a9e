// Package vm implements one process's virtual address space: a page
// table mapping virtual pages to mem.Arena_t frames, plus the
// page-fault-driven copy-on-write machinery used by fork. Grounded on
// the teacher's vm/as.go Vm_t (Pmap/Page_insert/Page_remove/Pgfault)
// generalized from a real x86_64 four-level page table to a simple
// map, since the simulator has no MMU to walk.
package vm

import (
	"sync"

	"labkernel/internal/defs"
	"labkernel/internal/mem"
)

/// Pte_t is one virtual page's mapping: the backing frame and its
/// permission bits.
type Pte_t struct {
	Pa    mem.Pa_t
	Perm  defs.Perm_t
	Dirty bool
}

/// Vm_t is a process address space: a sparse page table plus the
/// arena its pages come from. The mutex serializes lookups against
/// concurrent Insert/Remove the way the teacher's Vm_t.Lock_pmap
/// does around Pmap access.
type Vm_t struct {
	sync.Mutex
	Mem   *mem.Arena_t
	table map[uintptr]*Pte_t
}

/// NewVm allocates an empty address space backed by arena a.
func NewVm(a *mem.Arena_t) *Vm_t {
	return &Vm_t{Mem: a, table: make(map[uintptr]*Pte_t)}
}

func pgnum(va uintptr) uintptr {
	return va &^ uintptr(defs.PGSIZE-1)
}

/// Lookup returns the PTE mapping va's page, if any.
func (as *Vm_t) Lookup(va uintptr) (Pte_t, bool) {
	as.Lock()
	defer as.Unlock()
	pte, ok := as.table[pgnum(va)]
	if !ok {
		return Pte_t{}, false
	}
	return *pte, true
}

/// Insert maps va's page to pa with the given permission bits,
/// taking a reference on pa. Any previous mapping at va is replaced
/// and its reference dropped, mirroring the teacher's
/// Vm_t._page_insert.
func (as *Vm_t) Insert(va uintptr, pa mem.Pa_t, perm defs.Perm_t) {
	as.Lock()
	defer as.Unlock()
	as.Mem.Refup(pa)
	pg := pgnum(va)
	if old, ok := as.table[pg]; ok {
		as.Mem.Refdown(old.Pa)
	}
	as.table[pg] = &Pte_t{Pa: pa, Perm: perm | defs.PTE_V}
}

/// Remove unmaps va's page, dropping its frame reference. It reports
/// whether a mapping existed.
func (as *Vm_t) Remove(va uintptr) bool {
	as.Lock()
	defer as.Unlock()
	pg := pgnum(va)
	pte, ok := as.table[pg]
	if !ok {
		return false
	}
	as.Mem.Refdown(pte.Pa)
	delete(as.table, pg)
	return true
}

/// IsDirty reports whether va's page has been written since mapping.
func (as *Vm_t) IsDirty(va uintptr) bool {
	as.Lock()
	defer as.Unlock()
	if pte, ok := as.table[pgnum(va)]; ok {
		return pte.Dirty
	}
	return false
}

/// SetDirty marks va's page dirty or clean.
func (as *Vm_t) SetDirty(va uintptr, v bool) {
	as.Lock()
	defer as.Unlock()
	if pte, ok := as.table[pgnum(va)]; ok {
		pte.Dirty = v
	}
}

/// Alloc allocates a fresh page from the arena and maps it at va with
/// perm, returning ENOMEM if the arena is exhausted. CoW is a fault-
/// handler-assigned permission, never one a caller may request directly.
func (as *Vm_t) Alloc(va uintptr, perm defs.Perm_t) defs.Err_t {
	if perm&defs.PTE_COW != 0 {
		return defs.EINVAL
	}
	pa, _, ok := as.Mem.Alloc()
	if !ok {
		return defs.ENOMEM
	}
	as.Insert(va, pa, perm)
	as.Mem.Refdown(pa) // Insert took its own reference
	return 0
}

/// Dmap returns the backing page for va's mapping ("direct map",
/// matching the teacher's Physmem.Dmap naming), or nil if unmapped.
func (as *Vm_t) Dmap(va uintptr) *mem.Page_t {
	pte, ok := as.Lookup(va)
	if !ok {
		return nil
	}
	return as.Mem.Dmap(pte.Pa)
}

/// Teardown drops every mapping in the address space, releasing all
/// frame references (the teacher's Vm_t.Uvmfree).
func (as *Vm_t) Teardown() {
	as.Lock()
	defer as.Unlock()
	for va, pte := range as.table {
		as.Mem.Refdown(pte.Pa)
		delete(as.table, va)
	}
}
