// Package mem simulates physical memory as a fixed-size arena of
// reference-counted pages. There is no real MMU in a userspace
// simulator, so "physical address" here is just an arena index; vm
// builds virtual-to-physical mappings on top of it. Grounded on the
// teacher's mem/mem.go Physmem_t/Refup/Refdown/Dmap/Refpg_new pattern
// -- the bare-metal page-table bootstrapping in the teacher's
// mem/dmap.go (PML4 slots, CR3, 1GB page detection) has no userspace
// equivalent and is dropped; see DESIGN.md.
package mem

import (
	"sync"

	"labkernel/internal/defs"
	"labkernel/internal/limits"
)

/// Page_t is one physical page's backing storage.
type Page_t [defs.PGSIZE]byte

/// Pa_t identifies a physical page by its arena slot. Pa_t(0) always
/// names the shared, permanently-pinned zero page (mirroring the
/// teacher's mem.P_zeropg sentinel).
type Pa_t int

const Zeropg Pa_t = 0

type frame_t struct {
	data *Page_t
	ref  int32
}

/// Arena_t is the physical page allocator. One Arena_t is shared by
/// every Vm_t in a simulated kernel, exactly as biscuit's single
/// mem.Physmem is shared by every Vm_t.
type Arena_t struct {
	mu     sync.Mutex
	frames []*frame_t
	free   []Pa_t
	budget limits.Sysatomic_t
}

/// NewArena allocates an arena with room for npages physical pages
/// (including the permanent zero page at index 0).
func NewArena(npages int) *Arena_t {
	if npages < 1 {
		npages = 1
	}
	a := &Arena_t{frames: make([]*frame_t, npages)}
	zero := &frame_t{data: &Page_t{}, ref: 1 << 30} // never reaches zero
	a.frames[0] = zero
	for i := npages - 1; i >= 1; i-- {
		a.free = append(a.free, Pa_t(i))
	}
	a.budget.Given(uint(npages - 1))
	return a
}

/// Alloc returns a fresh, zeroed page with refcount 1, or false if the
/// arena is exhausted (the simulator's analogue of NoMem).
func (a *Arena_t) Alloc() (Pa_t, *Page_t, bool) {
	if !a.budget.Take() {
		return 0, nil, false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	n := len(a.free)
	pa := a.free[n-1]
	a.free = a.free[:n-1]
	f := &frame_t{data: &Page_t{}, ref: 1}
	a.frames[pa] = f
	return pa, f.data, true
}

/// Free forcibly returns pa to the free list regardless of refcount.
/// Used only when an allocation that had not yet been published to any
/// Vm_t must be undone (mirrors the teacher's "restore the bit" error
/// paths).
func (a *Arena_t) Free(pa Pa_t) {
	if pa == Zeropg {
		return
	}
	a.mu.Lock()
	a.frames[pa] = nil
	a.free = append(a.free, pa)
	a.mu.Unlock()
	a.budget.Give(1)
}

/// Refup increments pa's reference count.
func (a *Arena_t) Refup(pa Pa_t) {
	if pa == Zeropg {
		return
	}
	a.mu.Lock()
	a.frames[pa].ref++
	a.mu.Unlock()
}

/// Refdown decrements pa's reference count, freeing the page when it
/// reaches zero.
func (a *Arena_t) Refdown(pa Pa_t) {
	if pa == Zeropg {
		return
	}
	a.mu.Lock()
	f := a.frames[pa]
	f.ref--
	dead := f.ref == 0
	if dead {
		a.frames[pa] = nil
	}
	a.mu.Unlock()
	if dead {
		a.mu.Lock()
		a.free = append(a.free, pa)
		a.mu.Unlock()
		a.budget.Give(1)
	}
}

/// Dmap returns the backing storage for pa ("direct map", matching the
/// teacher's mem.Physmem.Dmap).
func (a *Arena_t) Dmap(pa Pa_t) *Page_t {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.frames[pa].data
}

/// Refcount returns pa's current reference count, for tests.
func (a *Arena_t) Refcount(pa Pa_t) int32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.frames[pa] == nil {
		return 0
	}
	return a.frames[pa].ref
}

/// Avail reports how many free pages remain.
func (a *Arena_t) Avail() int64 {
	return a.budget.Remaining()
}
