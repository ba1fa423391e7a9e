package vm

import "labkernel/internal/defs"

/// Userbuf_t streams bytes into or out of a contiguous range of one
/// address space's virtual memory, crossing page boundaries and
/// driving copy-on-write faults as needed. Grounded on the teacher's
/// vm/userbuf.go Userbuf_t, trimmed to the single-address-space case
/// since the simulator has no iovec-gather syscalls.
type Userbuf_t struct {
	as   *Vm_t
	va   uintptr
	len  int
	off  int
}

/// MkUserbuf initializes a buffer over as's memory starting at va for
/// length n bytes.
func MkUserbuf(as *Vm_t, va uintptr, n int) *Userbuf_t {
	return &Userbuf_t{as: as, va: va, len: n}
}

/// Remain reports how many bytes are left unconsumed.
func (ub *Userbuf_t) Remain() int { return ub.len - ub.off }

/// Totalsz reports the buffer's total length.
func (ub *Userbuf_t) Totalsz() int { return ub.len }

/// Uioread copies from user memory into dst, returning bytes copied.
func (ub *Userbuf_t) Uioread(dst []uint8) (int, defs.Err_t) {
	return ub.tx(dst, false)
}

/// Uiowrite copies src into user memory, driving a CoW fault on any
/// page it touches that is still marked PTE_COW.
func (ub *Userbuf_t) Uiowrite(src []uint8) (int, defs.Err_t) {
	return ub.tx(src, true)
}

func (ub *Userbuf_t) tx(buf []uint8, write bool) (int, defs.Err_t) {
	did := 0
	for len(buf) > 0 && ub.off < ub.len {
		va := ub.va + uintptr(ub.off)
		pte, ok := ub.as.Lookup(va)
		if !ok {
			return did, defs.EINVAL
		}
		if write {
			if act := Classify(pte.Perm, true); act == ActionRemapCopy {
				if err := ub.as.Pgfault(va); err != 0 {
					return did, err
				}
				pte, _ = ub.as.Lookup(va)
			} else if act == ActionPanic {
				return did, defs.EINVAL
			}
		}
		page := ub.as.Mem.Dmap(pte.Pa)
		voff := int(va) % defs.PGSIZE
		chunk := page[voff:]
		n := len(chunk)
		if n > ub.len-ub.off {
			n = ub.len - ub.off
		}
		if n > len(buf) {
			n = len(buf)
		}
		if write {
			copy(chunk[:n], buf[:n])
			ub.as.SetDirty(va, true)
		} else {
			copy(buf[:n], chunk[:n])
		}
		buf = buf[n:]
		ub.off += n
		did += n
	}
	return did, 0
}
