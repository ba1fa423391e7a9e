// Package defs holds the error codes, virtual-memory layout, and MMIO
// constants shared by every other kernel package.
package defs

import "fmt"

/// Err_t is a kernel error code. Negative values denote failure; the
/// zero value and positive values denote success (some syscalls return
/// a positive value, e.g. a new envid).
type Err_t int

/// Error codes, matching the external syscall surface (spec ch. 6).
const (
	ENODISK     Err_t = -1 /// bitmap exhausted
	ENOMEM      Err_t = -2 /// physical page arena exhausted
	ENOENT      Err_t = -3 /// path component not found
	EBADPATH    Err_t = -4 /// path component too long
	EEXIST      Err_t = -5 /// file already exists
	EINVAL      Err_t = -6 /// invalid argument
	EBADENV     Err_t = -7 /// envid does not name a live environment
	EIPCNOTRECV Err_t = -8 /// ipc_send target is not receiving
	ENOFREEENV  Err_t = -9 /// environment table exhausted
	EUNSPEC     Err_t = -10
)

var names = map[Err_t]string{
	ENODISK:     "no disk space",
	ENOMEM:      "no memory",
	ENOENT:      "not found",
	EBADPATH:    "bad path",
	EEXIST:      "file exists",
	EINVAL:      "invalid argument",
	EBADENV:     "bad environment",
	EIPCNOTRECV: "ipc target not receiving",
	ENOFREEENV:  "no free environment",
	EUNSPEC:     "unspecified error",
}

/// Error implements the error interface so Err_t can be returned as a
/// plain Go error at package boundaries that need one (e.g. cmd/ CLIs).
func (e Err_t) Error() string {
	n := e
	if n > 0 {
		n = -n
	}
	if s, ok := names[n]; ok {
		return s
	}
	return fmt.Sprintf("err_t(%d)", int(e))
}

/// Virtual address layout. A real kernel maps these at fixed addresses
/// via the MMU; the simulator's vm package treats them as plain keys
/// into a per-process map, but keeps the same numeric layout so that
/// address arithmetic in fs/vm matches the spec exactly.
const (
	PGSHIFT = 12
	PGSIZE  = 1 << PGSHIFT // 4096

	// UTOP bounds every virtual address a syscall may accept (spec ch. 6).
	UTOP       = 0xeebfe000
	USTACKTOP  = UTOP
	UXSTACKTOP = UTOP + PGSIZE // one page exception stack, just below UTOP+2*PGSIZE
	UTEMP      = UTOP + 2*PGSIZE // scratch VA reserved for CoW duplication; Vm_t.Pgfault copies frame-to-frame and never maps it

	// DISKMAP...DISKMAP+DISKMAX is the FS server's block-cache window (spec 4.2).
	DISKMAP = 0x10000000
	DISKMAX = 0x10000000 // 64K blocks addressable
)

/// Perm_t is the permission/flag set carried on a page mapping (spec
/// ch. 3 and 4.9): Valid, Readable... Writable, CoW, Library-shared.
type Perm_t uint

const (
	PTE_V       Perm_t = 1 << iota /// mapping is present
	PTE_W                          /// writable
	PTE_COW                        /// copy-on-write; must be privately copied before write
	PTE_LIBRARY                    /// explicitly shared writable, never CoW
)

/// Env status (spec ch. 3).
type EnvStatus int

const (
	EnvFree EnvStatus = iota
	EnvRunnable
	EnvNotRunnable
)

func (s EnvStatus) String() string {
	switch s {
	case EnvFree:
		return "free"
	case EnvRunnable:
		return "runnable"
	case EnvNotRunnable:
		return "not-runnable"
	default:
		return "invalid"
	}
}

/// MMIO region identifiers and bounds (spec ch. 6).
type Dev int

const (
	DevNone Dev = iota
	DevConsole
	DevIDE
	DevRTC
)

type mmioRange struct {
	lo, hi uintptr
	dev    Dev
}

var mmioRanges = []mmioRange{
	{0x10000000, 0x10000020, DevConsole},
	{0x13000000, 0x13004200, DevIDE},
	{0x15000000, 0x15000200, DevRTC},
}

/// ClassifyMMIO maps a physical MMIO address to the device that owns
/// it, returning DevNone (and false) for any address outside the three
/// windows named in spec ch. 6.
func ClassifyMMIO(pa uintptr) (Dev, bool) {
	for _, r := range mmioRanges {
		if pa >= r.lo && pa < r.hi {
			return r.dev, true
		}
	}
	return DevNone, false
}

/// On-disk / file-record layout constants (spec ch. 3).
const (
	MAXNAMELEN = 128
	NDIRECT    = 10
	// one indirect block holds BSIZE/4 32-bit block numbers.
	NINDIRECT    = 4096 / 4
	MAXBLOCKS    = NDIRECT + NINDIRECT
	FileRecSize  = 256
	SuperblkMagic = 0x68286097
	SectorSize   = 512
	// BIT2BLK: one bitmap block covers this many data blocks (spec ch. 3).
	BIT2BLK = 32 * (4096 / 4)
)

/// File type (spec ch. 3).
type Ftype int

const (
	FtypeRegular Ftype = iota
	FtypeDir
)
