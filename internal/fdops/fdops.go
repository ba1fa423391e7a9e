// Package fdops declares the operations a file descriptor's backing
// object must support, decoupling internal/fd from any one kind of
// object (here, an fsrv-backed remote file). Grounded on the call
// sites in the teacher's fd/fd.go (Reopen, Close) plus the client-side
// read/write/truncate surface the specification's FS-server protocol
// exposes over IPC.
package fdops

import (
	"labkernel/internal/defs"
	"labkernel/internal/stat"
)

/// Fdops_i is implemented by whatever object a file descriptor wraps.
type Fdops_i interface {
	/// Read copies up to len(dst) bytes starting at the descriptor's
	/// current offset into dst, advancing the offset, and returns the
	/// number of bytes read.
	Read(dst []uint8) (int, defs.Err_t)

	/// Write copies src to the descriptor's current offset, advancing
	/// the offset and extending the file if necessary, and returns the
	/// number of bytes written.
	Write(src []uint8) (int, defs.Err_t)

	/// Truncate sets the file's size, per the spec's SetSize server op.
	Truncate(newSize uint) defs.Err_t

	/// Close releases any server-side resources held by the descriptor.
	Close() defs.Err_t

	/// Reopen takes an additional reference for a duplicated Fd_t,
	/// mirroring the teacher's refcounted Fops.Reopen contract.
	Reopen() defs.Err_t
}

/// Stater_i is an optional capability: backing objects that can report
/// stat information implement it, and Fd_t.Fstat recovers it with a
/// type assertion rather than forcing every Fdops_i (e.g. a future
/// pipe or console backend) to carry a meaningless Stat method.
type Stater_i interface {
	Stat() (*stat.Stat_t, defs.Err_t)
}
