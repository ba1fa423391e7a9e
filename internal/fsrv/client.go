package fsrv

import (
	"sync"
	"sync/atomic"

	"labkernel/internal/defs"
	"labkernel/internal/proc"
	"labkernel/internal/stat"
	"labkernel/internal/ustr"
	"labkernel/internal/util"
)

// Every Remotefile_t gets its own pair of request/reply scratch pages
// in its client env's address space, allocated from a window well
// below UTOP that user data never reaches in this simulator's
// scenarios. A global counter is simpler than a per-env bump
// allocator and is still collision-free, since uniqueness only needs
// to hold within one env's own Vm_t.
const fsrvScratchBase = uintptr(0xd0000000)

var scratchSlots int64

func allocScratch(client *proc.Env_t) (reqva, replyva uintptr, err defs.Err_t) {
	n := atomic.AddInt64(&scratchSlots, 1) - 1
	reqva = fsrvScratchBase + uintptr(n)*2*defs.PGSIZE
	replyva = reqva + defs.PGSIZE
	if err := client.Vm.Alloc(reqva, defs.PTE_W); err != 0 {
		return 0, 0, err
	}
	if err := client.Vm.Alloc(replyva, defs.PTE_W); err != 0 {
		return 0, 0, err
	}
	return reqva, replyva, 0
}

/// Remotefile_t is the client-side handle to a file served by
/// Server_t, implementing fdops.Fdops_i so it can back an internal/fd
/// Fd_t. Grounded on the teacher's fd.go Fops contract (Reopen/Close
/// refcounting). Every operation crosses to the server over
/// Server_t.call, spec §4.5/§4.6's ipc.Send/ipc.Recv round trip rather
/// than a direct Go method call.
type Remotefile_t struct {
	mu      sync.Mutex
	srv     *Server_t
	client  *proc.Env_t
	reqva   uintptr
	replyva uintptr
	fileid  int
	off     int
	refs    int
}

/// OpenFile opens path against srv on behalf of client and returns a
/// ready-to-use handle with one reference.
func OpenFile(srv *Server_t, client *proc.Env_t, path ustr.Ustr) (*Remotefile_t, defs.Err_t) {
	reqva, replyva, err := allocScratch(client)
	if err != 0 {
		return nil, err
	}
	err, fileid := srv.call(client, reqva, replyva, reqOpen, 0, 0, 0, path)
	if err != 0 {
		return nil, err
	}
	return &Remotefile_t{srv: srv, client: client, reqva: reqva, replyva: replyva, fileid: fileid, refs: 1}, 0
}

/// CreateFile creates path (failing with EEXIST if it is already
/// there) on behalf of client and returns a ready-to-use handle with
/// one reference.
func CreateFile(srv *Server_t, client *proc.Env_t, path ustr.Ustr, ftype defs.Ftype) (*Remotefile_t, defs.Err_t) {
	reqva, replyva, err := allocScratch(client)
	if err != 0 {
		return nil, err
	}
	err, fileid := srv.call(client, reqva, replyva, reqCreate, 0, int(ftype), 0, path)
	if err != 0 {
		return nil, err
	}
	return &Remotefile_t{srv: srv, client: client, reqva: reqva, replyva: replyva, fileid: fileid, refs: 1}, 0
}

/// Read implements fdops.Fdops_i.
func (rf *Remotefile_t) Read(dst []uint8) (int, defs.Err_t) {
	rf.mu.Lock()
	defer rf.mu.Unlock()

	err, size := rf.srv.call(rf.client, rf.reqva, rf.replyva, reqSize, rf.fileid, 0, 0, nil)
	if err != 0 {
		return 0, err
	}
	n := 0
	for n < len(dst) && rf.off < size {
		blockno := rf.off / defs.PGSIZE
		err, _ := rf.srv.call(rf.client, rf.reqva, rf.replyva, reqMap, rf.fileid, blockno, 0, nil)
		if err != 0 {
			return n, err
		}
		pg := rf.client.Vm.Dmap(rf.replyva)
		boff := rf.off % defs.PGSIZE
		avail := defs.PGSIZE - boff
		if r := size - rf.off; r < avail {
			avail = r
		}
		if want := len(dst) - n; want < avail {
			avail = want
		}
		copy(dst[n:n+avail], pg[boff:boff+avail])
		n += avail
		rf.off += avail
	}
	return n, 0
}

/// Write implements fdops.Fdops_i, extending the file's recorded size
/// to the end offset of the bytes written when that lies past it.
func (rf *Remotefile_t) Write(src []uint8) (int, defs.Err_t) {
	rf.mu.Lock()
	defer rf.mu.Unlock()

	n := 0
	for n < len(src) {
		blockno := rf.off / defs.PGSIZE
		err, _ := rf.srv.call(rf.client, rf.reqva, rf.replyva, reqMap, rf.fileid, blockno, 1, nil)
		if err != 0 {
			return n, err
		}
		pg := rf.client.Vm.Dmap(rf.replyva)
		boff := rf.off % defs.PGSIZE
		avail := defs.PGSIZE - boff
		if want := len(src) - n; want < avail {
			avail = want
		}
		copy(pg[boff:boff+avail], src[n:n+avail])
		if err, _ := rf.srv.call(rf.client, rf.reqva, rf.replyva, reqDirty, rf.fileid, blockno, 0, nil); err != 0 {
			return n, err
		}
		n += avail
		rf.off += avail
	}

	if err, size := rf.srv.call(rf.client, rf.reqva, rf.replyva, reqSize, rf.fileid, 0, 0, nil); err == 0 && rf.off > size {
		if err, _ := rf.srv.call(rf.client, rf.reqva, rf.replyva, reqSetSize, rf.fileid, rf.off, 0, nil); err != 0 {
			return n, err
		}
	}
	return n, 0
}

/// Stat reports the file's size and directory-ness.
func (rf *Remotefile_t) Stat() (*stat.Stat_t, defs.Err_t) {
	rf.mu.Lock()
	defer rf.mu.Unlock()
	err, isdir := rf.srv.call(rf.client, rf.reqva, rf.replyva, reqStat, rf.fileid, 0, 0, nil)
	if err != 0 {
		return nil, err
	}
	// reqStat writes the size back into the shared request page
	// rather than transferring a fresh one: the client still holds
	// its own mapping of that physical frame at reqva.
	size := util.Readn(rf.client.Vm.Dmap(rf.reqva)[:], 8, 0)
	st := &stat.Stat_t{}
	st.Wsize(uint(size))
	st.Wisdir(isdir != 0)
	return st, 0
}

/// Truncate implements fdops.Fdops_i.
func (rf *Remotefile_t) Truncate(newSize uint) defs.Err_t {
	rf.mu.Lock()
	defer rf.mu.Unlock()
	err, _ := rf.srv.call(rf.client, rf.reqva, rf.replyva, reqSetSize, rf.fileid, int(newSize), 0, nil)
	return err
}

/// Close implements fdops.Fdops_i, releasing the server's fileid once
/// the last local reference drops.
func (rf *Remotefile_t) Close() defs.Err_t {
	rf.mu.Lock()
	defer rf.mu.Unlock()
	rf.refs--
	if rf.refs == 0 {
		err, _ := rf.srv.call(rf.client, rf.reqva, rf.replyva, reqClose, rf.fileid, 0, 0, nil)
		return err
	}
	return 0
}

/// Reopen implements fdops.Fdops_i for fd.Copyfd. Purely local
/// refcounting: the server's open-file table entry is already shared
/// by fileid, so no request crosses the wire.
func (rf *Remotefile_t) Reopen() defs.Err_t {
	rf.mu.Lock()
	defer rf.mu.Unlock()
	rf.refs++
	return 0
}
