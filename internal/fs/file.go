package fs

import (
	"labkernel/internal/defs"
	"labkernel/internal/mem"
	"labkernel/internal/ustr"
	"labkernel/internal/util"
)

// On-disk File record layout within its FileRecSize-byte slot,
// grounded on fs.c's struct File (name, size, type, direct[NDIRECT],
// indirect).
const (
	frNameOff     = 0
	frSizeOff     = defs.MAXNAMELEN
	frTypeOff     = frSizeOff + 4
	frDirectOff   = frTypeOff + 4
	frIndirectOff = frDirectOff + defs.NDIRECT*4
)

/// FileRec_t is a view over one on-disk File record: a MAXNAMELEN
/// name, a byte size, a type, NDIRECT direct block numbers and one
/// indirect block number. buf aliases the owning block's page
/// directly, so every Set method's effect is visible to the cache
/// immediately; dirty must still be called to have it written back.
type FileRec_t struct {
	buf   []byte
	dirty func()
}

func (r *FileRec_t) Name() ustr.Ustr {
	return ustr.MkUstrSlice(r.buf[frNameOff : frNameOff+defs.MAXNAMELEN])
}

func (r *FileRec_t) SetName(n ustr.Ustr) {
	for i := range defs.MAXNAMELEN {
		r.buf[frNameOff+i] = 0
	}
	copy(r.buf[frNameOff:frNameOff+defs.MAXNAMELEN], n)
	r.dirty()
}

func (r *FileRec_t) Size() int     { return util.Readn(r.buf, 4, frSizeOff) }
func (r *FileRec_t) SetSize(n int) { util.Writen(r.buf, 4, frSizeOff, n); r.dirty() }

func (r *FileRec_t) Type() defs.Ftype { return defs.Ftype(util.Readn(r.buf, 4, frTypeOff)) }
func (r *FileRec_t) SetType(t defs.Ftype) {
	util.Writen(r.buf, 4, frTypeOff, int(t))
	r.dirty()
}

func (r *FileRec_t) direct(i int) int { return util.Readn(r.buf, 4, frDirectOff+i*4) }
func (r *FileRec_t) setDirect(i, v int) {
	util.Writen(r.buf, 4, frDirectOff+i*4, v)
	r.dirty()
}

func (r *FileRec_t) indirect() int { return util.Readn(r.buf, 4, frIndirectOff) }
func (r *FileRec_t) setIndirect(v int) {
	util.Writen(r.buf, 4, frIndirectOff, v)
	r.dirty()
}

/// isFree reports whether this record's slot is unused: fs.c marks a
/// directory entry free by zeroing its name's first byte.
func (r *FileRec_t) isFree() bool { return r.buf[frNameOff] == 0 }

func recordAt(cache *Cache_t, blockno, slot int) *FileRec_t {
	pg := cache.Get(blockno)
	off := slot * defs.FileRecSize
	return &FileRec_t{buf: pg[off : off+defs.FileRecSize], dirty: func() { cache.Dirty(blockno) }}
}

func initRecord(r *FileRec_t, name ustr.Ustr, ftype defs.Ftype) {
	for i := range r.buf {
		r.buf[i] = 0
	}
	copy(r.buf[frNameOff:frNameOff+defs.MAXNAMELEN], name)
	util.Writen(r.buf, 4, frTypeOff, int(ftype))
	r.dirty()
}

/// File_t is an open file: a record plus the cache and bitmap it reads
/// and allocates blocks through. Grounded on fs.c's struct File used
/// as both the in-memory and on-disk representation of an open file.
type File_t struct {
	rec    *FileRec_t
	cache  *Cache_t
	bitmap *Bitmap_t
}

/// Rec exposes the underlying record, e.g. for directory iteration.
func (fi *File_t) Rec() *FileRec_t { return fi.rec }

type blockSlot_t struct {
	get func() int
	set func(int)
}

/// blockWalk returns the slot holding fbn's on-disk block number --
/// either a direct slot in the record, or an entry inside the
/// indirect block, allocating the indirect block first if alloc is
/// set and none exists. Grounded on file_block_walk.
func (fi *File_t) blockWalk(fbn int, alloc bool) (*blockSlot_t, defs.Err_t) {
	if fbn < 0 || fbn >= defs.MAXBLOCKS {
		return nil, defs.EINVAL
	}
	if fbn < defs.NDIRECT {
		idx := fbn
		return &blockSlot_t{
			get: func() int { return fi.rec.direct(idx) },
			set: func(v int) { fi.rec.setDirect(idx, v) },
		}, 0
	}

	ibn := fi.rec.indirect()
	if ibn == 0 {
		if !alloc {
			return nil, defs.ENOENT
		}
		nb, err := fi.bitmap.Alloc()
		if err != 0 {
			return nil, err
		}
		ibn = nb
		ipg := fi.cache.Get(ibn)
		for i := range ipg {
			ipg[i] = 0
		}
		fi.cache.Dirty(ibn)
		fi.rec.setIndirect(ibn)
	}
	off := (fbn - defs.NDIRECT) * 4
	return &blockSlot_t{
		get: func() int { return util.Readn(fi.cache.Get(ibn)[:], 4, off) },
		set: func(v int) { util.Writen(fi.cache.Get(ibn)[:], 4, off, v); fi.cache.Dirty(ibn) },
	}, 0
}

/// GetBlock returns fbn's block number and page, allocating a fresh
/// zeroed data block (and its slot) if alloc is set and none exists
/// yet. Grounded on file_get_block/file_map_block.
func (fi *File_t) GetBlock(fbn int, alloc bool) (int, *mem.Page_t, defs.Err_t) {
	slot, err := fi.blockWalk(fbn, alloc)
	if err != 0 {
		return 0, nil, err
	}
	bn := slot.get()
	if bn == 0 {
		if !alloc {
			return 0, nil, defs.ENOENT
		}
		nb, err := fi.bitmap.Alloc()
		if err != 0 {
			return 0, nil, err
		}
		slot.set(nb)
		pg := fi.cache.Get(nb)
		for i := range pg {
			pg[i] = 0
		}
		fi.cache.Dirty(nb)
		return nb, pg, 0
	}
	return bn, fi.cache.Get(bn), 0
}

/// BlockPA returns the physical frame backing on-disk block bn, for
/// mapping a block GetBlock already resolved into another address
/// space over IPC.
func (fi *File_t) BlockPA(bn int) mem.Pa_t {
	return fi.cache.PA(bn)
}

/// ClearBlock frees fbn's data block and zeroes its slot, leaving the
/// indirect block itself (if any) in place -- fs.c's file_truncate
/// never reclaims the indirect block, only the data blocks it points
/// to, so a file that grows past NDIRECT and later shrinks back keeps
/// its (now all-zero) indirect block allocated.
func (fi *File_t) ClearBlock(fbn int) defs.Err_t {
	slot, err := fi.blockWalk(fbn, false)
	if err == defs.ENOENT {
		return 0
	}
	if err != 0 {
		return err
	}
	if bn := slot.get(); bn != 0 {
		fi.bitmap.Free(bn)
		slot.set(0)
	}
	return 0
}

/// SetSize truncates or extends the file to newSize bytes, freeing any
/// data blocks that fall beyond the new size. Extending never
/// allocates blocks eagerly -- they come into existence lazily via
/// GetBlock, matching file_set_size. Shrinking to NDIRECT blocks or
/// fewer forgets the indirect pointer (fs.c:809-810's
/// `f->f_indirect = 0`) without freeing the indirect block itself.
func (fi *File_t) SetSize(newSize int) defs.Err_t {
	oldBlocks := util.CeilDiv(fi.rec.Size(), defs.PGSIZE)
	newBlocks := util.CeilDiv(newSize, defs.PGSIZE)
	for fbn := newBlocks; fbn < oldBlocks; fbn++ {
		if err := fi.ClearBlock(fbn); err != 0 {
			return err
		}
	}
	if newBlocks <= defs.NDIRECT {
		fi.rec.setIndirect(0)
	}
	fi.rec.SetSize(newSize)
	return 0
}

/// Truncate discards all of a file's data, per file_remove's use of
/// file_truncate before freeing the record itself.
func (fi *File_t) Truncate() defs.Err_t { return fi.SetSize(0) }

/// Dirty marks logical block fbn for write-back, grounded on fs.c's
/// file_dirty. It is a no-op if fbn has never been allocated.
func (fi *File_t) Dirty(fbn int) defs.Err_t {
	slot, err := fi.blockWalk(fbn, false)
	if err == defs.ENOENT {
		return 0
	}
	if err != 0 {
		return err
	}
	if bn := slot.get(); bn != 0 {
		fi.cache.Dirty(bn)
	}
	return 0
}
