// Package ufs is the offline disk-image builder: unlike internal/fsrv,
// which serves a live simulated kernel's environments over IPC, Ufs_t
// talks to internal/fs directly so a command-line tool can populate a
// disk image before any environment ever boots. Grounded on the
// teacher's ufs/ufs.go (MkFile/MkDir/Read/Ls wrapping the fs engine
// for test fixture setup), adapted from biscuit's Fs_open/Fakeubuf_t
// API onto the specification's File_t/FileRec_t.
package ufs

import (
	"labkernel/internal/defs"
	"labkernel/internal/fs"
	"labkernel/internal/ide"
	"labkernel/internal/mem"
	"labkernel/internal/ustr"
)

// builderArenaPages is the scratch physical-memory budget given to a
// disk-image build: it bounds how many blocks can be resident in the
// cache at once, not how large the image itself can be.
const builderArenaPages = 4096

/// Ufs_t is a disk image open for offline editing.
type Ufs_t struct {
	disk *ide.Disk_t
	fs   *fs.Fs_t
}

/// Mkfs formats a brand new nblocks-block image at path.
func Mkfs(path string, nblocks int) (*Ufs_t, error) {
	disk, err := ide.Open(path)
	if err != nil {
		return nil, err
	}
	fsys, ferr := fs.Mkfs(disk, mem.NewArena(builderArenaPages), nblocks)
	if ferr != 0 {
		disk.Close()
		return nil, ferr
	}
	return &Ufs_t{disk: disk, fs: fsys}, nil
}

/// Boot opens an already-formatted image at path.
func Boot(path string) (*Ufs_t, error) {
	disk, err := ide.Open(path)
	if err != nil {
		return nil, err
	}
	fsys, ferr := fs.Boot(disk, mem.NewArena(builderArenaPages))
	if ferr != 0 {
		disk.Close()
		return nil, ferr
	}
	return &Ufs_t{disk: disk, fs: fsys}, nil
}

/// Close flushes the filesystem and releases the backing file.
func (u *Ufs_t) Close() error {
	u.fs.Sync()
	return u.disk.Close()
}

/// MkFile creates a regular file at p and writes data into it.
func (u *Ufs_t) MkFile(p ustr.Ustr, data []byte) defs.Err_t {
	rec, err := fs.Create(u.fs, p, defs.FtypeRegular)
	if err != 0 {
		return err
	}
	return writeAll(u.fs.Handle(rec), data)
}

/// MkDir creates an empty directory at p.
func (u *Ufs_t) MkDir(p ustr.Ustr) defs.Err_t {
	_, err := fs.Create(u.fs, p, defs.FtypeDir)
	return err
}

/// Append grows the file at p with additional data.
func (u *Ufs_t) Append(p ustr.Ustr, data []byte) defs.Err_t {
	rec, err := fs.WalkPath(u.fs, p)
	if err != 0 {
		return err
	}
	f := u.fs.Handle(rec)
	base := rec.Size()
	off := base
	for off < base+len(data) {
		blockno := off / defs.PGSIZE
		_, pg, gerr := f.GetBlock(blockno, true)
		if gerr != 0 {
			return gerr
		}
		boff := off % defs.PGSIZE
		n := copy(pg[boff:], data[off-base:])
		if derr := f.Dirty(blockno); derr != 0 {
			return derr
		}
		off += n
	}
	return f.SetSize(off)
}

func writeAll(f *fs.File_t, data []byte) defs.Err_t {
	off := 0
	for off < len(data) {
		blockno := off / defs.PGSIZE
		_, pg, gerr := f.GetBlock(blockno, true)
		if gerr != 0 {
			return gerr
		}
		boff := off % defs.PGSIZE
		n := copy(pg[boff:], data[off:])
		if derr := f.Dirty(blockno); derr != 0 {
			return derr
		}
		off += n
	}
	return f.SetSize(len(data))
}

/// Read returns the whole contents of the file at p.
func (u *Ufs_t) Read(p ustr.Ustr) ([]byte, defs.Err_t) {
	rec, err := fs.WalkPath(u.fs, p)
	if err != 0 {
		return nil, err
	}
	f := u.fs.Handle(rec)
	size := rec.Size()
	out := make([]byte, size)
	off := 0
	for off < size {
		blockno := off / defs.PGSIZE
		_, pg, gerr := f.GetBlock(blockno, false)
		if gerr != 0 {
			return nil, gerr
		}
		boff := off % defs.PGSIZE
		n := copy(out[off:], pg[boff:])
		off += n
	}
	return out, 0
}

/// Stat reports a path's size and type without reading its contents.
func (u *Ufs_t) Stat(p ustr.Ustr) (int, defs.Ftype, defs.Err_t) {
	rec, err := fs.WalkPath(u.fs, p)
	if err != 0 {
		return 0, 0, err
	}
	return rec.Size(), rec.Type(), 0
}

/// Sync flushes pending writes to the backing file.
func (u *Ufs_t) Sync() { u.fs.Sync() }
