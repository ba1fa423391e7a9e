package fs

import (
	"labkernel/internal/defs"
	"labkernel/internal/ide"
	"labkernel/internal/mem"
	"labkernel/internal/ustr"
	"labkernel/internal/util"
)

/// Fs_t is a mounted filesystem: the block cache, the free-block
/// bitmap, and the superblock holding the root directory's record.
/// Grounded on fs.c's module-level fs_init/super/bitmap globals,
/// collected into a value instead of package state since a simulator
/// may run more than one disk image.
type Fs_t struct {
	cache  *Cache_t
	bitmap *Bitmap_t
	super  *Superblock_t
}

/// Mkfs formats a fresh disk of nblocks blocks: block 0 holds the
/// superblock, the blocks immediately after it hold the free-block
/// bitmap, and the remainder start out free with a single root
/// directory record embedded in the superblock. Grounded on fs.c's
/// fs_init's bitmap-and-superblock bootstrap, run here by the image
/// builder instead of at kernel boot since mkfs builds offline images.
func Mkfs(disk *ide.Disk_t, arena *mem.Arena_t, nblocks int) (*Fs_t, defs.Err_t) {
	cache := NewCache(disk, arena)
	bitmapBlocks := util.CeilDiv(nblocks, defs.BIT2BLK)
	bitmapStart := 1
	bitmap := NewBitmap(cache, bitmapStart, nblocks)

	for b := 0; b < nblocks; b++ {
		if b < bitmapStart+bitmapBlocks {
			bitmap.MarkUsed(b)
		} else {
			bitmap.setBit(b, true)
		}
	}

	sb := &Superblock_t{pg: cache.Get(0)}
	sb.SetMagic(defs.SuperblkMagic)
	sb.SetNblocks(nblocks)
	cache.Dirty(0)

	fsys := &Fs_t{cache: cache, bitmap: bitmap, super: sb}
	initRecord(fsys.rootRec(), ustr.MkUstrRoot(), defs.FtypeDir)
	return fsys, 0
}

/// Boot mounts an existing disk image, validating the superblock
/// magic, grounded on fs.c's read_super.
func Boot(disk *ide.Disk_t, arena *mem.Arena_t) (*Fs_t, defs.Err_t) {
	cache := NewCache(disk, arena)
	sb := &Superblock_t{pg: cache.Get(0)}
	if sb.Magic() != defs.SuperblkMagic {
		return nil, defs.EINVAL
	}
	bitmap := NewBitmap(cache, 1, sb.Nblocks())
	return &Fs_t{cache: cache, bitmap: bitmap, super: sb}, 0
}

func (fsys *Fs_t) rootRec() *FileRec_t {
	return &FileRec_t{
		buf:   fsys.super.pg[sbRootOff : sbRootOff+defs.FileRecSize],
		dirty: func() { fsys.cache.Dirty(0) },
	}
}

func (fsys *Fs_t) open(rec *FileRec_t) *File_t {
	return &File_t{rec: rec, cache: fsys.cache, bitmap: fsys.bitmap}
}

/// Handle wraps an already-resolved record (e.g. the one Create just
/// returned) into an open File_t, for callers (fsrv) that need to act
/// on a record without re-walking the path.
func (fsys *Fs_t) Handle(rec *FileRec_t) *File_t { return fsys.open(rec) }

/// Open resolves path and returns an open handle to it, grounded on
/// fs.c's file_open.
func (fsys *Fs_t) Open(path ustr.Ustr) (*File_t, defs.Err_t) {
	rec, err := WalkPath(fsys, path)
	if err != 0 {
		return nil, err
	}
	return fsys.open(rec), 0
}

/// Sync flushes every dirty block to disk, grounded on fs.c's
/// fs_sync.
func (fsys *Fs_t) Sync() { fsys.cache.Flush() }
