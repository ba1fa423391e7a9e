package fs

import (
	"labkernel/internal/bpath"
	"labkernel/internal/defs"
	"labkernel/internal/ustr"
	"labkernel/internal/util"
)

const entriesPerBlock = defs.PGSIZE / defs.FileRecSize

/// dirLookup scans dir's data blocks for an entry named name, grounded
/// on fs.c's dir_lookup.
func dirLookup(dir *File_t, name ustr.Ustr) (*FileRec_t, defs.Err_t) {
	if dir.rec.Type() != defs.FtypeDir {
		return nil, defs.EINVAL
	}
	nblocks := util.CeilDiv(dir.rec.Size(), defs.PGSIZE)
	for fbn := 0; fbn < nblocks; fbn++ {
		blockno, _, err := dir.GetBlock(fbn, false)
		if err != 0 {
			continue
		}
		for slot := 0; slot < entriesPerBlock; slot++ {
			rec := recordAt(dir.cache, blockno, slot)
			if rec.isFree() {
				continue
			}
			if rec.Name().Eq(name) {
				return rec, 0
			}
		}
	}
	return nil, defs.ENOENT
}

/// dirAllocFile creates a new entry named name in dir, reusing the
/// first free slot in an existing block or else growing dir by one
/// block, grounded on fs.c's dir_alloc_file.
func dirAllocFile(dir *File_t, name ustr.Ustr, ftype defs.Ftype) (*FileRec_t, defs.Err_t) {
	if len(name) == 0 || len(name) >= defs.MAXNAMELEN {
		return nil, defs.EBADPATH
	}
	if _, err := dirLookup(dir, name); err == 0 {
		return nil, defs.EEXIST
	}

	nblocks := util.CeilDiv(dir.rec.Size(), defs.PGSIZE)
	for fbn := 0; fbn < nblocks; fbn++ {
		blockno, _, err := dir.GetBlock(fbn, false)
		if err != 0 {
			continue
		}
		for slot := 0; slot < entriesPerBlock; slot++ {
			rec := recordAt(dir.cache, blockno, slot)
			if rec.isFree() {
				initRecord(rec, name, ftype)
				return rec, 0
			}
		}
	}

	blockno, _, err := dir.GetBlock(nblocks, true)
	if err != 0 {
		return nil, err
	}
	if err := dir.SetSize((nblocks + 1) * defs.PGSIZE); err != 0 {
		return nil, err
	}
	rec := recordAt(dir.cache, blockno, 0)
	initRecord(rec, name, ftype)
	return rec, 0
}

/// splitParent splits a canonicalized path into its containing
/// directory and final component, e.g. "/a/b" -> ("/a", "b").
func splitParent(path ustr.Ustr) (dir, name ustr.Ustr) {
	clean := bpath.Canonicalize(path)
	for j := len(clean) - 1; j >= 0; j-- {
		if clean[j] == '/' {
			if j == 0 {
				return ustr.MkUstrRoot(), clean[j+1:]
			}
			return clean[:j], clean[j+1:]
		}
	}
	return ustr.MkUstrRoot(), clean
}

/// WalkPath resolves path (absolute or relative to root) to the
/// File record it names, grounded on fs.c's walk_path.
func WalkPath(fsys *Fs_t, path ustr.Ustr) (*FileRec_t, defs.Err_t) {
	cur := fsys.rootRec()
	rest := bpath.Canonicalize(path)
	for {
		elem, next, ok := rest.NextElem()
		if !ok {
			return cur, 0
		}
		if len(elem) >= defs.MAXNAMELEN {
			return nil, defs.EBADPATH
		}
		if cur.Type() != defs.FtypeDir {
			return nil, defs.ENOENT
		}
		child, err := dirLookup(fsys.open(cur), elem)
		if err != 0 {
			return nil, err
		}
		cur = child
		rest = next
	}
}

/// Create makes a new file or directory at path, grounded on fs.c's
/// file_create.
func Create(fsys *Fs_t, path ustr.Ustr, ftype defs.Ftype) (*FileRec_t, defs.Err_t) {
	dirpath, name := splitParent(path)
	parentRec, err := WalkPath(fsys, dirpath)
	if err != 0 {
		return nil, err
	}
	if parentRec.Type() != defs.FtypeDir {
		return nil, defs.EINVAL
	}
	return dirAllocFile(fsys.open(parentRec), name, ftype)
}

/// Remove truncates and unlinks path's entry from its parent
/// directory, grounded on fs.c's file_remove.
func Remove(fsys *Fs_t, path ustr.Ustr) defs.Err_t {
	dirpath, name := splitParent(path)
	parentRec, err := WalkPath(fsys, dirpath)
	if err != 0 {
		return err
	}
	parent := fsys.open(parentRec)
	rec, err := dirLookup(parent, name)
	if err != 0 {
		return err
	}
	target := fsys.open(rec)
	if err := target.Truncate(); err != 0 {
		return err
	}
	for i := range rec.buf {
		rec.buf[i] = 0
	}
	rec.dirty()
	return 0
}
