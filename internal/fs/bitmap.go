package fs

import "labkernel/internal/defs"

/// Bitmap_t is the on-disk free-block bitmap: one set bit per free data
/// block, starting immediately after the superblock and spanning
/// enough blocks to cover nblocks at BIT2BLK bits per block. Grounded
/// on fs.c's alloc_block_num/free_block/block_is_free.
type Bitmap_t struct {
	cache      *Cache_t
	startBlock int
	nblocks    int
}

/// NewBitmap constructs a view over the bitmap beginning at startBlock
/// and tracking nblocks data blocks.
func NewBitmap(cache *Cache_t, startBlock, nblocks int) *Bitmap_t {
	return &Bitmap_t{cache: cache, startBlock: startBlock, nblocks: nblocks}
}

func (bm *Bitmap_t) locate(b int) (blockno, byteIdx int, mask byte) {
	blockno = bm.startBlock + b/defs.BIT2BLK
	bitIdx := b % defs.BIT2BLK
	byteIdx = bitIdx / 8
	mask = 1 << uint(bitIdx%8)
	return
}

/// IsFree reports whether data block b is currently unallocated.
func (bm *Bitmap_t) IsFree(b int) bool {
	blockno, byteIdx, mask := bm.locate(b)
	pg := bm.cache.Get(blockno)
	return pg[byteIdx]&mask != 0
}

func (bm *Bitmap_t) setBit(b int, free bool) {
	blockno, byteIdx, mask := bm.locate(b)
	pg := bm.cache.Get(blockno)
	if free {
		pg[byteIdx] |= mask
	} else {
		pg[byteIdx] &^= mask
	}
	bm.cache.Dirty(blockno)
}

/// Alloc finds the lowest-numbered free block, marks it used, and
/// returns its number. It returns ENODISK if none remain, matching
/// alloc_block_num's exhaustion case.
func (bm *Bitmap_t) Alloc() (int, defs.Err_t) {
	for b := 0; b < bm.nblocks; b++ {
		if bm.IsFree(b) {
			bm.setBit(b, false)
			return b, 0
		}
	}
	return 0, defs.ENODISK
}

/// Free marks block b available again. A caller that allocated b
/// speculatively (e.g. for a data block about to be linked into a
/// file) and then failed to complete the map must call Free to restore
/// the in-memory bit; as in fs.c, that restoration is not forced to
/// disk before the next sync, so a crash between the failed map and
/// the next fs_sync can still leak the block.
func (bm *Bitmap_t) Free(b int) {
	bm.setBit(b, true)
}

/// MarkUsed reserves block b without searching, used by Mkfs to carve
/// out the superblock and bitmap's own blocks.
func (bm *Bitmap_t) MarkUsed(b int) {
	bm.setBit(b, false)
}
