package fs

import (
	"labkernel/internal/mem"
	"labkernel/internal/util"
)

// Superblock layout within block 0, grounded on fs.c's struct Super
// (magic, nblocks, an embedded root File record) rather than the
// teacher's log-structured fields (Loglen/Iorphanblock/Imaplen/
// Freeblock/Inodelen/Lastblock), which belong to a journaled,
// inode-bitmap filesystem this specification does not have.
const (
	sbMagicOff   = 0
	sbNblocksOff = 4
	sbRootOff    = 8
)

/// Superblock_t is a view over block 0: the magic number, total block
/// count, and the root directory's File record.
type Superblock_t struct {
	pg *mem.Page_t
}

func (sb *Superblock_t) Magic() int        { return util.Readn(sb.pg[:], 4, sbMagicOff) }
func (sb *Superblock_t) SetMagic(v int)    { util.Writen(sb.pg[:], 4, sbMagicOff, v) }
func (sb *Superblock_t) Nblocks() int      { return util.Readn(sb.pg[:], 4, sbNblocksOff) }
func (sb *Superblock_t) SetNblocks(v int)  { util.Writen(sb.pg[:], 4, sbNblocksOff, v) }
