package fsrv

import (
	"labkernel/internal/defs"
	"labkernel/internal/mem"
	"labkernel/internal/ustr"
	"labkernel/internal/util"
)

/// reqOp enumerates the request kinds of spec §4.5's request table.
type reqOp int

const (
	reqOpen reqOp = iota
	reqCreate
	reqMap
	reqSize
	reqStat
	reqSetSize
	reqDirty
	reqClose
	reqRemove
	reqSync
)

// A request is marshaled into the page ipc.Send transfers to the
// server, the way a real client/server split has no shared Go struct
// to pass -- only a mapped page and one uintptr value. Layout within
// the page: op, fileid, arg, arg2, then a NUL-terminated path for the
// ops that name one.
const (
	reqOpOff     = 0
	reqFileidOff = 4
	reqArgOff    = 8
	reqArg2Off   = 12
	reqPathOff   = 16
)

func putRequest(pg *mem.Page_t, op reqOp, fileid, arg, arg2 int, path ustr.Ustr) {
	b := pg[:]
	util.Writen(b, 4, reqOpOff, int(op))
	util.Writen(b, 4, reqFileidOff, fileid)
	util.Writen(b, 4, reqArgOff, arg)
	util.Writen(b, 4, reqArg2Off, arg2)
	n := copy(b[reqPathOff:len(b)-1], path)
	b[reqPathOff+n] = 0
}

func getRequest(pg *mem.Page_t) (op reqOp, fileid, arg, arg2 int, path ustr.Ustr) {
	b := pg[:]
	op = reqOp(util.Readn(b, 4, reqOpOff))
	fileid = util.Readn(b, 4, reqFileidOff)
	arg = util.Readn(b, 4, reqArgOff)
	arg2 = util.Readn(b, 4, reqArg2Off)
	path = ustr.MkUstrSlice(b[reqPathOff:])
	return
}

// packReply folds a handler's (Err_t, result) pair into the single
// uintptr value ipc.Send's rendezvous carries: err in the high 32
// bits, result in the low 32 bits. Meaning of result is op-specific
// (fileid for Open/Create, byte size for Size, isdir for Stat, unused
// otherwise).
func packReply(err defs.Err_t, result int) uintptr {
	return uintptr(uint64(uint32(int32(err)))<<32 | uint64(uint32(int32(result))))
}

func unpackReply(v uintptr) (defs.Err_t, int) {
	err := defs.Err_t(int32(uint32(v >> 32)))
	result := int(int32(uint32(v)))
	return err, result
}
