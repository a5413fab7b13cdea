package kpspi

import (
	"errors"
	"unsafe"
)

var ErrorWindowTooSmall = errors.New("register window is too small")

/* WindowSize is the number of bytes the register window occupies */
const WindowSize = NumRegs * 8

/* Window is one controller's register file. Registers are addressed by
 * index (RegConfig..RegRxData), each one is a single 64-bit bus access
 * of which the low 32 bits carry data. */
type Window interface {
	Read32(reg int) uint32
	Write32(reg int, val uint32)
}

/* MemWindow accesses the registers through a memory mapped byte slice,
 * normally obtained from the uio package. */
type MemWindow struct {
	regs []uint64
}

func NewMemWindow(mem []byte) (*MemWindow, error) {
	if len(mem) < WindowSize {
		return nil, ErrorWindowTooSmall
	}

	return &MemWindow{
		regs: unsafe.Slice((*uint64)(unsafe.Pointer(&mem[0])), NumRegs),
	}, nil
}

func (w *MemWindow) Read32(reg int) uint32 {
	return uint32(w.regs[reg])
}

func (w *MemWindow) Write32(reg int, val uint32) {
	w.regs[reg] = uint64(val)
}
