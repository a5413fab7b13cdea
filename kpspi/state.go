package kpspi

import (
	"errors"
	"runtime"
	"time"
)

var ErrorTimeout = errors.New("timeout waiting for status bit")

/* state is the per peer controller state. The window and physical
 * address are copied from the controller when the record is created.
 * confCache shadows the config register, -1 means no write happened
 * yet and a read has to go to the hardware. */
type state struct {
	win        Window
	phys       uintptr
	chipSelect uint8
	wordLen    int
	timeout    time.Duration

	confCache int64
}

func (s *state) readReg(reg int) uint32 {
	if reg == RegConfig && s.confCache >= 0 {
		return uint32(s.confCache)
	}
	return s.win.Read32(reg)
}

/* writeReg keeps the config cache in sync with every hardware write,
 * there is no path that writes config without updating it. */
func (s *state) writeReg(reg int, val uint32) {
	s.win.Write32(reg, val)
	if reg == RegConfig {
		s.confCache = int64(val)
	}
}

func (s *state) waitForBit(reg int, bit uint32) error {
	deadline := time.Now().Add(s.timeout)

	for s.readReg(reg)&bit == 0 {
		if time.Now().After(deadline) {
			/* One more read closes the race between the last poll
			 * and the deadline check */
			if s.readReg(reg)&bit == 0 {
				return ErrorTimeout
			}
			return nil
		}
		runtime.Gosched()
	}

	return nil
}
