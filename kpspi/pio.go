package kpspi

import (
	"encoding/binary"
)

/* txrxPIO clocks one transfer across the wire a unit at a time. Only
 * one direction is driven: a transmit buffer takes priority over a
 * receive buffer. Units are 1, 2 or 4 bytes depending on the word
 * length in effect, packed little endian in the buffers.
 *
 * Returns the number of bytes that made it through. A status wait
 * timeout ends the loop early, the caller turns the shortfall into an
 * I/O error. */
func (s *state) txrxPIO(c *Controller, t *Transfer) int {
	unit := bytesPerWord(s.wordLen)
	count := t.Len / unit
	processed := 0

	if t.Tx != nil {
		for i := 0; i < count; i++ {
			if s.waitForBit(RegStatus, statusTXS) != nil {
				break
			}

			s.writeReg(RegTxData, txUnit(t.Tx[i*unit:], unit))
			processed += unit
		}
	} else if t.Rx != nil {
		for i := 0; i < count; i++ {
			/* The bus only clocks while transmitting, push a dummy
			 * unit to shift the answer in */
			s.writeReg(RegTxData, 0)

			if s.waitForBit(RegStatus, statusRXS) != nil {
				break
			}

			rxUnit(t.Rx[i*unit:], unit, s.readReg(RegRxData))
			processed += unit
		}
	}

	if s.waitForBit(RegStatus, statusEOT) != nil {
		/* There is no abort protocol for a stuck transfer, all we can
		 * do is report it and let the shortfall surface upstream */
		c.log("spi: EOT wait timed out after transfer")
	}

	return processed
}

func txUnit(buf []byte, unit int) uint32 {
	switch unit {
	case 1:
		return uint32(buf[0])
	case 2:
		return uint32(binary.LittleEndian.Uint16(buf))
	default:
		return binary.LittleEndian.Uint32(buf)
	}
}

func rxUnit(buf []byte, unit int, val uint32) {
	switch unit {
	case 1:
		buf[0] = byte(val)
	case 2:
		binary.LittleEndian.PutUint16(buf, uint16(val))
	default:
		binary.LittleEndian.PutUint32(buf, val)
	}
}
