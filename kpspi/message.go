package kpspi

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrorMessageEmpty    = errors.New("message has no transfers")
	ErrorTransferInvalid = errors.New("transfer is invalid")
	ErrorShortTransfer   = errors.New("transfer ended short")
	ErrorNoSetup         = errors.New("device was not set up")
)

/* Transfer moves Len bytes in one direction. Tx takes priority if both
 * buffers are set, the core cannot drive full duplex from the PIO
 * path. BitsPerWord overrides the device word length for this transfer
 * only, SpeedHz is checked against the controller limits, Delay is
 * inserted after the transfer finished. */
type Transfer struct {
	Len int
	Tx  []byte
	Rx  []byte

	BitsPerWord int
	SpeedHz     uint32
	Delay       time.Duration
}

/* Message is an ordered list of transfers executed inside one chip
 * select window. Complete, when set, is called exactly once per
 * DoMessage call with the final ActualLength and Status filled in. */
type Message struct {
	Transfers []*Transfer

	ActualLength int
	Status       error

	Complete func(*Message)
}

func (c *Controller) validate(d *Device, m *Message) error {
	if len(m.Transfers) == 0 {
		return ErrorMessageEmpty
	}

	for _, t := range m.Transfers {
		if t.SpeedHz > Clock {
			return fmt.Errorf("%w: %d Hz above controller maximum %d Hz", ErrorTransferInvalid, t.SpeedHz, Clock)
		}
		if t.SpeedHz != 0 && t.SpeedHz < MinSpeed {
			return fmt.Errorf("%w: %d Hz below controller minimum %d Hz", ErrorTransferInvalid, t.SpeedHz, MinSpeed)
		}
		if t.Len > 0 && t.Tx == nil && t.Rx == nil {
			return fmt.Errorf("%w: %d bytes without a buffer", ErrorTransferInvalid, t.Len)
		}

		wordLen := d.BitsPerWord
		if t.BitsPerWord != 0 {
			wordLen = t.BitsPerWord
		}
		if wordLen < 4 || wordLen > 32 {
			return fmt.Errorf("%w: %d bits per word", ErrorTransferInvalid, wordLen)
		}
		if t.Len%bytesPerWord(wordLen) != 0 {
			return fmt.Errorf("%w: %d bytes is not a multiple of the %d byte word", ErrorTransferInvalid, t.Len, bytesPerWord(wordLen))
		}
	}

	return nil
}

func (c *Controller) finish(m *Message, err error) error {
	m.Status = err
	if m.Complete != nil {
		m.Complete(m)
	}
	return err
}

/* DoMessage runs one message against one peer. Validation failures are
 * reported before anything is written to the hardware. Once the chip
 * select window is asserted it is always de-asserted again, even when
 * a transfer fails halfway through. */
func (c *Controller) DoMessage(d *Device, m *Message) error {
	m.ActualLength = 0
	m.Status = nil

	s := d.state
	if s == nil {
		return c.finish(m, ErrorNoSetup)
	}

	if err := c.validate(d, m); err != nil {
		return c.finish(m, err)
	}

	/* Assert the chip select window for the whole message */
	s.writeReg(RegConfig, s.readReg(RegConfig)|confSPIEn)

	var result error

	if s.waitForBit(RegStatus, statusEOT) != nil {
		/* Tolerated: run no transfers, fall through to de-assert */
		c.log("spi: EOT timed out, aborting message")
	} else {
		for _, t := range m.Transfers {
			if t.Len > 0 {
				wordLen := d.BitsPerWord
				if t.BitsPerWord != 0 {
					wordLen = t.BitsPerWord
				}
				s.wordLen = wordLen

				conf := s.readReg(RegConfig)
				if t.Tx != nil {
					conf = confSetTRM(conf, trmTx)
				} else {
					conf = confSetTRM(conf, trmRx)
				}
				conf = confSetWordLen(conf, wordLen)
				conf = confSetChipSelect(conf, d.ChipSelect)
				s.writeReg(RegConfig, conf)

				count := s.txrxPIO(c, t)
				m.ActualLength += count

				if count != t.Len {
					result = fmt.Errorf("%w: %d of %d bytes", ErrorShortTransfer, count, t.Len)
					break
				}
			}

			if t.Delay > 0 {
				time.Sleep(t.Delay)
			}
		}
	}

	/* De-assert unconditionally so the bus never stays selected */
	s.writeReg(RegConfig, s.readReg(RegConfig)&^confSPIEn)

	return c.finish(m, result)
}
