package kpspi

import (
	"errors"
	"time"
)

var (
	ErrorBadChipSelect  = errors.New("chip select out of range")
	ErrorBadBitsPerWord = errors.New("word length not between 4 and 32 bits")
)

type Controller struct {
	win  Window
	phys uintptr

	NumChipSelect int
	FifoDepth     int

	/* Deadline for every status bit wait */
	Timeout time.Duration

	LogFunc func(format string, params ...any)
}

func NewController(win Window, phys uintptr) *Controller {
	return &Controller{
		win:  win,
		phys: phys,

		NumChipSelect: 4,
		FifoDepth:     64,
		Timeout:       time.Second,
	}
}

func (c *Controller) log(format string, params ...any) {
	if c.LogFunc != nil {
		c.LogFunc(format, params...)
	}
}

/* Device is one peer on the bus. The controller state record hangs off
 * the device and is created on the first Setup call. */
type Device struct {
	ctrl *Controller

	ChipSelect  uint8
	BitsPerWord int

	state *state
}

func (c *Controller) NewDevice(chipSelect uint8, bitsPerWord int) *Device {
	return &Device{
		ctrl:        c,
		ChipSelect:  chipSelect,
		BitsPerWord: bitsPerWord,
	}
}

/* Setup validates the device parameters and programs an idle config:
 * word length and chip select filled in, transfer mode, transmission
 * enable, FIFO enable and SPI enable all cleared. Calling it again for
 * the same device reuses the existing state record. */
func (c *Controller) Setup(d *Device) error {
	if int(d.ChipSelect) >= c.NumChipSelect {
		return ErrorBadChipSelect
	}
	if d.BitsPerWord < 4 || d.BitsPerWord > 32 {
		return ErrorBadBitsPerWord
	}

	s := d.state
	if s == nil {
		s = &state{
			win:        c.win,
			phys:       c.phys,
			chipSelect: d.ChipSelect,
			wordLen:    d.BitsPerWord,
			timeout:    c.Timeout,
			confCache:  -1,
		}
		d.state = s
	}

	var conf uint32
	conf = confSetWordLen(conf, d.BitsPerWord)
	conf = confSetChipSelect(conf, d.ChipSelect)
	s.writeReg(RegConfig, conf)

	return nil
}

/* Cleanup drops the controller state of a detached peer. */
func (c *Controller) Cleanup(d *Device) {
	d.state = nil
}
