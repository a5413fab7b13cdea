/* Package spiflash talks to SPI NOR flash chips through the kpspi
 * message engine. The controller is half duplex, a command is one
 * message: a tx-only transfer with opcode and address, followed by an
 * rx-only transfer clocking the answer back in. */
package spiflash

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"kpspiflash/kpspi"
)

const (
	opWriteEnable = 0x06
	opReadStatus  = 0x05
	opReadID      = 0x9F
	opRead        = 0x03
	opPageProgram = 0x02
)

/* TransferFunc submits one message to the engine, normally a closure
 * around Controller.DoMessage for one device. */
type TransferFunc func(m *kpspi.Message) error

type Flash struct {
	xfer TransferFunc

	deviceID [4]byte
	device   flashDevice
}

func New(xfer TransferFunc) (*Flash, error) {
	f := &Flash{
		xfer: xfer,
	}

	if err := f.readDeviceID(); err != nil {
		/* Some chips need a dummy transaction after power up */
		if err := f.readDeviceID(); err != nil {
			return nil, err
		}
	}

	return f, nil
}

func (f *Flash) command(out []byte, in []byte) error {
	var m kpspi.Message

	if len(out) > 0 {
		m.Transfers = append(m.Transfers, &kpspi.Transfer{Len: len(out), Tx: out})
	}
	if len(in) > 0 {
		m.Transfers = append(m.Transfers, &kpspi.Transfer{Len: len(in), Rx: in})
	}

	return f.xfer(&m)
}

func (f *Flash) readDeviceID() error {
	if err := f.command([]byte{opReadID}, f.deviceID[:]); err != nil {
		return err
	}

	t := binary.BigEndian.Uint32(f.deviceID[:])
	var ok bool
	f.device, ok = deviceLookup(t)
	if !ok {
		return fmt.Errorf("unsupported flash type: %08x", t)
	}

	return nil
}

func (f *Flash) DeviceID() [4]byte {
	return f.deviceID
}

func (f *Flash) Size() uint32 {
	return f.device.chipSize
}

func (f *Flash) writeEnable() error {
	return f.command([]byte{opWriteEnable}, nil)
}

func (f *Flash) statusRead() (uint8, error) {
	var result [1]byte
	err := f.command([]byte{opReadStatus}, result[:])
	return result[0], err
}

func (f *Flash) waitIdle(maxDuration time.Duration) error {
	timeout := time.Now().Add(maxDuration)
	for time.Now().Before(timeout) {
		status, err := f.statusRead()
		if err != nil {
			return err
		}

		if status&1 == 0 {
			if status&(1<<5) > 0 {
				return errors.New("program operation failed")
			}
			return nil
		}
	}
	return errors.New("timeout waiting for flash to go idle")
}

func (f *Flash) EraseChip() error {
	if err := f.writeEnable(); err != nil {
		return err
	}

	if err := f.command([]byte{f.device.opcodeChipErase}, nil); err != nil {
		return err
	}

	return f.waitIdle(2 * time.Second)
}

func (f *Flash) EraseBlock(address uint32) error {
	if err := f.writeEnable(); err != nil {
		return err
	}

	var cmd [4]byte
	binary.BigEndian.PutUint32(cmd[:], address)
	cmd[0] = f.device.opcodeBlockErase

	if err := f.command(cmd[:], nil); err != nil {
		return err
	}

	return f.waitIdle(2 * time.Second)
}

func (f *Flash) write(offset uint32, data []byte) (int, error) {
	/* A program cycle must not cross a page boundary */
	if maxLen := pageCrossLength(offset, f.device.pageSize); len(data) > maxLen {
		data = data[:maxLen]
	}

	/* Erased flash is all ones, skip leading and trailing 0xFF runs */
	skippedFront := 0
	for skippedFront < len(data) && data[skippedFront] == 0xFF {
		skippedFront++
	}
	offset += uint32(skippedFront)
	data = data[skippedFront:]

	skippedEnd := 0
	for len(data) > 0 && data[len(data)-1] == 0xFF {
		data = data[:len(data)-1]
		skippedEnd++
	}
	if len(data) == 0 {
		return skippedFront + skippedEnd, nil
	}

	cmd := make([]byte, 4, 4+len(data))
	binary.BigEndian.PutUint32(cmd, offset)
	cmd[0] = opPageProgram
	cmd = append(cmd, data...)

	if err := f.writeEnable(); err != nil {
		return 0, err
	}

	if err := f.command(cmd, nil); err != nil {
		return 0, err
	}

	if err := f.waitIdle(time.Second); err != nil {
		return 0, err
	}

	return skippedFront + skippedEnd + len(data), nil
}

func (f *Flash) Write(offset uint32, data []byte) (int, error) {
	return completeIO(offset, data, f.write)
}

func (f *Flash) read(offset uint32, data []byte) (int, error) {
	if len(data) > int(f.device.pageSize) {
		data = data[:f.device.pageSize]
	}

	var cmd [4]byte
	binary.BigEndian.PutUint32(cmd[:], offset)
	cmd[0] = opRead

	if err := f.command(cmd[:], data); err != nil {
		return 0, err
	}

	return len(data), nil
}

func (f *Flash) Read(offset uint32, data []byte) (int, error) {
	return completeIO(offset, data, f.read)
}
