/* Package image frames firmware for the flash: a small header, the
 * payload and a CRC trailer. Nothing gets programmed unless the frame
 * checks out. */
package image

import (
	"bytes"
	"encoding/binary"
	"errors"
)

var (
	ErrorInvalidLength = errors.New("image length is invalid")
	ErrorInvalidHeader = errors.New("image header is invalid")
	ErrorInvalidCRC    = errors.New("image crc is invalid")
)

var magic = []byte("KPFW")

const (
	headerSize  = 8
	trailerSize = 4
)

/* Validate checks the framing of a complete image. */
func Validate(buf []byte) error {
	if len(buf) < headerSize+trailerSize {
		return ErrorInvalidLength
	}

	if !bytes.Equal(buf[:4], magic) {
		return ErrorInvalidHeader
	}

	length := binary.BigEndian.Uint32(buf[4:])
	if int(length) != len(buf)-headerSize-trailerSize {
		return ErrorInvalidLength
	}

	body := buf[:len(buf)-trailerSize]
	if crcCalculate(body) != binary.BigEndian.Uint32(buf[len(body):]) {
		return ErrorInvalidCRC
	}

	return nil
}

/* Payload returns the firmware contained in a valid image. */
func Payload(buf []byte) ([]byte, error) {
	if err := Validate(buf); err != nil {
		return nil, err
	}

	return buf[headerSize : len(buf)-trailerSize], nil
}

/* Build frames a payload into an image that Validate accepts. */
func Build(payload []byte) []byte {
	out := make([]byte, headerSize, headerSize+len(payload)+trailerSize)

	copy(out, magic)
	binary.BigEndian.PutUint32(out[4:], uint32(len(payload)))
	out = append(out, payload...)

	var trailer [trailerSize]byte
	binary.BigEndian.PutUint32(trailer[:], crcCalculate(out))
	return append(out, trailer[:]...)
}
