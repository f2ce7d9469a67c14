package drpm

import (
	"encoding/binary"
	"fmt"
	"io"
)

func readBe32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, eofFormat(err)
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

func readBe64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, eofFormat(err)
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}

func eofFormat(err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return fmt.Errorf("%w: unexpected end of file", ErrFormat)
	}
	return err
}

// signedMagnitude rewrites the wire form of signed fields (sign bit in the
// MSB, magnitude in the low 31 bits) into two's complement in the same
// 32-bit slot.
func signedMagnitude(v uint32) uint32 {
	if v&0x80000000 == 0 {
		return v
	}
	return -(v ^ 0x80000000)
}
