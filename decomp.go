package drpm

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
	"github.com/ulikunitz/xz/lzma"
)

var (
	magicGzip  = []byte{0x1f, 0x8b}
	magicBzip2 = []byte{'B', 'Z', 'h'}
	magicXZ    = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}
	magicLzma  = []byte{0x5d, 0x00, 0x00}
	magicZstd  = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// decompStream reads the compressed region of a delta. The algorithm is
// detected from the leading bytes; a region matching no known magic is
// read as is.
type decompStream struct {
	z     io.Reader
	comp  Compression
	close func() error
}

func openStream(r io.Reader) (*decompStream, error) {
	var (
		br       = bufio.NewReader(r)
		magic, _ = br.Peek(6)
		s        = decompStream{comp: CompNone, z: br}
	)
	switch {
	case bytes.HasPrefix(magic, magicGzip):
		z, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFormat, err)
		}
		s.comp, s.z, s.close = CompGzip, z, z.Close
	case bytes.HasPrefix(magic, magicBzip2):
		z, err := bzip2.NewReader(br, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFormat, err)
		}
		s.comp, s.z, s.close = CompBzip2, z, z.Close
	case bytes.HasPrefix(magic, magicXZ):
		z, err := xz.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFormat, err)
		}
		s.comp, s.z = CompXZ, z
	case bytes.HasPrefix(magic, magicLzma):
		z, err := lzma.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFormat, err)
		}
		s.comp, s.z = CompLZMA, z
	case bytes.HasPrefix(magic, magicZstd):
		z, err := zstd.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFormat, err)
		}
		s.comp, s.z = CompZstd, z
		s.close = func() error {
			z.Close()
			return nil
		}
	}
	return &s, nil
}

func (s *decompStream) read(p []byte) error {
	if _, err := io.ReadFull(s.z, p); err != nil {
		return eofFormat(err)
	}
	return nil
}

func (s *decompStream) be32() (uint32, error) {
	var buf [4]byte
	if err := s.read(buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

func (s *decompStream) be64() (uint64, error) {
	var buf [8]byte
	if err := s.read(buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}

// blob reads a length-prefixed byte sequence. A zero length yields an
// empty, non-nil slice.
func (s *decompStream) blob() ([]byte, error) {
	n, err := s.be32()
	if err != nil {
		return nil, err
	}
	p := make([]byte, n)
	if err := s.read(p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *decompStream) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}
