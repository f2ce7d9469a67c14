package drpm

import "fmt"

type Compression uint8

const (
	CompNone Compression = iota
	CompGzip
	CompBzip2
	CompLZMA
	CompXZ
	CompZstd
)

func (c Compression) String() string {
	switch c {
	case CompNone:
		return "none"
	case CompGzip:
		return "gzip"
	case CompBzip2:
		return "bzip2"
	case CompLZMA:
		return "lzma"
	case CompXZ:
		return "xz"
	case CompZstd:
		return "zstd"
	default:
		return "unknown"
	}
}

// algorithm ids used by the packed compression descriptor: the low byte
// selects the algorithm, the next byte carries the level
const (
	wireCompUn      = 0
	wireCompGz      = 1
	wireCompBz      = 2
	wireCompGzRsync = 3
	wireCompBz17    = 4
	wireCompLzma    = 5
	wireCompXz      = 6
	wireCompZstd    = 7
)

func decodeComp(v uint32) (Compression, int, error) {
	level := int(v >> 8 & 0xFF)
	switch v & 0xFF {
	case wireCompUn:
		return CompNone, 0, nil
	case wireCompGz, wireCompGzRsync:
		return CompGzip, level, nil
	case wireCompBz, wireCompBz17:
		return CompBzip2, level, nil
	case wireCompLzma:
		return CompLZMA, level, nil
	case wireCompXz:
		return CompXZ, level, nil
	case wireCompZstd:
		return CompZstd, level, nil
	default:
		return 0, 0, fmt.Errorf("%w: unknown compression descriptor %#08x", ErrFormat, v)
	}
}

func compFromName(name string) (Compression, error) {
	switch name {
	case "", "gzip":
		// headers without a compressor tag mean gzip
		return CompGzip, nil
	case "bzip2":
		return CompBzip2, nil
	case "lzma":
		return CompLZMA, nil
	case "xz":
		return CompXZ, nil
	case "zstd":
		return CompZstd, nil
	default:
		return 0, fmt.Errorf("%w: unknown payload compressor %q", ErrFormat, name)
	}
}
