package rpm

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/midbel/tape/cpio"
	"github.com/ulikunitz/xz"
	"github.com/ulikunitz/xz/lzma"
)

type Resource struct {
	Name    string
	Size    int64
	ModTime time.Time
	Perm    int64
}

// List walks the cpio payload of a package and reports the files it
// carries. Only packages with an actual archive qualify; a delta keeps
// its payload elsewhere.
func List(file string) ([]Resource, error) {
	r, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	p, err := readPackage(r)
	if err != nil {
		return nil, err
	}
	if p.PayloadFormat != "" && p.PayloadFormat != "cpio" {
		return nil, fmt.Errorf("%w: unsupported payload format %q", ErrMalformed, p.PayloadFormat)
	}
	z, err := uncompress(r, p.Compressor)
	if err != nil {
		return nil, err
	}

	var (
		rc = cpio.NewReader(z)
		rs []Resource
	)
	for {
		h, err := rc.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		e := Resource{
			Name:    h.Filename,
			Size:    h.Size,
			ModTime: h.ModTime,
			Perm:    h.Mode,
		}
		rs = append(rs, e)
		if _, err := io.CopyN(io.Discard, rc, h.Size); err != nil {
			return nil, shortRead(err)
		}
	}
	return rs, nil
}

func uncompress(r io.Reader, compressor string) (io.Reader, error) {
	switch compressor {
	case "", "gzip":
		return gzip.NewReader(r)
	case "bzip2":
		return bzip2.NewReader(r, nil)
	case "lzma":
		return lzma.NewReader(r)
	case "xz":
		return xz.NewReader(r)
	case "zstd":
		z, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return z.IOReadCloser(), nil
	default:
		return nil, fmt.Errorf("%w: unsupported payload compressor %q", ErrMalformed, compressor)
	}
}
