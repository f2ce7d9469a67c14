package rpm

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

const MagicRPM = 0xedabeedb

// lead (96 bytes) plus the fixed part of the signature header
const LeadSigMinLen = 112

var ErrMalformed = errors.New("rpm: malformed package")

const (
	magicHeader = 0x8eade801

	rpmMajor    = 3
	rpmSigType  = 5
	rpmLeadLen  = 96
	rpmEntryLen = 16
)

// bounds on the header geometry; a real header stays far below both
const (
	maxEntries = 1 << 20
	maxStore   = 1 << 28
)

const (
	rpmTagPackage    = 1000
	rpmTagVersion    = 1001
	rpmTagRelease    = 1002
	rpmTagEpoch      = 1003
	rpmTagSummary    = 1004
	rpmTagDesc       = 1005
	rpmTagLicense    = 1014
	rpmTagGroup      = 1016
	rpmTagArch       = 1022
	rpmTagPayload    = 1124
	rpmTagCompressor = 1125
)

// the only entry kinds the delta reader consumes; everything else in the
// store is skipped
const (
	fieldInt32      = 4
	fieldString     = 6
	fieldI18NString = 9
)

type Package struct {
	Name    string
	Version string
	Release string
	Epoch   int64
	Arch    string
	Summary string
	Desc    string
	License string
	Section string

	PayloadFormat string
	Compressor    string

	hasEpoch bool
	sig      int64
	meta     int64
}

// Read parses the lead, signature and metadata header of an RPM package.
// The payload, when present, is left untouched.
func Read(file string) (*Package, error) {
	r, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return readPackage(r)
}

func readPackage(r io.Reader) (*Package, error) {
	var p Package
	if err := readLead(r); err != nil {
		return nil, err
	}
	n, err := readHeader(r, true, nil)
	if err != nil {
		return nil, err
	}
	p.sig = n
	n, err = readHeader(r, false, func(tag int32, v interface{}) error {
		switch tag {
		case rpmTagPackage:
			p.Name = v.(string)
		case rpmTagVersion:
			p.Version = v.(string)
		case rpmTagRelease:
			p.Release = v.(string)
		case rpmTagEpoch:
			if xs, ok := v.([]int64); ok && len(xs) > 0 {
				p.Epoch, p.hasEpoch = xs[0], true
			}
		case rpmTagSummary:
			p.Summary = v.(string)
		case rpmTagDesc:
			p.Desc = v.(string)
		case rpmTagLicense:
			p.License = v.(string)
		case rpmTagGroup:
			p.Section = v.(string)
		case rpmTagArch:
			p.Arch = v.(string)
		case rpmTagPayload:
			p.PayloadFormat = v.(string)
		case rpmTagCompressor:
			p.Compressor = v.(string)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	p.meta = n
	return &p, nil
}

// SizeFull reports the total length in bytes of the lead, signature and
// metadata header, i.e. the offset at which the payload begins.
func (p *Package) SizeFull() int64 {
	return rpmLeadLen + p.sig + p.meta
}

// NEVR formats the name-epoch:version-release identifier of the package.
// The epoch is included only when the header carries one.
func (p *Package) NEVR() string {
	if p.hasEpoch {
		return fmt.Sprintf("%s-%d:%s-%s", p.Name, p.Epoch, p.Version, p.Release)
	}
	return fmt.Sprintf("%s-%s-%s", p.Name, p.Version, p.Release)
}

// readLead consumes the fixed 96 byte lead. Of its fields only the
// magic, the format version and the signature type gate the parse; the
// delta reader has no use for the rest.
func readLead(r io.Reader) error {
	var lead [rpmLeadLen]byte
	if _, err := io.ReadFull(r, lead[:]); err != nil {
		return shortRead(err)
	}
	if m := binary.BigEndian.Uint32(lead[:4]); m != MagicRPM {
		return fmt.Errorf("%w: invalid magic %08x", ErrMalformed, m)
	}
	if lead[4] != rpmMajor {
		return fmt.Errorf("%w: unsupported version %d.%d", ErrMalformed, lead[4], lead[5])
	}
	if s := binary.BigEndian.Uint16(lead[78:80]); s != rpmSigType {
		return fmt.Errorf("%w: invalid signature type %d", ErrMalformed, s)
	}
	return nil
}

// readHeader consumes one header section: the intro, the entry index and
// the store. Entries are handed to fn decoded; the signature section of
// a package is skipped by passing a nil fn. The count returned is the
// number of bytes consumed, store padding included.
func readHeader(r io.Reader, padding bool, fn func(tag int32, v interface{}) error) (int64, error) {
	if fn == nil {
		fn = func(int32, interface{}) error { return nil }
	}
	var intro [16]byte
	if _, err := io.ReadFull(r, intro[:]); err != nil {
		return 0, shortRead(err)
	}
	m := binary.BigEndian.Uint32(intro[:4])
	if m>>8 != magicHeader>>8 {
		return 0, fmt.Errorf("%w: invalid header %06x", ErrMalformed, m>>8)
	}
	if m&0xFF != magicHeader&0xFF {
		return 0, fmt.Errorf("%w: unsupported header version %d", ErrMalformed, m&0xFF)
	}
	var (
		count  = binary.BigEndian.Uint32(intro[8:12])
		length = binary.BigEndian.Uint32(intro[12:16])
	)
	if count > maxEntries || length > maxStore {
		return 0, fmt.Errorf("%w: invalid header geometry", ErrMalformed)
	}
	size := int64(length)
	if m := size % 8; padding && m != 0 {
		size += 8 - m
	}
	index := make([]byte, rpmEntryLen*int64(count))
	if _, err := io.ReadFull(r, index); err != nil {
		return 0, shortRead(err)
	}
	store := make([]byte, size)
	if _, err := io.ReadFull(r, store); err != nil {
		return 0, shortRead(err)
	}
	store = store[:length]
	for i := 0; i < len(index); i += rpmEntryLen {
		var (
			tag  = int32(binary.BigEndian.Uint32(index[i:]))
			kind = binary.BigEndian.Uint32(index[i+4:])
			off  = binary.BigEndian.Uint32(index[i+8:])
			n    = binary.BigEndian.Uint32(index[i+12:])
		)
		v, err := decodeEntry(store, kind, off, n)
		if err != nil {
			return 0, err
		}
		if v == nil {
			continue
		}
		if err := fn(tag, v); err != nil {
			return 0, err
		}
	}
	return 16 + int64(len(index)) + size, nil
}

// decodeEntry extracts one store entry. Strings run from their offset to
// the next NUL; int32 arrays are bounds checked against the store. Entry
// kinds the delta reader never looks at decode to nil.
func decodeEntry(store []byte, kind, off, count uint32) (interface{}, error) {
	if int64(off) > int64(len(store)) {
		return nil, fmt.Errorf("%w: entry outside store", ErrMalformed)
	}
	data := store[off:]
	switch kind {
	case fieldInt32:
		if count == 0 || int64(count)*4 > int64(len(data)) {
			return nil, fmt.Errorf("%w: short entry", ErrMalformed)
		}
		vs := make([]int64, count)
		for i := range vs {
			vs[i] = int64(int32(binary.BigEndian.Uint32(data[4*i:])))
		}
		return vs, nil
	case fieldString, fieldI18NString:
		ix := bytes.IndexByte(data, 0)
		if ix < 0 {
			return nil, fmt.Errorf("%w: unterminated string", ErrMalformed)
		}
		return string(data[:ix]), nil
	default:
		return nil, nil
	}
}

func shortRead(err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return fmt.Errorf("%w: unexpected end of file", ErrMalformed)
	}
	return err
}
