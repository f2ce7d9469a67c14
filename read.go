package drpm

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/midbel/drpm/internal/rpm"
)

const (
	magicDRPM = 0x6472706D // "drpm"
	magicDLT  = 0x444C54   // "DLT"
	magicDLT3 = 0x444C5433 // "DLT3"
)

const md5Len = 16

// sanity cap on declared table element counts; anything above cannot be
// backed by a real file and would otherwise translate into a giant
// allocation before the short read is noticed
const maxTableElems = 1 << 27

func readDelta(d *deltarpm, file string) error {
	if d == nil || file == "" {
		return ErrArgument
	}
	r, err := os.Open(file)
	if err != nil {
		return err
	}
	defer r.Close()

	d.filename = file
	if err := readSections(r, d); err != nil {
		*d = deltarpm{}
		return err
	}
	return nil
}

func readSections(r *os.File, d *deltarpm) error {
	magic, err := readBe32(r)
	if err != nil {
		return err
	}
	switch magic {
	case magicDRPM:
		d.typ = RPMOnly
		err = readRPMOnly(r, d)
	case rpm.MagicRPM:
		d.typ = Standard
		err = readStandard(r, d)
	default:
		return fmt.Errorf("%w: unrecognized magic %#08x", ErrFormat, magic)
	}
	if err != nil {
		return err
	}
	return readRest(r, d)
}

// readRPMOnly parses the uncompressed part specific to rpm-only deltas:
// the secondary magic, the target NEVR and the add data, all of which a
// standard delta keeps elsewhere.
func readRPMOnly(r io.Reader, d *deltarpm) error {
	magic, err := readBe32(r)
	if err != nil {
		return err
	}
	if magic != magicDLT3 {
		return fmt.Errorf("%w: bad delta magic %#08x", ErrFormat, magic)
	}
	n, err := readBe32(r)
	if err != nil {
		return err
	}
	nevr := make([]byte, n)
	if _, err := io.ReadFull(r, nevr); err != nil {
		return eofFormat(err)
	}
	d.tgtNEVR = string(nevr)

	if n, err = readBe32(r); err != nil {
		return err
	}
	d.addData = make([]byte, n)
	if _, err := io.ReadFull(r, d.addData); err != nil {
		return eofFormat(err)
	}
	return nil
}

// readStandard parses the enclosed RPM lead, signature and header and
// leaves the cursor at the start of the compressed region.
func readStandard(r io.ReadSeeker, d *deltarpm) error {
	pkg, err := rpm.Read(d.filename)
	if err != nil {
		if errors.Is(err, rpm.ErrMalformed) {
			return fmt.Errorf("%w: %v", ErrFormat, err)
		}
		return err
	}
	// older delta versions do not carry the target compression; it then
	// comes from the enclosed header
	comp, err := compFromName(pkg.Compressor)
	if err != nil {
		return err
	}
	d.tgtComp = comp
	if _, err := r.Seek(pkg.SizeFull(), io.SeekStart); err != nil {
		return err
	}
	d.tgtRPM = pkg
	return nil
}

// readRest parses the compressed region shared by both delta types.
func readRest(r io.Reader, d *deltarpm) error {
	strm, err := openStream(r)
	if err != nil {
		return err
	}
	defer strm.Close()

	version, err := strm.be32()
	if err != nil {
		return err
	}
	if version>>8 != magicDLT {
		return fmt.Errorf("%w: bad version magic %#08x", ErrFormat, version)
	}
	d.version = int(version&0xFF) - '0'
	if d.version < 1 || d.version > 3 {
		return fmt.Errorf("%w: unsupported delta version %q", ErrFormat, byte(version&0xFF))
	}
	if d.typ == RPMOnly && d.version < 3 {
		// rpm-only deltas exist only since version 3
		return fmt.Errorf("%w: rpm-only delta with version %d", ErrFormat, d.version)
	}
	d.comp = strm.comp

	nevr, err := strm.blob()
	if err != nil {
		return err
	}
	d.srcNEVR = string(nevr)

	// the sequence is an MD5 checksum followed, for standard deltas, by
	// the compressed order of the files in the archive
	seqLen, err := strm.be32()
	if err != nil {
		return err
	}
	if seqLen < md5Len || (d.typ == RPMOnly && seqLen != md5Len) {
		return fmt.Errorf("%w: invalid sequence length %d", ErrFormat, seqLen)
	}
	d.sequence = make([]byte, seqLen)
	if err := strm.read(d.sequence); err != nil {
		return err
	}

	d.tgtMD5 = make([]byte, md5Len)
	if err := strm.read(d.tgtMD5); err != nil {
		return err
	}

	if d.version >= 2 {
		if d.tgtSize, err = strm.be32(); err != nil {
			return err
		}
		packed, err := strm.be32()
		if err != nil {
			return err
		}
		if d.tgtComp, d.tgtCompLevel, err = decodeComp(packed); err != nil {
			return err
		}
		if d.tgtCompParam, err = strm.blob(); err != nil {
			return err
		}
		if d.version == 3 {
			if d.tgtHeaderLen, err = strm.be32(); err != nil {
				return err
			}
			count, err := strm.be32()
			if err != nil {
				return err
			}
			if d.offadjElems, err = readPairs(strm, count, false, true); err != nil {
				return err
			}
		}
	}

	if d.typ == RPMOnly && d.tgtHeaderLen == 0 {
		// rpm-only deltas carry the target header inside the diff
		return fmt.Errorf("%w: rpm-only delta without target header", ErrFormat)
	}

	leadLen, err := strm.be32()
	if err != nil {
		return err
	}
	if leadLen < rpm.LeadSigMinLen {
		return fmt.Errorf("%w: lead and signature too short (%d bytes)", ErrFormat, leadLen)
	}
	d.tgtLeadSig = make([]byte, leadLen)
	if err := strm.read(d.tgtLeadSig); err != nil {
		return err
	}

	if d.payloadFmtOff, err = strm.be32(); err != nil {
		return err
	}
	intCount, err := strm.be32()
	if err != nil {
		return err
	}
	extCount, err := strm.be32()
	if err != nil {
		return err
	}
	if d.intCopies, err = readPairs(strm, intCount, false, false); err != nil {
		return err
	}
	if d.extCopies, err = readPairs(strm, extCount, true, false); err != nil {
		return err
	}

	if d.extDataLen, err = readLen(strm, d.version); err != nil {
		return err
	}

	addLen, err := strm.be32()
	if err != nil {
		return err
	}
	if addLen > 0 {
		if d.typ == RPMOnly {
			// already delivered before the compressed region
			return fmt.Errorf("%w: unexpected add data in rpm-only delta", ErrFormat)
		}
		d.addData = make([]byte, addLen)
		if err := strm.read(d.addData); err != nil {
			return err
		}
	}

	if d.intDataLen, err = readLen(strm, d.version); err != nil {
		return err
	}
	if d.intDataLen > math.MaxInt {
		return fmt.Errorf("%w: internal data length %d", ErrOverflow, d.intDataLen)
	}
	if d.intDataLen > 0 {
		d.intData = make([]byte, d.intDataLen)
		if err := strm.read(d.intData); err != nil {
			return err
		}
	}
	return checkCopies(d)
}

// readPairs reads one copy or adjustment table. The wire layout is column
// major: all first members of the pairs come before all second members.
// Signed columns go through the sign-and-magnitude decoding.
func readPairs(s *decompStream, count uint32, signedEven, signedOdd bool) ([]uint32, error) {
	if count == 0 {
		return nil, nil
	}
	if count > maxTableElems {
		return nil, fmt.Errorf("%w: table of %d elements", ErrMemory, count)
	}
	vs := make([]uint32, 2*count)
	for i := 0; i < len(vs); i += 2 {
		v, err := s.be32()
		if err != nil {
			return nil, err
		}
		if signedEven {
			v = signedMagnitude(v)
		}
		vs[i] = v
	}
	for j := 1; j < len(vs); j += 2 {
		v, err := s.be32()
		if err != nil {
			return nil, err
		}
		if signedOdd {
			v = signedMagnitude(v)
		}
		vs[j] = v
	}
	return vs, nil
}

func readLen(s *decompStream, version int) (uint64, error) {
	if version == 3 {
		return s.be64()
	}
	v, err := s.be32()
	return uint64(v), err
}

// checkCopies walks both copy tables and verifies that no instruction
// reaches past the declared data lengths. The external walk runs on an
// unsigned accumulator: a negative running total wraps around and trips
// the upper bound.
func checkCopies(d *deltarpm) error {
	var off uint64
	for i := 1; i < len(d.intCopies); i += 2 {
		off += uint64(d.intCopies[i])
		if off > d.intDataLen {
			return fmt.Errorf("%w: internal copy outside internal data", ErrFormat)
		}
	}
	off = 0
	for i := 0; i < len(d.extCopies); i += 2 {
		off += uint64(int64(int32(d.extCopies[i])))
		if off > d.extDataLen {
			return fmt.Errorf("%w: external copy outside external data", ErrFormat)
		}
		off += uint64(d.extCopies[i+1])
		if off == 0 || off > d.extDataLen {
			return fmt.Errorf("%w: external copy outside external data", ErrFormat)
		}
	}
	return nil
}
