package drpm

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
)

const testNEVR = "foo-1.0-1.x86_64"

func TestOpenRPMOnly(t *testing.T) {
	file := writeRPMOnly(t, testNEVR, nil, gz(t, writeBody(validBody('3'))))
	d, err := Open(file)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if d.Type != RPMOnly {
		t.Errorf("type: got %s, want rpm-only", d.Type)
	}
	if d.Version != 3 {
		t.Errorf("version: got %d, want 3", d.Version)
	}
	if d.Comp != CompGzip {
		t.Errorf("compression: got %s, want gzip", d.Comp)
	}
	if d.TgtNEVR != testNEVR {
		t.Errorf("target nevr: got %q", d.TgtNEVR)
	}
	if d.SrcNEVR != "bar-0.9-1.x86_64" {
		t.Errorf("source nevr: got %q", d.SrcNEVR)
	}
	if d.TgtSize != 0x100 || d.TgtHeaderLen != 0x50 {
		t.Errorf("scalars: size %d, header %d", d.TgtSize, d.TgtHeaderLen)
	}
	if d.TgtComp != CompGzip {
		t.Errorf("target compression: got %s", d.TgtComp)
	}
	if len(d.OffadjElems) != 0 || len(d.IntCopies) != 0 || len(d.ExtCopies) != 0 {
		t.Errorf("tables not empty")
	}
	if len(d.Sequence) != 32 {
		t.Errorf("sequence: got %d hex chars, want 32", len(d.Sequence))
	}
	if len(d.TgtMD5) != 32 {
		t.Errorf("md5: got %d hex chars, want 32", len(d.TgtMD5))
	}
	if len(d.TgtLeadSig) != 2*112 {
		t.Errorf("leadsig: got %d hex chars", len(d.TgtLeadSig))
	}
}

func TestOpenStandard(t *testing.T) {
	head := rpmHead(t, "gzip", false)
	for _, version := range []byte{'1', '2', '3'} {
		body := validBody(version)
		file := writeFile(t, append(append([]byte{}, head...), gz(t, writeBody(body))...))
		d, err := Open(file)
		if err != nil {
			t.Fatalf("v%c: open: %v", version, err)
		}
		if d.Type != Standard {
			t.Errorf("v%c: type: got %s", version, d.Type)
		}
		if d.Version != int(version-'0') {
			t.Errorf("v%c: version: got %d", version, d.Version)
		}
		if d.TgtNEVR != "foo-1.0-1" {
			t.Errorf("v%c: target nevr: got %q", version, d.TgtNEVR)
		}
		if d.TgtComp != CompGzip {
			t.Errorf("v%c: target compression: got %s", version, d.TgtComp)
		}
		if version == '1' && d.TgtHeaderLen != 0 {
			t.Errorf("v1: target header: got %d", d.TgtHeaderLen)
		}
	}
}

func TestOpenStandardCompFromHeader(t *testing.T) {
	// a v1 delta carries no compression descriptor: the target
	// compression comes from the enclosed header
	head := rpmHead(t, "xz", false)
	file := writeFile(t, append(append([]byte{}, head...), gz(t, writeBody(validBody('1')))...))
	d, err := Open(file)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if d.TgtComp != CompXZ {
		t.Errorf("target compression: got %s, want xz", d.TgtComp)
	}
}

func TestOpenStandardEpoch(t *testing.T) {
	head := rpmHead(t, "gzip", true)
	file := writeFile(t, append(append([]byte{}, head...), gz(t, writeBody(validBody('3')))...))
	d, err := Open(file)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if d.TgtNEVR != "foo-2:1.0-1" {
		t.Errorf("target nevr: got %q, want epoch included", d.TgtNEVR)
	}
}

func TestOpenOffadjSigned(t *testing.T) {
	body := validBody('3')
	body.offadj = []uint32{7, 0x80000005}
	file := writeRPMOnly(t, testNEVR, nil, gz(t, writeBody(body)))
	d, err := Open(file)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if len(d.OffadjElems) != 2 {
		t.Fatalf("offadj: got %d words", len(d.OffadjElems))
	}
	if d.OffadjElems[0] != 7 {
		t.Errorf("offadj count: got %d", d.OffadjElems[0])
	}
	if got := int32(d.OffadjElems[1]); got != -5 {
		t.Errorf("offadj delta: got %d, want -5", got)
	}
}

func TestOpenCopies(t *testing.T) {
	body := validBody('3')
	body.intCopies = []uint32{1, 4, 2, 6}
	body.extCopies = []uint32{2, 8, 0x80000004, 2}
	body.extLen = 10
	body.intData = bytes.Repeat([]byte{0x42}, 10)
	file := writeRPMOnly(t, testNEVR, nil, gz(t, writeBody(body)))
	d, err := Open(file)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	want := []uint32{1, 4, 2, 6}
	for i, v := range want {
		if d.IntCopies[i] != v {
			t.Errorf("int copies[%d]: got %d, want %d", i, d.IntCopies[i], v)
		}
	}
	if got := int32(d.ExtCopies[2]); got != -4 {
		t.Errorf("ext copies[2]: got %d, want -4", got)
	}
	if d.ExtCopies[0] != 2 || d.ExtCopies[1] != 8 || d.ExtCopies[3] != 2 {
		t.Errorf("ext copies: got %v", d.ExtCopies)
	}
}

func TestOpenFormatErrors(t *testing.T) {
	data := []struct {
		name string
		body func() bodyParams
	}{
		{
			name: "sequence too short",
			body: func() bodyParams {
				p := validBody('3')
				p.seq = make([]byte, 15)
				return p
			},
		},
		{
			name: "rpm-only sequence too long",
			body: func() bodyParams {
				p := validBody('3')
				p.seq = make([]byte, 17)
				return p
			},
		},
		{
			name: "leadsig too short",
			body: func() bodyParams {
				p := validBody('3')
				p.leadsig = bytes.Repeat([]byte{0xAA}, 111)
				return p
			},
		},
		{
			name: "rpm-only without target header",
			body: func() bodyParams {
				p := validBody('3')
				p.tgtHeaderLen = 0
				return p
			},
		},
		{
			name: "rpm-only with add data in stream",
			body: func() bodyParams {
				p := validBody('3')
				p.addData = []byte("spurious")
				return p
			},
		},
		{
			name: "unknown compression descriptor",
			body: func() bodyParams {
				p := validBody('3')
				p.packed = 0x63
				return p
			},
		},
		{
			name: "internal copy overflow",
			body: func() bodyParams {
				p := validBody('3')
				p.intCopies = []uint32{0, 11}
				p.intData = make([]byte, 10)
				return p
			},
		},
		{
			name: "external copy overflow",
			body: func() bodyParams {
				p := validBody('3')
				p.extCopies = []uint32{0, 11}
				p.extLen = 10
				return p
			},
		},
		{
			name: "external copy zero sum",
			body: func() bodyParams {
				p := validBody('3')
				p.extCopies = []uint32{0, 0}
				p.extLen = 10
				return p
			},
		},
		{
			name: "external copy negative sum",
			body: func() bodyParams {
				p := validBody('3')
				p.extCopies = []uint32{0x80000001, 2}
				p.extLen = 10
				return p
			},
		},
		{
			name: "unknown version",
			body: func() bodyParams {
				p := validBody('3')
				p.version = '4'
				return p
			},
		},
	}
	for _, c := range data {
		file := writeRPMOnly(t, testNEVR, nil, gz(t, writeBody(c.body())))
		_, err := Open(file)
		if !errors.Is(err, ErrFormat) {
			t.Errorf("%s: got %v, want format error", c.name, err)
		}
	}
}

func TestOpenTruncatedSequence(t *testing.T) {
	body := writeBody(validBody('3'))
	// cut the stream inside the sequence: 4 (version) + 4 + 16 (nevr) +
	// 4 (sequence length) + 8 of the 16 declared bytes
	file := writeRPMOnly(t, testNEVR, nil, gz(t, body[:36]))
	_, err := Open(file)
	if !errors.Is(err, ErrFormat) {
		t.Errorf("got %v, want format error", err)
	}
}

func TestOpenOverflow(t *testing.T) {
	body := validBody('3')
	body.intLenOverride = 0xFFFFFFFFFFFFFFFF
	file := writeRPMOnly(t, testNEVR, nil, gz(t, writeBody(body)))
	_, err := Open(file)
	if !errors.Is(err, ErrOverflow) {
		t.Errorf("got %v, want overflow error", err)
	}
}

func TestOpenBadMagic(t *testing.T) {
	_, err := Open(writeFile(t, []byte{0x00, 0x01, 0x02, 0x03}))
	if !errors.Is(err, ErrFormat) {
		t.Errorf("bad magic: got %v, want format error", err)
	}
	_, err = Open(writeFile(t, []byte{0x64, 0x72}))
	if !errors.Is(err, ErrFormat) {
		t.Errorf("short file: got %v, want format error", err)
	}
	_, err = Open(filepath.Join(t.TempDir(), "missing.drpm"))
	if err == nil || errors.Is(err, ErrFormat) {
		t.Errorf("missing file: got %v, want io error", err)
	}
}

func TestOpenBadSecondaryMagic(t *testing.T) {
	var w bytes.Buffer
	be32(&w, magicDRPM)
	be32(&w, 0x444C5432) // "DLT2": rpm-only framing is version 3 only
	_, err := Open(writeFile(t, w.Bytes()))
	if !errors.Is(err, ErrFormat) {
		t.Errorf("got %v, want format error", err)
	}
}

func TestOpenRPMOnlyAddData(t *testing.T) {
	add := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	file := writeRPMOnly(t, testNEVR, add, gz(t, writeBody(validBody('3'))))
	if _, err := Open(file); err != nil {
		t.Fatalf("open: %v", err)
	}
}

func TestOpenEmptyFilename(t *testing.T) {
	if _, err := Open(""); !errors.Is(err, ErrArgument) {
		t.Errorf("got %v, want argument error", err)
	}
}

// helpers

type bodyParams struct {
	version        byte
	srcNEVR        string
	seq            []byte
	md5            []byte
	tgtSize        uint32
	packed         uint32
	param          []byte
	tgtHeaderLen   uint32
	offadj         []uint32
	leadsig        []byte
	payloadOff     uint32
	intCopies      []uint32
	extCopies      []uint32
	extLen         uint64
	addData        []byte
	intData        []byte
	intLenOverride uint64
}

func validBody(version byte) bodyParams {
	p := bodyParams{
		version: version,
		srcNEVR: "bar-0.9-1.x86_64",
		seq:     bytes.Repeat([]byte{0x11}, 16),
		md5:     make([]byte, 16),
		leadsig: bytes.Repeat([]byte{0xAA}, 112),
	}
	if version >= '2' {
		p.tgtSize = 0x100
		p.packed = wireCompGz | 9<<8
	}
	if version == '3' {
		p.tgtHeaderLen = 0x50
	}
	return p
}

func writeBody(p bodyParams) []byte {
	var w bytes.Buffer
	be32(&w, magicDLT<<8|uint32(p.version))
	be32(&w, uint32(len(p.srcNEVR)))
	w.WriteString(p.srcNEVR)
	be32(&w, uint32(len(p.seq)))
	w.Write(p.seq)
	w.Write(p.md5)
	if p.version >= '2' {
		be32(&w, p.tgtSize)
		be32(&w, p.packed)
		be32(&w, uint32(len(p.param)))
		w.Write(p.param)
		if p.version >= '3' {
			be32(&w, p.tgtHeaderLen)
			be32(&w, uint32(len(p.offadj)/2))
			writeCols(&w, p.offadj)
		}
	}
	be32(&w, uint32(len(p.leadsig)))
	w.Write(p.leadsig)
	be32(&w, p.payloadOff)
	be32(&w, uint32(len(p.intCopies)/2))
	be32(&w, uint32(len(p.extCopies)/2))
	writeCols(&w, p.intCopies)
	writeCols(&w, p.extCopies)
	if p.version >= '3' {
		be64(&w, p.extLen)
	} else {
		be32(&w, uint32(p.extLen))
	}
	be32(&w, uint32(len(p.addData)))
	w.Write(p.addData)
	intLen := uint64(len(p.intData))
	if p.intLenOverride != 0 {
		intLen = p.intLenOverride
	}
	if p.version >= '3' {
		be64(&w, intLen)
	} else {
		be32(&w, uint32(intLen))
	}
	w.Write(p.intData)
	return w.Bytes()
}

// writeCols lays a pair table out in wire order: all first members of the
// pairs, then all second members.
func writeCols(w *bytes.Buffer, vs []uint32) {
	for i := 0; i < len(vs); i += 2 {
		be32(w, vs[i])
	}
	for i := 1; i < len(vs); i += 2 {
		be32(w, vs[i])
	}
}

func be32(w *bytes.Buffer, v uint32) {
	binary.Write(w, binary.BigEndian, v)
}

func be64(w *bytes.Buffer, v uint64) {
	binary.Write(w, binary.BigEndian, v)
}

func gz(t *testing.T, body []byte) []byte {
	t.Helper()
	var w bytes.Buffer
	z := gzip.NewWriter(&w)
	if _, err := z.Write(body); err != nil {
		t.Fatal(err)
	}
	if err := z.Close(); err != nil {
		t.Fatal(err)
	}
	return w.Bytes()
}

func writeRPMOnly(t *testing.T, nevr string, add, region []byte) string {
	t.Helper()
	var w bytes.Buffer
	be32(&w, magicDRPM)
	be32(&w, magicDLT3)
	be32(&w, uint32(len(nevr)))
	w.WriteString(nevr)
	be32(&w, uint32(len(add)))
	w.Write(add)
	w.Write(region)
	return writeFile(t, w.Bytes())
}

func writeFile(t *testing.T, data []byte) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), "delta.drpm")
	if err := os.WriteFile(file, data, 0644); err != nil {
		t.Fatal(err)
	}
	return file
}

// rpmHead builds the lead, an empty signature header and a metadata
// header the way a standard delta carries them in front of the
// compressed region.
func rpmHead(t *testing.T, compressor string, epoch bool) []byte {
	t.Helper()
	var w bytes.Buffer
	be32(&w, 0xedabeedb)
	w.Write([]byte{3, 0})       // major, minor
	w.Write([]byte{0, 0, 0, 1}) // type, arch
	var name [66]byte
	copy(name[:], testNEVR)
	w.Write(name[:])
	w.Write([]byte{0, 1, 0, 5}) // os, signature type
	w.Write(make([]byte, 16))

	w.Write(rpmHeaderSection(nil, true))

	es := []rpmHdrEntry{
		rpmStr(1000, "foo"),
		rpmStr(1001, "1.0"),
		rpmStr(1002, "1"),
		rpmStr(1022, "x86_64"),
		rpmStr(1124, "cpio"),
		rpmStr(1125, compressor),
	}
	if epoch {
		es = append(es, rpmI32(1003, 2))
	}
	w.Write(rpmHeaderSection(es, false))
	return w.Bytes()
}

type rpmHdrEntry struct {
	tag   int32
	typ   uint32
	count int32
	data  []byte
}

func rpmStr(tag int32, v string) rpmHdrEntry {
	return rpmHdrEntry{tag: tag, typ: 6, count: 1, data: append([]byte(v), 0)}
}

func rpmI32(tag int32, v int32) rpmHdrEntry {
	var w bytes.Buffer
	binary.Write(&w, binary.BigEndian, v)
	return rpmHdrEntry{tag: tag, typ: 4, count: 1, data: w.Bytes()}
}

func rpmHeaderSection(es []rpmHdrEntry, pad bool) []byte {
	var (
		index bytes.Buffer
		store bytes.Buffer
	)
	for _, e := range es {
		if e.typ == 4 {
			for store.Len()%4 != 0 {
				store.WriteByte(0)
			}
		}
		binary.Write(&index, binary.BigEndian, e.tag)
		binary.Write(&index, binary.BigEndian, e.typ)
		binary.Write(&index, binary.BigEndian, int32(store.Len()))
		binary.Write(&index, binary.BigEndian, e.count)
		store.Write(e.data)
	}
	var w bytes.Buffer
	w.Write([]byte{0x8e, 0xad, 0xe8, 0x01})
	w.Write(make([]byte, 4))
	be32(&w, uint32(len(es)))
	be32(&w, uint32(store.Len()))
	w.Write(index.Bytes())
	w.Write(store.Bytes())
	if m := store.Len() % 8; pad && m != 0 {
		w.Write(make([]byte, 8-m))
	}
	return w.Bytes()
}
