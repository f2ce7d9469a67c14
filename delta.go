package drpm

import (
	"encoding/hex"

	"github.com/midbel/drpm/internal/rpm"
)

// deltarpm is the parse-time record. It is populated field by field while
// reading and projected into a Delta once the whole file has been
// validated.
type deltarpm struct {
	filename string
	typ      Type
	version  int
	comp     Compression

	srcNEVR      string
	sequence     []byte
	tgtMD5       []byte
	tgtSize      uint32
	tgtComp      Compression
	tgtCompLevel int
	tgtCompParam []byte
	tgtHeaderLen uint32
	offadjElems  []uint32
	tgtLeadSig   []byte

	payloadFmtOff uint32
	intCopies     []uint32
	extCopies     []uint32
	extDataLen    uint64
	addData       []byte
	intDataLen    uint64
	intData       []byte

	// exactly one of the two is set, depending on typ
	tgtRPM  *rpm.Package
	tgtNEVR string
}

// Delta is the caller visible form of a parsed delta. Binary fields are
// hex encoded; the copy and adjustment tables hold two words per element,
// pair by pair (first member, then second member), with signed slots in
// two's complement.
type Delta struct {
	Filename string
	Type     Type
	Version  int
	Comp     Compression

	SrcNEVR string
	TgtNEVR string

	Sequence     string
	TgtMD5       string
	TgtSize      uint32
	TgtComp      Compression
	TgtCompParam string
	TgtHeaderLen uint32
	TgtLeadSig   string

	PayloadFormatOffset uint32
	OffadjElems         []uint32
	IntCopies           []uint32
	ExtCopies           []uint32
	ExtDataLen          uint64
	IntDataLen          uint64
}

func (d *deltarpm) export() *Delta {
	v := Delta{
		Filename:            d.filename,
		Type:                d.typ,
		Version:             d.version,
		Comp:                d.comp,
		SrcNEVR:             d.srcNEVR,
		Sequence:            hex.EncodeToString(d.sequence),
		TgtMD5:              hex.EncodeToString(d.tgtMD5),
		TgtSize:             d.tgtSize,
		TgtComp:             d.tgtComp,
		TgtCompParam:        hex.EncodeToString(d.tgtCompParam),
		TgtHeaderLen:        d.tgtHeaderLen,
		TgtLeadSig:          hex.EncodeToString(d.tgtLeadSig),
		PayloadFormatOffset: d.payloadFmtOff,
		ExtDataLen:          d.extDataLen,
		IntDataLen:          d.intDataLen,
	}
	v.OffadjElems = append([]uint32(nil), d.offadjElems...)
	v.IntCopies = append([]uint32(nil), d.intCopies...)
	v.ExtCopies = append([]uint32(nil), d.extCopies...)
	if d.typ == Standard {
		v.TgtNEVR = d.tgtRPM.NEVR()
	} else {
		v.TgtNEVR = d.tgtNEVR
	}
	return &v
}
