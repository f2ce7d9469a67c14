package drpm

import (
	"fmt"
	"io"
	"text/tabwriter"
)

// Debug dumps every field of the delta stored in file, tables included.
func Debug(file string, w io.Writer) error {
	d, err := Open(file)
	if err != nil {
		return err
	}
	ws := tabwriter.NewWriter(w, 12, 2, 2, ' ', 0)
	fmt.Fprintf(ws, "file\t%s\n", d.Filename)
	fmt.Fprintf(ws, "type\t%s\n", d.Type)
	fmt.Fprintf(ws, "version\t%d\n", d.Version)
	fmt.Fprintf(ws, "compression\t%s\n", d.Comp)
	fmt.Fprintf(ws, "source\t%s\n", d.SrcNEVR)
	fmt.Fprintf(ws, "target\t%s\n", d.TgtNEVR)
	fmt.Fprintf(ws, "target size\t%d\n", d.TgtSize)
	fmt.Fprintf(ws, "target comp\t%s\n", d.TgtComp)
	if d.TgtCompParam != "" {
		fmt.Fprintf(ws, "target comp param\t%s\n", d.TgtCompParam)
	}
	fmt.Fprintf(ws, "target header\t%d\n", d.TgtHeaderLen)
	fmt.Fprintf(ws, "target md5\t%s\n", d.TgtMD5)
	fmt.Fprintf(ws, "sequence\t%s\n", d.Sequence)
	fmt.Fprintf(ws, "lead/signature\t%s\n", d.TgtLeadSig)
	fmt.Fprintf(ws, "payload offset\t%d\n", d.PayloadFormatOffset)
	fmt.Fprintf(ws, "external data\t%d\n", d.ExtDataLen)
	fmt.Fprintf(ws, "internal data\t%d\n", d.IntDataLen)
	dumpPairs(ws, "offset adjustments", d.OffadjElems, false, true)
	dumpPairs(ws, "internal copies", d.IntCopies, false, false)
	dumpPairs(ws, "external copies", d.ExtCopies, true, false)
	return ws.Flush()
}

func dumpPairs(w io.Writer, label string, vs []uint32, signedFirst, signedSecond bool) {
	fmt.Fprintf(w, "%s\t%d\n", label, len(vs)/2)
	for i := 0; i+1 < len(vs); i += 2 {
		a, b := int64(vs[i]), int64(vs[i+1])
		if signedFirst {
			a = int64(int32(vs[i]))
		}
		if signedSecond {
			b = int64(int32(vs[i+1]))
		}
		fmt.Fprintf(w, "\t%d %d\n", a, b)
	}
}
