package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/midbel/cli"
	"github.com/midbel/drpm"
	"github.com/midbel/drpm/internal/rpm"
	"github.com/midbel/textwrap"
)

var commands = []*cli.Command{
	{
		Usage:   "info <delta,...>",
		Short:   "print a one line summary of deltarpm files",
		Run:     runInfo,
		Default: true,
	},
	{
		Usage: "dump <delta,...>",
		Short: "dump every field of deltarpm files",
		Run:   runDump,
	},
	{
		Usage: "show <delta>",
		Short: "show target package information of a standard delta",
		Run:   runShow,
	},
	{
		Usage: "payload <package,...>",
		Short: "list files carried in the payload of rpm packages",
		Alias: []string{"content"},
		Run:   runPayload,
	},
}

func main() {
	cli.RunAndExit(commands, func() {})
}

func runInfo(cmd *cli.Command, args []string) error {
	if err := cmd.Flag.Parse(args); err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 12, 2, 2, ' ', 0)
	defer w.Flush()
	for _, a := range cmd.Flag.Args() {
		d, err := drpm.Open(a)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%s\tv%d\t%s\t%s\t%s\n", a, d.Type, d.Version, d.Comp, d.SrcNEVR, d.TgtNEVR)
	}
	return nil
}

func runDump(cmd *cli.Command, args []string) error {
	if err := cmd.Flag.Parse(args); err != nil {
		return err
	}
	for i, a := range cmd.Flag.Args() {
		if i > 0 {
			fmt.Fprintln(os.Stdout)
		}
		if err := drpm.Debug(a, os.Stdout); err != nil {
			return err
		}
	}
	return nil
}

func runShow(cmd *cli.Command, args []string) error {
	if err := cmd.Flag.Parse(args); err != nil {
		return err
	}
	d, err := drpm.Open(cmd.Flag.Arg(0))
	if err != nil {
		return err
	}
	if d.Type != drpm.Standard {
		return fmt.Errorf("%s: %s delta carries no separable target header", cmd.Flag.Arg(0), d.Type)
	}
	p, err := rpm.Read(cmd.Flag.Arg(0))
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 12, 2, 2, ' ', 0)
	fmt.Fprintf(w, "package\t%s\n", p.NEVR())
	fmt.Fprintf(w, "arch\t%s\n", p.Arch)
	fmt.Fprintf(w, "section\t%s\n", p.Section)
	fmt.Fprintf(w, "license\t%s\n", p.License)
	fmt.Fprintf(w, "summary\t%s\n", p.Summary)
	w.Flush()
	if p.Desc != "" {
		fmt.Fprintln(os.Stdout)
		fmt.Fprintln(os.Stdout, textwrap.Wrap(p.Desc))
	}
	return nil
}

func runPayload(cmd *cli.Command, args []string) error {
	if err := cmd.Flag.Parse(args); err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 12, 2, 2, ' ', 0)
	defer w.Flush()
	for _, a := range cmd.Flag.Args() {
		rs, err := rpm.List(a)
		if err != nil {
			return err
		}
		for _, r := range rs {
			fmt.Fprintf(w, "%o\t%d\t%s\t%s\n", r.Perm, r.Size, r.ModTime.Format("2006-01-02 15:04"), r.Name)
		}
	}
	return nil
}
