// Package diagfmt renders diagnostic bags for terminals and tools.
package diagfmt

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fatih/color"

	"callgen/internal/diag"
	"callgen/internal/source"
)

// Pretty writes each diagnostic as
//
//	<file>:<line> (<entity>): <severity> <CODE>: <message>
//
// followed by its notes, indented.
func Pretty(w io.Writer, bag *diag.Bag, opts PrettyOpts) error {
	sevColor := map[diag.Severity]*color.Color{
		diag.SevError:   color.New(color.FgRed, color.Bold),
		diag.SevWarning: color.New(color.FgYellow, color.Bold),
		diag.SevInfo:    color.New(color.FgCyan, color.Bold),
	}
	locColor := color.New(color.Bold)
	noteColor := color.New(color.FgBlue)
	for _, c := range []*color.Color{sevColor[diag.SevError], sevColor[diag.SevWarning], sevColor[diag.SevInfo], locColor, noteColor} {
		if opts.Color {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}

	for _, d := range sorted(bag) {
		loc := prettyLoc(d.Primary, opts)
		sev := sevColor[d.Severity]
		if sev == nil {
			sev = sevColor[diag.SevInfo]
		}
		if _, err := fmt.Fprintf(w, "%s: %s %s: %s\n",
			locColor.Sprint(loc), sev.Sprint(d.Severity), d.Code.ID(), d.Message); err != nil {
			return err
		}
		if !opts.ShowNotes && d.Code != diag.ObsTimings {
			continue
		}
		for _, n := range d.Notes {
			where := ""
			if !n.Loc.IsZero() && n.Loc != d.Primary {
				where = " (" + prettyLoc(n.Loc, opts) + ")"
			}
			if _, err := fmt.Fprintf(w, "  %s%s %s\n", noteColor.Sprint("note:"), where, n.Msg); err != nil {
				return err
			}
		}
	}
	return nil
}

func prettyLoc(l source.Loc, opts PrettyOpts) string {
	l.File = formatPath(l.File, opts.PathMode, opts.BaseDir)
	return l.String()
}

func sorted(bag *diag.Bag) []diag.Diagnostic {
	if bag == nil {
		return nil
	}
	return bag.Items()
}

func formatPath(path string, mode PathMode, base string) string {
	if path == "" {
		return ""
	}
	switch mode {
	case PathModeAbsolute:
		if abs, err := filepath.Abs(path); err == nil {
			return abs
		}
	case PathModeRelative:
		if base == "" {
			base, _ = os.Getwd()
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return path
		}
		if rel, err := filepath.Rel(base, abs); err == nil {
			return rel
		}
	case PathModeBasename:
		return filepath.Base(path)
	}
	return path
}
