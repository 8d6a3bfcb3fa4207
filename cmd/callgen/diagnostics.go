package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"callgen/internal/buildpipeline"
	"callgen/internal/diag"
	"callgen/internal/diagfmt"
	"callgen/internal/project"
)

// errDiagnostics fails a command whose diagnostics were already printed.
var errDiagnostics = errors.New("lowering reported errors")

// printDiagnostics writes bag to the command's stderr in --diag-format.
// It reports whether bag holds errors.
func printDiagnostics(cmd *cobra.Command, bag *diag.Bag) (bool, error) {
	if bag == nil || bag.Len() == 0 {
		return false, nil
	}
	out := cmd.ErrOrStderr()
	switch format := strings.ToLower(flagString(cmd, "diag-format")); format {
	case "json":
		if err := diagfmt.JSON(out, bag, diagfmt.JSONOpts{PathMode: diagfmt.PathModeRelative, IncludeNotes: true}); err != nil {
			return false, err
		}
	case "pretty", "":
		opts := diagfmt.PrettyOpts{Color: !color.NoColor, PathMode: diagfmt.PathModeRelative, ShowNotes: true}
		if err := diagfmt.Pretty(out, bag, opts); err != nil {
			return false, err
		}
	default:
		return false, fmt.Errorf("unsupported --diag-format %q (expected pretty|json)", format)
	}
	return bag.HasErrors(), nil
}

// pipelineRequest builds a request from the root flags.
func pipelineRequest(cmd *cobra.Command) *buildpipeline.Request {
	return &buildpipeline.Request{
		ManifestPath:   flagString(cmd, "manifest"),
		Jobs:           flagInt(cmd, "jobs"),
		MaxDiagnostics: flagInt(cmd, "max-diagnostics"),
		Timings:        flagBool(cmd, "timings"),
	}
}

// loadProgram resolves the manifest of req, printing its diagnostics when
// it is rejected.
func loadProgram(cmd *cobra.Command, req *buildpipeline.Request) (*project.Program, error) {
	prog, bag, err := buildpipeline.Load(req)
	if errors.Is(err, buildpipeline.ErrManifest) {
		if _, perr := printDiagnostics(cmd, bag); perr != nil {
			return nil, perr
		}
		return nil, errDiagnostics
	}
	if err != nil {
		return nil, err
	}
	return prog, nil
}

func warnf(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "%s %s\n", color.New(color.FgYellow, color.Bold).Sprint("warning:"), fmt.Sprintf(format, args...))
}
