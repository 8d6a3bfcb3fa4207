package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"callgen/internal/buildpipeline"
	"callgen/internal/driver"
	"callgen/internal/project"
	"callgen/internal/ui"
)

func newSigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sig [flags]",
		Short: "Print the physical signature of every declared function",
		Long: `Expand the signature of every function declared in callgen.toml, plus any
function type given with --type, and print them as a table.

Types given with --type may name the manifest's nominal types. Without a
manifest only builtin types are available.`,
		Args: cobra.NoArgs,
		RunE: runSig,
	}
	cmd.Flags().StringArrayP("type", "t", nil, "also expand this function type (repeatable)")
	cmd.Flags().Bool("cache", false, "serve and store signatures in the user cache directory")
	cmd.Flags().BoolP("detail", "d", false, "print every physical parameter below the table")
	return cmd
}

func runSig(cmd *cobra.Command, _ []string) error {
	adhoc, err := cmd.Flags().GetStringArray("type")
	if err != nil {
		return err
	}
	uiValue := flagString(cmd, "ui")
	mode, err := readUIMode(uiValue, "--ui")
	if err != nil {
		return err
	}
	// the table goes to stdout; only show progress when asked to
	if mode == uiModeAuto {
		mode = uiModeOff
	}

	req := pipelineRequest(cmd)
	req.SigsOnly = true
	if flagBool(cmd, "cache") {
		cache, err := driver.OpenDiskCache("callgen")
		if err != nil {
			warnf(cmd.ErrOrStderr(), "signature cache disabled: %v", err)
		} else {
			req.Cache = cache
		}
	}

	prog, err := sigProgram(cmd, req, len(adhoc) > 0)
	if err != nil {
		return err
	}
	for i, src := range adhoc {
		if _, err := prog.AddFunc(fmt.Sprintf("type#%d", i+1), src); err != nil {
			return fmt.Errorf("--type %q: %w", src, err)
		}
	}

	res, err := runPipeline(cmd.Context(), mode, "signatures", prog, req)
	if err != nil {
		return err
	}
	hasErrors, err := printDiagnostics(cmd, res.Bag)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	rows := make([]ui.SigRow, 0, len(res.Lowered.Sigs))
	for _, s := range res.Lowered.Sigs {
		rows = append(rows, sigRow(prog, s))
	}
	fmt.Fprint(out, ui.RenderSigTable(rows, terminalWidth(), !color.NoColor))

	if flagBool(cmd, "detail") {
		head := color.New(color.Bold)
		for _, s := range res.Lowered.Sigs {
			if s.Text == "" {
				continue
			}
			fmt.Fprintf(out, "\n%s\n%s", head.Sprint(s.Func.Name), s.Text)
		}
	}
	if req.Timings {
		printStageTimings(cmd.ErrOrStderr(), res.Timings)
	}
	if hasErrors {
		return errDiagnostics
	}
	return nil
}

// sigProgram loads the manifest. When types were named on the command line
// and no manifest exists, it falls back to an empty one.
func sigProgram(cmd *cobra.Command, req *buildpipeline.Request, adhoc bool) (*project.Program, error) {
	if adhoc && req.ManifestPath == "" {
		if _, ok, err := project.FindManifest("."); err != nil {
			return nil, err
		} else if !ok {
			m, err := project.Parse(project.ManifestName, nil)
			if err != nil {
				return nil, err
			}
			return m.Program()
		}
	}
	return loadProgram(cmd, req)
}

func sigRow(prog *project.Program, s driver.SigResult) ui.SigRow {
	row := ui.SigRow{
		Name: s.Func.Name,
		Type: prog.Types.TypeString(s.Func.Type),
	}
	switch {
	case s.Text == "":
		row.Signature, row.Source = "-", "error"
	case s.FromDisk:
		row.Source = "disk"
	default:
		row.Source = "expanded"
	}
	if s.Text != "" {
		row.Signature, _, _ = strings.Cut(s.Text, "\n")
	}
	return row
}
