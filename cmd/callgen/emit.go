package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"callgen/internal/driver"
)

func newEmitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "emit [flags]",
		Short: "Lower the manifest to an IR module",
		Long: `Expand every signature, emit a caller for each declared function and a
closure maker for each partial application, and print the module.

Functions that cannot be lowered are reported and left out; the rest of
the module is still emitted.`,
		Args: cobra.NoArgs,
		RunE: runEmit,
	}
	cmd.Flags().StringP("output", "o", "", "write the module to this file instead of stdout")
	cmd.Flags().Bool("summary", false, "list what was emitted or skipped for every function and partial")
	return cmd
}

func runEmit(cmd *cobra.Command, _ []string) error {
	mode, err := readUIMode(flagString(cmd, "ui"), "--ui")
	if err != nil {
		return err
	}
	req := pipelineRequest(cmd)
	req.OutputPath = flagString(cmd, "output")
	// the module itself goes to stdout without -o
	if req.OutputPath == "" && mode == uiModeAuto {
		mode = uiModeOff
	}

	prog, err := loadProgram(cmd, req)
	if err != nil {
		return err
	}
	res, err := runPipeline(cmd.Context(), mode, "emit", prog, req)
	if err != nil {
		return err
	}
	hasErrors, err := printDiagnostics(cmd, res.Bag)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if res.OutputPath == "" {
		fmt.Fprint(out, res.Lowered.Module.IR.String())
	} else {
		fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", res.OutputPath)
	}
	if flagBool(cmd, "summary") {
		printSummary(cmd, res.Lowered)
	}
	if req.Timings {
		printStageTimings(cmd.ErrOrStderr(), res.Timings)
	}
	if hasErrors {
		return errDiagnostics
	}
	return nil
}

func printSummary(cmd *cobra.Command, lowered *driver.Result) {
	w := cmd.ErrOrStderr()
	ok := color.New(color.FgGreen).Sprint("emitted")
	skip := color.New(color.FgYellow).Sprint("skipped")
	for _, c := range lowered.Callers {
		if c.Fn != nil {
			fmt.Fprintf(w, "%s %s\n", ok, c.Fn.Name)
		} else {
			fmt.Fprintf(w, "%s call.%s: %s\n", skip, c.Func.Name, c.Skipped)
		}
	}
	for _, p := range lowered.Partials {
		if p.Maker != nil {
			fmt.Fprintf(w, "%s %s (%s)\n", ok, p.Maker.Name, p.Built.Kind)
		} else {
			fmt.Fprintf(w, "%s make_%s: %s\n", skip, p.Partial.Name, p.Skipped)
		}
	}
}
