// Package main implements the callgen CLI.
package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"callgen/internal/driver"
	"callgen/internal/prof"
	"callgen/internal/version"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "callgen",
		Short: "Lower function signatures, calls and partial applications",
		Long: `callgen reads a callgen.toml manifest of nominal types, function types and
partial applications and lowers them to physical signatures and IR.`,
		Version:           version.Version,
		SilenceUsage:      true,
		PersistentPreRunE: rootPreRun,
	}
	root.AddCommand(newSigCmd(), newEmitCmd(), newInitCmd(), newCacheCmd(), newVersionCmd())

	flags := root.PersistentFlags()
	flags.String("manifest", "", "path to callgen.toml (default: search up from the working directory)")
	flags.IntP("jobs", "j", 0, "parallel signature expansion jobs (0 = GOMAXPROCS)")
	flags.String("color", "auto", "colorize output (auto|on|off)")
	flags.String("ui", "auto", "progress UI (auto|on|off)")
	flags.Bool("timings", false, "show timing information")
	flags.Int("max-diagnostics", driver.DefaultMaxDiagnostics, "maximum number of diagnostics to collect")
	flags.String("diag-format", "pretty", "diagnostics format (pretty|json)")
	flags.String("trace", "", "trace output file (\"-\" for stderr)")
	flags.String("trace-level", "off", "trace level (off|error|phase|detail|debug)")
	flags.String("trace-mode", "stream", "trace storage (stream|ring|both)")
	flags.Int("trace-ring-size", 4096, "events kept by the ring tracer")
	flags.String("cpuprofile", "", "write a CPU profile to this file")
	flags.String("memprofile", "", "write a heap profile to this file on exit")
	flags.String("exec-trace", "", "write a Go runtime execution trace to this file")
	return root
}

// cleanup is set by rootPreRun and run once the command returns.
var cleanup = func() {}

// execute runs one command line against a fresh command tree.
func execute(args []string, stdout, stderr io.Writer) error {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	defer func() {
		cleanup()
		cleanup = func() {}
	}()
	return root.Execute()
}

func main() {
	if err := execute(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		os.Exit(1)
	}
}

func rootPreRun(cmd *cobra.Command, _ []string) error {
	value, err := cmd.Flags().GetString("color")
	if err != nil {
		return err
	}
	mode, err := readUIMode(value, "--color")
	if err != nil {
		return err
	}
	color.NoColor = !useColor(mode)

	session, err := prof.Start(prof.Options{
		CPU:   flagString(cmd, "cpuprofile"),
		Mem:   flagString(cmd, "memprofile"),
		Trace: flagString(cmd, "exec-trace"),
	})
	if err != nil {
		return fmt.Errorf("failed to start profiling: %w", err)
	}
	traceDone, err := setupTracing(cmd)
	if err != nil {
		_ = session.Stop()
		return err
	}
	errOut := cmd.ErrOrStderr()
	cleanup = func() {
		traceDone()
		if err := session.Stop(); err != nil {
			fmt.Fprintf(errOut, "profile: %v\n", err)
		}
	}
	return nil
}

// useColor resolves --color against the terminal on stdout.
func useColor(mode uiMode) bool {
	switch mode {
	case uiModeOn:
		return true
	case uiModeOff:
		return false
	}
	if strings.TrimSpace(os.Getenv("NO_COLOR")) != "" {
		return false
	}
	return isTerminal(os.Stdout)
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// terminalWidth is the width of stdout, or 0 when it is not a terminal.
func terminalWidth() int {
	if !isTerminal(os.Stdout) {
		return 0
	}
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 0
	}
	return w
}

func flagString(cmd *cobra.Command, name string) string {
	v, err := cmd.Flags().GetString(name)
	if err != nil {
		panic(fmt.Sprintf("flag %s: %v", name, err))
	}
	return v
}

func flagInt(cmd *cobra.Command, name string) int {
	v, err := cmd.Flags().GetInt(name)
	if err != nil {
		panic(fmt.Sprintf("flag %s: %v", name, err))
	}
	return v
}

func flagBool(cmd *cobra.Command, name string) bool {
	v, err := cmd.Flags().GetBool(name)
	if err != nil {
		panic(fmt.Sprintf("flag %s: %v", name, err))
	}
	return v
}
