package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"cfnls/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "cfnls",
	Short: "CloudFormation language server backed by cfn-lint",
	Long: `cfnls runs cfn-lint on CloudFormation templates and reports its findings
as editor diagnostics (cfnls lsp) or on the terminal (cfnls lint).`,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		cleanup, err := setupTracing(cmd)
		if err != nil {
			return err
		}
		traceCleanup = cleanup
		return nil
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		runTraceCleanup()
	},
}

var traceCleanup func()

func runTraceCleanup() {
	if traceCleanup != nil {
		traceCleanup()
		traceCleanup = nil
	}
}

func main() {
	rootCmd.Version = version.Current().Version

	rootCmd.AddCommand(lspCmd)
	rootCmd.AddCommand(lintCmd)
	rootCmd.AddCommand(versionCmd)

	rootCmd.PersistentFlags().String("color", "auto", "colorize output (auto|on|off)")
	rootCmd.PersistentFlags().String("config", "", "path to cfnls.toml (default: search upwards from the working directory)")
	rootCmd.PersistentFlags().String("validator", "", "validator executable (overrides [validator].path)")
	rootCmd.PersistentFlags().String("trace", "", "write trace events to this file (- for stderr)")
	rootCmd.PersistentFlags().String("trace-level", "off", "trace level (off|error|event|run|debug)")
	rootCmd.PersistentFlags().String("trace-mode", "stream", "trace storage (stream|ring|both)")
	rootCmd.PersistentFlags().String("trace-format", "text", "trace output format (text|ndjson)")
	rootCmd.PersistentFlags().Int("trace-ring-size", 1024, "events kept in ring mode")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	// PersistentPostRun is skipped when RunE fails.
	runTraceCleanup()
	if err != nil {
		if !errors.Is(err, errDiagnosticsReported) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

// isTerminal reports whether f is attached to a terminal.
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// useColor resolves the --color flag. "auto" colours terminals unless
// NO_COLOR is set.
func useColor(mode string, f *os.File) (bool, error) {
	switch strings.ToLower(mode) {
	case "on", "always", "true":
		return true, nil
	case "off", "never", "false":
		return false, nil
	case "", "auto":
		if os.Getenv("NO_COLOR") != "" {
			return false, nil
		}
		return isTerminal(f), nil
	default:
		return false, fmt.Errorf("invalid --color value %q (expected auto|on|off)", mode)
	}
}
