package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"cfnls/internal/lsp"
	"cfnls/internal/trace"
	"cfnls/internal/version"
)

var lspCmd = &cobra.Command{
	Use:          "lsp",
	Short:        "Run the language server over stdio",
	SilenceUsage: true,
	RunE:         runLSP,
}

func runLSP(cmd *cobra.Command, _ []string) error {
	st, err := loadStartup(cmd)
	if err != nil {
		return err
	}
	server := lsp.NewServer(os.Stdin, os.Stdout, lsp.ServerOptions{
		Settings: st.settings,
		Markers:  st.markers,
		Exclude:  st.exclude,
		Version:  version.Current().Version,
		Log:      cmd.ErrOrStderr(),
	})
	if st.file.Path != "" {
		trace.Point(trace.FromContext(cmd.Context()), trace.ScopeServer, "config", st.file.Path, 0)
	}
	return serveLSP(cmd.Context(), server, func() { dumpTraceRings(cmd) })
}

// serveLSP runs server until the client exits or disconnects, then waits for
// validator runs still in flight. onFailure runs for abnormal exits.
func serveLSP(ctx context.Context, server *lsp.Server, onFailure func()) error {
	err := server.Run(ctx)
	switch {
	case err == nil, errors.Is(err, lsp.ErrExit):
		server.Coordinator().Wait()
		return nil
	case errors.Is(err, lsp.ErrExitWithoutShutdown):
		onFailure()
		return fmt.Errorf("lsp exit without shutdown")
	default:
		onFailure()
		return err
	}
}
