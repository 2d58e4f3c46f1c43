package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/waftester/webscan/pkg/duration"
	"github.com/waftester/webscan/pkg/mcpserver"
)

// EnvMCPAddr sets the HTTP listen address when --http is not given.
const EnvMCPAddr = "WEBSCAN_MCP_ADDR"

func (a *app) mcpCmd() *cobra.Command {
	var httpAddr string
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the capabilities as MCP tools",
		Long: `Starts a Model Context Protocol server exposing the scan, discover,
probe and capabilities tools. Stdio is the default transport; --http
serves streamable HTTP and SSE instead. Every tool call gets its own
budget, built from the global flags and --config profile.`,
		Example: `  webscan mcp
  webscan mcp --http :8080 --rate 20 --max-requests 5000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return fail(err)
			}
			if httpAddr == "" {
				httpAddr = a.getenv(EnvMCPAddr)
			}

			parent := cmd.Context()
			if parent == nil {
				parent = context.Background()
			}
			ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := a.start(ctx, cfg)
			if err != nil {
				return fail(err)
			}
			defer rt.Close()

			srv := mcpserver.New(&mcpserver.Config{
				Budget:         cfg.Budget,
				SessionOptions: rt.sessionOptions(),
				Logger:         rt.logger,
			})
			if httpAddr == "" {
				if err := srv.RunStdio(ctx); err != nil && !errors.Is(err, context.Canceled) {
					return fail(err)
				}
				return nil
			}
			return serveHTTP(ctx, srv, httpAddr, a.stderr)
		},
	}
	cmd.Flags().StringVar(&httpAddr, "http", "", "Serve HTTP on this address instead of stdio (e.g. :8080)")
	return cmd
}

func serveHTTP(ctx context.Context, srv *mcpserver.Server, addr string, w io.Writer) error {
	hs := &http.Server{
		Addr:        addr,
		Handler:     srv.HTTPHandler(),
		ReadTimeout: duration.ServerRead,
	}
	errc := make(chan error, 1)
	go func() { errc <- hs.ListenAndServe() }()
	srv.MarkReady()
	fmt.Fprintf(w, "MCP server listening on %s\n", addr)

	select {
	case err := <-errc:
		return fail(fmt.Errorf("mcp: %w", err))
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), duration.ShutdownTimeout)
	defer cancel()
	if err := hs.Shutdown(shutdownCtx); err != nil {
		return fail(fmt.Errorf("mcp: shutdown: %w", err))
	}
	return nil
}
