package cli

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/slighter12/qualityos-mcp-go/logger"
	"github.com/slighter12/qualityos-mcp-go/mcp"
	"github.com/slighter12/qualityos-mcp-go/metrics"
	"github.com/slighter12/qualityos-mcp-go/rulecatalog"
	httptransport "github.com/slighter12/qualityos-mcp-go/transport/http"
	"github.com/slighter12/qualityos-mcp-go/transport/shared"
	"github.com/slighter12/qualityos-mcp-go/transport/stdio"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	var useStdio bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the quality tools over MCP",
		Long: `serve starts the MCP server. By default it listens for streamable HTTP on the
configured host and port and also serves the REST endpoints under /v1/quality.
With --stdio (or MCP_USE_STDIO=true) it speaks newline-delimited JSON-RPC on
stdin/stdout and logs to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if os.Getenv("MCP_USE_STDIO") == "true" {
				useStdio = true
			}
			if err := initLogger(cfg.Logging, useStdio); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var recorder *metrics.Recorder
			if cfg.Metrics.Enabled && !useStdio {
				recorder = metrics.NewRecorder()
			}
			rt, err := newEngineStack(cfg, recorder)
			if err != nil {
				return err
			}

			g, gctx := errgroup.WithContext(ctx)
			if cfg.RuleCatalog.AutoReload.Enabled {
				debounce := time.Duration(cfg.RuleCatalog.AutoReload.DebounceMillis) * time.Millisecond
				g.Go(func() error {
					return rt.catalog.Watch(gctx, debounce)
				})
			}

			if useStdio {
				logger.Info("Starting MCP server in stdio mode")
				server := stdio.NewStdioServer(rt.manager, shared.NewResourceReader(rt.runner))
				rt.catalog.Subscribe(func(rulecatalog.ReloadResult) {
					server.Notify(mcp.NotificationResourcesListChanged, nil)
				})
				g.Go(func() error {
					defer stop()
					return server.Start(gctx)
				})
			} else {
				logger.Info("Starting MCP server in Streamable HTTP mode", "port", cfg.Server.Port)
				server := httptransport.NewServer(cfg, rt.manager, rt.runner, recorder)
				g.Go(func() error {
					defer stop()
					return server.Start(gctx)
				})
			}

			if err := g.Wait(); err != nil {
				logger.Error("Server error", "error", err)
				return err
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&useStdio, "stdio", false, "Serve MCP over stdin/stdout instead of HTTP")
	return cmd
}
