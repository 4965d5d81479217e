package commands

import (
	"strconv"

	"github.com/leapstack-labs/dante/internal/server"
	"github.com/spf13/cobra"
)

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the session over HTTP",
		Long: `Start an HTTP API over one engine session.

Endpoints:
  GET  /api/status                  busy flag (never waits for the engine)
  GET  /api/objects                 objects with class and dimensions
  GET  /api/objects/{name}          one object
  GET  /api/objects/{name}/table    table contents (?limit=N)
  GET  /api/tree                    workspace tree
  POST /api/imports                 run an import spec (JSON)
  GET  /api/workspace               current workspace
  POST /api/workspace/load|save     {"path": "..."}
  POST /api/workspace/close
  GET  /api/history                 recorded actions (?limit=N)
  GET  /api/events                  change events (SSE)
  GET  /metrics                     Prometheus metrics

Requests are served concurrently but reach the engine one at a time.`,
		Example: `  dante serve -w project.ddb --port 8765 --watch`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			cfg := cmdCtx.Cfg
			srv := server.New(server.Config{
				Backend:         cmdCtx.Bridge,
				Port:            cfg.Server.Port,
				ShutdownTimeout: cfg.Server.ShutdownTimeout,
				MaxConnections:  cfg.Server.MaxConnections,
				Watch:           cfg.Server.Watch,
				Logger:          cmdCtx.Logger,
			})
			cmdCtx.Renderer.Muted("serving " + cmdCtx.Bridge.WorkspaceName() + " on :" + strconv.Itoa(cfg.Server.Port))
			return srv.Serve(cmd.Context())
		},
	}

	cmd.Flags().Int("port", 0, "Port to listen on (default 8765)")
	cmd.Flags().Duration("shutdown-timeout", 0, "Graceful shutdown timeout (default 5s)")
	cmd.Flags().Int("max-connections", 0, "Maximum concurrent connections (default 64)")
	cmd.Flags().Bool("watch", false, "Broadcast an event when the workspace image changes on disk")

	return cmd
}
