package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/leapstack-labs/dante/internal/bridge"
	"github.com/leapstack-labs/dante/internal/cli/config"
	"github.com/leapstack-labs/dante/internal/cli/output"
	"github.com/leapstack-labs/dante/internal/session"
	"github.com/spf13/cobra"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Bridge   *bridge.Bridge
	Renderer *output.Renderer
}

// NewCommandContext starts an engine session, loads the configured
// workspace into it and creates the renderer.
// Returns the context and a cleanup function that must be called (typically via defer).
func NewCommandContext(cmd *cobra.Command) (*CommandContext, func(), error) {
	cmdCtx := NewCommandContextWithoutBridge(cmd)
	cfg := cmdCtx.Cfg

	if cfg.HistoryPath != "" {
		if dir := filepath.Dir(cfg.HistoryPath); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, nil, fmt.Errorf("failed to create history directory: %w", err)
			}
		}
	}

	b, err := bridge.Open(cmd.Context(), bridge.Options{
		Engine: session.Options{
			Path:    cfg.Engine.Database,
			Threads: cfg.Engine.Threads,
			Logger:  cmdCtx.Logger,
		},
		HistoryPath: cfg.HistoryPath,
		Logger:      cmdCtx.Logger,
	})
	if err != nil {
		return nil, nil, err
	}

	if cfg.Workspace != "" {
		if err := b.LoadWorkspace(cmd.Context(), cfg.Workspace); err != nil {
			_ = b.Close()
			return nil, nil, err
		}
	}

	cleanup := func() {
		if err := b.Close(); err != nil {
			cmdCtx.Logger.Warn("failed to close session", "error", err)
		}
	}

	cmdCtx.Bridge = b
	return cmdCtx, cleanup, nil
}

// NewCommandContextWithoutBridge creates a CommandContext without an engine session.
// Useful for commands that only read files.
func NewCommandContextWithoutBridge(cmd *cobra.Command) *CommandContext {
	cfg := config.FromContext(cmd.Context())
	return &CommandContext{
		Cfg:      cfg,
		Logger:   config.GetLogger(cmd.Context()),
		Renderer: output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.ParseMode(cfg.OutputFormat)),
	}
}
