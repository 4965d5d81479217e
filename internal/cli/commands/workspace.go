package commands

import (
	"strconv"

	"github.com/leapstack-labs/dante/internal/cli/output"
	"github.com/spf13/cobra"
)

// NewWorkspaceCommand creates the workspace command group.
func NewWorkspaceCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workspace",
		Short: "Save, close or inspect the workspace image",
		Long: `Manage the workspace image. Use the global --workspace flag to load an
image before a subcommand runs.`,
	}

	cmd.AddCommand(newWorkspaceSaveCommand())
	cmd.AddCommand(newWorkspaceCloseCommand())
	cmd.AddCommand(newWorkspaceInfoCommand())

	return cmd
}

func newWorkspaceSaveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "save [path]",
		Short: "Save the session to an image",
		Long: `Save every table and view in the session to an image file. Without a path
the image given by --workspace is overwritten. The file is replaced only once
the new image is complete.`,
		Example: `  # Copy a workspace
  dante workspace save -w project.ddb backup.ddb

  # Persist a file-backed engine database as an image
  dante workspace save --database scratch.duckdb project.ddb`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			if err := cmdCtx.Bridge.SaveWorkspace(cmd.Context(), path); err != nil {
				return err
			}
			return reportWorkspace(cmdCtx, "saved workspace "+cmdCtx.Bridge.CurrentWorkspace())
		},
	}
}

func newWorkspaceCloseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "close",
		Short: "Remove every object from the session",
		Long: `Drop every table, view and variable in the session. With a file-backed
engine database (--database) this empties that database.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := cmdCtx.Bridge.CloseWorkspace(cmd.Context()); err != nil {
				return err
			}
			return reportWorkspace(cmdCtx, "closed workspace")
		},
	}
}

func newWorkspaceInfoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Describe the loaded workspace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			objects, err := cmdCtx.Bridge.ListObjects(cmd.Context())
			if err != nil {
				return err
			}

			r := cmdCtx.Renderer
			b := cmdCtx.Bridge
			if r.EffectiveMode() == output.ModeJSON {
				return r.JSON(map[string]any{
					"name":    b.WorkspaceName(),
					"path":    b.CurrentWorkspace(),
					"objects": len(objects),
				})
			}
			md := r.EffectiveMode() == output.ModeMarkdown
			r.Header(b.WorkspaceName())
			path := b.CurrentWorkspace()
			if path == "" {
				path = "(unsaved)"
			}
			r.Println(output.FormatKeyValue("Path", path, md))
			r.Println(output.FormatKeyValue("Objects", formatCount(len(objects)), md))
			return nil
		},
	}
}

func reportWorkspace(cmdCtx *CommandContext, msg string) error {
	r := cmdCtx.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(map[string]string{
			"name": cmdCtx.Bridge.WorkspaceName(),
			"path": cmdCtx.Bridge.CurrentWorkspace(),
		})
	}
	r.Success(msg)
	return nil
}

func formatCount(n int) string {
	if n == 1 {
		return "1 object"
	}
	return strconv.Itoa(n) + " objects"
}
