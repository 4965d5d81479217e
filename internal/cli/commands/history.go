package commands

import (
	"time"

	"github.com/leapstack-labs/dante/internal/cli/output"
	"github.com/leapstack-labs/dante/pkg/core"
	"github.com/spf13/cobra"
)

// NewHistoryCommand creates the history command.
func NewHistoryCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded imports and workspace actions",
		Long:  `Show the most recent imports and workspace actions recorded in the history database, newest first.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			entries, err := cmdCtx.Bridge.History(limit)
			if err != nil {
				return err
			}
			return renderHistory(cmdCtx.Renderer, entries)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum entries to show")

	return cmd
}

func renderHistory(r *output.Renderer, entries []*core.HistoryEntry) error {
	if r.EffectiveMode() == output.ModeJSON {
		if entries == nil {
			entries = []*core.HistoryEntry{}
		}
		return r.JSON(entries)
	}

	header := []string{"ID", "Kind", "Target", "Source", "Status", "Step", "Error", "Started"}
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		id := e.ID
		if len(id) > 8 {
			id = id[:8]
		}
		rows = append(rows, []string{
			id,
			string(e.Kind),
			e.Target,
			e.Source,
			string(e.Status),
			e.FailedStep,
			e.Error,
			e.StartedAt.Local().Format(time.DateTime),
		})
	}
	return r.Table(header, rows)
}
