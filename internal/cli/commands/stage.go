package commands

import (
	"github.com/leapstack-labs/dante/internal/cli/output"
	"github.com/leapstack-labs/dante/internal/stage"
	"github.com/spf13/cobra"
)

// NewStageCommand creates the stage command.
func NewStageCommand() *cobra.Command {
	var (
		table string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "stage <file>",
		Short: "Preview a source file before importing it",
		Long: `Read a source file the way an import would and show its columns and first rows.

Every line must have as many fields as the header; the first line that does
not is reported.`,
		Example: `  dante stage expr.txt
  dante stage samples.db --table samples -n 5`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx := NewCommandContextWithoutBridge(cmd)
			if !cmd.Flags().Changed("limit") {
				limit = cmdCtx.Cfg.PreviewLimit
			}

			t, err := stage.Read(cmd.Context(), args[0], table)
			if err != nil {
				return err
			}

			r := cmdCtx.Renderer
			if r.EffectiveMode() == output.ModeJSON {
				return r.JSON(t.Head(limit))
			}
			if r.EffectiveMode() != output.ModeCSV {
				r.Muted(formatShape(t.NumRows(), t.NumCols()))
			}
			head := t.Head(limit)
			return r.Table(head.Columns, head.Rows)
		},
	}

	cmd.Flags().StringVar(&table, "table", "", "Table to read from a SQLite source")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum rows to show (default from preview_limit)")

	return cmd
}
