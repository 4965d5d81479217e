package commands

import (
	"strings"

	"github.com/spf13/cobra"
)

// NewEvalCommand creates the eval command.
func NewEvalCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "eval <statement>",
		Short: "Evaluate a statement in the session",
		Long: `Evaluate an engine statement (or a semicolon-separated list of statements)
and print the result of the last one.

One row and one column prints as a single value; numeric results print as a
matrix; everything else prints one cell per line, column by column.`,
		Example: `  dante eval "SELECT 40 + 2"
  dante eval -w project.ddb "SELECT avg(A) FROM expr"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			v, err := cmdCtx.Bridge.Evaluate(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			return renderValue(cmdCtx.Renderer, v)
		},
	}
}
