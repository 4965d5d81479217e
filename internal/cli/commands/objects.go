package commands

import (
	"context"
	"errors"
	"strconv"

	"github.com/leapstack-labs/dante/internal/cli/output"
	"github.com/leapstack-labs/dante/pkg/core"
	"github.com/spf13/cobra"
)

// NewListCommand creates the ls command.
func NewListCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list", "objects"},
		Short:   "List the objects in the session",
		Long: `List every named object in the session with its class and dimensions.

Dimensions that could not be determined are shown as NA.`,
		Example: `  # List objects in a saved workspace
  dante ls -w project.ddb

  # As JSON
  dante ls -w project.ddb -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			r := cmdCtx.Renderer
			if r.EffectiveMode() == output.ModeJSON {
				objects, err := cmdCtx.Bridge.ListObjects(cmd.Context())
				if err != nil {
					return err
				}
				if objects == nil {
					objects = []core.NamedObject{}
				}
				return r.JSON(objects)
			}

			t, err := cmdCtx.Bridge.ObjectsTable(cmd.Context())
			if err != nil {
				return err
			}
			return r.Table(t.Columns, t.Rows)
		},
	}
}

// NewShowCommand creates the show command.
func NewShowCommand() *cobra.Command {
	var (
		limit int
		all   bool
	)

	cmd := &cobra.Command{
		Use:   "show <name>",
		Short: "Show the contents of a tabular object",
		Long: `Show the rows of a table-like object, with its row labels in the first column.

Objects that are not tabular are described instead.`,
		Example: `  # First rows of an object
  dante show expr -w project.ddb

  # Every row, as CSV
  dante show expr -w project.ddb --all -o csv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if !cmd.Flags().Changed("limit") {
				limit = cmdCtx.Cfg.PreviewLimit
			}
			if all {
				limit = 0
			}
			return runShow(cmd.Context(), cmdCtx, args[0], limit)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum rows to show (default from preview_limit)")
	cmd.Flags().BoolVar(&all, "all", false, "Show every row")

	return cmd
}

func runShow(ctx context.Context, cmdCtx *CommandContext, name string, limit int) error {
	r := cmdCtx.Renderer
	b := cmdCtx.Bridge

	var (
		t   *core.Table
		err error
	)
	if limit > 0 {
		t, err = b.Preview(ctx, name, limit)
	} else {
		t, err = b.GetTable(ctx, name)
	}

	var notTab *core.NotTabularError
	if errors.As(err, &notTab) {
		obj, lerr := b.Lookup(ctx, name)
		if lerr != nil {
			return lerr
		}
		return describeObject(r, obj)
	}
	if err != nil {
		return err
	}

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(t)
	}
	return r.Table(t.Columns, t.Rows)
}

func describeObject(r *output.Renderer, obj core.NamedObject) error {
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(obj)
	}
	md := r.EffectiveMode() == output.ModeMarkdown
	r.Header(obj.Name)
	r.Println(output.FormatKeyValue("Class", obj.Class, md))
	if obj.Rows != nil {
		r.Println(output.FormatKeyValue("Length", strconv.Itoa(*obj.Rows), md))
	}
	return nil
}

// NewTreeCommand creates the tree command.
func NewTreeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tree",
		Short: "Show the session as a tree",
		Long:  `Show the workspace as a tree: one node per object, with its dimensions beneath it.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			tree, err := cmdCtx.Bridge.Tree(cmd.Context())
			if err != nil {
				return err
			}

			r := cmdCtx.Renderer
			switch r.EffectiveMode() {
			case output.ModeJSON:
				return r.JSON(tree)
			case output.ModeMarkdown:
				r.Println(output.FormatCodeBlock("", renderTree(tree)))
			default:
				r.Printf("%s", renderTree(tree))
			}
			return nil
		},
	}
}

func renderTree(t *core.Tree) string {
	return output.FormatTree(t.Label, treeNodes(t.Children))
}

func treeNodes(children []*core.Tree) []output.TreeNode {
	nodes := make([]output.TreeNode, 0, len(children))
	for _, c := range children {
		nodes = append(nodes, output.TreeNode{Label: c.Label, Children: treeNodes(c.Children)})
	}
	return nodes
}
