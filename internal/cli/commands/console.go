package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
)

const (
	consolePrompt      = "dante> "
	consoleContinuePmt = "   ...> "
)

// NewConsoleCommand creates the console command.
func NewConsoleCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "console",
		Aliases: []string{"repl"},
		Short:   "Interactive session console",
		Long: `Start an interactive console over one engine session.

Statements end with a semicolon and may span several lines. Lines starting
with a dot are console commands; type .help to list them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			historyFile := ""
			if cmdCtx.Cfg.HistoryPath != "" {
				historyFile = filepath.Join(filepath.Dir(cmdCtx.Cfg.HistoryPath), "console_history")
			}

			rl, err := readline.NewEx(&readline.Config{
				Prompt:          consolePrompt,
				HistoryFile:     historyFile,
				AutoComplete:    newConsoleCompleter(cmd.Context(), cmdCtx),
				InterruptPrompt: "^C",
				EOFPrompt:       ".quit",
				Stdin:           io.NopCloser(cmd.InOrStdin()),
				Stdout:          cmd.OutOrStdout(),
				Stderr:          cmd.ErrOrStderr(),
			})
			if err != nil {
				return fmt.Errorf("failed to initialize console: %w", err)
			}
			defer func() { _ = rl.Close() }()

			c := &console{cmdCtx: cmdCtx, out: cmd.OutOrStdout(), errOut: cmd.ErrOrStderr()}
			return c.run(cmd.Context(), rl)
		},
	}
}

// lineReader is the part of readline the console loop uses.
type lineReader interface {
	Readline() (string, error)
	SetPrompt(prompt string)
}

type console struct {
	cmdCtx *CommandContext
	out    io.Writer
	errOut io.Writer
}

func (c *console) run(ctx context.Context, rl lineReader) error {
	_, _ = fmt.Fprintf(c.out, "Dante console (workspace: %s)\n", c.cmdCtx.Bridge.WorkspaceName())
	_, _ = fmt.Fprintln(c.out, "Type .help for commands, .quit to exit")
	_, _ = fmt.Fprintln(c.out)

	var buf strings.Builder
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			buf.Reset()
			rl.SetPrompt(consolePrompt)
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if buf.Len() == 0 && strings.HasPrefix(line, ".") {
			if quit := c.dot(ctx, line); quit {
				return nil
			}
			continue
		}

		buf.WriteString(line)
		if !strings.HasSuffix(line, ";") {
			buf.WriteString("\n")
			rl.SetPrompt(consoleContinuePmt)
			continue
		}
		rl.SetPrompt(consolePrompt)

		stmt := buf.String()
		buf.Reset()

		v, err := c.cmdCtx.Bridge.Evaluate(ctx, stmt)
		if err != nil {
			c.fail(err)
			continue
		}
		if err := renderValue(c.cmdCtx.Renderer, v); err != nil {
			c.fail(err)
		}
	}
}

func (c *console) fail(err error) {
	_, _ = fmt.Fprintf(c.errOut, "Error: %v\n", err)
}

// dot runs a console command and reports whether the console should exit.
func (c *console) dot(ctx context.Context, line string) bool {
	parts := strings.Fields(line)
	command := strings.ToLower(parts[0])
	args := parts[1:]
	b := c.cmdCtx.Bridge
	r := c.cmdCtx.Renderer

	var err error
	switch command {
	case ".quit", ".exit":
		return true

	case ".help":
		printConsoleHelp(c.out)

	case ".ls":
		objects, lerr := b.ObjectsTable(ctx)
		if err = lerr; err == nil {
			err = r.Table(objects.Columns, objects.Rows)
		}

	case ".show":
		if len(args) == 0 {
			_, _ = fmt.Fprintln(c.errOut, "Usage: .show <name> [limit]")
			return false
		}
		limit := c.cmdCtx.Cfg.PreviewLimit
		if len(args) > 1 {
			if limit, err = strconv.Atoi(args[1]); err != nil {
				break
			}
		}
		err = c.show(ctx, args[0], limit)

	case ".tree":
		tree, terr := b.Tree(ctx)
		if err = terr; err == nil {
			r.Printf("%s", renderTree(tree))
		}

	case ".import":
		if len(args) != 1 {
			_, _ = fmt.Fprintln(c.errOut, "Usage: .import <spec.yaml>")
			return false
		}
		specs, serr := LoadSpecFile(args[0])
		if err = serr; err == nil {
			for _, spec := range specs {
				res, ierr := b.RunImport(ctx, spec, nil)
				if ierr != nil {
					err = ierr
					break
				}
				r.Success(fmt.Sprintf("imported %s: %s", res.Target, strings.Join(res.Created, ", ")))
			}
		}

	case ".load":
		if len(args) != 1 {
			_, _ = fmt.Fprintln(c.errOut, "Usage: .load <image>")
			return false
		}
		if err = b.LoadWorkspace(ctx, args[0]); err == nil {
			r.Success("loaded " + b.WorkspaceName())
		}

	case ".save":
		path := ""
		if len(args) > 0 {
			path = args[0]
		}
		if err = b.SaveWorkspace(ctx, path); err == nil {
			r.Success("saved " + b.CurrentWorkspace())
		}

	case ".close":
		if err = b.CloseWorkspace(ctx); err == nil {
			r.Success("closed workspace")
		}

	case ".status":
		st := b.Status()
		if st.Busy {
			r.Printf("busy since %s: %s\n", st.Since.Format("15:04:05"), st.Expr)
		} else {
			r.Println("idle")
		}

	case ".history":
		entries, herr := b.History(20)
		if err = herr; err == nil {
			err = renderHistory(r, entries)
		}

	default:
		_, _ = fmt.Fprintf(c.errOut, "Unknown command: %s (type .help for commands)\n", command)
	}

	if err != nil {
		c.fail(err)
	}
	return false
}

func (c *console) show(ctx context.Context, name string, limit int) error {
	if limit < 0 {
		return fmt.Errorf("limit must not be negative")
	}
	return runShow(ctx, c.cmdCtx, name, limit)
}

func printConsoleHelp(w io.Writer) {
	help := `
Commands:
  .help                 Show this help message
  .ls                   List objects with class and dimensions
  .show <name> [limit]  Show rows of a tabular object
  .tree                 Show the workspace tree
  .import <spec.yaml>   Run the imports in a spec file
  .load <image>         Load a workspace image
  .save [image]         Save the workspace
  .close                Remove every object
  .status               Show whether the engine is busy
  .history              Show recent imports and workspace actions
  .quit / .exit         Exit the console

Statements end with a semicolon (;) and may span lines.
`
	_, _ = fmt.Fprintln(w, help)
}

// newConsoleCompleter completes dot-commands and the object names present
// when the console starts.
func newConsoleCompleter(ctx context.Context, cmdCtx *CommandContext) *readline.PrefixCompleter {
	var names []readline.PrefixCompleterInterface
	if objects, err := cmdCtx.Bridge.ListObjects(ctx); err == nil {
		for _, o := range objects {
			names = append(names, readline.PcItem(o.Name))
		}
	}

	return readline.NewPrefixCompleter(
		readline.PcItem(".help"),
		readline.PcItem(".ls"),
		readline.PcItem(".show", names...),
		readline.PcItem(".tree"),
		readline.PcItem(".import"),
		readline.PcItem(".load"),
		readline.PcItem(".save"),
		readline.PcItem(".close"),
		readline.PcItem(".status"),
		readline.PcItem(".history"),
		readline.PcItem(".quit"),
		readline.PcItem(".exit"),
	)
}
