package commands

import (
	"context"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/leapstack-labs/dante/internal/bridge"
	"github.com/leapstack-labs/dante/internal/cli/config"
	"github.com/leapstack-labs/dante/internal/cli/output"
	"github.com/leapstack-labs/dante/internal/cli/testutil"
	"github.com/leapstack-labs/dante/internal/session"
	rootutil "github.com/leapstack-labs/dante/internal/testutil"
	"github.com/leapstack-labs/dante/pkg/core"
)

func TestCommandMetadata(t *testing.T) {
	tests := []struct {
		cmd   *cobra.Command
		use   string
		flags []string
	}{
		{NewListCommand(), "ls", nil},
		{NewShowCommand(), "show <name>", []string{"limit", "all"}},
		{NewTreeCommand(), "tree", nil},
		{NewStageCommand(), "stage <file>", []string{"table", "limit"}},
		{NewImportCommand(), "import [spec.yaml]", []string{"source", "source-table", "name", "kind", "row-id", "keep", "row-metadata", "row-metadata-name", "row-metadata-columns", "save"}},
		{NewEvalCommand(), "eval <statement>", nil},
		{NewWorkspaceCommand(), "workspace", nil},
		{NewHistoryCommand(), "history", []string{"limit"}},
		{NewConsoleCommand(), "console", nil},
		{NewServeCommand(), "serve", []string{"port", "shutdown-timeout", "max-connections", "watch"}},
	}

	for _, tt := range tests {
		t.Run(tt.use, func(t *testing.T) {
			assert.Equal(t, tt.use, tt.cmd.Use)
			assert.NotEmpty(t, tt.cmd.Short, "Short should not be empty")
			for _, flag := range tt.flags {
				assert.NotNil(t, tt.cmd.Flags().Lookup(flag), "flag %q should exist", flag)
			}
		})
	}

	ws := NewWorkspaceCommand()
	var subs []string
	for _, c := range ws.Commands() {
		subs = append(subs, c.Name())
	}
	assert.ElementsMatch(t, []string{"save", "close", "info"}, subs)
}

func TestLoadSpecFile(t *testing.T) {
	t.Run("single spec", func(t *testing.T) {
		path := testutil.WriteFixture(t, "spec.yaml", `
source: data/expr.txt
name: expr
row_id: ID
keep: [A, C]
row_metadata: true
row_metadata_name: expr_meta
row_metadata_columns: [ID, C]
`)
		specs, err := LoadSpecFile(path)
		require.NoError(t, err)
		require.Len(t, specs, 1)
		assert.Equal(t, core.ImportSpec{
			SourceFile:           filepath.Join(filepath.Dir(path), "data", "expr.txt"),
			TargetName:           "expr",
			Kind:                 core.KindDataTable,
			UniqueRowIDColumn:    "ID",
			ColumnsToKeep:        []string{"A", "C"},
			IncludeRowMetadata:   true,
			RowMetadataTableName: "expr_meta",
			RowMetadataColumns:   []string{"ID", "C"},
		}, specs[0])
	})

	t.Run("list of specs", func(t *testing.T) {
		path := testutil.WriteFixture(t, "spec.yaml", `
imports:
  - source: /abs/expr.csv
    name: expr
  - source: samples.db
    source_table: samples
    name: samples
    kind: rowmeta
`)
		specs, err := LoadSpecFile(path)
		require.NoError(t, err)
		require.Len(t, specs, 2)
		assert.Equal(t, "/abs/expr.csv", specs[0].SourceFile)
		assert.Equal(t, core.KindRowMetadata, specs[1].Kind)
		assert.Equal(t, "samples", specs[1].SourceTable)
	})

	t.Run("errors", func(t *testing.T) {
		_, err := LoadSpecFile(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.ErrorContains(t, err, "failed to read spec file")

		_, err = LoadSpecFile(testutil.WriteFixture(t, "empty.yaml", "other: 1\n"))
		assert.ErrorContains(t, err, "declares no imports")

		_, err = LoadSpecFile(testutil.WriteFixture(t, "kind.yaml", "source: a.txt\nname: a\nkind: cube\n"))
		assert.ErrorContains(t, err, "unknown import kind")

		_, err = LoadSpecFile(testutil.WriteFixture(t, "bad.yaml", "source: [unclosed\n"))
		assert.ErrorContains(t, err, "failed to parse spec file")
	})
}

func TestImportOptions_Apply(t *testing.T) {
	opts := &ImportOptions{}
	cmd := newImportCommand(opts)
	require.NoError(t, cmd.Flags().Parse([]string{"--name", "override", "--keep", "A,B", "--kind", "colmeta"}))

	spec := core.ImportSpec{SourceFile: "expr.txt", TargetName: "expr", UniqueRowIDColumn: "ID"}
	require.NoError(t, opts.apply(cmd.Flags(), &spec))

	assert.Equal(t, "expr.txt", spec.SourceFile)
	assert.Equal(t, "override", spec.TargetName)
	assert.Equal(t, "ID", spec.UniqueRowIDColumn)
	assert.Equal(t, []string{"A", "B"}, spec.ColumnsToKeep)
	assert.Equal(t, core.KindColumnMetadata, spec.Kind)

	opts.Kind = "bogus"
	assert.Error(t, opts.apply(cmd.Flags(), &spec))
}

func TestRenderValue(t *testing.T) {
	tests := []struct {
		name  string
		value session.Value
		mode  output.Mode
		want  string
	}{
		{name: "scalar", value: session.Scalar(42), mode: output.ModeTable, want: "42\n"},
		{name: "text", value: session.Text("hello"), mode: output.ModeTable, want: "hello\n"},
		{name: "array", value: session.StringArray{"a", "NA", "c"}, mode: output.ModeTable, want: "a\nNA\nc\n"},
		{name: "empty", value: session.Empty{}, mode: output.ModeTable, want: "(empty)\n"},
		{
			name:  "matrix csv",
			value: session.NumericMatrix{M: mat.NewDense(2, 2, []float64{1, 2.5, math.NaN(), 4})},
			mode:  output.ModeCSV,
			want:  "V1,V2\n1,2.5\nNA,4\n",
		},
		{
			name:  "matrix json",
			value: session.NumericMatrix{M: mat.NewDense(1, 2, []float64{1, math.NaN()})},
			mode:  output.ModeJSON,
			want:  "[\n  [\n    1,\n    null\n  ]\n]\n",
		},
		{name: "scalar json", value: session.Scalar(2.5), mode: output.ModeJSON, want: "2.5\n"},
		{name: "empty json", value: session.Empty{}, mode: output.ModeJSON, want: "null\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := testutil.NewTestRenderer(tt.mode, false)
			require.NoError(t, renderValue(tr.Renderer, tt.value))
			assert.Equal(t, tt.want, tr.Output())
			testutil.AssertNoANSI(t, tr.Output())
		})
	}
}

// scriptedReader feeds fixed lines to the console loop.
type scriptedReader struct {
	lines   []string
	prompts []string
}

func (s *scriptedReader) Readline() (string, error) {
	if len(s.lines) == 0 {
		return "", io.EOF
	}
	line := s.lines[0]
	s.lines = s.lines[1:]
	return line, nil
}

func (s *scriptedReader) SetPrompt(p string) { s.prompts = append(s.prompts, p) }

func newConsole(t *testing.T) (*console, *testutil.TestRenderer) {
	t.Helper()
	b, err := bridge.Open(context.Background(), bridge.Options{Logger: rootutil.NewTestLogger(t)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	tr := testutil.NewTestRenderer(output.ModeCSV, false)
	cmdCtx := &CommandContext{
		Cfg:      config.Default(),
		Logger:   rootutil.NewTestLogger(t),
		Bridge:   b,
		Renderer: tr.Renderer,
	}
	return &console{cmdCtx: cmdCtx, out: tr.Out, errOut: tr.ErrOut}, tr
}

func TestConsole(t *testing.T) {
	c, tr := newConsole(t)
	image := filepath.Join(t.TempDir(), "session.ddb")

	rl := &scriptedReader{lines: []string{
		"CREATE TABLE t AS SELECT * FROM (VALUES (1, 2), (3, 4)) v(a, b);",
		"SELECT 40 +",
		"2;",
		".show t 1",
		".ls",
		".save " + image,
		".status",
		".bogus",
		"SELECT * FROM nowhere;",
		".quit",
		".ls",
	}}
	require.NoError(t, c.run(context.Background(), rl))

	out := tr.Output()
	assert.Contains(t, out, "Dante console (workspace: NewProject)")
	assert.Contains(t, out, "42\n")
	assert.Contains(t, out, "row.names,a,b\n1,1,2\n")
	assert.Contains(t, out, "Name,Class,Rows,Columns\nt,matrix,2,2\n")
	assert.Contains(t, out, "saved "+image)
	assert.Contains(t, out, "idle\n")

	errOut := tr.ErrorOutput()
	assert.Contains(t, errOut, "Unknown command: .bogus")
	assert.Contains(t, errOut, "Error: evaluation failed")

	assert.Equal(t, []string{consolePrompt, consoleContinuePmt, consolePrompt, consolePrompt}, rl.prompts)
	assert.Len(t, rl.lines, 1, "lines after .quit are not read")

	_, err := os.Stat(image)
	assert.NoError(t, err)
}

func TestConsole_Usage(t *testing.T) {
	c, tr := newConsole(t)
	rl := &scriptedReader{lines: []string{".show", ".import", ".load", ".show t -1", ".help"}}
	require.NoError(t, c.run(context.Background(), rl))

	errOut := tr.ErrorOutput()
	assert.Contains(t, errOut, "Usage: .show <name> [limit]")
	assert.Contains(t, errOut, "Usage: .import <spec.yaml>")
	assert.Contains(t, errOut, "Usage: .load <image>")
	assert.Contains(t, errOut, "limit must not be negative")
	assert.Contains(t, tr.Output(), ".import <spec.yaml>")
}
