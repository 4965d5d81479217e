package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTest(mode Mode, tty bool) (*Renderer, *bytes.Buffer, *bytes.Buffer) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	return NewRendererWithTTY(out, errOut, tty, mode), out, errOut
}

func TestEffectiveMode(t *testing.T) {
	tests := []struct {
		mode Mode
		tty  bool
		want Mode
	}{
		{ModeAuto, true, ModeTable},
		{ModeAuto, false, ModeMarkdown},
		{"", false, ModeMarkdown},
		{ModeJSON, true, ModeJSON},
		{ModeCSV, false, ModeCSV},
	}
	for _, tt := range tests {
		r, _, _ := newTest(tt.mode, tt.tty)
		assert.Equal(t, tt.want, r.EffectiveMode(), "mode %q tty %v", tt.mode, tt.tty)
	}
}

func TestParseMode(t *testing.T) {
	assert.Equal(t, ModeMarkdown, ParseMode("markdown"))
	assert.Equal(t, ModeTable, ParseMode("text"))
	assert.Equal(t, ModeAuto, ParseMode("whatever"))
}

func TestTable(t *testing.T) {
	header := []string{"Name", "Class"}
	rows := [][]string{{"expr", "matrix"}, {"meta", "data.frame"}}

	t.Run("json", func(t *testing.T) {
		r, out, _ := newTest(ModeJSON, false)
		require.NoError(t, r.Table(header, rows))
		var got []map[string]string
		require.NoError(t, json.Unmarshal(out.Bytes(), &got))
		assert.Equal(t, []map[string]string{
			{"Name": "expr", "Class": "matrix"},
			{"Name": "meta", "Class": "data.frame"},
		}, got)
	})

	t.Run("csv", func(t *testing.T) {
		r, out, _ := newTest(ModeCSV, false)
		require.NoError(t, r.Table(header, rows))
		assert.Equal(t, "Name,Class\nexpr,matrix\nmeta,data.frame\n", out.String())
	})

	t.Run("markdown", func(t *testing.T) {
		r, out, _ := newTest(ModeMarkdown, false)
		require.NoError(t, r.Table(header, rows))
		assert.Contains(t, out.String(), "| Name | Class |")
		assert.Contains(t, out.String(), "| expr | matrix |")
		assert.NotContains(t, out.String(), "\x1b[")
	})

	t.Run("table", func(t *testing.T) {
		r, out, _ := newTest(ModeTable, false)
		require.NoError(t, r.Table(header, rows))
		assert.Contains(t, out.String(), "expr")
		assert.Contains(t, out.String(), "(2 rows)")
	})
}

func TestStatusLines(t *testing.T) {
	r, out, errOut := newTest(ModeTable, false)
	r.Success("saved")
	r.Error(errors.New("boom"))
	r.Warning("careful")
	assert.Equal(t, "✓ saved\n", out.String())
	assert.Contains(t, errOut.String(), "Error: boom")
	assert.Contains(t, errOut.String(), "! careful")

	r, out, _ = newTest(ModeJSON, false)
	r.Success("saved")
	assert.Empty(t, out.String())
}

func TestFormatTree(t *testing.T) {
	got := FormatTree("NewProject", []TreeNode{
		{Label: "a", Children: []TreeNode{{Label: "2 rows; 3 columns"}}},
		{Label: "b"},
	})
	want := "NewProject\n" +
		"├── a\n" +
		"│   └── 2 rows; 3 columns\n" +
		"└── b\n"
	assert.Equal(t, want, got)
}
