package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/dante/internal/cli/config"
)

func runVersion(t *testing.T, info BuildInfo, output string, args ...string) string {
	t.Helper()
	cfg := config.Default()
	cfg.OutputFormat = output

	cmd := NewVersionCommand(info)
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	require.NoError(t, cmd.ExecuteContext(config.WithConfig(context.Background(), cfg)))
	return buf.String()
}

func TestNewVersionCommand(t *testing.T) {
	info := BuildInfo{Version: "0.1.0", Commit: "abc123", Date: "2026-01-02", Go: "go1.24.0"}

	t.Run("full", func(t *testing.T) {
		out := runVersion(t, info, "table")
		assert.Contains(t, out, "Dante v0.1.0")
		assert.Contains(t, out, "commit: abc123")
		assert.Contains(t, out, "go:     go1.24.0")
		assert.Contains(t, out, "DuckDB")
	})

	t.Run("short", func(t *testing.T) {
		assert.Equal(t, "0.1.0\n", runVersion(t, info, "table", "--short"))
	})

	t.Run("json", func(t *testing.T) {
		var got BuildInfo
		require.NoError(t, json.Unmarshal([]byte(runVersion(t, info, "json")), &got))
		assert.Equal(t, info, got)
	})

	t.Run("go version defaults to runtime", func(t *testing.T) {
		out := runVersion(t, BuildInfo{Version: "dev"}, "table")
		assert.Contains(t, out, "Dante vdev")
		assert.Contains(t, out, "go:     go")
	})
}
