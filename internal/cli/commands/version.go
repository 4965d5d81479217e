package commands

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/dante/internal/cli/output"
)

// BuildInfo is stamped into the binary at link time.
type BuildInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
	Go      string `json:"go"`
}

// NewVersionCommand creates the version command.
func NewVersionCommand(info BuildInfo) *cobra.Command {
	var short bool
	if info.Go == "" {
		info.Go = runtime.Version()
	}

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display the Dante version, the commit it was built from and the Go toolchain.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if short {
				_, err := fmt.Fprintln(out, info.Version)
				return err
			}
			if r := NewCommandContextWithoutBridge(cmd).Renderer; r.EffectiveMode() == output.ModeJSON {
				return r.JSON(info)
			}
			_, _ = fmt.Fprintf(out, "Dante v%s\n", info.Version)
			_, _ = fmt.Fprintf(out, "  commit: %s\n  built:  %s\n  go:     %s\n", info.Commit, info.Date, info.Go)
			_, err := fmt.Fprintln(out, "Analysis session bridge on an embedded DuckDB engine")
			return err
		},
	}
	cmd.Flags().BoolVar(&short, "short", false, "Print only the version number")
	return cmd
}
