package config

import (
	"fmt"
	"slices"
)

// OutputFormats lists the accepted values of the output key.
var OutputFormats = []string{"auto", "table", "json", "csv", "md", "markdown"}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.OutputFormat != "" && !slices.Contains(OutputFormats, c.OutputFormat) {
		return fmt.Errorf("invalid output format %q (want one of %v)", c.OutputFormat, OutputFormats)
	}
	if c.PreviewLimit < 0 {
		return fmt.Errorf("preview_limit must not be negative")
	}
	if c.Engine.Threads < 0 {
		return fmt.Errorf("engine.threads must not be negative")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be positive")
	}
	if c.Server.MaxConnections < 1 {
		return fmt.Errorf("server.max_connections must be at least 1")
	}
	return nil
}
