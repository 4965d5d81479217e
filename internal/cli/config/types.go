// Package config loads CLI configuration from defaults, dante.yaml,
// DANTE_ environment variables and command-line flags.
package config

import "time"

// Defaults.
const (
	DefaultHistoryFile     = ".dante/history.db"
	DefaultOutput          = "auto"
	DefaultPreviewLimit    = 20
	DefaultPort            = 8765
	DefaultShutdownTimeout = 5 * time.Second
	DefaultMaxConnections  = 64
)

// EngineConfig configures the embedded engine session.
type EngineConfig struct {
	// Database is the engine database file; empty runs in memory.
	Database string `koanf:"database"`
	Threads  int    `koanf:"threads"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	MaxConnections  int           `koanf:"max_connections"`
	// Watch broadcasts an event when the current image changes on disk.
	Watch bool `koanf:"watch"`
}

// Config holds all CLI configuration options.
type Config struct {
	Engine       EngineConfig `koanf:"engine"`
	Workspace    string       `koanf:"workspace"`
	HistoryPath  string       `koanf:"history_path"`
	Verbose      bool         `koanf:"verbose"`
	OutputFormat string       `koanf:"output"`
	PreviewLimit int          `koanf:"preview_limit"`
	Server       ServerConfig `koanf:"server"`
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	return &Config{
		HistoryPath:  DefaultHistoryFile,
		OutputFormat: DefaultOutput,
		PreviewLimit: DefaultPreviewLimit,
		Server: ServerConfig{
			Port:            DefaultPort,
			ShutdownTimeout: DefaultShutdownTimeout,
			MaxConnections:  DefaultMaxConnections,
		},
	}
}
