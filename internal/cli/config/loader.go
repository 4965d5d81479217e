package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// loggerKey is used to store the logger in a command context.
type loggerKey struct{}

// configKey is used to store the loaded config in a command context.
type configKey struct{}

// envPrefix prefixes every environment variable read as configuration.
const envPrefix = "DANTE_"

// configNames are the file names searched for in the working directory.
var configNames = []string{"dante.yaml", "dante.yml"}

// flagKeys maps flag names to config keys where they differ from the
// snake_case form of the flag name.
var flagKeys = map[string]string{
	"database":         "engine.database",
	"threads":          "engine.threads",
	"history":          "history_path",
	"port":             "server.port",
	"shutdown-timeout": "server.shutdown_timeout",
	"max-connections":  "server.max_connections",
	"watch":            "server.watch",
}

// knownKeys lists every configuration key; other flags are ignored.
var knownKeys = map[string]bool{
	"engine.database":         true,
	"engine.threads":          true,
	"workspace":               true,
	"history_path":            true,
	"verbose":                 true,
	"output":                  true,
	"preview_limit":           true,
	"server.port":             true,
	"server.shutdown_timeout": true,
	"server.max_connections":  true,
	"server.watch":            true,
}

var configFileUsed string

// findConfigFile returns the config file to use.
// Priority: explicit path > dante.yaml > dante.yml
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, name := range configNames {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

// envKey maps DANTE_SERVER_PORT to server.port and DANTE_HISTORY_PATH to history_path.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, envPrefix))
	for _, section := range []string{"engine_", "server_"} {
		if strings.HasPrefix(key, section) {
			return strings.TrimSuffix(section, "_") + "." + strings.TrimPrefix(key, section)
		}
	}
	return key
}

// flagKey maps a flag to its config key, or "" when the flag is not configuration.
func flagKey(name string) string {
	key, ok := flagKeys[name]
	if !ok {
		key = strings.ReplaceAll(name, "-", "_")
	}
	if !knownKeys[key] {
		return ""
	}
	return key
}

// Load loads configuration from file, environment variables, and flags.
// Precedence (highest to lowest): flags > env vars > config file > defaults
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")
	def := Default()

	// 1. Defaults
	if err := k.Load(confmap.Provider(map[string]any{
		"history_path":            def.HistoryPath,
		"output":                  def.OutputFormat,
		"preview_limit":           def.PreviewLimit,
		"verbose":                 false,
		"server.port":             def.Server.Port,
		"server.shutdown_timeout": def.Server.ShutdownTimeout.String(),
		"server.max_connections":  def.Server.MaxConnections,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config file
	configFileUsed = findConfigFile(cfgFile)
	if configFileUsed != "" {
		if err := k.Load(file.Provider(configFileUsed), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFileUsed, err)
		}
	}

	// 3. Environment variables (DANTE_ prefix)
	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags that were explicitly set
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			if !f.Changed {
				return "", nil
			}
			key := flagKey(f.Name)
			if key == "" {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	// 5. Decode
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
			),
			Result:           &cfg,
			TagName:          "koanf",
			WeaklyTypedInput: true,
		},
	}); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Relative paths from a config file resolve against its directory.
	if configFileUsed != "" {
		base := filepath.Dir(configFileUsed)
		cfg.HistoryPath = resolvePathRelativeTo(cfg.HistoryPath, base)
		cfg.Workspace = resolvePathRelativeTo(cfg.Workspace, base)
		if cfg.Engine.Database != ":memory:" {
			cfg.Engine.Database = resolvePathRelativeTo(cfg.Engine.Database, base)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// resolvePathRelativeTo resolves a path relative to baseDir if it's not absolute.
func resolvePathRelativeTo(path, baseDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

// GetConfigFileUsed returns the path to the config file last loaded, if any.
func GetConfigFileUsed() string {
	return configFileUsed
}

// WithConfig stores cfg in ctx.
func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

// FromContext retrieves the config from the command context, or the
// defaults when none was loaded.
func FromContext(ctx context.Context) *Config {
	if c, ok := ctx.Value(configKey{}).(*Config); ok {
		return c
	}
	return Default()
}

// WithLogger stores logger in ctx.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// GetLogger retrieves the logger from the command context.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.New(slog.DiscardHandler)
}

// NewLogger builds the CLI logger: warnings only, everything when verbose.
func NewLogger(verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
