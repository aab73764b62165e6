package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Store drivers
const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
)

// Config holds application configuration
type Config struct {
	// Server settings
	ListenAddr string
	Debug      bool

	// DataDirectory holds the JSON documents and, by default, the sqlite file
	DataDirectory string

	Store    StoreConfig
	Log      LogConfig
	Engine   EngineConfig
	Security SecurityConfig

	// MetricsEnabled serves Prometheus metrics at /metrics
	MetricsEnabled bool
}

// StoreConfig selects where rules and ledger entries live
type StoreConfig struct {
	Driver     string // file or sqlite
	SQLitePath string
}

// LogConfig mirrors logger.Config
type LogConfig struct {
	Level  string
	Format string
	Output string
}

// EngineConfig bounds occurrence generation requests
type EngineConfig struct {
	DefaultCount int
	MaxCount     int
}

// SecurityConfig throttles password attempts against encrypted storage
type SecurityConfig struct {
	UnlockPerMinute int // zero disables throttling
	UnlockBurst     int
}

// DefaultConfig returns configuration with sensible defaults
func DefaultConfig() *Config {
	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}

	return &Config{
		ListenAddr:    ":8080",
		DataDirectory: filepath.Join(wd, "data"),
		Store: StoreConfig{
			Driver: DriverFile,
		},
		Log: LogConfig{
			Format: "json",
			Output: "stdout",
		},
		Engine: EngineConfig{
			DefaultCount: 12,
			MaxCount:     520,
		},
		Security: SecurityConfig{
			UnlockPerMinute: 6,
			UnlockBurst:     3,
		},
		MetricsEnabled: true,
	}
}

// Load reads configuration from defaults, an optional tally.toml, and
// TALLY_-prefixed environment variables, highest priority last.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix("TALLY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("tally")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath(v.GetString("data_dir"))
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := fromViper(v)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if err := cfg.ensureDirectories(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("listen_addr", d.ListenAddr)
	v.SetDefault("debug", d.Debug)
	v.SetDefault("data_dir", d.DataDirectory)
	v.SetDefault("store.driver", d.Store.Driver)
	v.SetDefault("store.sqlite_path", d.Store.SQLitePath)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.output", d.Log.Output)
	v.SetDefault("engine.default_count", d.Engine.DefaultCount)
	v.SetDefault("engine.max_count", d.Engine.MaxCount)
	v.SetDefault("security.unlock_per_minute", d.Security.UnlockPerMinute)
	v.SetDefault("security.unlock_burst", d.Security.UnlockBurst)
	v.SetDefault("metrics.enabled", d.MetricsEnabled)
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{
		ListenAddr:    v.GetString("listen_addr"),
		Debug:         v.GetBool("debug"),
		DataDirectory: v.GetString("data_dir"),
		Store: StoreConfig{
			Driver:     strings.ToLower(v.GetString("store.driver")),
			SQLitePath: v.GetString("store.sqlite_path"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Engine: EngineConfig{
			DefaultCount: v.GetInt("engine.default_count"),
			MaxCount:     v.GetInt("engine.max_count"),
		},
		Security: SecurityConfig{
			UnlockPerMinute: v.GetInt("security.unlock_per_minute"),
			UnlockBurst:     v.GetInt("security.unlock_burst"),
		},
		MetricsEnabled: v.GetBool("metrics.enabled"),
	}
	if cfg.Store.SQLitePath == "" {
		cfg.Store.SQLitePath = filepath.Join(cfg.DataDirectory, "tally.db")
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
		if cfg.Debug {
			cfg.Log.Level = "debug"
		}
	}
	return cfg
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case DriverFile, DriverSQLite:
	default:
		return fmt.Errorf("store.driver must be %q or %q, got %q", DriverFile, DriverSQLite, c.Store.Driver)
	}
	if c.Engine.MaxCount <= 0 {
		return fmt.Errorf("engine.max_count must be positive")
	}
	if c.Engine.DefaultCount <= 0 || c.Engine.DefaultCount > c.Engine.MaxCount {
		return fmt.Errorf("engine.default_count (%d) must be between 1 and engine.max_count (%d)",
			c.Engine.DefaultCount, c.Engine.MaxCount)
	}
	if c.Security.UnlockPerMinute < 0 {
		return fmt.Errorf("security.unlock_per_minute must not be negative")
	}
	if c.Security.UnlockPerMinute > 0 && c.Security.UnlockBurst < 1 {
		return fmt.Errorf("security.unlock_burst must be at least 1 when throttling is on")
	}
	return nil
}

// ensureDirectories creates required directories if they don't exist
func (c *Config) ensureDirectories() error {
	dirs := []string{c.DataDirectory, filepath.Dir(c.Store.SQLitePath)}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}
