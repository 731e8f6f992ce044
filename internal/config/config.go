// Package config loads osintdeck settings from a YAML file, OSINTDECK_*
// environment variables and built-in defaults, in that order of precedence
// (environment first).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/spf13/viper"

	"github.com/pbaille/osintdeck/internal/fetcher"
)

// Config holds all configuration for the service and CLI
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Store   StoreConfig   `mapstructure:"store"`
	Catalog CatalogConfig `mapstructure:"catalog"`
	TLD     TLDConfig     `mapstructure:"tld"`
	Log     LogConfig     `mapstructure:"log"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

func (s ServerConfig) Validate() error {
	if strings.TrimSpace(s.Addr) == "" {
		return fmt.Errorf("server.addr is required")
	}
	return nil
}

// StoreConfig selects and configures the key-value backend
type StoreConfig struct {
	Backend       string `mapstructure:"backend"` // sqlite, redis or memory
	SQLitePath    string `mapstructure:"sqlite_path"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	RedisPrefix   string `mapstructure:"redis_prefix"`

	// SyncInterval is how often a running server reloads state that other
	// processes sharing the store may have written
	SyncInterval time.Duration `mapstructure:"sync_interval"`
}

func (s StoreConfig) Validate() error {
	if s.SyncInterval <= 0 {
		return fmt.Errorf("store.sync_interval must be greater than zero")
	}
	switch s.Backend {
	case "sqlite":
		if strings.TrimSpace(s.SQLitePath) == "" {
			return fmt.Errorf("store.sqlite_path is required for the sqlite backend")
		}
	case "redis":
		if strings.TrimSpace(s.RedisAddr) == "" {
			return fmt.Errorf("store.redis_addr is required for the redis backend")
		}
		if s.RedisDB < 0 {
			return fmt.Errorf("store.redis_db cannot be negative")
		}
	case "memory":
	default:
		return fmt.Errorf("store.backend %q is not one of sqlite, redis, memory", s.Backend)
	}
	return nil
}

// CatalogConfig points at the tool catalog file
type CatalogConfig struct {
	Path  string `mapstructure:"path"`
	Watch bool   `mapstructure:"watch"`
}

func (c CatalogConfig) Validate() error {
	if strings.TrimSpace(c.Path) == "" {
		return fmt.Errorf("catalog.path is required")
	}
	return nil
}

// TLDConfig controls the TLD reference feed
type TLDConfig struct {
	FeedURL         string        `mapstructure:"feed_url"`
	Timeout         time.Duration `mapstructure:"timeout"`
	RefreshSchedule string        `mapstructure:"refresh_schedule"`
	MaxFeedBytes    int64         `mapstructure:"max_feed_bytes"`
}

func (t TLDConfig) Validate() error {
	if strings.TrimSpace(t.FeedURL) == "" {
		return fmt.Errorf("tld.feed_url is required")
	}
	if t.Timeout <= 0 {
		return fmt.Errorf("tld.timeout must be greater than zero")
	}
	if t.MaxFeedBytes <= 0 {
		return fmt.Errorf("tld.max_feed_bytes must be greater than zero")
	}
	if _, err := cronexpr.Parse(t.RefreshSchedule); err != nil {
		return fmt.Errorf("tld.refresh_schedule: %w", err)
	}
	return nil
}

// LogConfig controls the process logger
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // text or json
	File       string `mapstructure:"file"`   // empty means stderr
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

func (l LogConfig) Validate() error {
	switch strings.ToLower(l.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", l.Level)
	}
	switch l.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format %q is not one of text, json", l.Format)
	}
	if l.MaxSizeMB < 0 || l.MaxBackups < 0 || l.MaxAgeDays < 0 {
		return fmt.Errorf("log rotation limits cannot be negative")
	}
	return nil
}

// Validate checks every section
func (c *Config) Validate() error {
	return errors.Join(
		c.Server.Validate(),
		c.Store.Validate(),
		c.Catalog.Validate(),
		c.TLD.Validate(),
		c.Log.Validate(),
	)
}

// DataDir is where the default sqlite database lives
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".osintdeck"
	}
	return filepath.Join(home, ".osintdeck")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")

	v.SetDefault("store.backend", "sqlite")
	v.SetDefault("store.sqlite_path", filepath.Join(DataDir(), "osintdeck.db"))
	v.SetDefault("store.redis_addr", "localhost:6379")
	v.SetDefault("store.redis_password", "")
	v.SetDefault("store.redis_db", 0)
	v.SetDefault("store.redis_prefix", "osintdeck:")
	v.SetDefault("store.sync_interval", "30s")

	v.SetDefault("catalog.path", "configs/catalog.yaml")
	v.SetDefault("catalog.watch", false)

	v.SetDefault("tld.feed_url", fetcher.DefaultTLDFeed)
	v.SetDefault("tld.timeout", "10s")
	v.SetDefault("tld.refresh_schedule", "0 3 * * 1")
	v.SetDefault("tld.max_feed_bytes", 1<<20)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
}

// Load reads the configuration. With an empty path, osintdeck.yaml is looked
// up in the working directory, ./configs and the user config directory; a
// missing file is not an error. An explicit path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	if path == "" {
		v.SetConfigName("osintdeck")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "osintdeck"))
		}
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("OSINTDECK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
