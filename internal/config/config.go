// Package config loads BRAID settings from a YAML or TOML file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Default values applied before a file is decoded.
const (
	DefaultDatabase     = "braid.db"
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "text"
	DefaultMaxDepth     = 10000
	DefaultShellTimeout = 60 * time.Second
	DefaultEventBackend = "log"
	DefaultRedisChannel = "braid.invalidations"
)

// Config is the full set of BRAID settings.
//
// Example:
//
//	database: /data/braid.db
//	log:
//	  level: debug
//	  format: json
//	invalidation:
//	  max_depth: 500
//	actions:
//	  shell_timeout: 30s
//	  events:
//	    backend: redis
//	    redis:
//	      addr: localhost:6379
//	      channel: braid.invalidations
type Config struct {
	Database     string             `yaml:"database" toml:"database"`
	Log          LogConfig          `yaml:"log" toml:"log"`
	Invalidation InvalidationConfig `yaml:"invalidation" toml:"invalidation"`
	Actions      ActionsConfig      `yaml:"actions" toml:"actions"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level" toml:"level"`

	// Format is text or json.
	Format string `yaml:"format" toml:"format"`
}

// InvalidationConfig bounds cascades.
type InvalidationConfig struct {
	MaxDepth int `yaml:"max_depth" toml:"max_depth"`
}

// ActionsConfig configures the action dispatcher.
type ActionsConfig struct {
	// ShellTimeout bounds each shell action. Zero disables the timeout.
	ShellTimeout time.Duration `yaml:"shell_timeout" toml:"shell_timeout"`

	Events EventsConfig `yaml:"events" toml:"events"`
}

// EventsConfig selects where external_event actions are published.
type EventsConfig struct {
	// Backend is log or redis.
	Backend string      `yaml:"backend" toml:"backend"`
	Redis   RedisConfig `yaml:"redis" toml:"redis"`
}

// RedisConfig is used when Backend is redis.
type RedisConfig struct {
	Addr     string `yaml:"addr" toml:"addr"`
	Password string `yaml:"password" toml:"password"`
	DB       int    `yaml:"db" toml:"db"`
	Channel  string `yaml:"channel" toml:"channel"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Database: DefaultDatabase,
		Log: LogConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Invalidation: InvalidationConfig{
			MaxDepth: DefaultMaxDepth,
		},
		Actions: ActionsConfig{
			ShellTimeout: DefaultShellTimeout,
			Events: EventsConfig{
				Backend: DefaultEventBackend,
				Redis: RedisConfig{
					Channel: DefaultRedisChannel,
				},
			},
		},
	}
}

// Load reads path and returns the validated configuration. Files ending in
// .toml are decoded as TOML, everything else as YAML. An empty path returns
// Default().
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	parse := Parse
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		parse = ParseTOML
	}
	cfg, err := parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over Default() and validates the result.
// Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ParseTOML decodes TOML over Default() and validates the result.
// Unknown keys are rejected.
//
//	database = "/data/braid.db"
//
//	[actions]
//	shell_timeout = "30s"
//
//	[actions.events]
//	backend = "redis"
//	redis = { addr = "localhost:6379" }
func ParseTOML(data []byte) (Config, error) {
	cfg := Default()

	meta, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("failed to parse TOML: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("failed to parse TOML: unknown key %q", undecoded[0].String())
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks value ranges and enumerations.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Database) == "" {
		return fmt.Errorf("database is required")
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	if c.Invalidation.MaxDepth <= 0 {
		return fmt.Errorf("invalidation.max_depth must be positive, got %d", c.Invalidation.MaxDepth)
	}
	if c.Actions.ShellTimeout < 0 {
		return fmt.Errorf("actions.shell_timeout must not be negative, got %s", c.Actions.ShellTimeout)
	}
	switch c.Actions.Events.Backend {
	case "log":
	case "redis":
		if strings.TrimSpace(c.Actions.Events.Redis.Addr) == "" {
			return fmt.Errorf("actions.events.redis.addr is required when backend is redis")
		}
		if c.Actions.Events.Redis.DB < 0 {
			return fmt.Errorf("actions.events.redis.db must not be negative, got %d", c.Actions.Events.Redis.DB)
		}
	default:
		return fmt.Errorf("actions.events.backend must be log or redis, got %q", c.Actions.Events.Backend)
	}
	return nil
}

// ParseLevel converts a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("log.level must be debug, info, warn or error, got %q", s)
}
