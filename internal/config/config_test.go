package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "braid.db", cfg.Database)
	assert.Equal(t, 10000, cfg.Invalidation.MaxDepth)
	assert.Equal(t, "log", cfg.Actions.Events.Backend)
}

func TestLoad_EmptyPathIsDefault(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "braid.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database: /data/prov.db
log:
  level: debug
  format: json
invalidation:
  max_depth: 50
actions:
  shell_timeout: 5s
  events:
    backend: redis
    redis:
      addr: localhost:6379
      db: 2
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/prov.db", cfg.Database)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 50, cfg.Invalidation.MaxDepth)
	assert.Equal(t, 5*time.Second, cfg.Actions.ShellTimeout)
	assert.Equal(t, "redis", cfg.Actions.Events.Backend)
	assert.Equal(t, "localhost:6379", cfg.Actions.Events.Redis.Addr)
	assert.Equal(t, 2, cfg.Actions.Events.Redis.DB)
	assert.Equal(t, DefaultRedisChannel, cfg.Actions.Events.Redis.Channel, "unset keys keep defaults")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config load failed")
}

func TestParse_EmptyDocumentIsDefault(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"unknown key", "databse: x.db\n", "field databse not found"},
		{"bad level", "log:\n  level: loud\n", "log.level"},
		{"bad format", "log:\n  format: xml\n", "log.format"},
		{"zero depth", "invalidation:\n  max_depth: 0\n", "max_depth"},
		{"negative timeout", "actions:\n  shell_timeout: -1s\n", "shell_timeout"},
		{"unknown backend", "actions:\n  events:\n    backend: kafka\n", "backend"},
		{"redis without addr", "actions:\n  events:\n    backend: redis\n", "redis.addr"},
		{"empty database", "database: \"\"\n", "database is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestLoad_TOMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "braid.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
database = "/data/braid.db"

[log]
level = "debug"
format = "json"

[invalidation]
max_depth = 500

[actions]
shell_timeout = "30s"

[actions.events]
backend = "redis"
redis = { addr = "localhost:6379", db = 2 }
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/braid.db", cfg.Database)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 500, cfg.Invalidation.MaxDepth)
	assert.Equal(t, 30*time.Second, cfg.Actions.ShellTimeout)
	assert.Equal(t, "redis", cfg.Actions.Events.Backend)
	assert.Equal(t, "localhost:6379", cfg.Actions.Events.Redis.Addr)
	assert.Equal(t, 2, cfg.Actions.Events.Redis.DB)
	assert.Equal(t, DefaultRedisChannel, cfg.Actions.Events.Redis.Channel, "unset keys keep defaults")
}

func TestParseTOML_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{"syntax", "database = ", "failed to parse TOML"},
		{"unknown key", "databse = \"x\"\n", `unknown key "databse"`},
		{"unknown nested key", "[log]\ncolour = \"red\"\n", `unknown key "log.colour"`},
		{"invalid value", "[invalidation]\nmax_depth = 0\n", "invalidation.max_depth must be positive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTOML([]byte(tt.input))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
