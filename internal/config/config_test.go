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

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "editledger.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	d := Defaults()
	assert.Equal(t, d.Database, cfg.Database)
	assert.Equal(t, 5*time.Second, cfg.TxTimeout)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.MergeWindows)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
database: /tmp/ledger.db
tx_timeout: 2s
max_retries: 5
log_level: DEBUG
types_dir: ./types
merge_windows:
  project: 10m
  organization: 1h
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/ledger.db", cfg.Database)
	assert.Equal(t, 2*time.Second, cfg.TxTimeout)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
	assert.Equal(t, "./types", cfg.TypesDir)
	assert.Equal(t, map[string]time.Duration{
		"project":      10 * time.Minute,
		"organization": time.Hour,
	}, cfg.MergeWindows)
	assert.Equal(t, path, cfg.File)
}

func TestLoadSearchesWorkingDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "editledger.yaml"), []byte("max_retries: 1\n"), 0o644))
	t.Chdir(dir)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.MaxRetries)
	assert.NotEmpty(t, cfg.File)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, "database: from-file.db\n")
	t.Setenv("EDITLEDGER_DATABASE", "from-env.db")
	t.Setenv("EDITLEDGER_MAX_RETRIES", "0")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env.db", cfg.Database)
	assert.Equal(t, 0, cfg.MaxRetries)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad log level", "log_level: chatty\n"},
		{"negative retries", "max_retries: -1\n"},
		{"zero timeout", "tx_timeout: 0s\n"},
		{"zero merge window", "merge_windows:\n  project: 0s\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid config")
		})
	}
}

func TestSlogLevel(t *testing.T) {
	for level, want := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
	} {
		cfg := Config{LogLevel: level}
		assert.Equal(t, want, cfg.SlogLevel(), level)
	}
}
