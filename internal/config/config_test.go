package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv unsets every variable Load reads so the host environment does
// not leak into a test. An empty but set variable would still override the
// YAML file, so the variables are removed rather than blanked.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"VARS_CONFIG", "VARS_DATA_DIR", "VARS_STORE", "VARS_LISTEN", "VARS_HEALTH_INTERVAL",
		"VARS_LOG_LEVEL", "VARS_LOG_FORMAT", "VARS_LOG_OUTPUT", "VARS_LOG_FILE",
	} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	wd, err := os.Getwd()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(wd, DefaultDataDirName), cfg.DataDir)
	assert.Equal(t, StoreFile, cfg.Store)
	assert.Equal(t, ":8090", cfg.Listen)
	assert.Equal(t, DefaultHealthInterval, cfg.HealthInterval)
	assert.Equal(t, Log{Level: "info", Format: "console", Output: "stderr"}, cfg.Log)
}

func TestLoadEnvironment(t *testing.T) {
	clearEnv(t)
	dataDir := t.TempDir()
	t.Setenv("VARS_DATA_DIR", dataDir)
	t.Setenv("VARS_STORE", "Memory")
	t.Setenv("VARS_LISTEN", "127.0.0.1:9000")
	t.Setenv("VARS_LOG_LEVEL", "debug")
	t.Setenv("VARS_LOG_FORMAT", "json")
	t.Setenv("VARS_HEALTH_INTERVAL", "1m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, dataDir, cfg.DataDir)
	assert.Equal(t, StoreMemory, cfg.Store)
	assert.Equal(t, "127.0.0.1:9000", cfg.Listen)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, time.Minute, cfg.HealthInterval)
}

func TestLoadPrecedence(t *testing.T) {
	clearEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "varstore.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
data_dir: /srv/vars
listen: ":7000"
health_interval: 30s
log:
  level: warn
  output: file
`), 0o644))

	t.Setenv("VARS_CONFIG", path)
	t.Setenv("VARS_LISTEN", ":7001")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, filepath.Clean("/srv/vars"), cfg.DataDir, "from file")
	assert.Equal(t, ":7001", cfg.Listen, "env overrides file")
	assert.Equal(t, 30*time.Second, cfg.HealthInterval)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "file", cfg.Log.Output)
	assert.Equal(t, filepath.Join("logs", "varstore.log"), cfg.Log.File, "default log file")
	assert.Equal(t, "console", cfg.Log.Format, "default fills gaps")
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing config file", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("VARS_CONFIG", filepath.Join(t.TempDir(), "nope.yaml"))

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("malformed config file", func(t *testing.T) {
		clearEnv(t)
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("listen: [unterminated"), 0o644))
		t.Setenv("VARS_CONFIG", path)

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("negative health interval", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("VARS_HEALTH_INTERVAL", "-1s")

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("unknown store", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("VARS_STORE", "redis")

		_, err := Load()
		assert.Error(t, err)
	})
}

func TestRelativeDataDir(t *testing.T) {
	clearEnv(t)
	t.Setenv("VARS_DATA_DIR", "relative/data")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, filepath.IsAbs(cfg.DataDir))
	assert.Equal(t, "data", filepath.Base(cfg.DataDir))
}
