package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "https://www.tiktok.com", cfg.Platform.BaseURL)
	assert.NotEmpty(t, cfg.Platform.UserAgent)
	assert.Equal(t, 50*time.Second, cfg.Platform.ResolveTimeout)
	assert.Equal(t, "./public", cfg.Storage.Root)
	assert.Equal(t, int64(25<<30), cfg.Storage.MaxBytes)
	assert.Equal(t, 4, cfg.Download.ConcurrentDownloads)
	assert.Equal(t, 30*time.Second, cfg.Download.InactivityTimeout)
	assert.Equal(t, ":2000", cfg.Server.Addr)
	assert.Equal(t, "sessiontoken", cfg.Server.SessionHeader)
	assert.Equal(t, "info", cfg.Logging.Level)

	require.NoError(t, cfg.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SHARETOK_STORAGE_ROOT", "/srv/public")
	t.Setenv("SHARETOK_STORAGE_MAX_BYTES", "1048576")
	t.Setenv("SHARETOK_CONCURRENT_DOWNLOADS", "6")
	t.Setenv("SHARETOK_INACTIVITY_TIMEOUT", "5s")
	t.Setenv("SHARETOK_SIGNER_ENDPOINT", "http://signer:9000/sign")
	t.Setenv("SHARETOK_LOG_LEVEL", "debug")
	t.Setenv("SHARETOK_LOG_FORMAT", "json")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, "/srv/public", cfg.Storage.Root)
	assert.Equal(t, int64(1048576), cfg.Storage.MaxBytes)
	assert.Equal(t, 6, cfg.Download.ConcurrentDownloads)
	assert.Equal(t, 5*time.Second, cfg.Download.InactivityTimeout)
	assert.Equal(t, "http://signer:9000/sign", cfg.Signer.Endpoint)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadFromEnvInvalidValues(t *testing.T) {
	t.Setenv("SHARETOK_CONCURRENT_DOWNLOADS", "many")
	t.Setenv("SHARETOK_INACTIVITY_TIMEOUT", "soon")

	cfg := DefaultConfig()
	err := cfg.LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SHARETOK_CONCURRENT_DOWNLOADS")
	assert.Contains(t, err.Error(), "SHARETOK_INACTIVITY_TIMEOUT")
	assert.Equal(t, 4, cfg.Download.ConcurrentDownloads)
}

func TestLoadFromFile(t *testing.T) {
	t.Run("valid yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		content := `
storage:
  root: /data/public
  max_bytes: 2048
download:
  concurrent_downloads: 2
  inactivity_timeout: 10s
server:
  addr: ":8081"
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))

		cfg := DefaultConfig()
		require.NoError(t, cfg.LoadFromFile(path))

		assert.Equal(t, "/data/public", cfg.Storage.Root)
		assert.Equal(t, int64(2048), cfg.Storage.MaxBytes)
		assert.Equal(t, 2, cfg.Download.ConcurrentDownloads)
		assert.Equal(t, 10*time.Second, cfg.Download.InactivityTimeout)
		assert.Equal(t, ":8081", cfg.Server.Addr)
		// untouched sections keep defaults
		assert.Equal(t, "sessiontoken", cfg.Server.SessionHeader)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("storage: [unclosed"), 0644))

		cfg := DefaultConfig()
		err := cfg.LoadFromFile(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse config file")
	})

	t.Run("missing file", func(t *testing.T) {
		cfg := DefaultConfig()
		err := cfg.LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"zero workers", func(c *Config) { c.Download.ConcurrentDownloads = 0 }, "concurrent downloads must be positive"},
		{"too many workers", func(c *Config) { c.Download.ConcurrentDownloads = 11 }, "should not exceed 10"},
		{"no storage root", func(c *Config) { c.Storage.Root = "" }, "storage root is required"},
		{"no cap", func(c *Config) { c.Storage.MaxBytes = 0 }, "storage max bytes must be positive"},
		{"no signer", func(c *Config) { c.Signer.Endpoint = "" }, "signer endpoint is required"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "invalid log level"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "log format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("aggregates errors", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Storage.Root = ""
		cfg.Server.Addr = ""
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "storage root is required")
		assert.Contains(t, err.Error(), "server address is required")
	})
}

func TestMergeCommandLineFlags(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MergeCommandLineFlags(map[string]interface{}{
		"storage-root": "/tmp/assets",
		"max-bytes":    int64(4096),
		"concurrent":   8,
		"addr":         ":9999",
		"log-level":    "warn",
		"unknown":      true,
	})

	assert.Equal(t, "/tmp/assets", cfg.Storage.Root)
	assert.Equal(t, int64(4096), cfg.Storage.MaxBytes)
	assert.Equal(t, 8, cfg.Download.ConcurrentDownloads)
	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  addr: \":7000\"\nlogging:\n  level: error\n"), 0644))
	t.Setenv("SHARETOK_LOG_LEVEL", "warn")

	cfg, err := Load(path, map[string]interface{}{"addr": ":7001"})
	require.NoError(t, err)

	assert.Equal(t, ":7001", cfg.Server.Addr)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultConfig()
	cfg.Storage.Root = "/saved"
	require.NoError(t, cfg.Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var loaded Config
	require.NoError(t, yaml.Unmarshal(data, &loaded))
	assert.Equal(t, "/saved", loaded.Storage.Root)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}
