package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ANNOTATE_CONFIG", "")
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8787", cfg.Addr)
	assert.Equal(t, time.Hour, cfg.Auth.AccessTTL)
	assert.Equal(t, 50, cfg.Search.MinBatchSize)
	assert.Equal(t, 20, cfg.Search.DefaultLimit)
	assert.Equal(t, 200, cfg.Search.MaxLimit)
	assert.Equal(t, 30*time.Minute, cfg.Database.ConnMaxLifetime)
	assert.Empty(t, cfg.Redis.URL)
	assert.Empty(t, cfg.Meili.URL)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("ANNOTATE_CONFIG", "")
	t.Setenv("API_ADDR", ":9000")
	t.Setenv("ANNOTATE_ACCESS_TTL", "15m")
	t.Setenv("ANNOTATE_SEARCH_MIN_BATCH_SIZE", "7")
	t.Setenv("REDIS_URL", "redis://localhost:6379/1")
	t.Setenv("MINIO_USE_SSL", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, 15*time.Minute, cfg.Auth.AccessTTL)
	assert.Equal(t, 7, cfg.Search.MinBatchSize)
	assert.Equal(t, "redis://localhost:6379/1", cfg.Redis.URL)
	assert.True(t, cfg.MinIO.UseSSL)
}

func TestLoadFileThenEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "annotate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
addr: ":7000"
search:
  max_limit: 500
meili:
  url: http://meili:7700
  breaker_timeout: 1m
`), 0o600))
	t.Setenv("ANNOTATE_CONFIG", path)
	t.Setenv("API_ADDR", ":7001")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":7001", cfg.Addr, "environment wins over file")
	assert.Equal(t, 500, cfg.Search.MaxLimit)
	assert.Equal(t, "http://meili:7700", cfg.Meili.URL)
	assert.Equal(t, time.Minute, cfg.Meili.BreakerTimeout)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Setenv("ANNOTATE_CONFIG", "")
	base, err := Load("")
	require.NoError(t, err)

	cases := map[string]func(*Config){
		"empty secret":      func(c *Config) { c.Auth.JWTSecret = "" },
		"zero batch":        func(c *Config) { c.Search.MinBatchSize = 0 },
		"max below default": func(c *Config) { c.Search.MaxLimit = 10 },
		"minio no bucket":   func(c *Config) { c.MinIO.Endpoint = "localhost:9000"; c.MinIO.Bucket = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := base
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
