package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "https://api.tcgplayer.com", cfg.Catalog.BaseURL)
	assert.Equal(t, 2, cfg.Catalog.CategoryID)
	assert.Equal(t, 30*time.Second, cfg.Catalog.Timeout)
	assert.Equal(t, 100, cfg.Sync.PageSize)
	assert.Equal(t, 20, cfg.Sync.MaxConcurrent)
	assert.Equal(t, 2*time.Second, cfg.Sync.RoundDelay)
	assert.Zero(t, cfg.Sync.RoundTimeout)
	assert.Equal(t, "catalog.db", cfg.Store.Path)
	assert.Empty(t, cfg.Redis.Addr)
	assert.Equal(t, 30*time.Minute, cfg.Redis.LockTTL)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
catalog:
  category_id: 3
sync:
  page_size: 50
  round_delay: 500ms
store:
  path: /tmp/cards.db
redis:
  addr: localhost:6379
`), 0o600))

	t.Setenv("CATALOG_SYNC_SYNC_MAX_CONCURRENT", "4")
	t.Setenv("CATALOG_SYNC_LOGGING_FORMAT", "json")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Catalog.CategoryID)
	assert.Equal(t, 50, cfg.Sync.PageSize)
	assert.Equal(t, 4, cfg.Sync.MaxConcurrent)
	assert.Equal(t, 500*time.Millisecond, cfg.Sync.RoundDelay)
	assert.Equal(t, "/tmp/cards.db", cfg.Store.Path)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_HomeDirectory(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Chdir(t.TempDir())

	dir := filepath.Join(home, ".catalog-sync")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "catalog-sync.yaml"), []byte("sync:\n  page_size: 25\n"), 0o600))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.Sync.PageSize)
}

func TestLoad_WorkingDirectoryWins(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	wd := t.TempDir()
	t.Chdir(wd)

	dir := filepath.Join(home, ".catalog-sync")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "catalog-sync.yaml"), []byte("sync:\n  page_size: 25\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(wd, "catalog-sync.yaml"), []byte("sync:\n  page_size: 10\n"), 0o600))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Sync.PageSize)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Catalog: Catalog{BaseURL: "https://api.example.test", CategoryID: 2, UserAgent: "Test/1.0"},
			Sync:    Sync{PageSize: 100, MaxConcurrent: 20},
			Store:   Store{Path: "catalog.db"},
			Logging: Logging{Level: "info", Format: "console"},
		}
	}

	tests := []struct {
		name     string
		mutate   func(*Config)
		errorMsg string
	}{
		{"valid", func(*Config) {}, ""},
		{"zero page size", func(c *Config) { c.Sync.PageSize = 0 }, "sync.page_size"},
		{"zero concurrency", func(c *Config) { c.Sync.MaxConcurrent = 0 }, "sync.max_concurrent"},
		{"negative delay", func(c *Config) { c.Sync.RoundDelay = -time.Second }, "sync.round_delay"},
		{"bad category", func(c *Config) { c.Catalog.CategoryID = 0 }, "catalog.category_id"},
		{"no store path", func(c *Config) { c.Store.Path = "" }, "store.path"},
		{"redis without ttl", func(c *Config) { c.Redis.Addr = "localhost:6379" }, "redis.lock_ttl"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.errorMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorMsg)
		})
	}
}
