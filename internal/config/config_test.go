package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiaz/bgg-crawler/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "https://boardgamegeek.com/browse/boardgame", cfg.Crawl.StartURL)
	assert.Equal(t, 10, cfg.Crawl.ItemMaxAttempts)
	assert.Equal(t, "bgg-details", cfg.Storage.Prefix)
	assert.Equal(t, 45*time.Second, cfg.NavTimeout())
	assert.Equal(t, 15*time.Second, cfg.RatingsTimeout())
	assert.Equal(t, 50, cfg.Ratings.PageSize)
	assert.Empty(t, cfg.Debug.Addr)
	assert.True(t, cfg.Logging.Development)
}

func TestLoad_FileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	payload := []byte(`crawl:
  item_max_attempts: 3
storage:
  base_dir: /tmp/bgg
  prefix: sessions
debug:
  addr: ":9090"
`)
	require.NoError(t, os.WriteFile(path, payload, 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Crawl.ItemMaxAttempts)
	assert.Equal(t, "/tmp/bgg", cfg.Storage.BaseDir)
	assert.Equal(t, "sessions", cfg.Storage.Prefix)
	assert.Equal(t, ":9090", cfg.Debug.Addr)
	// Untouched keys keep their defaults.
	assert.Equal(t, "https://boardgamegeek.com/browse/boardgame", cfg.Crawl.StartURL)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base, err := config.Load("")
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"EmptyStartURL", func(c *config.Config) { c.Crawl.StartURL = "" }},
		{"ZeroItemAttempts", func(c *config.Config) { c.Crawl.ItemMaxAttempts = 0 }},
		{"ZeroNavTimeout", func(c *config.Config) { c.Browser.NavTimeoutSeconds = 0 }},
		{"ZeroPageSize", func(c *config.Config) { c.Ratings.PageSize = 0 }},
		{"EmptyPrefix", func(c *config.Config) { c.Storage.Prefix = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
