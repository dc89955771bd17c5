package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "https://www.jobs.ch", cfg.Site.BaseURL)
	assert.Equal(t, 3, cfg.Workers.Extract)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 50, cfg.Sink.BatchSize)
	assert.Equal(t, 90, cfg.Archive.FileLimit)
	assert.Equal(t, "direct", cfg.Fetch.Backend)
	assert.NotEmpty(t, cfg.Fetch.UserAgents)
}

func TestLoadFromFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
site:
  search_terms: ["Elektroniker", "Koch"]
  page_ceiling: 5
workers:
  extract: 8
sink:
  batch_size: 25
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Elektroniker", "Koch"}, cfg.Site.SearchTerms)
	assert.Equal(t, 5, cfg.Site.PageCeiling)
	assert.Equal(t, 8, cfg.Workers.Extract)
	assert.Equal(t, 25, cfg.Sink.BatchSize)
	// Untouched keys keep their defaults.
	assert.Equal(t, 3, cfg.Workers.Archive)
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Parallel()

	base := func() Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no search terms", func(c *Config) { c.Site.SearchTerms = nil }},
		{"zero page ceiling", func(c *Config) { c.Site.PageCeiling = 0 }},
		{"zero extract workers", func(c *Config) { c.Workers.Extract = 0 }},
		{"zero batch size", func(c *Config) { c.Sink.BatchSize = 0 }},
		{"unknown backend", func(c *Config) { c.Fetch.Backend = "carrier-pigeon" }},
		{"proxy without key", func(c *Config) { c.Fetch.Backend = "proxy"; c.Fetch.ProxyAPIKey = "" }},
		{"no user agents", func(c *Config) { c.Fetch.UserAgents = nil }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := base()
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
