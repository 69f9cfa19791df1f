package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabwarden/tabwarden/internal/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, ":8089", cfg.ListenAddress)
	assert.Equal(t, "./data", cfg.DataDir)
	assert.Equal(t, config.ContainerKindGroupedTabs, cfg.ContainerKind)
	assert.Equal(t, config.DefaultItemURLPattern, cfg.ItemURLPattern)
	assert.Equal(t, config.HostTypeInMemory, cfg.Host.Type)
	assert.Equal(t, "github.com", cfg.Auth.Domain)
	assert.Equal(t, "logged_in", cfg.Auth.CookieName)
	assert.Equal(t, "yes", cfg.Auth.CookieValue)
}

func TestLoadFromFile(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
listenAddress: ":9000"
dataDir: /var/lib/tabwarden
containerKind: flat-folder
source:
  type: html
  endpoint: https://github.com
host:
  type: cdp
  devtoolsURL: ws://127.0.0.1:9222
auth:
  domain: git.example.com
  cookieName: session
  cookieValue: active
`)

	cfg, err := config.Load(config.WithConfigPath(path))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ":9000", cfg.ListenAddress)
	assert.Equal(t, config.ContainerKindFlatFolder, cfg.ContainerKind)
	assert.Equal(t, config.SourceTypeHTML, cfg.Source.Type)
	assert.Equal(t, "https://github.com", cfg.Source.Endpoint)
	assert.Equal(t, config.HostTypeCDP, cfg.Host.Type)
	assert.Equal(t, "git.example.com", cfg.Auth.Domain)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := config.Load(config.WithConfigPath(filepath.Join(t.TempDir(), "nope.yaml")))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := func() *config.Config {
		cfg, err := config.Load()
		require.NoError(t, err)
		cfg.Source = &config.SourceConfig{Type: config.SourceTypeHTML, Endpoint: "https://github.com"}
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{
			name:   "valid html source",
			mutate: func(*config.Config) {},
		},
		{
			name: "valid file source",
			mutate: func(c *config.Config) {
				c.Source = &config.SourceConfig{Type: config.SourceTypeFile, Path: "/tmp/items.json"}
			},
		},
		{
			name:    "missing source",
			mutate:  func(c *config.Config) { c.Source = nil },
			wantErr: "source configuration is required",
		},
		{
			name: "html source without endpoint",
			mutate: func(c *config.Config) {
				c.Source = &config.SourceConfig{Type: config.SourceTypeHTML}
			},
			wantErr: "endpoint is required",
		},
		{
			name: "file source without path",
			mutate: func(c *config.Config) {
				c.Source = &config.SourceConfig{Type: config.SourceTypeFile}
			},
			wantErr: "path is required",
		},
		{
			name:    "unknown source type",
			mutate:  func(c *config.Config) { c.Source.Type = "gopher" },
			wantErr: "unsupported source type",
		},
		{
			name:    "invalid container kind",
			mutate:  func(c *config.Config) { c.ContainerKind = "window" },
			wantErr: "invalid containerKind",
		},
		{
			name:    "invalid url pattern",
			mutate:  func(c *config.Config) { c.ItemURLPattern = "([" },
			wantErr: "invalid itemURLPattern",
		},
		{
			name:    "cdp host without devtools url",
			mutate:  func(c *config.Config) { c.Host = &config.HostConfig{Type: config.HostTypeCDP} },
			wantErr: "devtoolsURL is required",
		},
		{
			name:    "unknown host type",
			mutate:  func(c *config.Config) { c.Host.Type = "firefox-native" },
			wantErr: "unsupported host type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestWithConfigPathRejectsEmpty(t *testing.T) {
	t.Parallel()

	_, err := config.Load(config.WithConfigPath(""))
	assert.Error(t, err)
}
