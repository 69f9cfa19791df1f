// Package config provides configuration loading and management for the tabwarden daemon.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

const (
	// SourceTypeHTML is the type for items scraped out of dashboard pages
	SourceTypeHTML = "html"

	// SourceTypeAPI is the type for items fetched from a JSON endpoint
	SourceTypeAPI = "api"

	// SourceTypeFile is the type for items read from a local JSON file
	SourceTypeFile = "file"
)

const (
	// ContainerKindGroupedTabs mirrors items into an exclusive tab group
	ContainerKindGroupedTabs = "grouped-tabs"

	// ContainerKindFlatFolder mirrors items into a bookmark folder
	ContainerKindFlatFolder = "flat-folder"
)

const (
	// HostTypeInMemory runs against the in-process simulated browser host
	HostTypeInMemory = "inmemory"

	// HostTypeCDP runs against a browser's remote debugging endpoint
	HostTypeCDP = "cdp"
)

// DefaultItemURLPattern matches pull-request URLs; entries whose URL stops
// matching this pattern are evicted from the container.
const DefaultItemURLPattern = `^https://github\.com/[^/]+/[^/]+/pull/\d+`

// Config represents the root configuration structure
type Config struct {
	// ListenAddress is the address the messaging surface listens on
	ListenAddress string `yaml:"listenAddress,omitempty"`

	// DataDir is where durable state (settings.json) is stored
	DataDir string `yaml:"dataDir,omitempty"`

	// ContainerKind selects the reconciliation strategy, determined once at
	// startup (grouped-tabs or flat-folder)
	ContainerKind string `yaml:"containerKind,omitempty"`

	// ItemURLPattern is the regular expression a container member's URL must
	// keep matching to stay in the container
	ItemURLPattern string `yaml:"itemURLPattern,omitempty"`

	Source *SourceConfig `yaml:"source"`
	Host   *HostConfig   `yaml:"host,omitempty"`
	Auth   *AuthConfig   `yaml:"auth,omitempty"`
}

// SourceConfig defines the item source configuration
type SourceConfig struct {
	// Type specifies the source kind (html, api or file)
	Type string `yaml:"type"`

	// Endpoint is the base URL for html and api sources
	Endpoint string `yaml:"endpoint,omitempty"`

	// Path is the items file path for file sources
	Path string `yaml:"path,omitempty"`
}

// HostConfig defines which browser host backs the container
type HostConfig struct {
	// Type is the host adapter kind (inmemory or cdp)
	Type string `yaml:"type"`

	// DevtoolsURL is the remote debugging endpoint for the cdp host,
	// e.g. "ws://127.0.0.1:9222"
	DevtoolsURL string `yaml:"devtoolsURL,omitempty"`
}

// AuthConfig defines the credential cookie the auth oracle inspects
type AuthConfig struct {
	Domain      string `yaml:"domain"`
	CookieName  string `yaml:"cookieName"`
	CookieValue string `yaml:"cookieValue"`
}

// Option defines the interface for configuration loader options
type Option func(*loaderConfig) error

type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks to prevent symlink attacks.
		// Note that this calls filepath.Clean internally.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		if !filepath.IsAbs(realPath) {
			if !filepath.IsLocal(realPath) {
				return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
			}
		}

		cfg.path = realPath
		return nil
	}
}

// Load reads, parses and defaults a configuration.
func Load(opts ...Option) (*Config, error) {
	lc := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(lc); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	if lc.path != "" {
		data, err := os.ReadFile(lc.path)
		if err != nil {
			return nil, fmt.Errorf("failed to read configuration file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse configuration file: %w", err)
		}
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ListenAddress == "" {
		c.ListenAddress = ":8089"
	}
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	if c.ContainerKind == "" {
		c.ContainerKind = ContainerKindGroupedTabs
	}
	if c.ItemURLPattern == "" {
		c.ItemURLPattern = DefaultItemURLPattern
	}
	if c.Host == nil {
		c.Host = &HostConfig{Type: HostTypeInMemory}
	}
	if c.Auth == nil {
		c.Auth = &AuthConfig{}
	}
	if c.Auth.Domain == "" {
		c.Auth.Domain = "github.com"
	}
	if c.Auth.CookieName == "" {
		c.Auth.CookieName = "logged_in"
	}
	if c.Auth.CookieValue == "" {
		c.Auth.CookieValue = "yes"
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	switch c.ContainerKind {
	case ContainerKindGroupedTabs, ContainerKindFlatFolder:
	default:
		return fmt.Errorf("invalid containerKind: %s", c.ContainerKind)
	}

	if _, err := regexp.Compile(c.ItemURLPattern); err != nil {
		return fmt.Errorf("invalid itemURLPattern: %w", err)
	}

	if c.Source == nil {
		return fmt.Errorf("source configuration is required")
	}
	switch c.Source.Type {
	case SourceTypeHTML, SourceTypeAPI:
		if c.Source.Endpoint == "" {
			return fmt.Errorf("source endpoint is required for %s sources", c.Source.Type)
		}
		if _, err := url.ParseRequestURI(c.Source.Endpoint); err != nil {
			return fmt.Errorf("invalid source endpoint: %w", err)
		}
	case SourceTypeFile:
		if c.Source.Path == "" {
			return fmt.Errorf("source path is required for file sources")
		}
	default:
		return fmt.Errorf("unsupported source type: %s", c.Source.Type)
	}

	switch c.Host.Type {
	case HostTypeInMemory:
	case HostTypeCDP:
		if c.Host.DevtoolsURL == "" {
			return fmt.Errorf("host devtoolsURL is required for cdp hosts")
		}
	default:
		return fmt.Errorf("unsupported host type: %s", c.Host.Type)
	}

	return nil
}
