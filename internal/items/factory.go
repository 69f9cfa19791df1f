package items

import (
	"fmt"

	"github.com/tabwarden/tabwarden/internal/config"
	"github.com/tabwarden/tabwarden/internal/httpclient"
)

// NewSource creates the item source described by the configuration.
func NewSource(cfg *config.SourceConfig, client httpclient.Client) (Source, error) {
	if cfg == nil {
		return nil, fmt.Errorf("source configuration is required")
	}

	switch cfg.Type {
	case config.SourceTypeHTML:
		return NewHTMLSource(client, cfg.Endpoint), nil
	case config.SourceTypeAPI:
		return NewAPISource(client, cfg.Endpoint), nil
	case config.SourceTypeFile:
		return NewFileSource(cfg.Path), nil
	default:
		return nil, fmt.Errorf("unsupported source type: %s", cfg.Type)
	}
}
