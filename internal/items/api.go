package items

import (
	"context"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/tabwarden/tabwarden/internal/httpclient"
)

// apiSource fetches tracked items from a JSON endpoint. The endpoint serves
// an object with an "items" array of {url, title, number, repository, origin}.
type apiSource struct {
	client   httpclient.Client
	endpoint string
}

// NewAPISource creates a source backed by a JSON items endpoint.
func NewAPISource(client httpclient.Client, endpoint string) Source {
	return &apiSource{
		client:   client,
		endpoint: strings.TrimRight(endpoint, "/"),
	}
}

// Fetch queries the endpoint once per underlying filter and merges results.
func (s *apiSource) Fetch(ctx context.Context, mode FilterMode, originAllowlist string) ([]TrackedItem, error) {
	var all []TrackedItem
	for _, filter := range apiFilters(mode) {
		queryURL := fmt.Sprintf("%s/items?filter=%s", s.endpoint, filter)
		data, err := fetchWithRetry(ctx, s.client, queryURL)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch %s: %w", queryURL, err)
		}

		found, err := parseItemsJSON(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse response from %s: %w", queryURL, err)
		}
		all = append(all, found...)
	}

	all = DedupeByURL(all)
	return FilterByOrigin(all, originAllowlist), nil
}

func apiFilters(mode FilterMode) []string {
	switch mode {
	case FilterModeAssigned:
		return []string{"assigned"}
	case FilterModeReviewRequested:
		return []string{"review-requested"}
	default:
		return []string{"assigned", "review-requested"}
	}
}

// parseItemsJSON extracts tracked items from an "items" array. Entries
// without a URL are skipped.
func parseItemsJSON(data []byte) ([]TrackedItem, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("invalid JSON")
	}

	result := gjson.GetBytes(data, "items")
	if !result.Exists() || !result.IsArray() {
		return nil, fmt.Errorf(`missing "items" array`)
	}

	var found []TrackedItem
	result.ForEach(func(_, value gjson.Result) bool {
		itemURL := value.Get("url").String()
		if itemURL == "" {
			return true
		}
		found = append(found, TrackedItem{
			URL:        itemURL,
			Title:      value.Get("title").String(),
			Number:     int(value.Get("number").Int()),
			Repository: value.Get("repository").String(),
			Origin:     value.Get("origin").String(),
		})
		return true
	})

	return found, nil
}
