package items

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/tabwarden/tabwarden/internal/httpclient"
)

// Dashboard paths queried per filter mode.
const (
	assignedPath        = "/pulls/assigned"
	reviewRequestedPath = "/pulls/review-requested"
)

// htmlSource scrapes tracked items out of the pull-request dashboard pages.
type htmlSource struct {
	client   httpclient.Client
	endpoint string
}

// NewHTMLSource creates a source that scrapes the pull-request dashboard
// served at the given endpoint (scheme + host, no trailing slash).
func NewHTMLSource(client httpclient.Client, endpoint string) Source {
	return &htmlSource{
		client:   client,
		endpoint: strings.TrimRight(endpoint, "/"),
	}
}

// Fetch scrapes one dashboard page per underlying query and merges the
// results, deduplicated by URL.
func (s *htmlSource) Fetch(ctx context.Context, mode FilterMode, originAllowlist string) ([]TrackedItem, error) {
	var all []TrackedItem
	for _, path := range s.queryPaths(mode) {
		pageURL := s.endpoint + path
		data, err := fetchWithRetry(ctx, s.client, pageURL)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch %s: %w", pageURL, err)
		}

		found, err := s.parsePage(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", pageURL, err)
		}
		all = append(all, found...)
	}

	all = DedupeByURL(all)
	return FilterByOrigin(all, originAllowlist), nil
}

func (*htmlSource) queryPaths(mode FilterMode) []string {
	switch mode {
	case FilterModeAssigned:
		return []string{assignedPath}
	case FilterModeReviewRequested:
		return []string{reviewRequestedPath}
	default:
		return []string{assignedPath, reviewRequestedPath}
	}
}

// parsePage extracts pull-request rows from a dashboard page. Anchors that do
// not resolve to a pull-request URL are skipped, never fatal.
func (s *htmlSource) parsePage(data []byte) ([]TrackedItem, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	var found []TrackedItem
	doc.Find(`a[data-hovercard-type="pull_request"]`).Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}

		itemURL := href
		if strings.HasPrefix(href, "/") {
			itemURL = s.endpoint + href
		}

		it, err := itemFromURL(itemURL, strings.TrimSpace(sel.Text()))
		if err != nil {
			slog.Debug("Skipping non-item anchor", "href", href, "error", err)
			return
		}
		found = append(found, it)
	})

	return found, nil
}

// itemFromURL derives the item fields from a pull-request URL of the form
// https://host/{origin}/{repository}/pull/{number}.
func itemFromURL(itemURL, title string) (TrackedItem, error) {
	u, err := url.Parse(itemURL)
	if err != nil {
		return TrackedItem{}, err
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) != 4 || segments[2] != "pull" {
		return TrackedItem{}, fmt.Errorf("not a pull request path: %s", u.Path)
	}

	number, err := strconv.Atoi(segments[3])
	if err != nil {
		return TrackedItem{}, fmt.Errorf("invalid pull request number %q: %w", segments[3], err)
	}

	return TrackedItem{
		URL:        itemURL,
		Title:      title,
		Number:     number,
		Repository: segments[1],
		Origin:     segments[0],
	}, nil
}
