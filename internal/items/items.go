// Package items defines the tracked-item model and the sources that produce
// the desired item set for a sync round.
package items

import "strings"

// FilterMode selects which pull requests the source queries for.
type FilterMode string

const (
	// FilterModeAssigned fetches items assigned to the current user
	FilterModeAssigned FilterMode = "all-assigned"

	// FilterModeReviewRequested fetches items awaiting the current user's review
	FilterModeReviewRequested FilterMode = "review-requested"

	// FilterModeBoth fetches the union of both queries
	FilterModeBoth FilterMode = "both"
)

// Valid reports whether the filter mode is one of the known values.
func (m FilterMode) Valid() bool {
	switch m {
	case FilterModeAssigned, FilterModeReviewRequested, FilterModeBoth:
		return true
	}
	return false
}

// TrackedItem is one unit of remote work to mirror locally, keyed by URL.
// Only URL participates in identity; all other fields are display data.
type TrackedItem struct {
	// URL is the unique identity of the item
	URL string `json:"url"`

	// Title is the item's display name
	Title string `json:"title"`

	// Number is the item's sequence number (e.g. PR number)
	Number int `json:"number"`

	// Repository is the short repository name the item belongs to
	Repository string `json:"repository"`

	// Origin is the owning organization or user, used for allowlist filtering
	Origin string `json:"origin"`
}

// DedupeByURL returns the items with duplicate URLs removed, keeping the
// first occurrence and preserving order.
func DedupeByURL(in []TrackedItem) []TrackedItem {
	seen := make(map[string]struct{}, len(in))
	out := make([]TrackedItem, 0, len(in))
	for _, it := range in {
		if _, ok := seen[it.URL]; ok {
			continue
		}
		seen[it.URL] = struct{}{}
		out = append(out, it)
	}
	return out
}

// FilterByOrigin drops items whose origin is not in the allowlist. An empty
// allowlist admits everything. Comparison is case-insensitive and tolerates
// whitespace around the comma-separated entries.
func FilterByOrigin(in []TrackedItem, allowlist string) []TrackedItem {
	allowlist = strings.TrimSpace(allowlist)
	if allowlist == "" {
		return in
	}

	allowed := make(map[string]struct{})
	for _, entry := range strings.Split(allowlist, ",") {
		entry = strings.ToLower(strings.TrimSpace(entry))
		if entry != "" {
			allowed[entry] = struct{}{}
		}
	}

	out := make([]TrackedItem, 0, len(in))
	for _, it := range in {
		if _, ok := allowed[strings.ToLower(it.Origin)]; ok {
			out = append(out, it)
		}
	}
	return out
}
