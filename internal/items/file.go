package items

import (
	"context"
	"fmt"
	"os"
)

// fileSource reads tracked items from a local JSON file. Intended for
// development and tests; the file uses the same format as the API source.
type fileSource struct {
	path string
}

// NewFileSource creates a source backed by a local JSON file.
func NewFileSource(path string) Source {
	return &fileSource{path: path}
}

// Fetch reads and parses the items file. The filter mode is ignored; file
// fixtures carry a single item set.
func (s *fileSource) Fetch(_ context.Context, _ FilterMode, originAllowlist string) ([]TrackedItem, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read items file %s: %w", s.path, err)
	}

	found, err := parseItemsJSON(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse items file %s: %w", s.path, err)
	}

	found = DedupeByURL(found)
	return FilterByOrigin(found, originAllowlist), nil
}
