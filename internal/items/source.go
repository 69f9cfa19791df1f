package items

import "context"

//go:generate mockgen -destination=mocks/mock_source.go -package=mocks -source=source.go Source

// Source produces the desired set of tracked items for one sync round.
type Source interface {
	// Fetch returns the tracked items for the given filter mode, deduplicated
	// by URL across underlying queries and restricted to the origin allowlist
	// (comma-separated, case-insensitive; empty admits everything).
	Fetch(ctx context.Context, mode FilterMode, originAllowlist string) ([]TrackedItem, error)
}
