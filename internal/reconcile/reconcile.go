// Package reconcile implements the container reconciliation engine. Given a
// desired set of tracked items and the actual state of a browser-managed
// container, each strategy computes and applies the minimal create, update
// and remove operations to make actual match desired, while preserving
// manual user arrangement and recovering from the container itself going
// stale mid-operation.
package reconcile

import (
	"context"
	"errors"

	"github.com/tabwarden/tabwarden/internal/host"
	"github.com/tabwarden/tabwarden/internal/items"
)

// ErrStale signals that the container reference no longer resolves to a live
// container. It is the only reconcile error that changes control flow: the
// orchestrator reacts with a one-shot recreate-and-retry.
var ErrStale = errors.New("container reference is stale")

// PlaceholderURL is the URL of the placeholder entry the grouped-tabs
// strategy keeps in an otherwise-empty container, since the host disallows
// zero-member groups.
const PlaceholderURL = "about:blank"

// RenderTitle renders an entry title from a tracked item.
type RenderTitle func(items.TrackedItem) string

// Result reports what one reconcile pass did. Entries discarded by the
// redirect guard count in none of the buckets.
type Result struct {
	Success bool
	Created int
	Removed int
	Kept    int
}

// Reconciler is the shared contract both container strategies implement.
// Exactly one strategy is active per installation, selected once at startup.
type Reconciler interface {
	// Kind identifies the container kind this strategy manages
	Kind() host.Kind

	// EnsureContainer resolves the active container, creating it when
	// missing. The advisory handle is re-validated, never trusted blindly;
	// force bypasses it and searches by name instead.
	EnsureContainer(ctx context.Context, advisoryHandle, name, color string, force bool) (host.ContainerRef, error)

	// Reconcile drives the container's entry set to match desired. It
	// returns ErrStale (with Success=false) when the ref no longer resolves;
	// every other per-entry failure is logged and skipped.
	Reconcile(ctx context.Context, desired []items.TrackedItem, ref host.ContainerRef, render RenderTitle, previousItemCount int) (Result, error)

	// CloseStrays best-effort removes entries matching desired items that
	// sit outside any container, so a recreated container starts clean.
	CloseStrays(ctx context.Context, desired []items.TrackedItem) error
}

// desiredURLs indexes a desired-items list by its identity key.
func desiredURLs(desired []items.TrackedItem) map[string]items.TrackedItem {
	byURL := make(map[string]items.TrackedItem, len(desired))
	for _, it := range desired {
		byURL[it.URL] = it
	}
	return byURL
}

// isPlaceholder reports whether an entry URL marks a placeholder.
func isPlaceholder(url string) bool {
	return url == "" || url == PlaceholderURL
}

// ignoreNotFound drops ErrNotFound so eviction and cleanup of already-gone
// entries stays a silent no-op.
func ignoreNotFound(err error) error {
	if errors.Is(err, host.ErrNotFound) {
		return nil
	}
	return err
}
