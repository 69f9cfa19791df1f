package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tabwarden/tabwarden/internal/host"
	"github.com/tabwarden/tabwarden/internal/items"
)

// FlatFolderReconciler mirrors the tracked-item set into a bookmark folder
// holding title+URL entries. Folders tolerate emptiness, so there is no
// placeholder, positioning or visibility machinery here.
type FlatFolderReconciler struct {
	bookmarks host.BookmarkHost
}

// NewFlatFolder creates the flat-folder strategy.
func NewFlatFolder(bookmarks host.BookmarkHost) *FlatFolderReconciler {
	return &FlatFolderReconciler{bookmarks: bookmarks}
}

// Kind implements Reconciler.
func (*FlatFolderReconciler) Kind() host.Kind {
	return host.KindFlatFolder
}

// EnsureContainer implements Reconciler. Resolution order: the advisory
// handle (unless forced), then a title search, then creation.
func (r *FlatFolderReconciler) EnsureContainer(ctx context.Context, advisoryHandle, name, _ string, force bool) (host.ContainerRef, error) {
	if !force {
		if ref, ok := host.RefFromHandle(host.KindFlatFolder, advisoryHandle); ok {
			if _, err := r.bookmarks.GetFolder(ctx, ref.FolderID); err == nil {
				return ref, nil
			}
		}
	}

	folders, err := r.bookmarks.FindFolders(ctx, name)
	if err != nil {
		return host.ContainerRef{}, fmt.Errorf("failed to search folders: %w", err)
	}
	if len(folders) > 0 {
		return host.ContainerRef{Kind: host.KindFlatFolder, FolderID: folders[0].ID}, nil
	}

	folder, err := r.bookmarks.CreateFolder(ctx, name)
	if err != nil {
		return host.ContainerRef{}, fmt.Errorf("failed to create folder: %w", err)
	}
	slog.Info("Created bookmark folder", "folder", folder.ID, "name", name)
	return host.ContainerRef{Kind: host.KindFlatFolder, FolderID: folder.ID}, nil
}

// Reconcile implements Reconciler for the flat-folder strategy.
func (r *FlatFolderReconciler) Reconcile(ctx context.Context, desired []items.TrackedItem, ref host.ContainerRef, render RenderTitle, _ int) (Result, error) {
	if _, err := r.bookmarks.GetFolder(ctx, ref.FolderID); err != nil {
		if ignoreNotFound(err) == nil {
			return Result{}, ErrStale
		}
		return Result{}, fmt.Errorf("failed to resolve folder: %w", err)
	}

	byURL := desiredURLs(desired)

	r.absorbStrays(ctx, ref.FolderID, desired)

	children, err := r.bookmarks.ListChildren(ctx, ref.FolderID)
	if err != nil {
		if ignoreNotFound(err) == nil {
			return Result{}, ErrStale
		}
		return Result{}, fmt.Errorf("failed to list folder children: %w", err)
	}
	current := make(map[string]host.Bookmark, len(children))
	for _, c := range children {
		if c.URL == "" {
			continue
		}
		if _, dup := current[c.URL]; dup {
			if err := ignoreNotFound(r.bookmarks.RemoveBookmark(ctx, c.ID)); err != nil {
				slog.Warn("Failed to remove duplicate bookmark", "bookmark", c.ID, "error", err)
			}
			continue
		}
		current[c.URL] = c
	}

	var res Result
	for _, it := range desired {
		existing, ok := current[it.URL]
		if ok {
			res.Kept++
			// Re-read-before-write happened above; only touch the entry
			// when the rendered title actually differs.
			if title := render(it); title != existing.Title {
				if err := ignoreNotFound(r.bookmarks.UpdateBookmark(ctx, existing.ID, title)); err != nil {
					slog.Warn("Failed to retitle bookmark", "bookmark", existing.ID, "error", err)
				}
			}
			continue
		}
		if _, err := r.bookmarks.CreateBookmark(ctx, ref.FolderID, render(it), it.URL); err != nil {
			slog.Warn("Failed to create bookmark", "url", it.URL, "error", err)
			continue
		}
		res.Created++
	}

	for url, c := range current {
		if _, ok := byURL[url]; ok {
			continue
		}
		if err := ignoreNotFound(r.bookmarks.RemoveBookmark(ctx, c.ID)); err != nil {
			slog.Warn("Failed to remove bookmark", "bookmark", c.ID, "url", url, "error", err)
			continue
		}
		res.Removed++
	}

	res.Success = true
	return res, nil
}

// CloseStrays implements Reconciler: it removes bookmarks matching desired
// items outside the active folder so the retried round recreates them once.
func (r *FlatFolderReconciler) CloseStrays(ctx context.Context, desired []items.TrackedItem) error {
	for _, it := range desired {
		matches, err := r.bookmarks.SearchByURL(ctx, it.URL)
		if err != nil {
			slog.Warn("Failed to search stray bookmarks", "url", it.URL, "error", err)
			continue
		}
		for _, m := range matches {
			if err := ignoreNotFound(r.bookmarks.RemoveBookmark(ctx, m.ID)); err != nil {
				slog.Warn("Failed to remove stray bookmark", "bookmark", m.ID, "error", err)
			}
		}
	}
	return nil
}

// absorbStrays moves bookmarks that match desired items but live outside the
// folder into it instead of creating duplicates. Best effort.
func (r *FlatFolderReconciler) absorbStrays(ctx context.Context, folderID string, desired []items.TrackedItem) {
	for _, it := range desired {
		matches, err := r.bookmarks.SearchByURL(ctx, it.URL)
		if err != nil {
			slog.Warn("Failed to search for stray bookmarks", "url", it.URL, "error", err)
			continue
		}
		for _, m := range matches {
			if m.ParentID == folderID {
				continue
			}
			if err := ignoreNotFound(r.bookmarks.Move(ctx, m.ID, folderID)); err != nil {
				slog.Warn("Failed to absorb stray bookmark", "bookmark", m.ID, "error", err)
			}
		}
	}
}
