package inmemory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/tabwarden/tabwarden/internal/host"
)

// RootFolderID is the fixed parent under which top-level folders are created.
const RootFolderID = "root"

// BookmarkHost is an in-memory implementation of host.BookmarkHost.
type BookmarkHost struct {
	mu    sync.Mutex
	nodes map[string]*host.Bookmark
	// order keeps children in insertion order per parent
	order map[string][]string
}

// NewBookmarkHost creates an in-memory bookmark tree with an empty root.
func NewBookmarkHost() *BookmarkHost {
	h := &BookmarkHost{
		nodes: make(map[string]*host.Bookmark),
		order: make(map[string][]string),
	}
	h.nodes[RootFolderID] = &host.Bookmark{ID: RootFolderID, Title: "Bookmarks"}
	return h
}

func (h *BookmarkHost) GetFolder(_ context.Context, id string) (host.Bookmark, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	n, ok := h.nodes[id]
	if !ok || n.URL != "" {
		return host.Bookmark{}, host.ErrNotFound
	}
	return *n, nil
}

func (h *BookmarkHost) FindFolders(_ context.Context, title string) ([]host.Bookmark, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var out []host.Bookmark
	for _, id := range h.order[RootFolderID] {
		n := h.nodes[id]
		if n.URL == "" && n.Title == title {
			out = append(out, *n)
		}
	}
	return out, nil
}

func (h *BookmarkHost) CreateFolder(_ context.Context, title string) (host.Bookmark, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := &host.Bookmark{
		ID:       uuid.NewString(),
		ParentID: RootFolderID,
		Title:    title,
	}
	h.nodes[n.ID] = n
	h.order[RootFolderID] = append(h.order[RootFolderID], n.ID)
	return *n, nil
}

func (h *BookmarkHost) ListChildren(_ context.Context, folderID string) ([]host.Bookmark, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if n, ok := h.nodes[folderID]; !ok || n.URL != "" {
		return nil, host.ErrNotFound
	}
	out := make([]host.Bookmark, 0, len(h.order[folderID]))
	for _, id := range h.order[folderID] {
		out = append(out, *h.nodes[id])
	}
	return out, nil
}

func (h *BookmarkHost) CreateBookmark(_ context.Context, folderID, title, url string) (host.Bookmark, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if n, ok := h.nodes[folderID]; !ok || n.URL != "" {
		return host.Bookmark{}, host.ErrNotFound
	}
	n := &host.Bookmark{
		ID:       uuid.NewString(),
		ParentID: folderID,
		Title:    title,
		URL:      url,
	}
	h.nodes[n.ID] = n
	h.order[folderID] = append(h.order[folderID], n.ID)
	return *n, nil
}

func (h *BookmarkHost) UpdateBookmark(_ context.Context, id, title string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	n, ok := h.nodes[id]
	if !ok {
		return host.ErrNotFound
	}
	n.Title = title
	return nil
}

func (h *BookmarkHost) RemoveBookmark(_ context.Context, id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	n, ok := h.nodes[id]
	if !ok {
		return host.ErrNotFound
	}
	delete(h.nodes, id)
	h.removeFromParentLocked(n.ParentID, id)
	// Folder removal takes its children with it
	for _, child := range h.order[id] {
		delete(h.nodes, child)
	}
	delete(h.order, id)
	return nil
}

func (h *BookmarkHost) SearchByURL(_ context.Context, url string) ([]host.Bookmark, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var out []host.Bookmark
	for _, n := range h.nodes {
		if n.URL != "" && n.URL == url {
			out = append(out, *n)
		}
	}
	return out, nil
}

func (h *BookmarkHost) Move(_ context.Context, id, folderID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	n, ok := h.nodes[id]
	if !ok {
		return host.ErrNotFound
	}
	if dst, ok := h.nodes[folderID]; !ok || dst.URL != "" {
		return host.ErrNotFound
	}
	h.removeFromParentLocked(n.ParentID, id)
	n.ParentID = folderID
	h.order[folderID] = append(h.order[folderID], id)
	return nil
}

func (h *BookmarkHost) removeFromParentLocked(parentID, id string) {
	children := h.order[parentID]
	for i, c := range children {
		if c == id {
			h.order[parentID] = append(children[:i], children[i+1:]...)
			return
		}
	}
}
