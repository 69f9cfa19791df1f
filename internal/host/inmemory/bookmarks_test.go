package inmemory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabwarden/tabwarden/internal/host"
	"github.com/tabwarden/tabwarden/internal/host/inmemory"
)

func TestBookmarkHostFolderLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := inmemory.NewBookmarkHost()

	folder, err := h.CreateFolder(ctx, "Pull Requests")
	require.NoError(t, err)
	assert.Empty(t, folder.URL)

	found, err := h.FindFolders(ctx, "Pull Requests")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, folder.ID, found[0].ID)

	got, err := h.GetFolder(ctx, folder.ID)
	require.NoError(t, err)
	assert.Equal(t, "Pull Requests", got.Title)

	require.NoError(t, h.RemoveBookmark(ctx, folder.ID))
	_, err = h.GetFolder(ctx, folder.ID)
	assert.ErrorIs(t, err, host.ErrNotFound)
}

func TestBookmarkHostEntries(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := inmemory.NewBookmarkHost()

	folder, err := h.CreateFolder(ctx, "Pull Requests")
	require.NoError(t, err)

	bm, err := h.CreateBookmark(ctx, folder.ID, "[core] Fix bug", "https://github.com/acme/core/pull/42")
	require.NoError(t, err)

	children, err := h.ListChildren(ctx, folder.ID)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, bm.ID, children[0].ID)

	require.NoError(t, h.UpdateBookmark(ctx, bm.ID, "[core] Fix bug v2"))
	children, err = h.ListChildren(ctx, folder.ID)
	require.NoError(t, err)
	assert.Equal(t, "[core] Fix bug v2", children[0].Title)

	matches, err := h.SearchByURL(ctx, "https://github.com/acme/core/pull/42")
	require.NoError(t, err)
	require.Len(t, matches, 1)

	require.NoError(t, h.RemoveBookmark(ctx, bm.ID))
	children, err = h.ListChildren(ctx, folder.ID)
	require.NoError(t, err)
	assert.Empty(t, children)
}

func TestBookmarkHostMove(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := inmemory.NewBookmarkHost()

	src, err := h.CreateFolder(ctx, "Old")
	require.NoError(t, err)
	dst, err := h.CreateFolder(ctx, "Pull Requests")
	require.NoError(t, err)

	bm, err := h.CreateBookmark(ctx, src.ID, "stray", "https://github.com/acme/core/pull/7")
	require.NoError(t, err)

	require.NoError(t, h.Move(ctx, bm.ID, dst.ID))

	children, err := h.ListChildren(ctx, dst.ID)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, dst.ID, children[0].ParentID)

	children, err = h.ListChildren(ctx, src.ID)
	require.NoError(t, err)
	assert.Empty(t, children)
}

func TestBookmarkHostRemoveFolderRemovesChildren(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := inmemory.NewBookmarkHost()

	folder, err := h.CreateFolder(ctx, "Pull Requests")
	require.NoError(t, err)
	bm, err := h.CreateBookmark(ctx, folder.ID, "x", "https://github.com/acme/core/pull/1")
	require.NoError(t, err)

	require.NoError(t, h.RemoveBookmark(ctx, folder.ID))
	_, err = h.ListChildren(ctx, folder.ID)
	assert.ErrorIs(t, err, host.ErrNotFound)

	matches, err := h.SearchByURL(ctx, "https://github.com/acme/core/pull/1")
	require.NoError(t, err)
	assert.Empty(t, matches)
	_ = bm
}

func TestBookmarkHostMissingTargets(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := inmemory.NewBookmarkHost()

	_, err := h.ListChildren(ctx, "nope")
	assert.ErrorIs(t, err, host.ErrNotFound)

	_, err = h.CreateBookmark(ctx, "nope", "t", "https://example.com")
	assert.ErrorIs(t, err, host.ErrNotFound)

	assert.ErrorIs(t, h.UpdateBookmark(ctx, "nope", "t"), host.ErrNotFound)
	assert.ErrorIs(t, h.RemoveBookmark(ctx, "nope"), host.ErrNotFound)
}
