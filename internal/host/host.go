// Package host defines the capability surface tabwarden needs from a browser:
// grouped tabs, flat bookmark folders and credential cookies. Adapters
// (in-memory simulation, Chrome DevTools Protocol) implement these interfaces.
package host

import (
	"context"
	"errors"
	"strconv"
)

// ErrNotFound is returned by any operation whose target (tab, group, folder
// or bookmark) no longer exists. A previously valid container handle
// returning this is a stale reference, not a crash.
var ErrNotFound = errors.New("host: not found")

// Kind identifies the container strategy a ref belongs to.
type Kind string

const (
	// KindGroupedTabs is an exclusive-membership, collapsible tab group
	KindGroupedTabs Kind = "grouped-tabs"

	// KindFlatFolder is a bookmark folder holding title+URL entries
	KindFlatFolder Kind = "flat-folder"
)

// NoGroup marks a tab that belongs to no group.
const NoGroup int64 = -1

// ContainerRef is an opaque handle to the active container. It may become
// stale at any time between lookup and mutation.
type ContainerRef struct {
	Kind     Kind
	GroupID  int64
	FolderID string
}

// Handle encodes the ref for advisory persistence in the settings record.
func (r ContainerRef) Handle() string {
	if r.Kind == KindGroupedTabs {
		return strconv.FormatInt(r.GroupID, 10)
	}
	return r.FolderID
}

// RefFromHandle decodes an advisory handle back into a ref of the given kind.
// The zero ref is returned for an empty or malformed handle.
func RefFromHandle(kind Kind, handle string) (ContainerRef, bool) {
	if handle == "" {
		return ContainerRef{}, false
	}
	if kind == KindGroupedTabs {
		id, err := strconv.ParseInt(handle, 10, 64)
		if err != nil {
			return ContainerRef{}, false
		}
		return ContainerRef{Kind: kind, GroupID: id}, true
	}
	return ContainerRef{Kind: kind, FolderID: handle}, true
}

// Tab is one browser tab as reported by the host.
type Tab struct {
	ID      int64
	Index   int
	GroupID int64
	URL     string
	Title   string
	Pinned  bool
}

// TabGroup is an exclusive-membership tab group.
type TabGroup struct {
	ID        int64
	Title     string
	Color     string
	Collapsed bool
}

// GroupUpdate carries a partial group mutation; nil fields are unchanged.
type GroupUpdate struct {
	Title     *string
	Color     *string
	Collapsed *bool
}

// TabEventType identifies a host tab notification.
type TabEventType string

const (
	// TabEventUpdated fires when a tab's URL or group membership changes
	TabEventUpdated TabEventType = "tab-updated"

	// TabEventRemoved fires when a tab is closed
	TabEventRemoved TabEventType = "tab-removed"

	// TabEventGroupUpdated fires when a group's title, color or collapsed
	// state changes
	TabEventGroupUpdated TabEventType = "group-updated"
)

// TabEvent is one host tab notification. Tab is set for tab events, Group
// for group events.
type TabEvent struct {
	Type  TabEventType
	Tab   Tab
	Group TabGroup
}

// TabHost is the grouped-tabs capability surface.
type TabHost interface {
	// ListTabs returns all tabs in window order
	ListTabs(ctx context.Context) ([]Tab, error)

	// GetTab returns one tab, or ErrNotFound
	GetTab(ctx context.Context, id int64) (Tab, error)

	// CreateTab opens a new ungrouped tab at the given URL
	CreateTab(ctx context.Context, url string, active bool) (Tab, error)

	// CloseTab closes a tab. Closing an already-closed tab is ErrNotFound.
	CloseTab(ctx context.Context, id int64) error

	// MoveTabs moves the tabs to consecutive positions starting at index;
	// index -1 means the end of the window
	MoveTabs(ctx context.Context, index int, ids ...int64) error

	// GetGroup returns one group, or ErrNotFound when the group is gone
	GetGroup(ctx context.Context, id int64) (TabGroup, error)

	// ListGroups returns all groups
	ListGroups(ctx context.Context) ([]TabGroup, error)

	// CreateGroup groups the given tabs (at least one) into a new group
	CreateGroup(ctx context.Context, tabIDs []int64, title, color string) (TabGroup, error)

	// UpdateGroup applies a partial mutation and returns the updated group
	UpdateGroup(ctx context.Context, id int64, upd GroupUpdate) (TabGroup, error)

	// GroupTabs adds tabs to an existing group
	GroupTabs(ctx context.Context, groupID int64, ids ...int64) error

	// UngroupTabs removes tabs from whatever group they are in
	UngroupTabs(ctx context.Context, ids ...int64) error

	// Events is the host notification feed. The channel is closed when the
	// host shuts down.
	Events() <-chan TabEvent
}

// Bookmark is one bookmark node; an empty URL marks a folder.
type Bookmark struct {
	ID       string
	ParentID string
	Title    string
	URL      string
}

// BookmarkHost is the flat-folder capability surface.
type BookmarkHost interface {
	// GetFolder returns a folder node, or ErrNotFound
	GetFolder(ctx context.Context, id string) (Bookmark, error)

	// FindFolders returns all folders with the given title
	FindFolders(ctx context.Context, title string) ([]Bookmark, error)

	// CreateFolder creates a folder under the bookmarks root
	CreateFolder(ctx context.Context, title string) (Bookmark, error)

	// ListChildren returns a folder's direct children
	ListChildren(ctx context.Context, folderID string) ([]Bookmark, error)

	// CreateBookmark creates a title+URL entry inside a folder
	CreateBookmark(ctx context.Context, folderID, title, url string) (Bookmark, error)

	// UpdateBookmark rewrites a bookmark's title
	UpdateBookmark(ctx context.Context, id, title string) error

	// RemoveBookmark deletes a bookmark
	RemoveBookmark(ctx context.Context, id string) error

	// SearchByURL returns all bookmarks with exactly the given URL
	SearchByURL(ctx context.Context, url string) ([]Bookmark, error)

	// Move reparents a bookmark into a folder
	Move(ctx context.Context, id, folderID string) error
}

// CookieEvent is a change notification for one cookie.
type CookieEvent struct {
	Domain  string
	Name    string
	Removed bool
}

// CookieReader exposes stored browser credentials to the auth oracle.
type CookieReader interface {
	// Cookie returns the value of a cookie scoped to a domain, and whether
	// it exists
	Cookie(ctx context.Context, domain, name string) (string, bool, error)

	// Events is the cookie change feed. The channel is closed when the host
	// shuts down.
	Events() <-chan CookieEvent
}
