// Package inmemory provides in-process host implementations. They back the
// test suites and the local simulation host type, and mirror the observable
// semantics of a real browser: window ordering, exclusive group membership,
// group disposal when the last member leaves, and change events.
package inmemory

import (
	"context"
	"sync"

	"github.com/tabwarden/tabwarden/internal/host"
)

const eventBuffer = 64

// TabHost is an in-memory implementation of host.TabHost.
type TabHost struct {
	mu        sync.Mutex
	tabs      []*host.Tab
	groups    map[int64]*host.TabGroup
	nextTabID int64
	nextGrpID int64
	redirects map[string]string
	events    chan host.TabEvent
	closed    bool
}

// NewTabHost creates an empty in-memory tab host.
func NewTabHost() *TabHost {
	return &TabHost{
		groups:    make(map[int64]*host.TabGroup),
		nextTabID: 1,
		nextGrpID: 1,
		redirects: make(map[string]string),
		events:    make(chan host.TabEvent, eventBuffer),
	}
}

// SetRedirect makes future CreateTab calls for url land on finalURL,
// simulating a server-side redirect during navigation.
func (h *TabHost) SetRedirect(url, finalURL string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.redirects[url] = finalURL
}

// PinTab marks a tab pinned, simulating a user pin.
func (h *TabHost) PinTab(id int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	t := h.findLocked(id)
	if t == nil {
		return host.ErrNotFound
	}
	t.Pinned = true
	return nil
}

// NavigateTab simulates a user navigating an open tab to a new URL.
func (h *TabHost) NavigateTab(id int64, url string) error {
	h.mu.Lock()
	t := h.findLocked(id)
	if t == nil {
		h.mu.Unlock()
		return host.ErrNotFound
	}
	t.URL = url
	ev := host.TabEvent{Type: host.TabEventUpdated, Tab: *t}
	h.mu.Unlock()
	h.emit(ev)
	return nil
}

// Close shuts the event feed down.
func (h *TabHost) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.closed {
		h.closed = true
		close(h.events)
	}
}

func (h *TabHost) ListTabs(_ context.Context) ([]host.Tab, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]host.Tab, 0, len(h.tabs))
	for _, t := range h.tabs {
		out = append(out, *t)
	}
	return out, nil
}

func (h *TabHost) GetTab(_ context.Context, id int64) (host.Tab, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	t := h.findLocked(id)
	if t == nil {
		return host.Tab{}, host.ErrNotFound
	}
	return *t, nil
}

func (h *TabHost) CreateTab(_ context.Context, url string, _ bool) (host.Tab, error) {
	h.mu.Lock()

	if final, ok := h.redirects[url]; ok {
		url = final
	}
	t := &host.Tab{
		ID:      h.nextTabID,
		GroupID: host.NoGroup,
		URL:     url,
	}
	h.nextTabID++
	h.tabs = append(h.tabs, t)
	h.reindexLocked()
	ev := host.TabEvent{Type: host.TabEventUpdated, Tab: *t}
	h.mu.Unlock()

	h.emit(ev)
	return ev.Tab, nil
}

func (h *TabHost) CloseTab(_ context.Context, id int64) error {
	h.mu.Lock()

	idx := -1
	for i, t := range h.tabs {
		if t.ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		h.mu.Unlock()
		return host.ErrNotFound
	}

	closed := *h.tabs[idx]
	h.tabs = append(h.tabs[:idx], h.tabs[idx+1:]...)
	h.reindexLocked()
	h.disposeEmptyGroupLocked(closed.GroupID)
	h.mu.Unlock()

	h.emit(host.TabEvent{Type: host.TabEventRemoved, Tab: closed})
	return nil
}

func (h *TabHost) MoveTabs(_ context.Context, index int, ids ...int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	moving := make([]*host.Tab, 0, len(ids))
	for _, id := range ids {
		t := h.findLocked(id)
		if t == nil {
			return host.ErrNotFound
		}
		moving = append(moving, t)
	}

	isMoving := make(map[int64]bool, len(ids))
	for _, id := range ids {
		isMoving[id] = true
	}
	rest := make([]*host.Tab, 0, len(h.tabs))
	for _, t := range h.tabs {
		if !isMoving[t.ID] {
			rest = append(rest, t)
		}
	}

	if index < 0 || index > len(rest) {
		index = len(rest)
	}
	next := make([]*host.Tab, 0, len(h.tabs))
	next = append(next, rest[:index]...)
	next = append(next, moving...)
	next = append(next, rest[index:]...)
	h.tabs = next
	h.reindexLocked()
	return nil
}

func (h *TabHost) GetGroup(_ context.Context, id int64) (host.TabGroup, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	g, ok := h.groups[id]
	if !ok {
		return host.TabGroup{}, host.ErrNotFound
	}
	return *g, nil
}

func (h *TabHost) ListGroups(_ context.Context) ([]host.TabGroup, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]host.TabGroup, 0, len(h.groups))
	for _, g := range h.groups {
		out = append(out, *g)
	}
	return out, nil
}

func (h *TabHost) CreateGroup(_ context.Context, tabIDs []int64, title, color string) (host.TabGroup, error) {
	if len(tabIDs) == 0 {
		return host.TabGroup{}, host.ErrNotFound
	}

	h.mu.Lock()
	for _, id := range tabIDs {
		if h.findLocked(id) == nil {
			h.mu.Unlock()
			return host.TabGroup{}, host.ErrNotFound
		}
	}

	g := &host.TabGroup{
		ID:    h.nextGrpID,
		Title: title,
		Color: color,
	}
	h.nextGrpID++
	h.groups[g.ID] = g
	for _, id := range tabIDs {
		t := h.findLocked(id)
		prev := t.GroupID
		t.GroupID = g.ID
		h.disposeEmptyGroupLocked(prev)
	}
	created := *g
	h.mu.Unlock()

	h.emit(host.TabEvent{Type: host.TabEventGroupUpdated, Group: created})
	return created, nil
}

func (h *TabHost) UpdateGroup(_ context.Context, id int64, upd host.GroupUpdate) (host.TabGroup, error) {
	h.mu.Lock()

	g, ok := h.groups[id]
	if !ok {
		h.mu.Unlock()
		return host.TabGroup{}, host.ErrNotFound
	}
	if upd.Title != nil {
		g.Title = *upd.Title
	}
	if upd.Color != nil {
		g.Color = *upd.Color
	}
	if upd.Collapsed != nil {
		g.Collapsed = *upd.Collapsed
	}
	updated := *g
	h.mu.Unlock()

	h.emit(host.TabEvent{Type: host.TabEventGroupUpdated, Group: updated})
	return updated, nil
}

func (h *TabHost) GroupTabs(_ context.Context, groupID int64, ids ...int64) error {
	h.mu.Lock()

	if _, ok := h.groups[groupID]; !ok {
		h.mu.Unlock()
		return host.ErrNotFound
	}
	evs := make([]host.TabEvent, 0, len(ids))
	for _, id := range ids {
		t := h.findLocked(id)
		if t == nil {
			h.mu.Unlock()
			return host.ErrNotFound
		}
		prev := t.GroupID
		t.GroupID = groupID
		h.disposeEmptyGroupLocked(prev)
		evs = append(evs, host.TabEvent{Type: host.TabEventUpdated, Tab: *t})
	}
	h.mu.Unlock()

	for _, ev := range evs {
		h.emit(ev)
	}
	return nil
}

func (h *TabHost) UngroupTabs(_ context.Context, ids ...int64) error {
	h.mu.Lock()

	evs := make([]host.TabEvent, 0, len(ids))
	for _, id := range ids {
		t := h.findLocked(id)
		if t == nil {
			h.mu.Unlock()
			return host.ErrNotFound
		}
		prev := t.GroupID
		t.GroupID = host.NoGroup
		h.disposeEmptyGroupLocked(prev)
		evs = append(evs, host.TabEvent{Type: host.TabEventUpdated, Tab: *t})
	}
	h.mu.Unlock()

	for _, ev := range evs {
		h.emit(ev)
	}
	return nil
}

func (h *TabHost) Events() <-chan host.TabEvent {
	return h.events
}

func (h *TabHost) findLocked(id int64) *host.Tab {
	for _, t := range h.tabs {
		if t.ID == id {
			return t
		}
	}
	return nil
}

func (h *TabHost) reindexLocked() {
	for i, t := range h.tabs {
		t.Index = i
	}
}

// disposeEmptyGroupLocked removes a group once its last tab leaves, matching
// browser behavior that makes previously held group handles stale.
func (h *TabHost) disposeEmptyGroupLocked(groupID int64) {
	if groupID == host.NoGroup {
		return
	}
	for _, t := range h.tabs {
		if t.GroupID == groupID {
			return
		}
	}
	delete(h.groups, groupID)
}

func (h *TabHost) emit(ev host.TabEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	select {
	case h.events <- ev:
	default:
	}
}
