// Package cdp adapts a browser's remote debugging endpoint (Chrome DevTools
// Protocol) to the host interfaces. The protocol exposes raw page targets
// but not the tab strip, so group membership, pinning and window order are
// tracked adapter-side; navigation and lifecycle changes are observed by a
// polling pump feeding the host event channel.
package cdp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"github.com/tabwarden/tabwarden/internal/host"
)

const (
	defaultPollInterval = time.Second
	eventBuffer         = 64
)

type tabMeta struct {
	id      int64
	groupID int64
	pinned  bool
	url     string
	title   string
}

// TabHost implements host.TabHost over a remote debugging endpoint.
type TabHost struct {
	browserCtx context.Context
	cancels    []context.CancelFunc

	pollInterval time.Duration

	mu        sync.Mutex
	byTarget  map[target.ID]*tabMeta
	byID      map[int64]target.ID
	order     []int64
	groups    map[int64]*host.TabGroup
	nextTabID int64
	nextGrpID int64

	events chan host.TabEvent
	closed bool
}

// Option configures a TabHost.
type Option func(*TabHost)

// WithPollInterval overrides how often the event pump snapshots targets.
func WithPollInterval(d time.Duration) Option {
	return func(h *TabHost) {
		h.pollInterval = d
	}
}

// NewTabHost connects to a remote debugging endpoint, e.g.
// "ws://127.0.0.1:9222". The returned host owns the connection; Close
// releases it.
func NewTabHost(ctx context.Context, devtoolsURL string, opts ...Option) (*TabHost, error) {
	allocCtx, cancelAlloc := chromedp.NewRemoteAllocator(ctx, devtoolsURL, chromedp.NoModifyURL)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, fmt.Errorf("failed to connect to devtools endpoint: %w", err)
	}

	h := &TabHost{
		browserCtx:   browserCtx,
		cancels:      []context.CancelFunc{cancelBrowser, cancelAlloc},
		pollInterval: defaultPollInterval,
		byTarget:     make(map[target.ID]*tabMeta),
		byID:         make(map[int64]target.ID),
		groups:       make(map[int64]*host.TabGroup),
		nextTabID:    1,
		nextGrpID:    1,
		events:       make(chan host.TabEvent, eventBuffer),
	}
	for _, opt := range opts {
		opt(h)
	}

	if _, err := h.snapshot(ctx); err != nil {
		h.Close()
		return nil, err
	}
	go h.pump(browserCtx)
	return h, nil
}

// Close tears the devtools connection down and closes the event feed.
func (h *TabHost) Close() {
	h.mu.Lock()
	if !h.closed {
		h.closed = true
		close(h.events)
	}
	h.mu.Unlock()
	for _, cancel := range h.cancels {
		cancel()
	}
}

func (h *TabHost) ListTabs(ctx context.Context) ([]host.Tab, error) {
	return h.snapshot(ctx)
}

func (h *TabHost) GetTab(ctx context.Context, id int64) (host.Tab, error) {
	tabs, err := h.snapshot(ctx)
	if err != nil {
		return host.Tab{}, err
	}
	for _, t := range tabs {
		if t.ID == id {
			return t, nil
		}
	}
	return host.Tab{}, host.ErrNotFound
}

func (h *TabHost) CreateTab(ctx context.Context, url string, active bool) (host.Tab, error) {
	var targetID target.ID
	err := chromedp.Run(h.browserCtx, chromedp.ActionFunc(func(runCtx context.Context) error {
		id, err := target.CreateTarget(url).WithBackground(!active).Do(runCtx)
		if err != nil {
			return err
		}
		targetID = id
		return nil
	}))
	if err != nil {
		return host.Tab{}, fmt.Errorf("failed to create target: %w", err)
	}

	h.mu.Lock()
	meta := h.trackLocked(targetID, url, "")
	h.mu.Unlock()

	// Pick up the resolved URL in case navigation redirected already.
	tabs, err := h.snapshot(ctx)
	if err != nil {
		return host.Tab{}, err
	}
	for _, t := range tabs {
		if t.ID == meta.id {
			return t, nil
		}
	}
	return host.Tab{}, host.ErrNotFound
}

func (h *TabHost) CloseTab(_ context.Context, id int64) error {
	h.mu.Lock()
	targetID, ok := h.byID[id]
	h.mu.Unlock()
	if !ok {
		return host.ErrNotFound
	}

	err := chromedp.Run(h.browserCtx, chromedp.ActionFunc(func(runCtx context.Context) error {
		return target.CloseTarget(targetID).Do(runCtx)
	}))
	if err != nil {
		return fmt.Errorf("failed to close target: %w", err)
	}

	h.mu.Lock()
	removed := h.forgetLocked(targetID)
	h.mu.Unlock()
	if removed != nil {
		h.emit(host.TabEvent{Type: host.TabEventRemoved, Tab: h.toTab(*removed, -1)})
	}
	return nil
}

// MoveTabs reorders the adapter's window-order bookkeeping; the protocol
// offers no tab-strip positioning.
func (h *TabHost) MoveTabs(_ context.Context, index int, ids ...int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	moving := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if _, ok := h.byID[id]; !ok {
			return host.ErrNotFound
		}
		moving[id] = true
	}

	rest := make([]int64, 0, len(h.order))
	for _, id := range h.order {
		if !moving[id] {
			rest = append(rest, id)
		}
	}
	if index < 0 || index > len(rest) {
		index = len(rest)
	}
	next := make([]int64, 0, len(h.order))
	next = append(next, rest[:index]...)
	next = append(next, ids...)
	next = append(next, rest[index:]...)
	h.order = next
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
		if _, ok := h.byID[id]; !ok {
			h.mu.Unlock()
			return host.TabGroup{}, host.ErrNotFound
		}
	}
	g := &host.TabGroup{ID: h.nextGrpID, Title: title, Color: color}
	h.nextGrpID++
	h.groups[g.ID] = g
	for _, id := range tabIDs {
		meta := h.byTarget[h.byID[id]]
		prev := meta.groupID
		meta.groupID = g.ID
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
	var evs []host.TabEvent
	for _, id := range ids {
		targetID, ok := h.byID[id]
		if !ok {
			h.mu.Unlock()
			return host.ErrNotFound
		}
		meta := h.byTarget[targetID]
		prev := meta.groupID
		meta.groupID = groupID
		h.disposeEmptyGroupLocked(prev)
		evs = append(evs, host.TabEvent{Type: host.TabEventUpdated, Tab: h.toTab(*meta, h.indexLocked(id))})
	}
	h.mu.Unlock()

	for _, ev := range evs {
		h.emit(ev)
	}
	return nil
}

func (h *TabHost) UngroupTabs(_ context.Context, ids ...int64) error {
	h.mu.Lock()
	var evs []host.TabEvent
	for _, id := range ids {
		targetID, ok := h.byID[id]
		if !ok {
			h.mu.Unlock()
			return host.ErrNotFound
		}
		meta := h.byTarget[targetID]
		prev := meta.groupID
		meta.groupID = host.NoGroup
		h.disposeEmptyGroupLocked(prev)
		evs = append(evs, host.TabEvent{Type: host.TabEventUpdated, Tab: h.toTab(*meta, h.indexLocked(id))})
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

// snapshot reads the live target list, folds it into the adapter state and
// returns the tabs in window order.
func (h *TabHost) snapshot(_ context.Context) ([]host.Tab, error) {
	infos, err := chromedp.Targets(h.browserCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to list targets: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	live := make(map[target.ID]bool, len(infos))
	var changed []host.TabEvent
	for _, info := range infos {
		if info.Type != "page" {
			continue
		}
		live[info.TargetID] = true
		meta, ok := h.byTarget[info.TargetID]
		if !ok {
			h.trackLocked(info.TargetID, info.URL, info.Title)
			continue
		}
		if meta.url != info.URL || meta.title != info.Title {
			meta.url = info.URL
			meta.title = info.Title
			changed = append(changed, host.TabEvent{Type: host.TabEventUpdated, Tab: h.toTab(*meta, h.indexLocked(meta.id))})
		}
	}
	for targetID, meta := range h.byTarget {
		if live[targetID] {
			continue
		}
		removed := *meta
		h.forgetLocked(targetID)
		changed = append(changed, host.TabEvent{Type: host.TabEventRemoved, Tab: h.toTab(removed, -1)})
	}

	tabs := make([]host.Tab, 0, len(h.order))
	for i, id := range h.order {
		meta := h.byTarget[h.byID[id]]
		tabs = append(tabs, h.toTab(*meta, i))
	}

	go func() {
		for _, ev := range changed {
			h.emit(ev)
		}
	}()
	return tabs, nil
}

// pump polls targets so navigations and external closes surface as events
// even when no reconcile round is running.
func (h *TabHost) pump(ctx context.Context) {
	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := h.snapshot(ctx); err != nil {
				return
			}
		}
	}
}

func (h *TabHost) trackLocked(targetID target.ID, url, title string) *tabMeta {
	meta := &tabMeta{
		id:      h.nextTabID,
		groupID: host.NoGroup,
		url:     url,
		title:   title,
	}
	h.nextTabID++
	h.byTarget[targetID] = meta
	h.byID[meta.id] = targetID
	h.order = append(h.order, meta.id)
	return meta
}

func (h *TabHost) forgetLocked(targetID target.ID) *tabMeta {
	meta, ok := h.byTarget[targetID]
	if !ok {
		return nil
	}
	delete(h.byTarget, targetID)
	delete(h.byID, meta.id)
	for i, id := range h.order {
		if id == meta.id {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
	h.disposeEmptyGroupLocked(meta.groupID)
	return meta
}

func (h *TabHost) disposeEmptyGroupLocked(groupID int64) {
	if groupID == host.NoGroup {
		return
	}
	for _, meta := range h.byTarget {
		if meta.groupID == groupID {
			return
		}
	}
	delete(h.groups, groupID)
}

func (h *TabHost) indexLocked(id int64) int {
	for i, oid := range h.order {
		if oid == id {
			return i
		}
	}
	return -1
}

func (h *TabHost) toTab(meta tabMeta, index int) host.Tab {
	return host.Tab{
		ID:      meta.id,
		Index:   index,
		GroupID: meta.groupID,
		URL:     meta.url,
		Title:   meta.title,
		Pinned:  meta.pinned,
	}
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
