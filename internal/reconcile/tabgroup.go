package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/tabwarden/tabwarden/internal/host"
	"github.com/tabwarden/tabwarden/internal/items"
)

const (
	// defaultTransientTitleTTL is how long a "(N new)" title stays on a
	// collapsed group before reverting to the base title
	defaultTransientTitleTTL = 30 * time.Second

	// defaultSettleDelay is how long a freshly created or freshly joined tab
	// gets to finish navigating before it is classified
	defaultSettleDelay = 500 * time.Millisecond
)

// GroupedTabsReconciler mirrors the tracked-item set into an
// exclusive-membership, collapsible tab group.
type GroupedTabsReconciler struct {
	tabs       host.TabHost
	urlPattern *regexp.Regexp

	transientTTL time.Duration
	settleDelay  time.Duration

	// active is the group the watchers police; updated on every successful
	// validate and container creation
	mu           sync.Mutex
	activeGroup  int64
	revertCancel *time.Timer
	revertTitle  string
}

// GroupedTabsOption configures a GroupedTabsReconciler.
type GroupedTabsOption func(*GroupedTabsReconciler)

// WithTransientTitleTTL overrides the "(N new)" title revert delay.
func WithTransientTitleTTL(d time.Duration) GroupedTabsOption {
	return func(r *GroupedTabsReconciler) {
		r.transientTTL = d
	}
}

// WithSettleDelay overrides the navigation settle delay used before a new
// tab is classified.
func WithSettleDelay(d time.Duration) GroupedTabsOption {
	return func(r *GroupedTabsReconciler) {
		r.settleDelay = d
	}
}

// NewGroupedTabs creates the grouped-tabs strategy. urlPattern is the
// desired-item URL shape used by the redirect guard and the watchers.
func NewGroupedTabs(tabs host.TabHost, urlPattern *regexp.Regexp, opts ...GroupedTabsOption) *GroupedTabsReconciler {
	r := &GroupedTabsReconciler{
		tabs:         tabs,
		urlPattern:   urlPattern,
		transientTTL: defaultTransientTitleTTL,
		settleDelay:  defaultSettleDelay,
		activeGroup:  host.NoGroup,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Kind implements Reconciler.
func (*GroupedTabsReconciler) Kind() host.Kind {
	return host.KindGroupedTabs
}

// EnsureContainer implements Reconciler. Resolution order: the advisory
// handle (unless forced), then a title search, then creation around a fresh
// placeholder tab.
func (r *GroupedTabsReconciler) EnsureContainer(ctx context.Context, advisoryHandle, name, color string, force bool) (host.ContainerRef, error) {
	if !force {
		if ref, ok := host.RefFromHandle(host.KindGroupedTabs, advisoryHandle); ok {
			if _, err := r.tabs.GetGroup(ctx, ref.GroupID); err == nil {
				r.setActiveGroup(ref.GroupID)
				return ref, nil
			}
		}
	}

	groups, err := r.tabs.ListGroups(ctx)
	if err != nil {
		return host.ContainerRef{}, fmt.Errorf("failed to list groups: %w", err)
	}
	for _, g := range groups {
		if g.Title == name {
			r.setActiveGroup(g.ID)
			return host.ContainerRef{Kind: host.KindGroupedTabs, GroupID: g.ID}, nil
		}
	}

	// Hosts disallow empty groups, so creation starts from a placeholder.
	placeholder, err := r.tabs.CreateTab(ctx, PlaceholderURL, false)
	if err != nil {
		return host.ContainerRef{}, fmt.Errorf("failed to create placeholder tab: %w", err)
	}
	group, err := r.tabs.CreateGroup(ctx, []int64{placeholder.ID}, name, color)
	if err != nil {
		_ = r.tabs.CloseTab(ctx, placeholder.ID)
		return host.ContainerRef{}, fmt.Errorf("failed to create group: %w", err)
	}
	collapsed := true
	if _, err := r.tabs.UpdateGroup(ctx, group.ID, host.GroupUpdate{Collapsed: &collapsed}); err != nil {
		slog.Warn("Failed to collapse new group", "group", group.ID, "error", err)
	}

	slog.Info("Created tab group", "group", group.ID, "name", name)
	r.setActiveGroup(group.ID)
	return host.ContainerRef{Kind: host.KindGroupedTabs, GroupID: group.ID}, nil
}

// Reconcile implements Reconciler for the grouped-tabs strategy.
func (r *GroupedTabsReconciler) Reconcile(ctx context.Context, desired []items.TrackedItem, ref host.ContainerRef, render RenderTitle, previousItemCount int) (Result, error) {
	group, err := r.tabs.GetGroup(ctx, ref.GroupID)
	if err != nil {
		if ignoreNotFound(err) == nil {
			return Result{}, ErrStale
		}
		return Result{}, fmt.Errorf("failed to resolve group: %w", err)
	}
	r.setActiveGroup(group.ID)

	byURL := desiredURLs(desired)

	r.absorbStrays(ctx, group.ID, byURL)

	members, err := r.groupMembers(ctx, group.ID)
	if err != nil {
		return Result{}, err
	}
	current := make(map[string]host.Tab, len(members))
	var placeholders []host.Tab
	for _, t := range members {
		if isPlaceholder(t.URL) {
			placeholders = append(placeholders, t)
			continue
		}
		current[t.URL] = t
	}

	var res Result
	for _, it := range desired {
		if _, ok := current[it.URL]; ok {
			res.Kept++
			continue
		}
		if r.createMember(ctx, group.ID, it) {
			res.Created++
		}
	}

	realAfter := res.Kept + res.Created

	// The placeholder must be in place before the last real member leaves,
	// or the host disposes the group under us.
	if realAfter == 0 && len(placeholders) == 0 {
		if t, err := r.tabs.CreateTab(ctx, PlaceholderURL, false); err != nil {
			slog.Warn("Failed to create placeholder tab", "error", err)
		} else if err := r.tabs.GroupTabs(ctx, group.ID, t.ID); err != nil {
			slog.Warn("Failed to group placeholder tab", "tab", t.ID, "error", err)
			_ = r.tabs.CloseTab(ctx, t.ID)
		} else {
			placeholders = append(placeholders, t)
		}
	}

	for url, t := range current {
		if _, ok := byURL[url]; ok {
			continue
		}
		if err := ignoreNotFound(r.tabs.CloseTab(ctx, t.ID)); err != nil {
			slog.Warn("Failed to close removed tab", "tab", t.ID, "url", url, "error", err)
			continue
		}
		res.Removed++
	}

	surplus := placeholders
	if realAfter == 0 && len(placeholders) > 0 {
		// Exactly one placeholder stays; a duplicated blank tab would
		// otherwise accumulate.
		surplus = placeholders[1:]
	}
	for _, t := range surplus {
		if err := ignoreNotFound(r.tabs.CloseTab(ctx, t.ID)); err != nil {
			slog.Warn("Failed to close placeholder tab", "tab", t.ID, "error", err)
		}
	}

	if err := r.repositionMembers(ctx, group.ID, byURL); err != nil {
		slog.Warn("Failed to reposition group members", "group", group.ID, "error", err)
	}

	r.applyVisibility(ctx, group.ID, realAfter, previousItemCount)

	res.Success = true
	return res, nil
}

// CloseStrays implements Reconciler: it closes ungrouped tabs matching
// desired items so a recreated group does not absorb leftovers twice.
func (r *GroupedTabsReconciler) CloseStrays(ctx context.Context, desired []items.TrackedItem) error {
	byURL := desiredURLs(desired)
	tabs, err := r.tabs.ListTabs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list tabs: %w", err)
	}
	for _, t := range tabs {
		if t.GroupID != host.NoGroup {
			continue
		}
		if _, ok := byURL[t.URL]; !ok {
			continue
		}
		if err := ignoreNotFound(r.tabs.CloseTab(ctx, t.ID)); err != nil {
			slog.Warn("Failed to close stray tab", "tab", t.ID, "error", err)
		}
	}
	return nil
}

// absorbStrays re-groups tabs that semantically belong (URL matches a
// desired item) but sit outside the container. Best effort.
func (r *GroupedTabsReconciler) absorbStrays(ctx context.Context, groupID int64, byURL map[string]items.TrackedItem) {
	tabs, err := r.tabs.ListTabs(ctx)
	if err != nil {
		slog.Warn("Failed to list tabs for stray absorption", "error", err)
		return
	}
	absorbed := make(map[string]bool)
	for _, t := range tabs {
		if t.GroupID == groupID || t.Pinned {
			continue
		}
		if _, ok := byURL[t.URL]; !ok {
			continue
		}
		if absorbed[t.URL] {
			// Second stray with the same identity is a duplicate
			if err := ignoreNotFound(r.tabs.CloseTab(ctx, t.ID)); err != nil {
				slog.Warn("Failed to close duplicate stray", "tab", t.ID, "error", err)
			}
			continue
		}
		if err := ignoreNotFound(r.tabs.GroupTabs(ctx, groupID, t.ID)); err != nil {
			slog.Warn("Failed to absorb stray tab", "tab", t.ID, "url", t.URL, "error", err)
			continue
		}
		absorbed[t.URL] = true
	}
}

// createMember opens a tab for one desired item and admits it into the group
// once the resolved URL still matches the expected item pattern. A redirected
// tab (e.g. to a login page) is discarded rather than left as an orphan.
func (r *GroupedTabsReconciler) createMember(ctx context.Context, groupID int64, it items.TrackedItem) bool {
	tab, err := r.tabs.CreateTab(ctx, it.URL, false)
	if err != nil {
		slog.Warn("Failed to create tab", "url", it.URL, "error", err)
		return false
	}

	if r.settleDelay > 0 {
		select {
		case <-ctx.Done():
			_ = r.tabs.CloseTab(ctx, tab.ID)
			return false
		case <-time.After(r.settleDelay):
		}
	}

	settled, err := r.tabs.GetTab(ctx, tab.ID)
	if err != nil {
		slog.Warn("Created tab vanished before grouping", "tab", tab.ID, "url", it.URL, "error", err)
		return false
	}
	if !r.urlPattern.MatchString(settled.URL) {
		slog.Info("Discarding redirected tab",
			"requested", it.URL,
			"resolved", settled.URL)
		_ = ignoreNotFound(r.tabs.CloseTab(ctx, tab.ID))
		return false
	}

	if err := r.tabs.GroupTabs(ctx, groupID, tab.ID); err != nil {
		slog.Warn("Failed to group new tab", "tab", tab.ID, "error", err)
		_ = ignoreNotFound(r.tabs.CloseTab(ctx, tab.ID))
		return false
	}
	return true
}

// repositionMembers keeps the group's tabs contiguous right after the pinned
// tabs, then re-absorbs any member the move itself knocked loose.
func (r *GroupedTabsReconciler) repositionMembers(ctx context.Context, groupID int64, byURL map[string]items.TrackedItem) error {
	tabs, err := r.tabs.ListTabs(ctx)
	if err != nil {
		return err
	}

	pinned := 0
	var memberIDs []int64
	contiguous := true
	next := -1
	for _, t := range tabs {
		if t.Pinned {
			pinned++
		}
		if t.GroupID != groupID {
			continue
		}
		memberIDs = append(memberIDs, t.ID)
		if next != -1 && t.Index != next {
			contiguous = false
		}
		next = t.Index + 1
	}
	if len(memberIDs) == 0 {
		return nil
	}

	first := -1
	for _, t := range tabs {
		if t.GroupID == groupID {
			first = t.Index
			break
		}
	}
	if contiguous && first == pinned {
		return nil
	}

	if err := r.tabs.MoveTabs(ctx, pinned, memberIDs...); err != nil {
		return err
	}

	// Moving grouped tabs can eject them on some hosts; put those back.
	after, err := r.tabs.ListTabs(ctx)
	if err != nil {
		return err
	}
	for _, t := range after {
		if t.GroupID == groupID || isPlaceholder(t.URL) {
			continue
		}
		if _, ok := byURL[t.URL]; !ok {
			continue
		}
		if err := ignoreNotFound(r.tabs.GroupTabs(ctx, groupID, t.ID)); err != nil {
			slog.Warn("Failed to re-absorb moved tab", "tab", t.ID, "error", err)
		}
	}
	return nil
}

// applyVisibility auto-collapses an empty group and, on growth while
// collapsed, shows a transient "(N new)" title that reverts after a delay or
// as soon as the user expands the group.
func (r *GroupedTabsReconciler) applyVisibility(ctx context.Context, groupID int64, realCount, previousItemCount int) {
	group, err := r.tabs.GetGroup(ctx, groupID)
	if err != nil {
		slog.Warn("Failed to read group for visibility policy", "group", groupID, "error", err)
		return
	}

	if realCount == 0 {
		if !group.Collapsed {
			collapsed := true
			if _, err := r.tabs.UpdateGroup(ctx, groupID, host.GroupUpdate{Collapsed: &collapsed}); err != nil {
				slog.Warn("Failed to collapse empty group", "group", groupID, "error", err)
			}
		}
		return
	}

	// A non-empty group's collapsed state is user intent; never force it.
	delta := realCount - previousItemCount
	if delta <= 0 || !group.Collapsed {
		return
	}

	base := r.baseTitle(group.Title)
	transient := fmt.Sprintf("%s (%d new)", base, delta)
	if _, err := r.tabs.UpdateGroup(ctx, groupID, host.GroupUpdate{Title: &transient}); err != nil {
		slog.Warn("Failed to set transient title", "group", groupID, "error", err)
		return
	}
	r.scheduleRevert(groupID, base)
}

// baseTitle returns the title to revert to. While a transient title is
// pending the group's current title includes the delta suffix, so the base
// recorded when the transient was scheduled wins.
func (r *GroupedTabsReconciler) baseTitle(current string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.revertCancel != nil {
		return r.revertTitle
	}
	return current
}

// scheduleRevert arms the single transient-title revert timer, cancelling
// any prior pending instance.
func (r *GroupedTabsReconciler) scheduleRevert(groupID int64, base string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.revertCancel != nil {
		r.revertCancel.Stop()
	}
	r.revertTitle = base
	r.revertCancel = time.AfterFunc(r.transientTTL, func() {
		r.revertTransient(groupID)
	})
}

// revertTransient restores the base title if a transient one is pending.
// Safe to call when nothing is pending.
func (r *GroupedTabsReconciler) revertTransient(groupID int64) {
	r.mu.Lock()
	if r.revertCancel == nil {
		r.mu.Unlock()
		return
	}
	r.revertCancel.Stop()
	r.revertCancel = nil
	base := r.revertTitle
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := r.tabs.UpdateGroup(ctx, groupID, host.GroupUpdate{Title: &base}); err != nil {
		if ignoreNotFound(err) != nil {
			slog.Warn("Failed to revert transient title", "group", groupID, "error", err)
		}
	}
}

func (r *GroupedTabsReconciler) setActiveGroup(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.activeGroup = id
}

func (r *GroupedTabsReconciler) currentGroup() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeGroup
}

func (r *GroupedTabsReconciler) groupMembers(ctx context.Context, groupID int64) ([]host.Tab, error) {
	tabs, err := r.tabs.ListTabs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tabs: %w", err)
	}
	var members []host.Tab
	for _, t := range tabs {
		if t.GroupID == groupID {
			members = append(members, t)
		}
	}
	return members, nil
}
