package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/tabwarden/tabwarden/internal/host"
)

// Watch runs the standing watchers for the active group's session until the
// context is cancelled or the host event feed closes:
//
//   - membership drift: a member navigating away from the item URL pattern
//     is evicted from the group and relocated to the tail.
//   - new members: a tab joining the group outside our own create step gets
//     a settle delay, then is classified and evicted unless it matches the
//     pattern or is the placeholder.
//   - visibility: the user expanding the group reverts a pending transient
//     "(N new)" title immediately.
//
// Eviction of an already-gone entry is a silent no-op.
func (r *GroupedTabsReconciler) Watch(ctx context.Context) {
	events := r.tabs.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			r.handleEvent(ctx, ev)
		}
	}
}

func (r *GroupedTabsReconciler) handleEvent(ctx context.Context, ev host.TabEvent) {
	groupID := r.currentGroup()
	if groupID == host.NoGroup {
		return
	}

	switch ev.Type {
	case host.TabEventUpdated:
		if ev.Tab.GroupID != groupID {
			return
		}
		// Both drift and join end in the same classification; the settle
		// delay lets an in-flight navigation finish first.
		go r.classifyAfterSettle(ctx, groupID, ev.Tab.ID)

	case host.TabEventGroupUpdated:
		if ev.Group.ID != groupID {
			return
		}
		if !ev.Group.Collapsed {
			r.revertTransient(groupID)
		}

	case host.TabEventRemoved:
		// Removal needs no reaction; the next round reconverges.
	}
}

// classifyAfterSettle re-reads a member once its navigation settled and
// evicts it when it no longer belongs.
func (r *GroupedTabsReconciler) classifyAfterSettle(ctx context.Context, groupID int64, tabID int64) {
	if r.settleDelay > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(r.settleDelay):
		}
	}

	tab, err := r.tabs.GetTab(ctx, tabID)
	if err != nil {
		return
	}
	if tab.GroupID != groupID {
		return
	}
	if isPlaceholder(tab.URL) || r.urlPattern.MatchString(tab.URL) {
		return
	}
	r.evict(ctx, groupID, tabID)
}

// evict removes a tab from the group and relocates it immediately after the
// group's last position, computed from member positions at eviction time.
func (r *GroupedTabsReconciler) evict(ctx context.Context, groupID int64, tabID int64) {
	members, err := r.groupMembers(ctx, groupID)
	if err != nil {
		slog.Warn("Failed to enumerate group for eviction", "group", groupID, "error", err)
		return
	}
	tail := -1
	self := -1
	for _, m := range members {
		if m.ID == tabID {
			self = m.Index
			continue
		}
		if m.Index+1 > tail {
			tail = m.Index + 1
		}
	}
	if tail == -1 {
		// Sole member: the group's last position is the evictee's own slot,
		// so it stays in place instead of jumping to the window end.
		tail = self
	}

	if err := ignoreNotFound(r.tabs.UngroupTabs(ctx, tabID)); err != nil {
		slog.Warn("Failed to evict tab", "tab", tabID, "error", err)
		return
	}
	if err := ignoreNotFound(r.tabs.MoveTabs(ctx, tail, tabID)); err != nil {
		slog.Warn("Failed to relocate evicted tab", "tab", tabID, "error", err)
	}
	slog.Info("Evicted tab from group", "tab", tabID, "group", groupID)
}
