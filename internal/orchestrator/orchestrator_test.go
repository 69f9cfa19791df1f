package orchestrator_test

import (
	"context"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/tabwarden/tabwarden/internal/auth"
	"github.com/tabwarden/tabwarden/internal/host"
	"github.com/tabwarden/tabwarden/internal/host/inmemory"
	"github.com/tabwarden/tabwarden/internal/items"
	"github.com/tabwarden/tabwarden/internal/items/mocks"
	"github.com/tabwarden/tabwarden/internal/orchestrator"
	"github.com/tabwarden/tabwarden/internal/reconcile"
	"github.com/tabwarden/tabwarden/internal/settings"
)

var itemURLPattern = regexp.MustCompile(`^https://github\.com/[^/]+/[^/]+/pull/\d+`)

type fixture struct {
	tabs   *inmemory.TabHost
	jar    *inmemory.CookieReader
	source *mocks.MockSource
	store  settings.Store
	orch   *orchestrator.Orchestrator
}

func newFixture(t *testing.T, authenticated bool) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)

	tabs := inmemory.NewTabHost()
	jar := inmemory.NewCookieReader()
	if authenticated {
		jar.SetCookie("github.com", "logged_in", "yes")
	}

	source := mocks.NewMockSource(ctrl)
	store := settings.NewFileStore(t.TempDir())
	strategy := reconcile.NewGroupedTabs(tabs, itemURLPattern, reconcile.WithSettleDelay(0))
	oracle := auth.NewCookieOracle(jar, "github.com", "logged_in", "yes")

	orch := orchestrator.New(source, oracle, store, strategy, orchestrator.NewTickerScheduler(),
		orchestrator.WithInitWait(50*time.Millisecond, 5*time.Millisecond),
		orchestrator.WithRecreatePause(0))

	return &fixture{tabs: tabs, jar: jar, source: source, store: store, orch: orch}
}

func item(url string) items.TrackedItem {
	return items.TrackedItem{URL: url, Title: "t", Repository: "core", Origin: "acme", Number: 1}
}

func TestInitializeIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, true)

	f.source.EXPECT().Fetch(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil).AnyTimes()

	require.NoError(t, f.orch.Initialize(ctx))
	require.NoError(t, f.orch.Initialize(ctx))

	s, err := f.store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Pull Requests", s.ContainerName)
	assert.NotEmpty(t, s.ContainerHandle, "container handle persisted after creation")

	groups, err := f.tabs.ListGroups(ctx)
	require.NoError(t, err)
	assert.Len(t, groups, 1)
}

func TestSyncSkipsWhenUnauthenticated(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, false)

	require.NoError(t, f.orch.Initialize(ctx))
	assert.Equal(t, orchestrator.ReasonUnauthenticated, f.orch.Sync(ctx))

	groups, err := f.tabs.ListGroups(ctx)
	require.NoError(t, err)
	assert.Empty(t, groups, "no container is touched while unauthenticated")
}

func TestSyncConvergesContainer(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, true)

	desired := []items.TrackedItem{item("https://github.com/acme/core/pull/1")}
	f.source.EXPECT().Fetch(gomock.Any(), items.FilterModeBoth, "").Return(desired, nil).AnyTimes()

	require.NoError(t, f.orch.Initialize(ctx))
	assert.Equal(t, orchestrator.ReasonReconcileSuccess, f.orch.Sync(ctx))

	tabs, err := f.tabs.ListTabs(ctx)
	require.NoError(t, err)
	var urls []string
	for _, tab := range tabs {
		if tab.GroupID != host.NoGroup && tab.URL != reconcile.PlaceholderURL {
			urls = append(urls, tab.URL)
		}
	}
	assert.Equal(t, []string{desired[0].URL}, urls)

	s, err := f.store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, s.LastItemCount)
	assert.NotZero(t, s.LastSyncTime)
}

func TestSyncDropsConcurrentRound(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	// initialize unauthenticated so no immediate round runs, then log in
	f := newFixture(t, false)
	require.NoError(t, f.orch.Initialize(ctx))
	f.jar.SetCookie("github.com", "logged_in", "yes")

	release := make(chan struct{})
	started := make(chan struct{})
	f.source.EXPECT().Fetch(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(context.Context, items.FilterMode, string) ([]items.TrackedItem, error) {
			close(started)
			<-release
			return nil, nil
		})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		f.orch.Sync(ctx)
	}()

	<-started
	assert.Equal(t, orchestrator.ReasonAlreadyInFlight, f.orch.Sync(ctx))
	close(release)
	wg.Wait()
}

func TestSyncRecreatesStaleContainer(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, true)

	desired := []items.TrackedItem{item("https://github.com/acme/core/pull/1")}
	f.source.EXPECT().Fetch(gomock.Any(), gomock.Any(), gomock.Any()).Return(desired, nil).AnyTimes()

	require.NoError(t, f.orch.Initialize(ctx))

	before, err := f.store.Get(ctx)
	require.NoError(t, err)

	// the user deletes the group out from under us
	tabs, err := f.tabs.ListTabs(ctx)
	require.NoError(t, err)
	for _, tab := range tabs {
		require.NoError(t, f.tabs.CloseTab(ctx, tab.ID))
	}
	groups, err := f.tabs.ListGroups(ctx)
	require.NoError(t, err)
	require.Empty(t, groups)

	assert.Equal(t, orchestrator.ReasonReconcileSuccess, f.orch.Sync(ctx))

	after, err := f.store.Get(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, before.ContainerHandle, after.ContainerHandle, "new handle persisted")

	groups, err = f.tabs.ListGroups(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 1)
}

func TestSyncWithoutInitializeTimesOut(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)
	assert.Equal(t, orchestrator.ReasonNotInitialized, f.orch.Sync(context.Background()))
}

func TestSyncReschedulesOnIntervalChange(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, true)

	f.source.EXPECT().Fetch(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil).AnyTimes()
	require.NoError(t, f.orch.Initialize(ctx))

	five := 5
	_, err := f.store.Set(ctx, settings.Patch{RefreshIntervalMinutes: &five})
	require.NoError(t, err)

	assert.Equal(t, orchestrator.ReasonReconcileSuccess, f.orch.Sync(ctx))
}

// staleStrategy always reports a stale container, to pin down the retry
// bound.
type staleStrategy struct {
	mu         sync.Mutex
	reconciles int
	recreates  int
}

func (*staleStrategy) Kind() host.Kind { return host.KindGroupedTabs }

func (s *staleStrategy) EnsureContainer(_ context.Context, _, _, _ string, force bool) (host.ContainerRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if force {
		s.recreates++
	}
	return host.ContainerRef{Kind: host.KindGroupedTabs, GroupID: 1}, nil
}

func (s *staleStrategy) Reconcile(context.Context, []items.TrackedItem, host.ContainerRef, reconcile.RenderTitle, int) (reconcile.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reconciles++
	return reconcile.Result{}, reconcile.ErrStale
}

func (*staleStrategy) CloseStrays(context.Context, []items.TrackedItem) error { return nil }

func TestSyncRetriesStaleExactlyOnce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ctrl := gomock.NewController(t)

	jar := inmemory.NewCookieReader()
	jar.SetCookie("github.com", "logged_in", "yes")
	oracle := auth.NewCookieOracle(jar, "github.com", "logged_in", "yes")

	source := mocks.NewMockSource(ctrl)
	source.EXPECT().Fetch(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil).AnyTimes()

	strategy := &staleStrategy{}
	orch := orchestrator.New(source, oracle, settings.NewFileStore(t.TempDir()), strategy,
		orchestrator.NewTickerScheduler(),
		orchestrator.WithInitWait(50*time.Millisecond, 5*time.Millisecond),
		orchestrator.WithRecreatePause(0))

	require.NoError(t, orch.Initialize(ctx))

	strategy.mu.Lock()
	strategy.reconciles = 0
	strategy.recreates = 0
	strategy.mu.Unlock()

	assert.Equal(t, orchestrator.ReasonReconcileFailed, orch.Sync(ctx))

	strategy.mu.Lock()
	defer strategy.mu.Unlock()
	assert.Equal(t, 2, strategy.reconciles, "one retry after the initial attempt, never more")
	assert.Equal(t, 1, strategy.recreates, "exactly one forced recreation")
}
