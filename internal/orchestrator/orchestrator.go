// Package orchestrator owns the sync run loop: it gates rounds on auth,
// fetches the desired item set, dispatches to the active reconciliation
// strategy, recovers from stale containers, and serializes concurrent round
// requests down to at most one in flight.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tabwarden/tabwarden/internal/auth"
	"github.com/tabwarden/tabwarden/internal/host"
	"github.com/tabwarden/tabwarden/internal/items"
	"github.com/tabwarden/tabwarden/internal/reconcile"
	"github.com/tabwarden/tabwarden/internal/settings"
	"github.com/tabwarden/tabwarden/internal/telemetry"
	"github.com/tabwarden/tabwarden/internal/titles"
)

// Round skip and outcome reasons, mirrored into metrics.
const (
	ReasonAlreadyInFlight  = "round-already-in-flight"
	ReasonNotInitialized   = "not-initialized"
	ReasonUnauthenticated  = "unauthenticated"
	ReasonSettingsFailed   = "settings-load-failed"
	ReasonFetchFailed      = "item-fetch-failed"
	ReasonContainerFailed  = "container-unavailable"
	ReasonReconcileFailed  = "reconcile-failed"
	ReasonReconcileSuccess = "reconciled"
)

const (
	defaultInitWait      = 5 * time.Second
	defaultInitPoll      = 100 * time.Millisecond
	defaultRecreatePause = 500 * time.Millisecond
)

// retryPolicy bounds how many times a round rebuilds a stale container
// before giving up until the next tick.
type retryPolicy struct {
	maxRetries int
}

var staleRetry = retryPolicy{maxRetries: 1}

// Orchestrator serializes sync rounds against one container strategy.
type Orchestrator struct {
	source    items.Source
	oracle    auth.Oracle
	store     settings.Store
	strategy  reconcile.Reconciler
	scheduler Scheduler

	initWait      time.Duration
	initPoll      time.Duration
	recreatePause time.Duration

	// running is the Idle|Running state machine; set with an atomic
	// check-and-set at round entry, cleared on every exit path
	running     atomic.Bool
	initialized atomic.Bool

	mu  sync.Mutex
	ref host.ContainerRef
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithInitWait bounds how long a round waits for initialization.
func WithInitWait(wait, poll time.Duration) Option {
	return func(o *Orchestrator) {
		o.initWait = wait
		o.initPoll = poll
	}
}

// WithRecreatePause overrides the settle pause between closing strays and
// recreating a stale container.
func WithRecreatePause(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.recreatePause = d
	}
}

// New creates an orchestrator. It is constructed once at process entry and
// threaded by reference into the timer callback and the message handlers.
func New(source items.Source, oracle auth.Oracle, store settings.Store, strategy reconcile.Reconciler, scheduler Scheduler, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		source:        source,
		oracle:        oracle,
		store:         store,
		strategy:      strategy,
		scheduler:     scheduler,
		initWait:      defaultInitWait,
		initPoll:      defaultInitPoll,
		recreatePause: defaultRecreatePause,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Initialize prepares the orchestrator: settings defaults, the container
// (when already authenticated) and the periodic timer. Idempotent; runs once
// per process lifetime. The timer starts regardless of auth state because
// rounds themselves skip while unauthenticated.
func (o *Orchestrator) Initialize(ctx context.Context) error {
	if o.initialized.Load() {
		return nil
	}

	s, err := o.store.EnsureDefaults(ctx)
	if err != nil {
		return fmt.Errorf("failed to ensure default settings: %w", err)
	}

	if o.oracle.IsAuthenticated(ctx) {
		if err := o.ensureContainer(ctx, false); err != nil {
			return fmt.Errorf("failed to ensure container: %w", err)
		}
	}

	o.scheduler.Start(ctx, time.Duration(s.RefreshIntervalMinutes)*time.Minute, func() {
		o.runRound(context.Background())
	})
	o.initialized.Store(true)

	if o.oracle.IsAuthenticated(ctx) {
		o.runRound(ctx)
	}
	slog.Info("Orchestrator initialized",
		"strategy", o.strategy.Kind(),
		"intervalMinutes", s.RefreshIntervalMinutes)
	return nil
}

// Shutdown stops the periodic timer. A round already in flight is allowed to
// finish; no new rounds are scheduled afterwards.
func (o *Orchestrator) Shutdown() {
	o.scheduler.Stop()
}

// TriggerSync requests an immediate round without blocking the caller. A
// round already in flight absorbs the request.
func (o *Orchestrator) TriggerSync() {
	go o.runRound(context.Background())
}

// Sync runs one round synchronously and returns the outcome reason. Used by
// tests and by callers that need completion before responding.
func (o *Orchestrator) Sync(ctx context.Context) string {
	return o.runRound(ctx)
}

func (o *Orchestrator) runRound(ctx context.Context) string {
	// At most one round runs at a time; a request arriving while one is in
	// flight is dropped, not queued. The next tick re-attempts naturally.
	if !o.running.CompareAndSwap(false, true) {
		telemetry.RecordRound(telemetry.OutcomeSkippedBusy, 0)
		return ReasonAlreadyInFlight
	}
	defer o.running.Store(false)

	started := time.Now()
	outcome := o.round(ctx)
	switch outcome {
	case ReasonReconcileSuccess:
		telemetry.RecordRound(telemetry.OutcomeSuccess, time.Since(started))
	case ReasonUnauthenticated:
		telemetry.RecordRound(telemetry.OutcomeSkippedAuth, 0)
	case ReasonNotInitialized:
		telemetry.RecordRound(telemetry.OutcomeSkippedNotReady, 0)
	default:
		telemetry.RecordRound(telemetry.OutcomeFailure, time.Since(started))
	}
	return outcome
}

func (o *Orchestrator) round(ctx context.Context) string {
	if !o.waitInitialized(ctx) {
		slog.Warn("Sync round aborted waiting for initialization")
		return ReasonNotInitialized
	}

	if !o.oracle.IsAuthenticated(ctx) {
		slog.Debug("Skipping sync round, not authenticated")
		return ReasonUnauthenticated
	}

	s, err := o.store.Get(ctx)
	if err != nil {
		slog.Error("Failed to load settings", "error", err)
		return ReasonSettingsFailed
	}

	desired, err := o.source.Fetch(ctx, s.FilterMode, s.OriginFilter)
	if err != nil {
		slog.Error("Failed to fetch tracked items", "error", err)
		return ReasonFetchFailed
	}
	telemetry.RecordItemCount(len(desired))

	if want := time.Duration(s.RefreshIntervalMinutes) * time.Minute; o.scheduler.Interval() != want {
		o.scheduler.Reschedule(want)
	}

	outcome := o.reconcileWithRetry(ctx, desired, s)

	// Best-effort accounting, regardless of partial failures inside
	// reconcile.
	now := time.Now().UnixMilli()
	count := len(desired)
	if _, err := o.store.Set(ctx, settings.Patch{LastSyncTime: &now, LastItemCount: &count}); err != nil {
		slog.Warn("Failed to persist sync accounting", "error", err)
	}
	return outcome
}

// reconcileWithRetry dispatches to the strategy and performs the one-shot
// recreate-and-retry when the container reference turns out stale.
func (o *Orchestrator) reconcileWithRetry(ctx context.Context, desired []items.TrackedItem, s settings.SyncSettings) string {
	if err := o.ensureContainer(ctx, false); err != nil {
		slog.Error("Failed to resolve container", "error", err)
		return ReasonContainerFailed
	}

	render := titles.Renderer(s.NameTemplate)
	for attempt := 0; ; attempt++ {
		res, err := o.strategy.Reconcile(ctx, desired, o.currentRef(), render, s.LastItemCount)
		if err == nil {
			slog.Info("Sync round reconciled",
				"created", res.Created,
				"removed", res.Removed,
				"kept", res.Kept)
			return ReasonReconcileSuccess
		}
		if !errors.Is(err, reconcile.ErrStale) {
			slog.Error("Reconcile failed", "error", err)
			return ReasonReconcileFailed
		}
		if attempt >= staleRetry.maxRetries {
			slog.Error("Container stale again after recreation, giving up until next tick")
			return ReasonReconcileFailed
		}

		slog.Warn("Container reference is stale, recreating", "attempt", attempt+1)
		if err := o.strategy.CloseStrays(ctx, desired); err != nil {
			slog.Warn("Failed to close strays before recreation", "error", err)
		}
		if o.recreatePause > 0 {
			select {
			case <-ctx.Done():
				return ReasonReconcileFailed
			case <-time.After(o.recreatePause):
			}
		}
		if err := o.ensureContainer(ctx, true); err != nil {
			slog.Error("Failed to recreate container", "error", err)
			return ReasonContainerFailed
		}
		telemetry.RecordContainerRecreated()
	}
}

// ensureContainer resolves the container (force bypasses the advisory
// handle) and persists the resulting handle when it changed.
func (o *Orchestrator) ensureContainer(ctx context.Context, force bool) error {
	s, err := o.store.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	ref, err := o.strategy.EnsureContainer(ctx, s.ContainerHandle, s.ContainerName, s.ContainerColor, force)
	if err != nil {
		return err
	}

	o.mu.Lock()
	o.ref = ref
	o.mu.Unlock()

	if handle := ref.Handle(); handle != s.ContainerHandle {
		if _, err := o.store.Set(ctx, settings.Patch{ContainerHandle: &handle}); err != nil {
			slog.Warn("Failed to persist container handle", "error", err)
		}
	}
	return nil
}

func (o *Orchestrator) currentRef() host.ContainerRef {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.ref
}

// waitInitialized polls (bounded) for initialization so an early tick does
// not race process startup.
func (o *Orchestrator) waitInitialized(ctx context.Context) bool {
	if o.initialized.Load() {
		return true
	}
	deadline := time.Now().Add(o.initWait)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(o.initPoll):
		}
		if o.initialized.Load() {
			return true
		}
	}
	return o.initialized.Load()
}
