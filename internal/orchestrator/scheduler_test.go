package orchestrator_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabwarden/tabwarden/internal/orchestrator"
)

func TestTickerSchedulerTicks(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := orchestrator.NewTickerScheduler()
	var ticks atomic.Int64
	s.Start(ctx, 10*time.Millisecond, func() { ticks.Add(1) })
	defer s.Stop()

	require.Eventually(t, func() bool {
		return ticks.Load() >= 2
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, 10*time.Millisecond, s.Interval())
}

func TestTickerSchedulerReschedule(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := orchestrator.NewTickerScheduler()
	var ticks atomic.Int64
	s.Start(ctx, time.Hour, func() { ticks.Add(1) })
	defer s.Stop()

	s.Reschedule(10 * time.Millisecond)
	assert.Equal(t, 10*time.Millisecond, s.Interval())

	require.Eventually(t, func() bool {
		return ticks.Load() >= 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestTickerSchedulerStop(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := orchestrator.NewTickerScheduler()
	var ticks atomic.Int64
	s.Start(ctx, 10*time.Millisecond, func() { ticks.Add(1) })
	s.Stop()

	before := ticks.Load()
	time.Sleep(50 * time.Millisecond)
	assert.LessOrEqual(t, ticks.Load(), before+1, "at most one in-flight tick after stop")

	// reschedule after stop is a no-op
	s.Reschedule(time.Millisecond)
}
