package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Scheduler is the periodic trigger driving sync rounds. The live period can
// be changed mid-flight when the persisted refresh interval is edited.
type Scheduler interface {
	// Start begins ticking. fn runs on every tick until ctx is cancelled.
	Start(ctx context.Context, interval time.Duration, fn func())

	// Interval returns the current tick period
	Interval() time.Duration

	// Reschedule changes the tick period. No-op before Start or after stop.
	Reschedule(interval time.Duration)

	// Stop halts ticking
	Stop()
}

// tickerScheduler is the time.Ticker-backed Scheduler.
type tickerScheduler struct {
	mu       sync.Mutex
	interval time.Duration
	ticker   *time.Ticker
	stopped  bool
}

// NewTickerScheduler creates an idle scheduler.
func NewTickerScheduler() Scheduler {
	return &tickerScheduler{}
}

func (s *tickerScheduler) Start(ctx context.Context, interval time.Duration, fn func()) {
	s.mu.Lock()
	if s.ticker != nil || s.stopped {
		s.mu.Unlock()
		return
	}
	s.interval = interval
	s.ticker = time.NewTicker(interval)
	ticker := s.ticker
	s.mu.Unlock()

	go func() {
		for {
			select {
			case <-ctx.Done():
				s.Stop()
				return
			case _, ok := <-ticker.C:
				if !ok {
					return
				}
				fn()
			}
		}
	}()
}

func (s *tickerScheduler) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

func (s *tickerScheduler) Reschedule(interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ticker == nil || s.stopped || interval == s.interval {
		return
	}
	slog.Info("Rescheduling sync timer", "from", s.interval, "to", interval)
	s.interval = interval
	s.ticker.Reset(interval)
}

func (s *tickerScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ticker != nil && !s.stopped {
		s.ticker.Stop()
	}
	s.stopped = true
}
