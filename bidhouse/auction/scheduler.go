package auction

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Scheduler sweeps expired auctions on a fixed interval.
type Scheduler struct {
	manager  *Manager
	interval time.Duration
	timeout  time.Duration
	shutdown chan struct{}
	done     chan struct{}
	started  atomic.Bool
	stopOnce sync.Once
}

// NewScheduler creates a new auction scheduler
func NewScheduler(manager *Manager, interval time.Duration) *Scheduler {
	return &Scheduler{
		manager:  manager,
		interval: interval,
		timeout:  30 * time.Second,
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins the scheduler operations
func (s *Scheduler) Start() {
	if s.started.CompareAndSwap(false, true) {
		go s.run()
	}
}

// Stop signals the loop and waits for an in-flight sweep to finish.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.shutdown)
	})
	if s.started.Load() {
		<-s.done
	}
}

func (s *Scheduler) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("Auction scheduler started",
		slog.String("type", "sys"),
		slog.Duration("interval", s.interval))

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.shutdown:
			slog.Info("Auction scheduler stopped", slog.String("type", "sys"))
			return
		}
	}
}

func (s *Scheduler) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if _, err := s.manager.SweepExpiredAuctions(ctx); err != nil {
		slog.Error("Failed to sweep expired auctions",
			slog.String("type", "error"),
			slog.Any("error", err))
	}
}
