// Package scheduler runs the monitor cycle on a fixed interval.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"market-tracker/internal/logging"
	"market-tracker/internal/monitor"
)

// Runner runs one fetch-evaluate-notify cycle.
type Runner interface {
	Run(ctx context.Context) (monitor.Result, error)
}

// Config configures a Scheduler.
type Config struct {
	Interval     time.Duration
	CycleTimeout time.Duration
	OnResult     func(monitor.Result, error)
}

// Scheduler runs a cycle immediately on Start and then on every tick. At
// most one cycle runs at a time; ticks that arrive during a cycle are
// dropped. Stop ends the loop but lets an in-flight cycle finish.
type Scheduler struct {
	runner Runner
	cfg    Config
	logger zerolog.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	done    chan struct{}

	cycleMu sync.Mutex
}

// New creates a Scheduler. Interval defaults to 60s.
func New(runner Runner, cfg Config, logger zerolog.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 60 * time.Second
	}
	if cfg.CycleTimeout <= 0 {
		cfg.CycleTimeout = cfg.Interval
	}
	return &Scheduler{
		runner: runner,
		cfg:    cfg,
		logger: logging.WithComponent(logger, "scheduler"),
	}
}

// Interval returns the configured tick interval.
func (s *Scheduler) Interval() time.Duration {
	return s.cfg.Interval
}

// Start launches the loop. It returns immediately; the loop ends when ctx is
// cancelled or Stop is called. Starting a running scheduler does nothing.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Debug().Msg("Scheduler already running")
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})
	stopCh, done := s.stopCh, s.done
	s.mu.Unlock()

	go s.loop(ctx, stopCh, done)

	s.logger.Info().Dur("interval", s.cfg.Interval).Msg("Scheduler started")
}

func (s *Scheduler) loop(ctx context.Context, stopCh, done chan struct{}) {
	defer close(done)
	defer s.markStopped(stopCh)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if !s.cycleMu.TryLock() {
		s.logger.Debug().Msg("Previous cycle still running, skipping tick")
		return
	}
	defer s.cycleMu.Unlock()
	s.run(ctx)
}

// run executes one cycle with the caller's values but not its cancellation.
func (s *Scheduler) run(parent context.Context) (monitor.Result, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), s.cfg.CycleTimeout)
	defer cancel()

	res, err := s.runner.Run(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Cycle failed")
	}
	if s.cfg.OnResult != nil {
		s.cfg.OnResult(res, err)
	}
	return res, err
}

func (s *Scheduler) markStopped(stopCh chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh == stopCh {
		s.running = false
	}
}

// Stop ends the loop and waits for it to exit, including any in-flight
// cycle.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	close(s.stopCh)
	s.running = false
	done := s.done
	s.mu.Unlock()

	<-done
	s.logger.Info().Msg("Scheduler stopped")
}

// Running reports whether the loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// RunNow runs a cycle outside the schedule, waiting for any in-flight cycle
// first.
func (s *Scheduler) RunNow(ctx context.Context) (monitor.Result, error) {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()
	return s.run(ctx)
}
