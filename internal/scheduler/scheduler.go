// Package scheduler implements the adaptive polling timer shared by the
// three polling loops (§4.3): a self-rescheduling one-shot timer whose
// interval grows while the game is idle and snaps back to its base
// interval the moment activity is observed.
package scheduler

import (
	"context"
	"sync"
	"time"

	"cardagent/internal/logging"
)

// Scheduler runs tick on a self-rescheduling timer. The effective
// interval is baseInterval * currentMultiplier; once no activity has been
// recorded for idleTimeout, each tick adds (idleMultiplier-1)*0.1 to
// currentMultiplier, capped at maxMultiplier. RecordActivity resets it to 1.
type Scheduler struct {
	name            string
	baseInterval    time.Duration
	idleTimeout     time.Duration
	idleMultiplier  float64
	maxMultiplier   float64
	adaptive        bool
	tick            func(ctx context.Context)

	mu               sync.Mutex
	currentMultiplier float64
	lastActivity      time.Time
	running           bool
	timer             *time.Timer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Config parameterizes a Scheduler.
type Config struct {
	Name           string
	BaseInterval   time.Duration
	IdleTimeout    time.Duration
	IdleMultiplier float64
	MaxMultiplier  float64
	Adaptive       bool
}

// New creates a Scheduler that calls tick on every fire.
func New(cfg Config, tick func(ctx context.Context)) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		name:              cfg.Name,
		baseInterval:      cfg.BaseInterval,
		idleTimeout:       cfg.IdleTimeout,
		idleMultiplier:    cfg.IdleMultiplier,
		maxMultiplier:     cfg.MaxMultiplier,
		adaptive:          cfg.Adaptive,
		tick:              tick,
		currentMultiplier: 1,
		ctx:               ctx,
		cancel:            cancel,
	}
}

// Start begins the scheduler's self-rescheduling loop. The first tick
// fires immediately.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.lastActivity = time.Now()
	// A previous Stop cancelled the old context; each run gets a fresh one.
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.mu.Unlock()

	s.wg.Add(1)
	go s.runOnce()
}

// Stop cancels the scheduler and waits for its current tick, if any, to
// finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	if s.timer != nil && s.timer.Stop() {
		// The timer hadn't fired yet, so its matching Done() will never
		// run; release the Add we made when arming it.
		s.wg.Done()
	}
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}

// RecordActivity snaps the interval multiplier back to 1, causing the
// next reschedule to use the base interval.
func (s *Scheduler) RecordActivity() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentMultiplier = 1
	s.lastActivity = time.Now()
}

func (s *Scheduler) runOnce() {
	defer s.wg.Done()

	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if !running {
		return
	}

	s.tick(s.ctx)

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	interval := s.nextIntervalLocked()
	s.wg.Add(1)
	s.timer = time.AfterFunc(interval, func() {
		go s.runOnce()
	})
	s.mu.Unlock()

	logging.SchedulerDebug("%s: next tick in %s", s.name, interval)
}

// nextIntervalLocked computes the next fire interval and advances the
// idle multiplier. Caller must hold s.mu.
func (s *Scheduler) nextIntervalLocked() time.Duration {
	if !s.adaptive {
		return s.baseInterval
	}

	idleFor := time.Since(s.lastActivity)
	if idleFor >= s.idleTimeout {
		s.currentMultiplier += (s.idleMultiplier - 1) * 0.1
		if s.currentMultiplier > s.maxMultiplier {
			s.currentMultiplier = s.maxMultiplier
		}
	}

	return time.Duration(float64(s.baseInterval) * s.currentMultiplier)
}

// Multiplier reports the current interval multiplier, primarily for
// tests and the State Aggregator's diagnostic projection.
func (s *Scheduler) Multiplier() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentMultiplier
}
