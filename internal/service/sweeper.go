package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper is the periodic reconciliation pass: it re-arms scheduled
// conversations due within the horizon whose trigger was lost, and fails
// in-progress conversations untouched past the stale threshold.
type Sweeper struct {
	ctrl       *Controller
	interval   time.Duration
	horizon    time.Duration
	staleAfter time.Duration

	running atomic.Bool

	mu sync.Mutex
	c  *cron.Cron
	wg sync.WaitGroup
}

func NewSweeper(ctrl *Controller, interval, horizon, staleAfter time.Duration) (*Sweeper, error) {
	if ctrl == nil {
		return nil, errors.New("controller must not be nil")
	}
	if interval <= 0 {
		return nil, errors.New("interval must be > 0")
	}
	if horizon <= 0 {
		return nil, errors.New("horizon must be > 0")
	}
	if staleAfter <= 0 {
		return nil, errors.New("staleAfter must be > 0")
	}
	return &Sweeper{
		ctrl:       ctrl,
		interval:   interval,
		horizon:    horizon,
		staleAfter: staleAfter,
	}, nil
}

func (s *Sweeper) Start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return false
	}

	s.c = cron.New()
	if _, err := s.c.AddFunc(fmt.Sprintf("@every %s", s.interval), s.safeSweep); err != nil {
		slog.Error("failed to register sweep schedule", "error", err)
		return false
	}
	s.c.Start()
	s.running.Store(true)

	// Cron waits a full interval before the first run; sweep once now so
	// restarts recover promptly. Tracked so Stop waits for it the same
	// way it waits for cron-launched sweeps.
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.safeSweep()
	}()

	slog.Info("sweeper started", "interval", s.interval.String())
	return true
}

func (s *Sweeper) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Load() {
		return false
	}

	<-s.c.Stop().Done()
	s.wg.Wait()
	s.running.Store(false)

	slog.Info("sweeper stopped")
	return true
}

func (s *Sweeper) IsRunning() bool {
	return s.running.Load()
}

func (s *Sweeper) safeSweep() {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("sweep panic recovered", "panic", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.interval)
	defer cancel()

	start := time.Now()

	armed, err := s.ctrl.Rearm(ctx, s.horizon)
	if err != nil {
		slog.Error("sweep re-arm failed", "error", err)
	}

	failed, err := s.ctrl.FailStale(ctx, s.staleAfter)
	if err != nil {
		slog.Error("sweep stale scan failed", "error", err)
	}

	slog.Debug("sweep completed",
		"armed", armed,
		"failed_stale", failed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
