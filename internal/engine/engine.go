package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// ExecuteFunc is invoked exactly once per fired trigger, on its own
// goroutine, with the engine's lifecycle context.
type ExecuteFunc func(ctx context.Context, id string)

// Trigger is the handle for one armed one-shot timer. A trigger that has
// fired or been cancelled can no longer be cancelled.
type Trigger struct {
	id      string
	firesAt time.Time
	timer   *time.Timer
	fired   bool // guarded by Engine.mu
}

func (t *Trigger) ID() string { return t.id }

// Engine owns the registry of pending triggers and guarantees that each
// armed trigger invokes the execute callback at most once, no earlier
// than its fire time. Timestamps already in the past fire immediately.
type Engine struct {
	execute       ExecuteFunc
	maxConcurrent int64

	running atomic.Bool

	mu       sync.Mutex
	triggers map[string]*Trigger
	sem      *semaphore.Weighted
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func New(execute ExecuteFunc, maxConcurrent int64) (*Engine, error) {
	if execute == nil {
		return nil, errors.New("execute must not be nil")
	}
	if maxConcurrent <= 0 {
		return nil, errors.New("maxConcurrent must be > 0")
	}
	return &Engine{
		execute:       execute,
		maxConcurrent: maxConcurrent,
		triggers:      make(map[string]*Trigger),
	}, nil
}

func (e *Engine) Start() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running.Load() {
		return false
	}

	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.triggers = make(map[string]*Trigger)
	e.sem = semaphore.NewWeighted(e.maxConcurrent)
	e.running.Store(true)

	slog.Info("engine started", "max_concurrent", e.maxConcurrent)
	return true
}

// Stop cancels every pending trigger and waits for in-flight callbacks.
func (e *Engine) Stop() bool {
	e.mu.Lock()

	if !e.running.Load() {
		e.mu.Unlock()
		return false
	}

	for _, t := range e.triggers {
		t.fired = true
		t.timer.Stop()
	}
	e.triggers = make(map[string]*Trigger)
	e.cancel()
	e.running.Store(false)
	e.mu.Unlock()

	e.wg.Wait()

	slog.Info("engine stopped")
	return true
}

func (e *Engine) IsRunning() bool {
	return e.running.Load()
}

// Pending reports the number of armed, not-yet-fired triggers.
func (e *Engine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.triggers)
}

// IsArmed reports whether id has a pending trigger. It is the source of
// truth for re-arming decisions: a stopped engine or a fired trigger
// reports false regardless of any handle a caller still holds.
func (e *Engine) IsArmed(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.triggers[id]
	return ok
}

// Arm registers a one-shot trigger for id. Re-arming an id replaces its
// still-pending trigger. A firesAt in the past (clock skew, restart
// delay) fires immediately rather than being dropped.
func (e *Engine) Arm(id string, firesAt time.Time) (*Trigger, error) {
	if id == "" {
		return nil, errors.New("id must not be empty")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running.Load() {
		return nil, errors.New("engine is not running")
	}

	if old, ok := e.triggers[id]; ok {
		old.fired = true
		old.timer.Stop()
		delete(e.triggers, id)
	}

	t := &Trigger{id: id, firesAt: firesAt}

	delay := time.Until(firesAt)
	if delay < 0 {
		delay = 0
	}
	t.timer = time.AfterFunc(delay, func() { e.fire(t) })
	e.triggers[id] = t

	slog.Debug("trigger armed", "id", id, "fires_at", firesAt.UTC(), "delay", delay.String())
	return t, nil
}

// Cancel removes a still-pending trigger. It returns false when the
// trigger already fired, was replaced, or is unknown.
func (e *Engine) Cancel(t *Trigger) bool {
	if t == nil {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if t.fired {
		return false
	}

	t.fired = true
	t.timer.Stop()
	if current, ok := e.triggers[t.id]; ok && current == t {
		delete(e.triggers, t.id)
	}

	slog.Debug("trigger cancelled", "id", t.id)
	return true
}

func (e *Engine) fire(t *Trigger) {
	e.mu.Lock()
	if t.fired || e.ctx.Err() != nil {
		e.mu.Unlock()
		return
	}
	t.fired = true
	delete(e.triggers, t.id)

	ctx := e.ctx
	sem := e.sem
	e.wg.Add(1)
	e.mu.Unlock()

	defer e.wg.Done()

	if err := sem.Acquire(ctx, 1); err != nil {
		slog.Warn("trigger dropped during shutdown", "id", t.id)
		return
	}
	defer sem.Release(1)

	e.safeExecute(ctx, t.id)
}

func (e *Engine) safeExecute(ctx context.Context, id string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("trigger callback panic recovered", "id", id, "panic", r)
		}
	}()

	start := time.Now()
	e.execute(ctx, id)
	slog.Debug("trigger fired", "id", id, "duration_ms", time.Since(start).Milliseconds())
}
