package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/LeventeLantos/conversation-scheduler/internal/cache"
	"github.com/LeventeLantos/conversation-scheduler/internal/client"
	"github.com/LeventeLantos/conversation-scheduler/internal/engine"
	"github.com/LeventeLantos/conversation-scheduler/internal/model"
	"github.com/LeventeLantos/conversation-scheduler/internal/store"
)

// TriggerScheduler is the slice of the engine the controller needs.
type TriggerScheduler interface {
	Arm(id string, firesAt time.Time) (*engine.Trigger, error)
	Cancel(t *engine.Trigger) bool
	IsArmed(id string) bool
}

// Controller owns every status transition. The engine only maps triggers
// to identifiers; the store's conditional UpdateStatus is the sole
// synchronization between the cancel path and the fire path.
type Controller struct {
	store    store.ConversationStore
	triggers TriggerScheduler
	delivery client.DeliveryClient

	outcomes cache.OutcomeCache
	now      func() time.Time

	mu      sync.Mutex
	handles map[string]*engine.Trigger
}

func NewController(st store.ConversationStore, triggers TriggerScheduler, delivery client.DeliveryClient) *Controller {
	return &Controller{
		store:    st,
		triggers: triggers,
		delivery: delivery,
		now:      time.Now,
		handles:  make(map[string]*engine.Trigger),
	}
}

// WithOutcomeCache records terminal results in the given cache,
// best-effort.
func (c *Controller) WithOutcomeCache(oc cache.OutcomeCache) *Controller {
	c.outcomes = oc
	return c
}

// WithClock overrides the time source, for tests.
func (c *Controller) WithClock(now func() time.Time) *Controller {
	c.now = now
	return c
}

// Schedule validates, persists the conversation as scheduled, and arms a
// trigger. Validation failures leave no trace: nothing is persisted and
// no trigger is armed.
func (c *Controller) Schedule(ctx context.Context, payload string, scheduledAt time.Time, target model.DeliveryTarget) (*model.Conversation, error) {
	if strings.TrimSpace(payload) == "" {
		return nil, fmt.Errorf("%w: payload must not be empty", ErrInvalidArgument)
	}
	if strings.TrimSpace(target.Endpoint) == "" {
		return nil, fmt.Errorf("%w: target endpoint must not be empty", ErrInvalidArgument)
	}

	now := c.now().UTC()
	if !scheduledAt.After(now) {
		return nil, fmt.Errorf("%w: scheduledAt must be in the future", ErrInvalidArgument)
	}

	target.Method = model.NormalizeMethod(target.Method)

	conv := &model.Conversation{
		ID:          uuid.NewString(),
		Payload:     payload,
		ScheduledAt: scheduledAt.UTC(),
		Target:      target,
		Status:      model.Scheduled,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := c.store.Create(ctx, conv); err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}

	handle, err := c.triggers.Arm(conv.ID, conv.ScheduledAt)
	if err != nil {
		// The record stays scheduled; a restart or sweep re-arms it.
		slog.Error("failed to arm trigger", "id", conv.ID, "error", err)
		return nil, fmt.Errorf("arm trigger: %w", err)
	}
	c.putHandle(conv.ID, handle)

	slog.Info("conversation scheduled",
		"id", conv.ID,
		"scheduled_at", conv.ScheduledAt,
		"endpoint", conv.Target.Endpoint,
		"method", conv.Target.Method,
	)
	return conv, nil
}

// Cancel moves a still-scheduled conversation to cancelled and removes
// its pending trigger. Unknown ids and conversations past the scheduled
// state report false without an error.
func (c *Controller) Cancel(ctx context.Context, id string) (bool, error) {
	ok, err := c.store.UpdateStatus(ctx, id, model.Scheduled, model.Cancelled, nil)
	if err != nil {
		return false, fmt.Errorf("cancel conversation: %w", err)
	}
	if !ok {
		return false, nil
	}

	if handle := c.takeHandle(id); handle != nil {
		c.triggers.Cancel(handle)
	}

	slog.Info("conversation cancelled", "id", id)
	return true, nil
}

// Execute runs the single delivery attempt for id. Invoked by the
// engine's fire callback, and safe to call manually: the conditional
// move out of scheduled makes a duplicate or late fire a no-op.
func (c *Controller) Execute(ctx context.Context, id string) error {
	conv, err := c.store.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("read conversation: %w", err)
	}
	if conv == nil {
		slog.Warn("trigger fired for unknown conversation", "id", id)
		return nil
	}
	if conv.Status != model.Scheduled {
		slog.Debug("fire skipped, conversation no longer scheduled", "id", id, "status", conv.Status)
		return nil
	}

	ok, err := c.store.UpdateStatus(ctx, id, model.Scheduled, model.InProgress, nil)
	if err != nil {
		return fmt.Errorf("mark in progress: %w", err)
	}
	if !ok {
		// Cancellation beat the firing.
		slog.Debug("fire lost the status race", "id", id)
		return nil
	}
	// A manual Execute before the fire time leaves the trigger pending;
	// cancelling it here frees the timer instead of waiting for a no-op fire.
	if handle := c.takeHandle(id); handle != nil {
		c.triggers.Cancel(handle)
	}

	deliveryErr := c.delivery.Send(ctx,
		conv.Target.Endpoint,
		model.NormalizeMethod(conv.Target.Method),
		conv.Payload,
		resolveHeaders(conv.Target.Headers),
	)

	final, reason := FinalStatus(deliveryErr)
	logOutcome(id, final, reason)

	// The attempt already happened; a failed status write is logged but
	// not compensated.
	if ok, err := c.store.UpdateStatus(ctx, id, model.InProgress, final, reason); err != nil || !ok {
		slog.Error("failed to record delivery outcome", "id", id, "status", final, "error", err)
		return nil
	}

	if c.outcomes != nil {
		if err := c.outcomes.StoreOutcome(ctx, id, final, c.now().UTC()); err != nil {
			slog.Warn("failed to cache delivery outcome", "id", id, "error", err)
		}
	}
	return nil
}

func (c *Controller) Get(ctx context.Context, id string) (*model.Conversation, error) {
	return c.store.GetByID(ctx, id)
}

func (c *Controller) List(ctx context.Context, page, pageSize int, status *model.Status) ([]model.Conversation, int, error) {
	items, err := c.store.List(ctx, page, pageSize, status)
	if err != nil {
		return nil, 0, err
	}
	total, err := c.store.Count(ctx, status)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// Rearm arms triggers for scheduled conversations due within the horizon
// that have no pending trigger. Called once at startup and periodically
// by the sweeper, so triggers lost to a restart are recovered.
func (c *Controller) Rearm(ctx context.Context, horizon time.Duration) (int, error) {
	due, err := c.store.DueScheduled(ctx, c.now().UTC().Add(horizon))
	if err != nil {
		return 0, fmt.Errorf("scan due conversations: %w", err)
	}

	armed := 0
	for _, conv := range due {
		if c.triggers.IsArmed(conv.ID) {
			continue
		}
		// The engine has no pending trigger for this id. Any handle still
		// held is dead (engine restart, or a fire that bailed out on a
		// store error); drop it and re-arm.
		c.takeHandle(conv.ID)
		handle, err := c.triggers.Arm(conv.ID, conv.ScheduledAt)
		if err != nil {
			slog.Error("failed to re-arm trigger", "id", conv.ID, "error", err)
			continue
		}
		c.putHandle(conv.ID, handle)
		armed++
	}

	if armed > 0 {
		slog.Info("re-armed pending conversations", "count", armed)
	}
	return armed, nil
}

// FailStale marks in-progress conversations untouched for longer than
// the threshold as failed. Such rows mean the process died mid-attempt
// or the outcome write was lost; the delivery result is unknown.
func (c *Controller) FailStale(ctx context.Context, olderThan time.Duration) (int, error) {
	stale, err := c.store.StaleInProgress(ctx, c.now().UTC().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("scan stale conversations: %w", err)
	}

	failed := 0
	for _, conv := range stale {
		reason := "stale in-progress, delivery outcome unknown"
		ok, err := c.store.UpdateStatus(ctx, conv.ID, model.InProgress, model.Failed, &reason)
		if err != nil {
			slog.Error("failed to fail stale conversation", "id", conv.ID, "error", err)
			continue
		}
		if ok {
			slog.Warn("stale in-progress conversation marked failed", "id", conv.ID)
			failed++
		}
	}
	return failed, nil
}

// resolveHeaders copies stored headers, dropping unusable entries.
func resolveHeaders(headers map[string]string) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		if strings.TrimSpace(k) == "" {
			continue
		}
		out[k] = v
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func (c *Controller) putHandle(id string, t *engine.Trigger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handles[id] = t
}

func (c *Controller) takeHandle(id string) *engine.Trigger {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.handles[id]
	delete(c.handles, id)
	return t
}
