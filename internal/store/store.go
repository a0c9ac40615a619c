package store

import (
	"context"
	"time"

	"github.com/LeventeLantos/conversation-scheduler/internal/model"
)

// ConversationStore is the durable record of scheduled conversations.
// GetByID returns (nil, nil) for an unknown id; UpdateStatus is an atomic
// compare-and-set and reports false when the current status differs from
// the expected prior status.
type ConversationStore interface {
	Create(ctx context.Context, conv *model.Conversation) error
	GetByID(ctx context.Context, id string) (*model.Conversation, error)
	UpdateStatus(ctx context.Context, id string, from, to model.Status, lastError *string) (bool, error)
	List(ctx context.Context, page, pageSize int, status *model.Status) ([]model.Conversation, error)
	Count(ctx context.Context, status *model.Status) (int, error)

	// DueScheduled returns conversations still in the scheduled state whose
	// fire time is at or before the given instant. Used to re-arm triggers
	// after a restart and by the reconciliation sweep.
	DueScheduled(ctx context.Context, before time.Time) ([]model.Conversation, error)

	// StaleInProgress returns conversations stuck in the in-progress state
	// whose last update is at or before the given instant.
	StaleInProgress(ctx context.Context, olderThan time.Time) ([]model.Conversation, error)
}
