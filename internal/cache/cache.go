package cache

import (
	"context"
	"time"

	"github.com/LeventeLantos/conversation-scheduler/internal/model"
)

type OutcomeCache interface {
	StoreOutcome(ctx context.Context, id string, status model.Status, finishedAt time.Time) error
}
