package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/LeventeLantos/conversation-scheduler/internal/model"
)

// MemoryStore is a mutex-guarded in-memory ConversationStore for tests
// and non-durable deployments.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]model.Conversation
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]model.Conversation)}
}

func (s *MemoryStore) Create(ctx context.Context, conv *model.Conversation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if conv.ID == "" {
		return errors.New("conversation id must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[conv.ID]; exists {
		return errors.New("conversation already exists: " + conv.ID)
	}
	s.items[conv.ID] = cloneConversation(*conv)
	return nil
}

func (s *MemoryStore) GetByID(ctx context.Context, id string) (*model.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.items[id]
	if !ok {
		return nil, nil
	}
	c := cloneConversation(conv)
	return &c, nil
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, id string, from, to model.Status, lastError *string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.items[id]
	if !ok || conv.Status != from {
		return false, nil
	}

	conv.Status = to
	if lastError != nil {
		reason := *lastError
		conv.LastError = &reason
	}
	conv.UpdatedAt = time.Now().UTC()
	s.items[id] = conv
	return true, nil
}

func (s *MemoryStore) List(ctx context.Context, page, pageSize int, status *model.Status) ([]model.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}

	all := s.snapshot(status)

	offset := (page - 1) * pageSize
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + pageSize
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (s *MemoryStore) Count(ctx context.Context, status *model.Status) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, conv := range s.items {
		if status == nil || conv.Status == *status {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) DueScheduled(ctx context.Context, before time.Time) ([]model.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	scheduled := model.Scheduled
	all := s.snapshot(&scheduled)

	var out []model.Conversation
	for _, conv := range all {
		if !conv.ScheduledAt.After(before) {
			out = append(out, conv)
		}
	}
	return out, nil
}

func (s *MemoryStore) StaleInProgress(ctx context.Context, olderThan time.Time) ([]model.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	inProgress := model.InProgress
	all := s.snapshot(&inProgress)

	var out []model.Conversation
	for _, conv := range all {
		if !conv.UpdatedAt.After(olderThan) {
			out = append(out, conv)
		}
	}
	return out, nil
}

// snapshot copies matching conversations ordered by scheduled time, id as
// tie-breaker so pagination is stable.
func (s *MemoryStore) snapshot(status *model.Status) []model.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Conversation
	for _, conv := range s.items {
		if status == nil || conv.Status == *status {
			out = append(out, cloneConversation(conv))
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].ScheduledAt.Equal(out[j].ScheduledAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ScheduledAt.Before(out[j].ScheduledAt)
	})
	return out
}

func cloneConversation(conv model.Conversation) model.Conversation {
	if conv.Target.Headers != nil {
		headers := make(map[string]string, len(conv.Target.Headers))
		for k, v := range conv.Target.Headers {
			headers[k] = v
		}
		conv.Target.Headers = headers
	}
	if conv.LastError != nil {
		reason := *conv.LastError
		conv.LastError = &reason
	}
	return conv
}
