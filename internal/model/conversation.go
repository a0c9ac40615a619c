package model

import (
	"net/http"
	"time"
)

type Status string

const (
	Scheduled  Status = "scheduled"
	InProgress Status = "in_progress"
	Completed  Status = "completed"
	Failed     Status = "failed"
	Cancelled  Status = "cancelled"
)

// validTransitions is the full lifecycle: scheduled is the only initial
// state, completed/failed/cancelled are terminal.
var validTransitions = map[Status][]Status{
	Scheduled:  {InProgress, Cancelled},
	InProgress: {Completed, Failed},
}

func (s Status) Valid() bool {
	switch s {
	case Scheduled, InProgress, Completed, Failed, Cancelled:
		return true
	}
	return false
}

func (s Status) IsTerminal() bool {
	return s == Completed || s == Failed || s == Cancelled
}

func CanTransition(from, to Status) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// DeliveryTarget describes where and how a conversation is delivered.
type DeliveryTarget struct {
	Endpoint string            `json:"endpoint"`
	Method   string            `json:"method"`
	Headers  map[string]string `json:"headers,omitempty"`
	Note     string            `json:"note,omitempty"`
}

// NormalizeMethod maps absent or unrecognized HTTP verbs to POST.
func NormalizeMethod(method string) string {
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch,
		http.MethodDelete, http.MethodHead, http.MethodOptions:
		return method
	}
	return http.MethodPost
}

type Conversation struct {
	ID          string         `json:"id"`
	Payload     string         `json:"payload"`
	ScheduledAt time.Time      `json:"scheduledAt"`
	Target      DeliveryTarget `json:"target"`
	Status      Status         `json:"status"`
	LastError   *string        `json:"lastError,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}
