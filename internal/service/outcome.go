package service

import (
	"log/slog"

	"github.com/LeventeLantos/conversation-scheduler/internal/model"
)

// FinalStatus maps the result of the single delivery attempt to a
// terminal status. Success means completed; any error means failed, with
// the error text kept as the failure reason. There are no retry states.
func FinalStatus(deliveryErr error) (model.Status, *string) {
	if deliveryErr == nil {
		return model.Completed, nil
	}
	reason := deliveryErr.Error()
	return model.Failed, &reason
}

func logOutcome(id string, status model.Status, reason *string) {
	if status == model.Completed {
		slog.Info("delivery completed", "id", id)
		return
	}
	msg := ""
	if reason != nil {
		msg = *reason
	}
	slog.Warn("delivery failed", "id", id, "reason", msg)
}
