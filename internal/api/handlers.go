package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/LeventeLantos/conversation-scheduler/internal/engine"
	"github.com/LeventeLantos/conversation-scheduler/internal/model"
	"github.com/LeventeLantos/conversation-scheduler/internal/service"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type Handler struct {
	ctrl *service.Controller
	eng  *engine.Engine
}

func NewHandler(ctrl *service.Controller, eng *engine.Engine) *Handler {
	return &Handler{ctrl: ctrl, eng: eng}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) EngineStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"running": h.eng.IsRunning(),
		"pending": h.eng.Pending(),
	})
}

func (h *Handler) EngineStart(w http.ResponseWriter, r *http.Request) {
	h.eng.Start()
	writeJSON(w, http.StatusOK, map[string]any{"running": h.eng.IsRunning()})
}

func (h *Handler) EngineStop(w http.ResponseWriter, r *http.Request) {
	h.eng.Stop()
	writeJSON(w, http.StatusOK, map[string]any{"running": h.eng.IsRunning()})
}

type scheduleRequest struct {
	Payload     string            `json:"payload"`
	ScheduledAt time.Time         `json:"scheduledAt"`
	Endpoint    string            `json:"endpoint"`
	Method      string            `json:"method"`
	Headers     map[string]string `json:"headers"`
	Note        string            `json:"note"`
}

func (h *Handler) ScheduleConversation(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	conv, err := h.ctrl.Schedule(r.Context(), req.Payload, req.ScheduledAt, model.DeliveryTarget{
		Endpoint: req.Endpoint,
		Method:   req.Method,
		Headers:  req.Headers,
		Note:     req.Note,
	})
	if err != nil {
		if errors.Is(err, service.ErrInvalidArgument) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, conv)
}

func (h *Handler) GetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := h.ctrl.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if conv == nil {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (h *Handler) CancelConversation(w http.ResponseWriter, r *http.Request) {
	ok, err := h.ctrl.Cancel(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		// Unknown id or already past scheduled; not an error, but not a cancel.
		writeJSON(w, http.StatusConflict, map[string]any{"cancelled": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cancelled": true})
}

type paginatedResponse struct {
	Items      []model.Conversation `json:"items"`
	TotalItems int                  `json:"total_items"`
	Page       int                  `json:"page"`
	PageSize   int                  `json:"page_size"`
	TotalPages int                  `json:"total_pages"`
}

func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	page := clamp(parseInt(r.URL.Query().Get("page"), 1), 1, 1<<30)
	pageSize := clamp(parseInt(r.URL.Query().Get("pageSize"), defaultPageSize), 1, maxPageSize)

	var status *model.Status
	if raw := r.URL.Query().Get("status"); raw != "" {
		s := model.Status(raw)
		if !s.Valid() {
			writeError(w, http.StatusBadRequest, "unknown status: "+raw)
			return
		}
		status = &s
	}

	items, total, err := h.ctrl.List(r.Context(), page, pageSize, status)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if items == nil {
		items = []model.Conversation{}
	}

	totalPages := (total + pageSize - 1) / pageSize

	writeJSON(w, http.StatusOK, paginatedResponse{
		Items:      items,
		TotalItems: total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	})
}

func parseInt(raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}
