package api

import "net/http"

func Router(h *Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", h.Health)

	mux.HandleFunc("GET /v1/engine/status", h.EngineStatus)
	mux.HandleFunc("POST /v1/engine/start", h.EngineStart)
	mux.HandleFunc("POST /v1/engine/stop", h.EngineStop)

	mux.HandleFunc("POST /v1/conversations", h.ScheduleConversation)
	mux.HandleFunc("GET /v1/conversations", h.ListConversations)
	mux.HandleFunc("GET /v1/conversations/{id}", h.GetConversation)
	mux.HandleFunc("DELETE /v1/conversations/{id}", h.CancelConversation)

	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("conversation-scheduler"))
	})

	return mux
}
