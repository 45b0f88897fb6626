package handler

import (
	"net/http"

	"github.com/mcoot/noughts/internal/api/middleware"
	"github.com/mcoot/noughts/internal/realtime"
)

// EventsHandler opens real-time connections
type EventsHandler struct {
	transport *realtime.Handler
}

// NewEventsHandler creates a new events handler
func NewEventsHandler(transport *realtime.Handler) *EventsHandler {
	return &EventsHandler{transport: transport}
}

// SSE handles GET /api/v1/events
func (h *EventsHandler) SSE(w http.ResponseWriter, r *http.Request) {
	h.transport.ServeSSE(w, r, middleware.MustGetUserID(r.Context()))
}

// WebSocket handles GET /api/v1/ws
func (h *EventsHandler) WebSocket(w http.ResponseWriter, r *http.Request) {
	h.transport.ServeWS(w, r, middleware.MustGetUserID(r.Context()))
}
