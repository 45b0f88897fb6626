package realtime

import (
	"net/http"
	"strings"

	"github.com/mcoot/noughts/internal/model"
)

// ServeSSE streams a user's events as server-sent events until the
// client disconnects or a newer connection supersedes this one
func (h *Handler) ServeSSE(w http.ResponseWriter, r *http.Request, userID model.UserID) {
	// Check if SSE is supported
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
	w.WriteHeader(http.StatusOK)

	// Send initial connection event before registering so it precedes
	// the first online users broadcast
	_, _ = w.Write(formatSSEMessage("connected", `{"status":"connected"}`))
	flusher.Flush()

	conn := h.newConn(userID, "sse")
	h.registry.Register(conn)

	// Ensure cleanup on disconnect
	defer func() {
		h.registry.Unregister(conn)
		conn.Close()
	}()

	// Create ticker for keepalive
	ticker := h.newTicker()
	defer ticker.Stop()

	for {
		select {
		case msg := <-conn.Messages():
			if _, err := w.Write(formatSSEMessage(string(msg.Type), string(msg.Payload))); err != nil {
				return
			}
			flusher.Flush()

		case <-ticker.C:
			// Send keepalive comment
			if _, err := w.Write([]byte(": keepalive\n\n")); err != nil {
				return
			}
			flusher.Flush()

		case <-conn.Done():
			// Superseded by a newer connection
			return

		case <-r.Context().Done():
			// Client disconnected
			return
		}
	}
}

// formatSSEMessage formats an SSE message with event name and data
// Multi-line data is properly formatted with "data: " prefix on each line
func formatSSEMessage(eventName, data string) []byte {
	var b strings.Builder
	b.WriteString("event: ")
	b.WriteString(eventName)
	b.WriteString("\n")
	for _, line := range splitLines(data) {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	return []byte(b.String())
}

// splitLines splits a string into lines, handling various line endings
func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.TrimSuffix(s, "\n")
	return strings.Split(s, "\n")
}
