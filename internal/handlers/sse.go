package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/lyallcooper/moleui/internal/types"
)

const sseKeepAlive = 20 * time.Second

// ScanEventsSSE handles GET /sse/scans/{verb}. It sends the current view as
// a "snapshot" event, then every accepted update as an "update" event until
// the client goes away. A terminal update is followed by a "complete" event.
func (h *Handler) ScanEventsSSE(w http.ResponseWriter, r *http.Request) {
	verb := r.PathValue("verb")

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	// Subscribe before the snapshot so nothing falls in between
	updates := h.scanner.Subscribe(verb)
	defer h.scanner.Unsubscribe(verb, updates)

	view, _ := h.scanner.Snapshot(verb)
	h.sendJSON(w, flusher, "snapshot", view)

	keepAlive := time.NewTicker(sseKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case update, ok := <-updates:
			if !ok {
				// Scanner shut down
				h.sendEvent(w, flusher, "closed", `{}`)
				return
			}
			h.sendJSON(w, flusher, "update", update)
			if update.Status == types.StatusCompleted || update.Status == types.StatusFailed {
				h.sendJSON(w, flusher, "complete", map[string]any{
					"token":  update.Token,
					"status": update.Status,
				})
			}
		}
	}
}

func (h *Handler) sendJSON(w http.ResponseWriter, flusher http.Flusher, event string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.log.WithError(err).WithField("event", event).Warn("Failed to encode SSE payload")
		return
	}
	h.sendEvent(w, flusher, event, string(data))
}

func (h *Handler) sendEvent(w http.ResponseWriter, flusher http.Flusher, event, data string) {
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	flusher.Flush()
}
