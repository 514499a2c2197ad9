package httpapi

import (
	"fmt"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/fathomlabs/fathom/internal/streaming"
)

// StreamingHandler serves the session event stream as newline-delimited JSON:
// one event object per line, flushed as events arrive.
type StreamingHandler struct {
	mgr    *streaming.Manager
	logger *zap.Logger
}

// NewStreamingHandler builds a handler on the given manager.
func NewStreamingHandler(mgr *streaming.Manager, logger *zap.Logger) *StreamingHandler {
	return &StreamingHandler{mgr: mgr, logger: logger}
}

// RegisterRoutes registers stream routes on the provided mux.
func (h *StreamingHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/stream/events", h.handleEvents)
}

// handleEvents streams events for a session.
// GET /stream/events?session_id=<id>[&last_seq=<n>]
func (h *StreamingHandler) handleEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		http.Error(w, `{"error":"session_id required"}`, http.StatusBadRequest)
		return
	}

	var lastSeq uint64
	if q := r.URL.Query().Get("last_seq"); q != "" {
		if n, err := strconv.ParseUint(q, 10, 64); err == nil {
			lastSeq = n
		}
	}

	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	ch := h.mgr.Subscribe(sessionID, 256)
	defer h.mgr.Unsubscribe(sessionID, ch)

	writeEvent := func(ev streaming.Event) bool {
		if _, err := fmt.Fprintf(w, "%s\n", ev.Marshal()); err != nil {
			return false
		}
		flusher.Flush()
		return ev.EventType != streaming.TypeComplete && ev.EventType != streaming.TypeError
	}

	// Replay backlog since lastSeq (best-effort within ring capacity).
	if lastSeq > 0 {
		for _, ev := range h.mgr.ReplaySince(sessionID, lastSeq) {
			if !writeEvent(ev) {
				return
			}
		}
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-ch:
			if !open {
				return
			}
			if !writeEvent(ev) {
				return
			}
		}
	}
}
