package http

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var sseClients = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "session_sse_clients",
	Help: "Current number of connected event stream clients",
})

// SessionHandler serves the read-only session view and the event stream.
type SessionHandler struct {
	manager   SessionManager
	logger    *slog.Logger
	heartbeat time.Duration
}

// NewSessionHandler creates the session view handler.
func NewSessionHandler(manager SessionManager, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{manager: manager, logger: logger, heartbeat: 15 * time.Second}
}

// Get handles GET /api/v1/session
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, response{Data: h.manager.Snapshot()})
}

// vipEvent is the SSE payload for a VIP entitlement transition.
type vipEvent struct {
	NewStatus bool   `json:"new_status"`
	OldStatus bool   `json:"old_status"`
	At        string `json:"at"`
}

// Events handles GET /api/v1/events. It streams VIP entitlement
// transitions as server-sent events until the client disconnects.
func (h *SessionHandler) Events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, response{
			Error: &errorResponse{Code: "STREAMING_UNSUPPORTED", Message: "response writer does not support streaming"},
		})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sseClients.Inc()
	defer sseClients.Dec()

	// Buffered so a slow client drops events instead of blocking the
	// notifier, which runs inside session commits.
	events := make(chan vipEvent, 16)
	unsubscribe := h.manager.AddVipStatusListener(func(newActive, oldActive bool) {
		evt := vipEvent{NewStatus: newActive, OldStatus: oldActive, At: time.Now().UTC().Format(time.RFC3339)}
		select {
		case events <- evt:
		default:
			h.logger.Warn("dropping vip event for slow sse client")
		}
	})
	defer unsubscribe()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case evt := <-events:
			data, err := json.Marshal(evt)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: vip-transition\ndata: %s\n\n", data)
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		}
	}
}
