package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// keepaliveInterval paces SSE comment lines so idle connections survive
// proxies with read timeouts.
const keepaliveInterval = 30 * time.Second

// handleEvents streams the live record broadcast as Server-Sent Events.
// Delivery is at-most-once: a client that connects after a record was
// published never receives it, and records the client is too slow to
// drain are dropped by the bus. An optional ?device= parameter filters
// the stream to one device.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	deviceFilter := r.URL.Query().Get("device")

	sub := s.bus.Subscribe(0)
	defer s.bus.Unsubscribe(sub.ID)

	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	fmt.Fprintf(w, "event: ready\ndata: {}\n\n")
	flusher.Flush()

	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepalive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case rec, ok := <-sub.C:
			if !ok {
				return
			}
			if deviceFilter != "" && rec.DeviceID != deviceFilter {
				continue
			}
			data, err := json.Marshal(rec)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: up\ndata: %s\n\n", data)
			flusher.Flush()
		}
	}
}
