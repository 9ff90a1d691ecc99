package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// handleSSE serves the long-lived event stream. The first frame is the
// connected event queued by Subscribe; every later frame is a broadcast.
// The subscriber disconnecting is the only cancellation signal and must
// release the sink promptly.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	sink, err := s.relay.Subscribe()
	if err != nil {
		http.Error(w, "subscription failed", http.StatusInternalServerError)
		return
	}
	defer s.relay.Unsubscribe(sink)

	slog.Info("stream subscriber connected", "client_id", sink.ID(), "transport", "sse")
	defer slog.Info("stream subscriber disconnected", "client_id", sink.ID(), "transport", "sse")

	ticker := time.NewTicker(s.keepalive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-sink.Done():
			return
		case frame := <-sink.Frames():
			if _, err := fmt.Fprintf(w, "data: %s\n\n", frame); err != nil {
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprintf(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
