package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWebsocket serves the same frame sequence as the SSE stream over a
// websocket, for dashboards behind proxies that buffer SSE.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sink, err := s.relay.Subscribe()
	if err != nil {
		return
	}
	defer s.relay.Unsubscribe(sink)

	slog.Info("stream subscriber connected", "client_id", sink.ID(), "transport", "ws")
	defer slog.Info("stream subscriber disconnected", "client_id", sink.ID(), "transport", "ws")

	// Drain client messages so close frames are processed; the relay
	// never reads anything meaningful from subscribers.
	readClosed := make(chan struct{})
	go func() {
		defer close(readClosed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.keepalive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-readClosed:
			return
		case <-sink.Done():
			return
		case frame := <-sink.Frames():
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
