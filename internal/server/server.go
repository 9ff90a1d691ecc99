// Package server exposes the relay over HTTP: ingestion from the dispatch
// backend, polling and acknowledgements for the dashboard, and two live
// streaming transports (SSE and websocket).
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/stratagem/dispatchd/internal/config"
	"github.com/stratagem/dispatchd/internal/emergency"
	"github.com/stratagem/dispatchd/internal/relay"
	"github.com/stratagem/dispatchd/internal/store"
)

// Server wires the relay service to HTTP handlers.
type Server struct {
	relay     *relay.Service
	keepalive time.Duration
	srv       *http.Server
}

// New creates a Server for the given relay service.
func New(svc *relay.Service, cfg config.ServerConfig) *Server {
	keepalive := cfg.Keepalive.Duration
	if keepalive <= 0 {
		keepalive = 30 * time.Second
	}
	return &Server{relay: svc, keepalive: keepalive}
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/emergencies/receive-dispatch", s.handleIngest)
	mux.HandleFunc("GET /api/v1/emergencies", s.handleList)
	mux.HandleFunc("POST /api/v1/emergencies/{id}/acknowledge", s.handleAcknowledge)
	mux.HandleFunc("GET /api/emergencies/stream", s.handleSSE)
	mux.HandleFunc("GET /api/emergencies/ws", s.handleWebsocket)
	mux.HandleFunc("GET /health", s.handleHealth)
	return mux
}

// Start begins serving on addr in the background.
func (s *Server) Start(addr string) {
	s.srv = &http.Server{Addr: addr, Handler: s.Handler()}
	go func() {
		slog.Info("relay server listening", "addr", addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("relay server failed", "error", err)
		}
	}()
}

// Shutdown drains the server. Open streaming connections are closed by the
// server's shutdown of their underlying transports.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

type apiResponse struct {
	Success     bool          `json:"success"`
	Message     string        `json:"message,omitempty"`
	EmergencyID *emergency.ID `json:"emergencyId,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("writing response failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, apiResponse{Success: false, Message: message})
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var p relay.DispatchPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid emergency data format")
		return
	}

	rec, err := s.relay.Ingest(r.Context(), p)
	switch {
	case errors.Is(err, relay.ErrInvalidFormat):
		writeError(w, http.StatusBadRequest, "Invalid emergency data format")
		return
	case errors.Is(err, store.ErrDuplicateID):
		writeError(w, http.StatusConflict, "Duplicate emergency id")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, apiResponse{
		Success:     true,
		Message:     "Emergency received and forwarded successfully",
		EmergencyID: &rec.ID,
	})
}

type listResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Emergencies []emergency.Record `json:"emergencies"`
	} `json:"data"`
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	resp := listResponse{Success: true}
	resp.Data.Emergencies = s.relay.List()
	if resp.Data.Emergencies == nil {
		resp.Data.Emergencies = []emergency.Record{}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	id := emergency.ID(r.PathValue("id"))

	_, err := s.relay.Acknowledge(id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Emergency not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, apiResponse{Success: true, Message: "Emergency acknowledged"})
}

type healthResponse struct {
	Status         string    `json:"status"`
	Timestamp      time.Time `json:"timestamp"`
	EmergencyCount int       `json:"emergencyCount"`
	Subscribers    int       `json:"subscribers"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:         "healthy",
		Timestamp:      time.Now().UTC(),
		EmergencyCount: s.relay.Count(),
		Subscribers:    s.relay.Subscribers(),
	})
}
