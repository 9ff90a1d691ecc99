package forward

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stratagem/dispatchd/internal/emergency"
)

func TestForwardSendsEnvelope(t *testing.T) {
	var receivedContentType string
	var receivedBody []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedContentType = r.Header.Get("Content-Type")
		receivedBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	f := New(server.URL, 2*time.Second)

	rec := emergency.Record{
		ID:       emergency.ID("7"),
		Title:    "Flooding",
		Priority: emergency.PriorityHigh,
		Status:   emergency.StatusActive,
		Severity: 7,
	}

	if err := f.Forward(context.Background(), rec); err != nil {
		t.Fatalf("Forward() error: %v", err)
	}

	if receivedContentType != "application/json" {
		t.Errorf("content type = %q", receivedContentType)
	}

	var p struct {
		Success bool `json:"success"`
		Data    struct {
			Emergencies []emergency.Record `json:"emergencies"`
		} `json:"data"`
	}
	if err := json.Unmarshal(receivedBody, &p); err != nil {
		t.Fatalf("downstream body not valid JSON: %v", err)
	}
	if !p.Success {
		t.Error("success = false, want true")
	}
	if len(p.Data.Emergencies) != 1 || p.Data.Emergencies[0].ID != emergency.ID("7") {
		t.Errorf("emergencies = %+v", p.Data.Emergencies)
	}
}

func TestForwardDisabledWithoutURL(t *testing.T) {
	f := New("", time.Second)
	if err := f.Forward(context.Background(), emergency.Record{ID: "1"}); err != nil {
		t.Fatalf("disabled forwarder should no-op, got %v", err)
	}
}

func TestForwardReportsDownstreamFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	f := New(server.URL, time.Second)
	if err := f.Forward(context.Background(), emergency.Record{ID: "1"}); err == nil {
		t.Fatal("expected error on 502 response")
	}
}

func TestForwardUnreachableDownstream(t *testing.T) {
	// Closed server: connection refused must come back as an error, not
	// hang past the timeout.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	f := New(url, 500*time.Millisecond)
	if err := f.Forward(context.Background(), emergency.Record{ID: "1"}); err == nil {
		t.Fatal("expected error for unreachable downstream")
	}
}
