// Package forward pushes ingested records to a secondary downstream
// consumer. Delivery is best effort: a failure is logged and never affects
// the ingest result, and nothing is retried.
package forward

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/stratagem/dispatchd/internal/emergency"
)

// Forwarder POSTs dispatch payloads to a downstream HTTP endpoint.
type Forwarder struct {
	url    string
	client *http.Client
}

// New creates a Forwarder for the given URL. An empty URL disables
// forwarding; Forward becomes a no-op.
func New(url string, timeout time.Duration) *Forwarder {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Forwarder{
		url: url,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// payload mirrors the ingest envelope so the downstream consumer sees the
// same shape the backend produces.
type payload struct {
	Success bool `json:"success"`
	Data    struct {
		Emergencies []emergency.Record `json:"emergencies"`
	} `json:"data"`
}

// Forward sends one record downstream. The returned error is advisory; the
// relay logs it and moves on.
func (f *Forwarder) Forward(ctx context.Context, rec emergency.Record) error {
	if f.url == "" {
		slog.Debug("forward URL not configured, skipping")
		return nil
	}

	var p payload
	p.Success = true
	p.Data.Emergencies = []emergency.Record{rec}

	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding forward payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating forward request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("forwarding record: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("downstream returned status %d", resp.StatusCode)
	}

	slog.Info("record forwarded downstream", "id", rec.ID, "status", resp.StatusCode)
	return nil
}
