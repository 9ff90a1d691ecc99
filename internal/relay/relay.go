// Package relay composes the record store and subscriber registry into the
// ingest/list/acknowledge/subscribe surface of the dispatch relay.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stratagem/dispatchd/internal/emergency"
	"github.com/stratagem/dispatchd/internal/store"
	"github.com/stratagem/dispatchd/internal/stream"
)

// ErrInvalidFormat is returned for ingest payloads that do not carry at
// least one emergency record under data.emergencies.
var ErrInvalidFormat = errors.New("invalid dispatch payload format")

// Event type names on the streaming contract.
const (
	EventConnected    = "connected"
	EventNewEmergency = "new-emergency"
)

// DispatchPayload is the ingest envelope produced by the dispatch backend.
type DispatchPayload struct {
	Success bool `json:"success"`
	Data    struct {
		Emergencies []emergency.Record `json:"emergencies"`
	} `json:"data"`
}

// Forwarder is the best-effort secondary downstream consumer.
type Forwarder interface {
	Forward(ctx context.Context, rec emergency.Record) error
}

// Archiver mirrors the in-memory state into a non-authoritative trail.
type Archiver interface {
	Insert(rec emergency.Record) error
	UpdateStatus(id emergency.ID, status emergency.Status, updatedAt time.Time) error
}

// Service owns the relay state. Construct with New at process start and
// share across request handlers; there are no ambient globals.
type Service struct {
	store *store.Store
	subs  *stream.Registry

	forwarder      Forwarder // nil disables forwarding
	archiver       Archiver  // nil disables the trail
	forwardTimeout time.Duration
}

// Option configures optional collaborators on a Service.
type Option func(*Service)

// WithForwarder attaches a best-effort downstream forwarder.
func WithForwarder(f Forwarder, timeout time.Duration) Option {
	return func(s *Service) {
		s.forwarder = f
		s.forwardTimeout = timeout
	}
}

// WithArchiver attaches a best-effort record trail.
func WithArchiver(a Archiver) Option {
	return func(s *Service) {
		s.archiver = a
	}
}

// New creates a Service around the given store and registry.
func New(st *store.Store, subs *stream.Registry, opts ...Option) *Service {
	s := &Service{
		store:          st,
		subs:           subs,
		forwardTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ingest validates a dispatch payload, stores its first record, and fans
// the record out to every connected subscriber. Only the first record of a
// batch is processed; the remainder is dropped by contract with the
// producer. The returned record is the stored copy.
func (s *Service) Ingest(ctx context.Context, p DispatchPayload) (emergency.Record, error) {
	if len(p.Data.Emergencies) == 0 {
		return emergency.Record{}, fmt.Errorf("%w: data.emergencies missing or empty", ErrInvalidFormat)
	}

	rec := p.Data.Emergencies[0]
	if rec.ID == "" {
		return emergency.Record{}, fmt.Errorf("%w: record has no id", ErrInvalidFormat)
	}
	if rec.Status == "" {
		rec.Status = emergency.StatusActive
	}
	if dropped := len(p.Data.Emergencies) - 1; dropped > 0 {
		slog.Debug("ignoring extra records in batch", "dropped", dropped)
	}

	stored, err := s.store.Append(rec)
	if err != nil {
		return emergency.Record{}, err
	}

	slog.Info("emergency ingested",
		"id", stored.ID,
		"priority", stored.Priority,
		"severity", stored.Severity,
	)

	s.subs.Broadcast(stream.Event{Type: EventNewEmergency, Data: stored})

	// Side calls run detached from the request's cancellation so a slow
	// downstream or archive cannot hold up the ingest response.
	go s.sideEffects(context.WithoutCancel(ctx), stored)

	return stored, nil
}

func (s *Service) sideEffects(ctx context.Context, rec emergency.Record) {
	if s.archiver != nil {
		if err := s.archiver.Insert(rec); err != nil {
			slog.Warn("archive insert failed", "id", rec.ID, "error", err)
		}
	}

	if s.forwarder != nil {
		ctx, cancel := context.WithTimeout(ctx, s.forwardTimeout)
		defer cancel()
		if err := s.forwarder.Forward(ctx, rec); err != nil {
			slog.Warn("downstream forward failed", "id", rec.ID, "error", err)
		}
	}
}

// List returns the full current snapshot in insertion order.
func (s *Service) List() []emergency.Record {
	return s.store.Snapshot()
}

// Acknowledge moves a record to responding. Acknowledging an already
// responding record succeeds again without further effect. Returns
// store.ErrNotFound for unknown ids. Acknowledgements are not broadcast;
// pollers pick up the change on their next List.
func (s *Service) Acknowledge(id emergency.ID) (emergency.Record, error) {
	rec, err := s.store.UpdateStatus(id, emergency.StatusResponding)
	if err != nil {
		return emergency.Record{}, err
	}

	slog.Info("emergency acknowledged", "id", id)

	if s.archiver != nil {
		if err := s.archiver.UpdateStatus(id, rec.Status, rec.UpdatedAt); err != nil {
			slog.Warn("archive status update failed", "id", id, "error", err)
		}
	}

	return rec, nil
}

// Subscribe registers a new streaming sink and queues the connected frame
// on it. The caller owns the sink's transport lifetime and must call
// Unsubscribe when the connection closes.
func (s *Service) Subscribe() (*stream.Sink, error) {
	sink := s.subs.Register()

	frame, err := stream.Event{Type: EventConnected, ClientID: sink.ID()}.Encode()
	if err != nil {
		s.subs.Unregister(sink.ID())
		return nil, fmt.Errorf("encoding connected event: %w", err)
	}
	if err := sink.Send(frame); err != nil {
		s.subs.Unregister(sink.ID())
		return nil, fmt.Errorf("sending connected event: %w", err)
	}

	return sink, nil
}

// Unsubscribe removes a sink. Idempotent.
func (s *Service) Unsubscribe(sink *stream.Sink) {
	s.subs.Unregister(sink.ID())
}

// Subscribers returns the number of currently-connected sinks.
func (s *Service) Subscribers() int {
	return s.subs.Len()
}

// Count returns the number of stored records.
func (s *Service) Count() int {
	return s.store.Len()
}
