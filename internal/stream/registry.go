package stream

import (
	"log/slog"
	"sync"
)

// Registry is the set of currently-connected sinks. Register/Unregister/
// Broadcast are all safe to call concurrently; a failed write to one sink
// removes that sink without disturbing the rest.
type Registry struct {
	mu    sync.Mutex
	sinks map[string]*Sink
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{sinks: make(map[string]*Sink)}
}

// Register creates a new sink and adds it to the set.
func (r *Registry) Register() *Sink {
	s := NewSink()
	r.mu.Lock()
	r.sinks[s.id] = s
	r.mu.Unlock()

	slog.Debug("subscriber registered", "client_id", s.id)
	return s
}

// Unregister removes and closes a sink. Calling it again for the same id
// is a no-op.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	s, ok := r.sinks[id]
	if ok {
		delete(r.sinks, id)
	}
	r.mu.Unlock()

	if ok {
		s.Close()
		slog.Debug("subscriber unregistered", "client_id", id)
	}
}

// Len returns the number of registered sinks.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sinks)
}

// Broadcast serializes the event once and delivers it to every registered
// sink. Sinks whose write fails are unregistered on the spot; delivery to
// the remaining sinks continues. Sinks registered mid-broadcast may miss
// this event.
func (r *Registry) Broadcast(ev Event) {
	frame, err := ev.Encode()
	if err != nil {
		slog.Error("dropping unencodable event", "type", ev.Type, "error", err)
		return
	}

	// Iterate over a stable snapshot so Unregister during delivery cannot
	// corrupt the set.
	r.mu.Lock()
	sinks := make([]*Sink, 0, len(r.sinks))
	for _, s := range r.sinks {
		sinks = append(sinks, s)
	}
	r.mu.Unlock()

	for _, s := range sinks {
		if err := s.Send(frame); err != nil {
			slog.Warn("dropping subscriber after failed write",
				"client_id", s.id,
				"error", err,
			)
			r.Unregister(s.id)
		}
	}
}
