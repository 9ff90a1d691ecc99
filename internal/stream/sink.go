// Package stream implements fan-out of relay events to live subscribers.
package stream

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrSinkClosed is returned by Send after a sink has been closed.
var ErrSinkClosed = errors.New("sink closed")

// ErrSinkFull is returned by Send when the sink's buffer is full. The
// registry treats it like any other write failure and drops the sink.
var ErrSinkFull = errors.New("sink buffer full")

// Event is a single frame pushed to subscribers. Frames are serialized once
// per broadcast, not once per sink.
type Event struct {
	Type     string `json:"type"`
	ClientID string `json:"clientId,omitempty"`
	Data     any    `json:"data,omitempty"`
}

// Encode serializes the event to its wire form.
func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Sink is one subscriber's delivery queue. The transport handler drains
// Frames and writes them to the connection; the registry only ever calls
// Send. A closed sink rejects further sends but never panics.
type Sink struct {
	id     string
	frames chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

const sinkBuffer = 32

// NewSink creates a sink with a fresh client id.
func NewSink() *Sink {
	return &Sink{
		id:     uuid.NewString(),
		frames: make(chan []byte, sinkBuffer),
		done:   make(chan struct{}),
	}
}

// ID returns the sink's connection id, shared with the client in the
// connected frame.
func (s *Sink) ID() string { return s.id }

// Frames is the channel the owning transport drains.
func (s *Sink) Frames() <-chan []byte { return s.frames }

// Done is closed when the sink is closed.
func (s *Sink) Done() <-chan struct{} { return s.done }

// Send queues a frame for delivery. It fails fast instead of blocking: a
// subscriber that cannot keep up is treated as dead.
func (s *Sink) Send(frame []byte) error {
	select {
	case <-s.done:
		return ErrSinkClosed
	default:
	}

	select {
	case s.frames <- frame:
		return nil
	case <-s.done:
		return ErrSinkClosed
	default:
		return ErrSinkFull
	}
}

// Close marks the sink closed. Safe to call more than once. The frames
// channel is never closed so a concurrent Send cannot panic.
func (s *Sink) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}
