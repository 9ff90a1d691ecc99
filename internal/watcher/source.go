// Package watcher provides line sources for the orchestration backend's
// log stream: a subprocess pipe, a plain reader, and a supervised wrapper
// that restarts a source on failure.
package watcher

import (
	"context"
)

// LineSource is the interface for receiving raw log lines.
// Implementations include the backend subprocess pipe, a reader (stdin),
// and test fakes.
type LineSource interface {
	// Lines returns a channel of raw lines in stream order. The channel
	// is closed when the source ends or the context is cancelled.
	Lines(ctx context.Context) (<-chan string, error)

	// Stop signals the source to shut down.
	Stop()
}
