package watcher

import (
	"context"
	"log/slog"
	"time"
)

// SupervisedSource wraps a LineSource with automatic restart on failure.
// The dashboard backend is restarted between sessions, so the watcher has
// to survive its stream ending.
type SupervisedSource struct {
	factory     func() LineSource
	restartWait time.Duration
	maxRestarts int
}

// NewSupervisedSource creates a supervised wrapper around a source factory.
// On source failure, it waits restartWait before creating a new source.
// maxRestarts of 0 means unlimited restarts.
func NewSupervisedSource(factory func() LineSource, restartWait time.Duration, maxRestarts int) *SupervisedSource {
	return &SupervisedSource{
		factory:     factory,
		restartWait: restartWait,
		maxRestarts: maxRestarts,
	}
}

// Lines starts the supervised source loop. It returns a channel that
// receives lines across restarts. The channel is closed when the context
// is cancelled or max restarts are exceeded.
func (s *SupervisedSource) Lines(ctx context.Context) (<-chan string, error) {
	out := make(chan string, 64)

	go func() {
		defer close(out)

		restarts := 0
		for {
			if s.maxRestarts > 0 && restarts >= s.maxRestarts {
				slog.Error("log stream watcher exceeded max restarts", "max", s.maxRestarts)
				return
			}

			source := s.factory()
			lines, err := source.Lines(ctx)
			if err != nil {
				slog.Error("failed to start log stream source", "error", err, "restart_count", restarts)
				select {
				case <-ctx.Done():
					return
				case <-time.After(s.restartWait):
					restarts++
					continue
				}
			}

			slog.Info("log stream source started", "restart_count", restarts)

			// Forward lines until the source channel closes.
			sourceDone := false
			for !sourceDone {
				select {
				case line, ok := <-lines:
					if !ok {
						sourceDone = true
						break
					}
					select {
					case out <- line:
					case <-ctx.Done():
						source.Stop()
						return
					}
				case <-ctx.Done():
					source.Stop()
					return
				}
			}

			slog.Warn("log stream source stopped, restarting", "restart_count", restarts)
			source.Stop()
			restarts++

			select {
			case <-ctx.Done():
				return
			case <-time.After(s.restartWait):
			}
		}
	}()

	return out, nil
}

func (s *SupervisedSource) Stop() {
	// Stopping is handled via context cancellation.
}
