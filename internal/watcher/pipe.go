package watcher

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
)

// PipeSource implements LineSource by spawning the backend command and
// scanning its stdout line by line.
type PipeSource struct {
	command string
	args    []string

	mu     sync.Mutex
	cmd    *exec.Cmd
	cancel context.CancelFunc
}

// NewPipeSource creates a PipeSource for the given command.
func NewPipeSource(command string, args ...string) *PipeSource {
	return &PipeSource{command: command, args: args}
}

func (p *PipeSource) Lines(ctx context.Context) (<-chan string, error) {
	ctx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()

	cmd := exec.CommandContext(ctx, p.command, p.args...)
	p.mu.Lock()
	p.cmd = cmd
	p.mu.Unlock()

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("starting %s: %w", p.command, err)
	}

	ch := make(chan string, 64)

	go func() {
		defer close(ch)
		defer func() {
			_ = cmd.Wait()
		}()
		scanLines(ctx, stdout, ch)
	}()

	slog.Info("log stream watcher started", "command", p.command)
	return ch, nil
}

func (p *PipeSource) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
	}
}

// ReaderSource implements LineSource over an arbitrary reader, typically
// stdin when the backend's output is piped in directly.
type ReaderSource struct {
	r      io.Reader
	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewReaderSource creates a ReaderSource.
func NewReaderSource(r io.Reader) *ReaderSource {
	return &ReaderSource{r: r}
}

func (s *ReaderSource) Lines(ctx context.Context) (<-chan string, error) {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	ch := make(chan string, 64)
	go func() {
		defer close(ch)
		scanLines(ctx, s.r, ch)
	}()
	return ch, nil
}

func (s *ReaderSource) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

// scanLines pumps newline-delimited text into ch until EOF or cancel.
func scanLines(ctx context.Context, r io.Reader, ch chan<- string) {
	scanner := bufio.NewScanner(r)
	// Report blocks can carry long lines; allow up to 1MB.
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		select {
		case ch <- scanner.Text():
		case <-ctx.Done():
			return
		}
	}

	if err := scanner.Err(); err != nil {
		slog.Warn("log stream scanner error", "error", err)
	}
}
