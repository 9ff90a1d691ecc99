package watcher

import (
	"context"
	"strings"
	"testing"
	"time"
)

func collect(t *testing.T, ch <-chan string, n int) []string {
	t.Helper()
	var out []string
	deadline := time.After(5 * time.Second)
	for len(out) < n {
		select {
		case line, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, line)
		case <-deadline:
			t.Fatalf("timed out after %d of %d lines", len(out), n)
		}
	}
	return out
}

func TestReaderSourceDeliversLinesInOrder(t *testing.T) {
	src := NewReaderSource(strings.NewReader("one\ntwo\nthree\n"))

	ch, err := src.Lines(context.Background())
	if err != nil {
		t.Fatalf("Lines: %v", err)
	}

	lines := collect(t, ch, 3)
	want := []string{"one", "two", "three"}
	for i, w := range want {
		if lines[i] != w {
			t.Errorf("line[%d] = %q, want %q", i, lines[i], w)
		}
	}

	// Channel closes at EOF.
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after EOF")
	}
}

func TestReaderSourceStop(t *testing.T) {
	// A reader that never ends; Stop must terminate the stream.
	pr := strings.NewReader("first\n")
	src := NewReaderSource(pr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := src.Lines(ctx)
	if err != nil {
		t.Fatalf("Lines: %v", err)
	}

	lines := collect(t, ch, 1)
	if lines[0] != "first" {
		t.Errorf("line = %q", lines[0])
	}
	src.Stop()
}

func TestPipeSourceRunsCommand(t *testing.T) {
	src := NewPipeSource("sh", "-c", "printf 'a\\nb\\n'")

	ch, err := src.Lines(context.Background())
	if err != nil {
		t.Fatalf("Lines: %v", err)
	}

	lines := collect(t, ch, 2)
	if lines[0] != "a" || lines[1] != "b" {
		t.Errorf("lines = %v", lines)
	}
}

func TestPipeSourceBadCommand(t *testing.T) {
	src := NewPipeSource("definitely-not-a-real-command-xyz")
	if _, err := src.Lines(context.Background()); err == nil {
		t.Fatal("expected error starting missing command")
	}
}

type fakeSource struct {
	lines []string
}

func (f *fakeSource) Lines(ctx context.Context) (<-chan string, error) {
	ch := make(chan string, len(f.lines))
	for _, l := range f.lines {
		ch <- l
	}
	close(ch)
	return ch, nil
}

func (f *fakeSource) Stop() {}

func TestSupervisedSourceRestarts(t *testing.T) {
	starts := 0
	sup := NewSupervisedSource(func() LineSource {
		starts++
		return &fakeSource{lines: []string{"line"}}
	}, 10*time.Millisecond, 2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := sup.Lines(ctx)
	if err != nil {
		t.Fatalf("Lines: %v", err)
	}

	// Two restarts allowed, each fake source emits one line then ends.
	lines := collect(t, ch, 2)
	if len(lines) != 2 {
		t.Fatalf("got %d lines", len(lines))
	}

	// Channel closes once max restarts is hit.
	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected closed channel after max restarts")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("channel never closed")
	}

	if starts != 2 {
		t.Errorf("source started %d times, want 2", starts)
	}
}
