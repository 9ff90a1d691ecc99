package classifier

import (
	"testing"
)

// feed runs a line sequence through a session and collects emitted events.
func feed(s *Session, lines ...string) []*Event {
	var out []*Event
	for _, line := range lines {
		if ev := s.Next(line); ev != nil {
			out = append(out, ev)
		}
	}
	return out
}

func TestClassifySingleLines(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		wantNil bool
		kind    Kind
		text    string
		agent   string
		node    string
	}{
		{
			name: "user turn strips marker",
			line: "You: send an ambulance to 5th street",
			kind: KindUserTurn,
			text: "send an ambulance to 5th street",
		},
		{
			name:  "medical agent turn",
			line:  "Medical Agent: Keep the patient still and warm.",
			kind:  KindAgentTurn,
			agent: "Medical Agent",
			text:  "Keep the patient still and warm.",
		},
		{
			name:  "routing agent turn",
			line:  "Routing Agent: Transferring you now.",
			kind:  KindAgentTurn,
			agent: "Routing Agent",
			text:  "Transferring you now.",
		},
		{
			name:    "unknown agent name not matched",
			line:    "Weather Agent: Rain expected.",
			wantNil: true,
		},
		{
			name:  "agent transition",
			line:  "🔄 Current Agent: Disaster Agent",
			kind:  KindAgentTransition,
			agent: "Disaster Agent",
		},
		{
			name: "v-node pulse",
			line: "[V-Node] heartbeat ok",
			kind: KindNodePulse,
			node: "V-Node",
		},
		{
			name: "relay node pulse",
			line: "[Relay-Node] forwarding packet",
			kind: KindNodePulse,
			node: "Relay-Node",
		},
		{
			name: "c-node pulse",
			line: "[C-Node] ack",
			kind: KindNodePulse,
			node: "C-Node",
		},
		{
			name: "checkmark system note",
			line: "✅ Emergency dispatched to react app",
			kind: KindSystemNote,
		},
		{
			name: "forwarding system note",
			line: "Forwarding to bridge server...",
			kind: KindSystemNote,
		},
		{
			name: "session summary system note",
			line: "📊 SESSION SUMMARY",
			kind: KindSystemNote,
		},
		{
			name:    "blank line suppressed",
			line:    "   ",
			wantNil: true,
		},
		{
			name:    "dashed separator suppressed",
			line:    "----------------",
			wantNil: true,
		},
		{
			name:    "equals separator suppressed",
			line:    "====================",
			wantNil: true,
		},
		{
			name:    "unmatched line dropped by default",
			line:    "initializing vector store",
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, _ := Classify(tt.line, State{})

			if tt.wantNil {
				if ev != nil {
					t.Fatalf("expected no event, got %+v", ev)
				}
				return
			}
			if ev == nil {
				t.Fatal("expected event, got nil")
			}
			if ev.Kind != tt.kind {
				t.Errorf("kind = %q, want %q", ev.Kind, tt.kind)
			}
			if tt.text != "" && ev.Text != tt.text {
				t.Errorf("text = %q, want %q", ev.Text, tt.text)
			}
			if tt.agent != "" && ev.Agent != tt.agent {
				t.Errorf("agent = %q, want %q", ev.Agent, tt.agent)
			}
			if tt.node != "" && ev.Node != tt.node {
				t.Errorf("node = %q, want %q", ev.Node, tt.node)
			}
		})
	}
}

func TestReportBlockSequence(t *testing.T) {
	s := NewSession(false)

	events := feed(s,
		"DISPATCH REPORT: Unit 7 dispatched",
		"Severity: 8",
		"======",
		"You: thanks",
	)

	want := []Kind{KindReportStart, KindReportLine, KindUserTurn}
	if len(events) != len(want) {
		t.Fatalf("got %d events %+v, want %d", len(events), events, len(want))
	}
	for i, k := range want {
		if events[i].Kind != k {
			t.Errorf("event[%d].Kind = %q, want %q", i, events[i].Kind, k)
		}
	}

	// Lines inside the block bypass normal pattern matching entirely.
	if events[1].Text != "Severity: 8" {
		t.Errorf("report line text = %q", events[1].Text)
	}
	// The delimiter itself emitted nothing, and the block is closed.
	if events[2].Text != "thanks" {
		t.Errorf("user turn after block = %q", events[2].Text)
	}
	if s.State().InsideReport {
		t.Error("InsideReport still set after delimiter")
	}
}

func TestReportBlockSwallowsMarkers(t *testing.T) {
	s := NewSession(false)

	events := feed(s,
		"DISPATCH REPORT: structure fire",
		"You: this is report body, not a user turn",
	)

	if len(events) != 2 {
		t.Fatalf("got %d events", len(events))
	}
	if events[1].Kind != KindReportLine {
		t.Errorf("line inside block classified as %q, want report-line", events[1].Kind)
	}
}

func TestSessionEndSentinel(t *testing.T) {
	s := NewSession(false)

	// End the session while a report block is open.
	events := feed(s,
		"DISPATCH REPORT: ongoing",
		"---END_OF_SESSION---",
	)

	if len(events) != 2 {
		t.Fatalf("got %d events %+v", len(events), events)
	}
	if events[1].Kind != KindSessionEnded {
		t.Fatalf("sentinel classified as %q", events[1].Kind)
	}

	// State is reset: a subsequent line is classified under a fresh
	// session, not as a residual report line.
	ev := s.Next("You: hello again")
	if ev == nil || ev.Kind != KindUserTurn {
		t.Errorf("line after sentinel = %+v, want user-turn", ev)
	}
	if s.State() != (State{}) {
		t.Errorf("state after sentinel = %+v, want zero state", s.State())
	}
}

func TestSentinelBeatsDashPrefix(t *testing.T) {
	// The sentinel starts with "---" but must not be suppressed as a
	// structural separator.
	ev, _ := Classify("---END_OF_SESSION---", State{})
	if ev == nil || ev.Kind != KindSessionEnded {
		t.Fatalf("sentinel = %+v", ev)
	}
}

func TestAgentTransitionUpdatesState(t *testing.T) {
	s := NewSession(false)

	s.Next("🔄 Current Agent: Routing Agent")
	if s.State().CurrentAgent != "Routing Agent" {
		t.Errorf("CurrentAgent = %q", s.State().CurrentAgent)
	}

	s.Next("🔄 Current Agent: Crime Agent")
	if s.State().CurrentAgent != "Crime Agent" {
		t.Errorf("CurrentAgent after second transition = %q", s.State().CurrentAgent)
	}
}

func TestVerboseSurfacesUnmatchedLines(t *testing.T) {
	s := NewSession(true)

	ev := s.Next("initializing vector store")
	if ev == nil || ev.Kind != KindSystemNote {
		t.Fatalf("verbose unmatched line = %+v, want system-note", ev)
	}

	// Structural lines stay hidden even in verbose mode.
	if ev := s.Next("-----------"); ev != nil {
		t.Errorf("separator surfaced in verbose mode: %+v", ev)
	}
	if ev := s.Next(""); ev != nil {
		t.Errorf("blank surfaced in verbose mode: %+v", ev)
	}
}

func TestClassifyIsRestartable(t *testing.T) {
	// Same line, different carried state, different outcome.
	line := "Severity: 8"

	ev, _ := Classify(line, State{})
	if ev != nil {
		t.Fatalf("outside block: %+v, want nil", ev)
	}

	ev, _ = Classify(line, State{InsideReport: true})
	if ev == nil || ev.Kind != KindReportLine {
		t.Fatalf("inside block: %+v, want report-line", ev)
	}
}
