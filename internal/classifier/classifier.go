// Package classifier turns free-text log lines from the orchestration
// backend into structured UI events. Classification is first-match-wins and
// depends on a small amount of carried state: whether we are inside a
// multi-line dispatch report, and which agent spoke last.
package classifier

import "strings"

// Kind identifies the type of a classified UI event.
type Kind string

const (
	KindReportStart     Kind = "report-start"
	KindReportLine      Kind = "report-line"
	KindUserTurn        Kind = "user-turn"
	KindAgentTurn       Kind = "agent-turn"
	KindAgentTransition Kind = "agent-transition"
	KindNodePulse       Kind = "node-pulse"
	KindSystemNote      Kind = "system-note"
	KindSessionEnded    Kind = "session-ended"
)

// Event is one structured UI event. Text carries the message body; Agent
// and Node are set only for the kinds that name one.
type Event struct {
	Kind  Kind
	Text  string
	Agent string
	Node  string
}

// State is the carried classifier state. The zero value is the start of a
// fresh session.
type State struct {
	// InsideReport is true while consuming a multi-line dispatch report.
	InsideReport bool
	// CurrentAgent is the last agent named in a transition line, or "".
	CurrentAgent string
}

// Classify maps one line to at most one event and the successor state. The
// same line can classify differently depending on carried state, so lines
// must be fed strictly in order. A nil event means the line is suppressed;
// that is a defined outcome, not an error.
func Classify(line string, st State) (*Event, State) {
	line = strings.TrimSpace(line)

	// The end-of-session sentinel short-circuits everything, including an
	// open report block. State resets so a following session starts clean.
	if line == sessionEndMarker {
		return &Event{Kind: KindSessionEnded}, State{}
	}

	if strings.HasPrefix(line, reportHeaderMarker) {
		st.InsideReport = true
		return &Event{Kind: KindReportStart, Text: line}, st
	}

	if st.InsideReport {
		// A delimiter line closes the block and then classifies like any
		// other line; it emits no report event itself.
		if strings.HasPrefix(line, "=") {
			st.InsideReport = false
		} else {
			return &Event{Kind: KindReportLine, Text: line}, st
		}
	}

	if strings.HasPrefix(line, userTurnMarker) {
		text := strings.TrimSpace(line[len(userTurnMarker):])
		return &Event{Kind: KindUserTurn, Text: text}, st
	}

	if m := agentTurnRe.FindStringSubmatch(line); m != nil {
		text := strings.TrimSpace(line[len(m[0]):])
		return &Event{Kind: KindAgentTurn, Agent: m[1] + " Agent", Text: text}, st
	}

	if strings.HasPrefix(line, agentTransitionMarker) {
		name := strings.TrimSpace(line[len(agentTransitionMarker):])
		st.CurrentAgent = name
		return &Event{Kind: KindAgentTransition, Agent: name, Text: line}, st
	}

	for _, nm := range nodeMarkers {
		if strings.HasPrefix(line, nm.prefix) {
			return &Event{Kind: KindNodePulse, Node: nm.node, Text: line}, st
		}
	}

	for _, prefix := range systemNotePrefixes {
		if strings.HasPrefix(line, prefix) {
			return &Event{Kind: KindSystemNote, Text: line}, st
		}
	}

	// Structural separators and anything unrecognized are dropped.
	return nil, st
}

// Session is a stateful wrapper over Classify for consuming a stream. In
// verbose mode, unrecognized lines surface as system notes instead of being
// dropped; structural separators stay hidden either way.
type Session struct {
	st      State
	verbose bool
}

// NewSession creates a Session at the start-of-session state.
func NewSession(verbose bool) *Session {
	return &Session{verbose: verbose}
}

// Next classifies the next line of the stream.
func (s *Session) Next(line string) *Event {
	ev, st := Classify(line, s.st)
	s.st = st

	if ev == nil && s.verbose {
		trimmed := strings.TrimSpace(line)
		if !isStructural(trimmed) {
			return &Event{Kind: KindSystemNote, Text: trimmed}
		}
	}
	return ev
}

// State returns the current carried state.
func (s *Session) State() State {
	return s.st
}
