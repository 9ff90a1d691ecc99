package classifier

import (
	"regexp"
	"strings"
)

// Line markers emitted by the orchestration backend. These are fixed by the
// backend's output format, not configurable.
const (
	// sessionEndMarker terminates a session; everything after it belongs
	// to a fresh one.
	sessionEndMarker = "---END_OF_SESSION---"

	// reportHeaderMarker opens a multi-line dispatch report block.
	reportHeaderMarker = "DISPATCH REPORT:"

	// userTurnMarker prefixes operator input lines.
	userTurnMarker = "You:"

	// agentTransitionMarker prefixes hand-offs between agents.
	agentTransitionMarker = "🔄 Current Agent:"
)

// agentTurnRe matches a named agent speaking.
// Example: "Medical Agent: Keep the patient warm and still."
var agentTurnRe = regexp.MustCompile(`^(Routing|Medical|Crime|Disaster|Allocator) Agent:`)

// nodeMarkers maps mesh-node line prefixes to node names.
var nodeMarkers = []struct {
	prefix string
	node   string
}{
	{"[V-Node]", "V-Node"},
	{"[Relay-Node]", "Relay-Node"},
	{"[C-Node]", "C-Node"},
}

// systemNotePrefixes mark backend lines that should always be surfaced.
var systemNotePrefixes = []string{
	"✅",
	"Forwarding",
	"📊 SESSION SUMMARY",
}

// isStructural reports whether a line is decoration the renderer hides:
// blank lines, dashed rules, and long runs of equals signs.
func isStructural(line string) bool {
	if line == "" {
		return true
	}
	if strings.HasPrefix(line, "---") {
		return true
	}
	return strings.HasPrefix(line, strings.Repeat("=", 10))
}
