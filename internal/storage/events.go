package storage

import "time"

// EventWriter records tool invocations.
// Write() must NEVER block the caller.
type EventWriter interface {
	Write(event *QueryEvent)
	Close()
}

// QueryEvent is one tool invocation to be persisted.
type QueryEvent struct {
	RequestID   string
	ProjectID   string
	Timestamp   time.Time
	ToolName    string
	Fragment    string
	Outcome     string // "report", "not_found", "invalid", "resolve_error", "serialize_error"
	MatchedIDs  []string
	Succeeded   uint32
	Failed      uint32
	OutputBytes uint32
	LatencyMs   float32
	Source      string // "http" or "cli"
}

// FragmentPreviewLength caps the stored fragment.
const FragmentPreviewLength = 200

// TruncateFragment returns at most maxLen runes of s without splitting a
// multi-byte character.
func TruncateFragment(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen])
}
