package prompt

import (
	"regexp"
	"strings"
)

// CompletionMarker is the token the model appends when a lesson is done.
const CompletionMarker = `"status":"completed"`

// ClosingMessage replaces a completed reply that held nothing but the
// marker.
const ClosingMessage = "Great work today! This lesson is complete."

var (
	markerPattern = regexp.MustCompile(`(?i)` + regexp.QuoteMeta(CompletionMarker))
	// JSON shells left behind once the marker is removed: {} or {,} and an
	// empty fenced block.
	emptyWrapperPattern = regexp.MustCompile("(?i)\\{\\s*,?\\s*\\}|```(?:json)?\\s*```")
)

// Detection is the result of scanning a model reply for the marker.
type Detection struct {
	Text      string
	Completed bool
}

// Detect strips every case-insensitive occurrence of CompletionMarker from
// raw, along with the empty JSON wrapper it sat in, and trims the result.
// Without a marker raw is returned unchanged. Removal repeats until no
// marker is left, so Detect(Detect(x).Text) never reports completion. A
// reply that was only the marker becomes ClosingMessage.
func Detect(raw string) Detection {
	if !markerPattern.MatchString(raw) {
		return Detection{Text: raw}
	}
	text := raw
	for markerPattern.MatchString(text) {
		text = markerPattern.ReplaceAllLiteralString(text, "")
	}
	for emptyWrapperPattern.MatchString(text) {
		text = emptyWrapperPattern.ReplaceAllLiteralString(text, "")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		text = ClosingMessage
	}
	return Detection{Text: text, Completed: true}
}
