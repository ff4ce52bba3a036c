package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantText  string
		completed bool
	}{
		{
			name:      "marker at end",
			raw:       "Great job! You did very well today. \"status\":\"completed\"",
			wantText:  "Great job! You did very well today.",
			completed: true,
		},
		{
			name:      "case insensitive",
			raw:       "Well done. \"STATUS\":\"Completed\"  ",
			wantText:  "Well done.",
			completed: true,
		},
		{
			name:      "no marker keeps text untouched",
			raw:       "  What did you eat for breakfast?  ",
			wantText:  "  What did you eat for breakfast?  ",
			completed: false,
		},
		{
			name:      "multiple markers",
			raw:       "\"status\":\"completed\" Bye! \"status\":\"completed\"",
			wantText:  "Bye!",
			completed: true,
		},
		{
			name:      "nested marker",
			raw:       "Done \"status\":\"comp\"status\":\"completed\"leted\"",
			wantText:  "Done",
			completed: true,
		},
		{
			name:      "partial marker",
			raw:       "status: completed? \"status\":\"complete\"",
			wantText:  "status: completed? \"status\":\"complete\"",
			completed: false,
		},
		{
			name:      "marker alone in json object",
			raw:       "{\"status\":\"completed\"}",
			wantText:  ClosingMessage,
			completed: true,
		},
		{
			name:      "text before json object",
			raw:       "Great job! { \"status\":\"completed\" }",
			wantText:  "Great job!",
			completed: true,
		},
		{
			name:      "fenced json object",
			raw:       "See you tomorrow.\n```json\n{\"status\":\"completed\"}\n```",
			wantText:  "See you tomorrow.",
			completed: true,
		},
		{
			name:      "braces without marker are kept",
			raw:       "Use {} for an empty set.",
			wantText:  "Use {} for an empty set.",
			completed: false,
		},
		{
			name:     "empty",
			raw:      "",
			wantText: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Detect(tt.raw)
			assert.Equal(t, tt.wantText, got.Text)
			assert.Equal(t, tt.completed, got.Completed)
		})
	}
}

func TestDetectIsIdempotent(t *testing.T) {
	inputs := []string{
		"Great job! \"status\":\"completed\"",
		"\"status\":\"completed\"\"status\":\"completed\"",
		"no marker here",
		"{\"status\":\"completed\"}",
		"Bye {\"status\":\"completed\"} {}",
		"\x00\xff weird bytes \"Status\":\"COMPLETED\"",
		strings.Repeat("\"status\":\"", 50),
	}
	for _, in := range inputs {
		first := Detect(in)
		second := Detect(first.Text)
		assert.Equal(t, first.Text, second.Text, "input %q", in)
		assert.False(t, second.Completed, "input %q", in)
	}
}
