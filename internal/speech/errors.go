package speech

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

var (
	// ErrCaptureUnavailable is returned when no capture engine is present.
	ErrCaptureUnavailable = errors.New("speech recognition is not supported")
	// ErrSynthesisUnavailable is returned when no synthesis engine is present.
	ErrSynthesisUnavailable = errors.New("speech synthesis is not supported")
	// ErrCaptureEnded is surfaced when capture stops again after its restart.
	ErrCaptureEnded = errors.New("speech recognition ended unexpectedly")
	// ErrClosed is returned once the coordinator has shut down.
	ErrClosed = errors.New("speech coordinator closed")
)

// Playback termination causes reported by synthesis engines.
const (
	CauseInterrupted          = "interrupted"
	CauseCanceled             = "canceled"
	CauseNetwork              = "network"
	CauseSynthesisFailed      = "synthesis-failed"
	CauseSynthesisUnavailable = "synthesis-unavailable"
	CauseAudioBusy            = "audio-busy"
	CauseNotAllowed           = "not-allowed"
)

// PlaybackError is a non-benign playback termination.
type PlaybackError struct {
	Cause string
	Err   error
}

func (e *PlaybackError) Error() string {
	switch e.Cause {
	case CauseNetwork:
		return "Network error occurred during speech synthesis."
	case CauseSynthesisFailed:
		return "Speech synthesis failed. Please try again."
	case CauseSynthesisUnavailable:
		return "Speech synthesis is unavailable. Please check your browser settings."
	case CauseAudioBusy:
		return "Audio system is busy. Please wait and try again."
	case CauseNotAllowed:
		return "Speech synthesis not allowed. Please check permissions."
	}
	return fmt.Sprintf("Speech synthesis error: %s", e.Cause)
}

func (e *PlaybackError) Unwrap() error { return e.Err }

// benign reports causes that end playback without an error.
func benign(cause string) bool {
	return cause == CauseInterrupted || cause == CauseCanceled
}

// MaxTextChars bounds text sent for synthesis.
const MaxTextChars = 5000

// ValidateText checks text before synthesis. Messages are shown to users
// verbatim.
//
//nolint:staticcheck // capitalized user-facing messages
func ValidateText(text string) error {
	if text == "" {
		return errors.New("Text is required")
	}
	if utf8.RuneCountInString(text) > MaxTextChars {
		return fmt.Errorf("Text is too long (maximum %d characters)", MaxTextChars)
	}
	return nil
}
