package voice

import (
	"errors"

	"github.com/ashureev/lingua-lessons/internal/domain"
	"github.com/ashureev/lingua-lessons/internal/speech"
)

// Inbound frame types.
const (
	frameInputStart     = "input.start"
	frameInputStop      = "input.stop"
	frameCaptureInterim = "capture.interim"
	frameCaptureEnded   = "capture.ended"
	frameCaptureError   = "capture.error"
	frameHostVisibility = "host.visibility"
	framePlaybackCancel = "playback.cancel"
	framePlaybackPause  = "playback.pause"
	framePlaybackResume = "playback.resume"
	frameTurnSubmit     = "turn.submit"
	frameSettings       = "settings"
	framePing           = "ping"
)

// Outbound frame types. capture.* and synth.* are engine commands.
const (
	frameReady          = "ready"
	framePong           = "pong"
	frameState          = "state"
	frameTranscript     = "transcript.final"
	frameCaptureFailed  = "capture.failed"
	frameCaptureStart   = "capture.start"
	frameCaptureStop    = "capture.stop"
	frameSynthSpeak     = "synth.speak"
	frameSynthPause     = "synth.pause"
	frameSynthResume    = "synth.resume"
	frameSynthCancel    = "synth.cancel"
	frameTurnPending    = "turn.pending"
	frameTurnResult     = "turn.result"
	frameTurnError      = "turn.error"
	framePlaybackFailed = "playback.failed"
	frameError          = "error"
)

// inbound is a message from the browser. Engine signals reuse the
// speech event kinds (playback.started, playback.ended, ...).
type inbound struct {
	Type      string                 `json:"type"`
	Text      string                 `json:"text,omitempty"`
	Utterance uint64                 `json:"utterance,omitempty"`
	Cause     string                 `json:"cause,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Hidden    bool                   `json:"hidden,omitempty"`
	Autoplay  *bool                  `json:"autoplay,omitempty"`
	Capture   *speech.CaptureOptions `json:"capture,omitempty"`
	Voice     *speech.VoiceOptions   `json:"voice,omitempty"`
}

// outbound is a message to the browser.
type outbound struct {
	Type         string                 `json:"type"`
	Utterance    uint64                 `json:"utterance,omitempty"`
	Text         string                 `json:"text,omitempty"`
	LocalID      string                 `json:"localId,omitempty"`
	AIMessage    string                 `json:"aiMessage,omitempty"`
	Status       domain.Status          `json:"status,omitempty"`
	Error        string                 `json:"error,omitempty"`
	Kind         domain.Kind            `json:"kind,omitempty"`
	State        *speech.State          `json:"state,omitempty"`
	Capabilities *speech.Capabilities   `json:"capabilities,omitempty"`
	Capture      *speech.CaptureOptions `json:"capture,omitempty"`
	Voice        *speech.VoiceOptions   `json:"voice,omitempty"`
}

// errorFrame renders err for the client. Turn failures follow the HTTP
// API and hide untyped causes; speech errors are shown as is.
func errorFrame(frameType string, err error) outbound {
	f := outbound{Type: frameType, Kind: domain.KindOf(err), Error: "internal server error"}
	var de *domain.Error
	var pe *speech.PlaybackError
	switch {
	case errors.As(err, &de):
		f.Error = de.Message
	case errors.As(err, &pe):
		f.Error = pe.Error()
	case frameType != frameTurnError:
		f.Error = err.Error()
	}
	return f
}
