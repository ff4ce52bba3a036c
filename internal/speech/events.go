package speech

import "time"

// Kind identifies an event fed to the coordinator.
type Kind string

// Event is a command or engine signal processed by the coordinator loop.
type Event interface {
	Kind() Kind
	Timestamp() time.Time
}

// Base carries the fields shared by every event.
type Base struct {
	kind      Kind
	timestamp time.Time
}

// NewBase stamps an event of kind with the current time.
func NewBase(kind Kind) Base {
	return Base{kind: kind, timestamp: time.Now()}
}

// Kind returns the event kind.
func (b Base) Kind() Kind { return b.kind }

// Timestamp returns when the event was created.
func (b Base) Timestamp() time.Time { return b.timestamp }

const (
	KindListenRequested Kind = "input.start"
	KindStopRequested   Kind = "input.stop"

	KindCaptureInterim Kind = "capture.interim"
	KindCaptureEnded   Kind = "capture.ended"
	KindCaptureError   Kind = "capture.error"

	KindSpeakRequested  Kind = "playback.requested"
	KindCancelRequested Kind = "playback.cancel_requested"
	KindPauseRequested  Kind = "playback.pause_requested"
	KindResumeRequested Kind = "playback.resume_requested"

	KindPlaybackStarted Kind = "playback.started"
	KindPlaybackPaused  Kind = "playback.paused"
	KindPlaybackResumed Kind = "playback.resumed"
	KindPlaybackEnded   Kind = "playback.ended"
	KindPlaybackError   Kind = "playback.error"

	KindHostHidden  Kind = "host.visibility_hidden"
	KindHostVisible Kind = "host.visibility_visible"
)

// UtteranceID correlates playback signals with the Speak call that
// started them.
type UtteranceID uint64

// ListenRequested asks capture to start.
type ListenRequested struct{ Base }

func NewListenRequested() ListenRequested {
	return ListenRequested{Base: NewBase(KindListenRequested)}
}

// StopRequested asks capture to stop and finalize the buffered text.
type StopRequested struct{ Base }

func NewStopRequested() StopRequested {
	return StopRequested{Base: NewBase(KindStopRequested)}
}

// CaptureInterim carries the latest interim transcript.
type CaptureInterim struct {
	Base
	Text string
}

func NewCaptureInterim(text string) CaptureInterim {
	return CaptureInterim{Base: NewBase(KindCaptureInterim), Text: text}
}

// CaptureEnded reports that the capture stream stopped on its own.
type CaptureEnded struct{ Base }

func NewCaptureEnded() CaptureEnded {
	return CaptureEnded{Base: NewBase(KindCaptureEnded)}
}

// CaptureError reports a capture engine failure, including a failed
// start or restart.
type CaptureError struct {
	Base
	Err error
}

func NewCaptureError(err error) CaptureError {
	return CaptureError{Base: NewBase(KindCaptureError), Err: err}
}

// SpeakRequested starts a new utterance, replacing any active one.
type SpeakRequested struct {
	Base
	Utterance UtteranceID
	Text      string
	Options   VoiceOptions
}

func NewSpeakRequested(id UtteranceID, text string, opts VoiceOptions) SpeakRequested {
	return SpeakRequested{Base: NewBase(KindSpeakRequested), Utterance: id, Text: text, Options: opts}
}

// CancelRequested stops Utterance if it is still the active one. A zero
// Utterance stops whatever is active.
type CancelRequested struct {
	Base
	Utterance UtteranceID
}

func NewCancelRequested(id UtteranceID) CancelRequested {
	return CancelRequested{Base: NewBase(KindCancelRequested), Utterance: id}
}

// PauseRequested pauses the active utterance.
type PauseRequested struct{ Base }

func NewPauseRequested() PauseRequested {
	return PauseRequested{Base: NewBase(KindPauseRequested)}
}

// ResumeRequested resumes a paused utterance.
type ResumeRequested struct{ Base }

func NewResumeRequested() ResumeRequested {
	return ResumeRequested{Base: NewBase(KindResumeRequested)}
}

// PlaybackSignal is an engine notification about one utterance.
type PlaybackSignal struct {
	Base
	Utterance UtteranceID
	// Cause is set for KindPlaybackError.
	Cause string
	Err   error
}

// NewPlaybackSignal creates a playback signal of kind for id.
func NewPlaybackSignal(kind Kind, id UtteranceID) PlaybackSignal {
	return PlaybackSignal{Base: NewBase(kind), Utterance: id}
}

// NewPlaybackError creates a KindPlaybackError signal.
func NewPlaybackError(id UtteranceID, cause string, err error) PlaybackSignal {
	return PlaybackSignal{Base: NewBase(KindPlaybackError), Utterance: id, Cause: cause, Err: err}
}

// VisibilityChanged reports the host page being hidden or shown.
type VisibilityChanged struct {
	Base
	Hidden bool
}

func NewVisibilityChanged(hidden bool) VisibilityChanged {
	kind := KindHostVisible
	if hidden {
		kind = KindHostHidden
	}
	return VisibilityChanged{Base: NewBase(kind), Hidden: hidden}
}
