package speech

// CapturePhase is the capture state machine's position.
type CapturePhase string

// PlaybackPhase is the playback state machine's position.
type PlaybackPhase string

const (
	CaptureIdle      CapturePhase = "idle"
	CaptureListening CapturePhase = "listening"

	PlaybackIdle     PlaybackPhase = "idle"
	PlaybackSpeaking PlaybackPhase = "speaking"
)

// State is the coordinator's full state. The zero value is not valid; use
// InitialState.
type State struct {
	Capture CapturePhase `json:"capture"`
	// Interim is the latest unfinalized transcript.
	Interim string `json:"interim"`
	// Restarted is set once the current listening intent has used its
	// automatic restart.
	Restarted bool `json:"-"`

	Playback PlaybackPhase `json:"playback"`
	Paused   bool          `json:"paused"`
	Active   UtteranceID   `json:"-"`
	Hidden   bool          `json:"hidden"`
}

// InitialState returns both machines idle.
func InitialState() State {
	return State{Capture: CaptureIdle, Playback: PlaybackIdle}
}

// Effect is a side effect requested by Transition.
type Effect interface{ effect() }

type (
	// StartCapture opens the capture stream.
	StartCapture struct{}
	// RestartCapture reopens a stream that ended on its own.
	RestartCapture struct{}
	// StopCapture closes the capture stream.
	StopCapture struct{}
	// Finalize hands the buffered transcript to the caller.
	Finalize struct{ Text string }
	// CaptureFailed surfaces a capture error.
	CaptureFailed struct{ Err error }

	// StartPlayback begins an utterance.
	StartPlayback struct {
		Utterance UtteranceID
		Text      string
		Options   VoiceOptions
	}
	// CancelPlayback stops whatever the engine is saying.
	CancelPlayback struct{}
	// PausePlayback pauses the engine.
	PausePlayback struct{}
	// ResumePlayback resumes the engine.
	ResumePlayback struct{}
	// Resolve completes the Speak call waiting on Utterance.
	Resolve struct {
		Utterance UtteranceID
		Err       error
	}
)

func (StartCapture) effect()   {}
func (RestartCapture) effect() {}
func (StopCapture) effect()    {}
func (Finalize) effect()       {}
func (CaptureFailed) effect()  {}
func (StartPlayback) effect()  {}
func (CancelPlayback) effect() {}
func (PausePlayback) effect()  {}
func (ResumePlayback) effect() {}
func (Resolve) effect()        {}

// Transition applies ev to s. It performs no I/O; the returned effects are
// executed by the coordinator in order. Unknown events and signals for
// stale utterances leave the state unchanged.
func Transition(s State, ev Event) (State, []Effect) {
	switch e := ev.(type) {
	case ListenRequested:
		if s.Capture == CaptureListening {
			return s, nil
		}
		s.Capture = CaptureListening
		s.Interim = ""
		s.Restarted = false
		return s, []Effect{StartCapture{}}

	case CaptureInterim:
		if s.Capture != CaptureListening {
			return s, nil
		}
		s.Interim = e.Text
		// Results after a restart prove it worked; re-arm it.
		s.Restarted = false
		return s, nil

	case StopRequested:
		if s.Capture != CaptureListening {
			return s, nil
		}
		text := s.Interim
		s.Capture = CaptureIdle
		s.Interim = ""
		return s, []Effect{StopCapture{}, Finalize{Text: text}}

	case CaptureEnded:
		if s.Capture != CaptureListening {
			return s, nil
		}
		if !s.Restarted {
			s.Restarted = true
			return s, []Effect{RestartCapture{}}
		}
		return failCapture(s, ErrCaptureEnded)

	case CaptureError:
		if s.Capture != CaptureListening {
			return s, nil
		}
		return failCapture(s, e.Err)

	case SpeakRequested:
		var effects []Effect
		if s.Playback == PlaybackSpeaking {
			effects = append(effects, CancelPlayback{}, Resolve{Utterance: s.Active})
		}
		s.Playback = PlaybackSpeaking
		s.Active = e.Utterance
		s.Paused = false
		return s, append(effects, StartPlayback{Utterance: e.Utterance, Text: e.Text, Options: e.Options})

	case CancelRequested:
		if s.Playback != PlaybackSpeaking {
			return s, nil
		}
		if e.Utterance != 0 && e.Utterance != s.Active {
			return s, nil
		}
		id := s.Active
		s = stopPlayback(s)
		return s, []Effect{CancelPlayback{}, Resolve{Utterance: id}}

	case PauseRequested:
		if s.Playback != PlaybackSpeaking || s.Paused {
			return s, nil
		}
		s.Paused = true
		return s, []Effect{PausePlayback{}}

	case ResumeRequested:
		if s.Playback != PlaybackSpeaking || !s.Paused {
			return s, nil
		}
		s.Paused = false
		return s, []Effect{ResumePlayback{}}

	case VisibilityChanged:
		s.Hidden = e.Hidden
		if s.Playback != PlaybackSpeaking {
			return s, nil
		}
		if e.Hidden && !s.Paused {
			s.Paused = true
			return s, []Effect{PausePlayback{}}
		}
		if !e.Hidden && s.Paused {
			s.Paused = false
			return s, []Effect{ResumePlayback{}}
		}
		return s, nil

	case PlaybackSignal:
		if s.Playback != PlaybackSpeaking || e.Utterance != s.Active {
			return s, nil
		}
		return playbackSignal(s, e)
	}
	return s, nil
}

func playbackSignal(s State, e PlaybackSignal) (State, []Effect) {
	switch e.Kind() {
	case KindPlaybackStarted, KindPlaybackResumed:
		s.Paused = false
		return s, nil
	case KindPlaybackPaused:
		s.Paused = true
		return s, nil
	case KindPlaybackEnded:
		id := s.Active
		return stopPlayback(s), []Effect{Resolve{Utterance: id}}
	case KindPlaybackError:
		id := s.Active
		var err error
		if !benign(e.Cause) {
			err = &PlaybackError{Cause: e.Cause, Err: e.Err}
		}
		return stopPlayback(s), []Effect{Resolve{Utterance: id, Err: err}}
	}
	return s, nil
}

// failCapture forces capture idle. Text buffered so far is still
// finalized so it is not lost.
func failCapture(s State, err error) (State, []Effect) {
	text := s.Interim
	s.Capture = CaptureIdle
	s.Interim = ""
	s.Restarted = false

	effects := []Effect{StopCapture{}}
	if text != "" {
		effects = append(effects, Finalize{Text: text})
	}
	return s, append(effects, CaptureFailed{Err: err})
}

func stopPlayback(s State) State {
	s.Playback = PlaybackIdle
	s.Paused = false
	s.Active = 0
	return s
}
