package voice

import (
	"context"

	"github.com/ashureev/lingua-lessons/internal/speech"
)

// remoteCapture drives the browser's recognizer. Results come back as
// capture.* frames.
type remoteCapture struct{ c *lessonConn }

func (r remoteCapture) Start(ctx context.Context, opts speech.CaptureOptions) error {
	return r.c.send(ctx, outbound{Type: frameCaptureStart, Capture: &opts})
}

func (r remoteCapture) Stop() error {
	return r.c.send(r.c.ctx, outbound{Type: frameCaptureStop})
}

// remoteSynth drives the browser's speech synthesis. Lifecycle signals
// come back as playback.* frames carrying the utterance id.
type remoteSynth struct{ c *lessonConn }

func (r remoteSynth) Speak(ctx context.Context, id speech.UtteranceID, text string, opts speech.VoiceOptions) error {
	return r.c.send(ctx, outbound{Type: frameSynthSpeak, Utterance: uint64(id), Text: text, Voice: &opts})
}

func (r remoteSynth) Pause() error {
	return r.c.send(r.c.ctx, outbound{Type: frameSynthPause})
}

func (r remoteSynth) Resume() error {
	return r.c.send(r.c.ctx, outbound{Type: frameSynthResume})
}

func (r remoteSynth) Cancel() error {
	return r.c.send(r.c.ctx, outbound{Type: frameSynthCancel})
}
