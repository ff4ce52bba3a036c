package voice

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ashureev/lingua-lessons/internal/api"
	"github.com/ashureev/lingua-lessons/internal/domain"
	"github.com/ashureev/lingua-lessons/internal/speech"
	"github.com/coder/websocket"
)

const (
	outboundBuffer = 64
	writeTimeout   = 5 * time.Second
)

// lessonConn is one voice lesson: a coordinator driving the browser's
// engines plus the turns submitted over the socket.
type lessonConn struct {
	ctx       context.Context
	ws        *websocket.Conn
	userID    string
	sessionID string
	turns     api.TurnSubmitter

	coord   *speech.Coordinator
	overlay *speech.Overlay
	out     chan outbound

	autoplay atomic.Bool
	turnWG   sync.WaitGroup
}

func newLessonConn(ctx context.Context, ws *websocket.Conn, userID, sessionID string, turns api.TurnSubmitter) *lessonConn {
	c := &lessonConn{
		ctx:       ctx,
		ws:        ws,
		userID:    userID,
		sessionID: sessionID,
		turns:     turns,
		overlay:   speech.NewOverlay(),
		out:       make(chan outbound, outboundBuffer),
	}
	c.autoplay.Store(true)
	c.coord = speech.NewCoordinator(remoteCapture{c}, remoteSynth{c}, speech.Hooks{
		OnFinal: func(text string) {
			_ = c.send(ctx, outbound{Type: frameTranscript, Text: text})
		},
		OnError: func(err error) {
			_ = c.send(ctx, outbound{Type: frameCaptureFailed, Error: err.Error()})
		},
		OnState: func(s speech.State) {
			_ = c.send(ctx, outbound{Type: frameState, State: &s})
		},
	})
	return c
}

// run blocks until the client disconnects or ctx ends.
func (c *lessonConn) run(cancel context.CancelFunc) {
	c.coord.Start(c.ctx)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		defer cancel()
		c.writeLoop()
	}()

	caps := c.coord.Capabilities()
	state := c.coord.State()
	captureOpts := speech.DefaultCaptureOptions()
	voiceOpts := speech.VoiceOptions{}.Normalized()
	_ = c.send(c.ctx, outbound{
		Type:         frameReady,
		Capabilities: &caps,
		State:        &state,
		Capture:      &captureOpts,
		Voice:        &voiceOpts,
	})

	c.readLoop()
	cancel()
	c.coord.Close()
	c.turnWG.Wait()
	<-writerDone
}

func (c *lessonConn) send(ctx context.Context, f outbound) error {
	select {
	case c.out <- f:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *lessonConn) writeLoop() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case f := <-c.out:
			data, err := json.Marshal(f)
			if err != nil {
				slog.Error("Failed to encode frame", "type", f.Type, "error", err)
				continue
			}
			ctx, cancel := context.WithTimeout(c.ctx, writeTimeout)
			err = c.ws.Write(ctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				if c.ctx.Err() == nil {
					slog.Debug("WebSocket write error", "error", err, "user_id", c.userID)
				}
				return
			}
		}
	}
}

//nolint:gocognit // Frame dispatch covers every engine signal and control.
func (c *lessonConn) readLoop() {
	for {
		_, message, err := c.ws.Read(c.ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || c.ctx.Err() != nil {
				slog.Debug("WebSocket closed by client", "user_id", c.userID)
			} else {
				slog.Warn("WebSocket read error", "error", err, "user_id", c.userID)
			}
			return
		}

		var msg inbound
		if err := json.Unmarshal(message, &msg); err != nil {
			_ = c.send(c.ctx, outbound{Type: frameError, Error: "malformed frame"})
			continue
		}

		if err := c.dispatch(msg); err != nil {
			if errors.Is(err, speech.ErrClosed) || c.ctx.Err() != nil {
				return
			}
			slog.Debug("Voice frame rejected", "type", msg.Type, "error", err, "user_id", c.userID)
			_ = c.send(c.ctx, errorFrame(frameError, err))
		}
	}
}

func (c *lessonConn) dispatch(msg inbound) error {
	ctx := c.ctx
	switch msg.Type {
	case frameInputStart:
		return c.coord.StartListening(ctx)
	case frameInputStop:
		text, err := c.coord.StopListening(ctx)
		if err != nil {
			return err
		}
		if text != "" {
			return c.send(ctx, outbound{Type: frameTranscript, Text: text})
		}
		return nil
	case frameCaptureInterim:
		return c.coord.Signal(ctx, speech.NewCaptureInterim(msg.Text))
	case frameCaptureEnded:
		return c.coord.Signal(ctx, speech.NewCaptureEnded())
	case frameCaptureError:
		reason := msg.Error
		if reason == "" {
			reason = "speech recognition error"
		}
		return c.coord.Signal(ctx, speech.NewCaptureError(errors.New(reason)))
	case string(speech.KindPlaybackStarted), string(speech.KindPlaybackPaused),
		string(speech.KindPlaybackResumed), string(speech.KindPlaybackEnded):
		return c.coord.Signal(ctx, speech.NewPlaybackSignal(speech.Kind(msg.Type), speech.UtteranceID(msg.Utterance)))
	case string(speech.KindPlaybackError):
		var cause error
		if msg.Error != "" {
			cause = errors.New(msg.Error)
		}
		return c.coord.Signal(ctx, speech.NewPlaybackError(speech.UtteranceID(msg.Utterance), msg.Cause, cause))
	case framePlaybackCancel:
		return c.coord.Cancel(ctx)
	case framePlaybackPause:
		return c.coord.Pause(ctx)
	case framePlaybackResume:
		return c.coord.Resume(ctx)
	case frameHostVisibility:
		return c.coord.SetVisibility(ctx, msg.Hidden)
	case frameSettings:
		if msg.Autoplay != nil {
			c.autoplay.Store(*msg.Autoplay)
		}
		if msg.Capture != nil {
			c.coord.SetCaptureOptions(*msg.Capture)
		}
		if msg.Voice != nil {
			c.coord.SetVoiceOptions(*msg.Voice)
		}
		return nil
	case frameTurnSubmit:
		c.turnWG.Add(1)
		go func() {
			defer c.turnWG.Done()
			c.submitTurn(ctx, msg.Text)
		}()
		return nil
	case framePing:
		return c.send(ctx, outbound{Type: framePong})
	}
	slog.Debug("Unknown voice frame", "type", msg.Type, "user_id", c.userID)
	return nil
}

// submitTurn finalizes capture, runs the turn and speaks the reply. Typed
// text wins over the spoken transcript.
func (c *lessonConn) submitTurn(ctx context.Context, typed string) {
	spoken, err := c.coord.StopListening(ctx)
	if err != nil {
		slog.Debug("Capture finalize failed", "error", err, "session_id", c.sessionID)
	}

	text := strings.TrimSpace(typed)
	if text == "" {
		text = strings.TrimSpace(spoken)
	}
	if text == "" {
		_ = c.send(ctx, errorFrame(frameTurnError, domain.InvalidInput("userMessage is required")))
		return
	}

	localID := c.overlay.Add(text)
	_ = c.send(ctx, outbound{Type: frameTurnPending, LocalID: localID, Text: text})

	result, err := c.turns.SubmitTurn(ctx, domain.TurnRequest{SessionID: c.sessionID, UserMessage: text}, c.userID)
	if err != nil {
		c.overlay.Fail(localID, err)
		f := errorFrame(frameTurnError, err)
		f.LocalID = localID
		f.Text = text
		_ = c.send(ctx, f)
		return
	}

	c.overlay.Confirm(localID)
	_ = c.send(ctx, outbound{Type: frameTurnResult, LocalID: localID, AIMessage: result.AIMessage, Status: result.Status})

	if !c.autoplay.Load() {
		return
	}
	if err := c.coord.Speak(ctx, result.AIMessage, speech.VoiceOptions{}); err != nil && ctx.Err() == nil {
		_ = c.send(ctx, errorFrame(framePlaybackFailed, err))
	}
}
