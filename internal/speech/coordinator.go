// Package speech coordinates live speech capture and synthesis playback
// for one lesson view. Engines are injected; all state changes run on a
// single loop goroutine driven by an event queue.
package speech

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

const queueCapacity = 64

// SpeechCapture is a speech-to-text engine. Interim results, unexpected
// ends and errors are reported back through Coordinator.Signal.
type SpeechCapture interface {
	Start(ctx context.Context, opts CaptureOptions) error
	Stop() error
}

// SpeechSynthesizer is a text-to-speech engine. Speak only starts the
// utterance; its lifecycle is reported through Coordinator.Signal with
// the same UtteranceID.
type SpeechSynthesizer interface {
	Speak(ctx context.Context, id UtteranceID, text string, opts VoiceOptions) error
	Pause() error
	Resume() error
	Cancel() error
}

// Capabilities reports which engines are present.
type Capabilities struct {
	Capture   bool `json:"capture"`
	Synthesis bool `json:"synthesis"`
}

// Hooks receive coordinator output that is not a direct reply to a call.
// Both are invoked from the loop goroutine and must not block.
type Hooks struct {
	// OnFinal receives transcript finalized without a StopListening call,
	// such as text salvaged when capture fails.
	OnFinal func(text string)
	// OnError receives capture errors.
	OnError func(err error)
	// OnState receives every state change.
	OnState func(State)
}

type envelope struct {
	ev    Event
	final chan string
	wait  chan error
}

// Coordinator owns the capture and playback state machines for one view.
type Coordinator struct {
	capture SpeechCapture
	synth   SpeechSynthesizer
	hooks   Hooks

	queue   chan envelope
	closeCh chan struct{}
	done    chan struct{}

	startOnce sync.Once
	closeOnce sync.Once
	nextID    atomic.Uint64

	mu          sync.Mutex
	state       State
	captureOpts CaptureOptions
	voiceOpts   VoiceOptions

	// owned by the loop goroutine
	waiters map[UtteranceID]chan error
}

// NewCoordinator creates a Coordinator. Either engine may be nil when the
// platform lacks it.
func NewCoordinator(capture SpeechCapture, synth SpeechSynthesizer, hooks Hooks) *Coordinator {
	return &Coordinator{
		capture:     capture,
		synth:       synth,
		hooks:       hooks,
		queue:       make(chan envelope, queueCapacity),
		closeCh:     make(chan struct{}),
		done:        make(chan struct{}),
		state:       InitialState(),
		captureOpts: DefaultCaptureOptions(),
		voiceOpts:   VoiceOptions{}.Normalized(),
		waiters:     make(map[UtteranceID]chan error),
	}
}

// Capabilities reports which engines were injected.
func (c *Coordinator) Capabilities() Capabilities {
	return Capabilities{Capture: c.capture != nil, Synthesis: c.synth != nil}
}

// State returns a snapshot of the current state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetCaptureOptions applies to the next StartListening.
func (c *Coordinator) SetCaptureOptions(opts CaptureOptions) {
	if opts.Language == "" {
		opts.Language = DefaultCaptureOptions().Language
	}
	c.mu.Lock()
	c.captureOpts = opts
	c.mu.Unlock()
}

// SetVoiceOptions sets the defaults merged into every Speak call.
func (c *Coordinator) SetVoiceOptions(opts VoiceOptions) {
	c.mu.Lock()
	c.voiceOpts = opts.Normalized()
	c.mu.Unlock()
}

// Start runs the event loop until ctx is done or Close is called.
func (c *Coordinator) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		go c.loop(ctx)
	})
}

// Close stops the loop, cancels playback and capture, and fails pending
// Speak calls with ErrClosed.
func (c *Coordinator) Close() {
	c.closeOnce.Do(func() { close(c.closeCh) })
	c.startOnce.Do(func() { close(c.done) })
	<-c.done
}

// Signal feeds an engine or host event into the loop.
func (c *Coordinator) Signal(ctx context.Context, ev Event) error {
	return c.enqueue(ctx, envelope{ev: ev})
}

// StartListening begins capture. Capture and playback are not mutually
// excluded here; callers should not listen while a reply is being spoken.
func (c *Coordinator) StartListening(ctx context.Context) error {
	if c.capture == nil {
		return ErrCaptureUnavailable
	}
	return c.enqueue(ctx, envelope{ev: NewListenRequested()})
}

// StopListening ends capture and returns the finalized transcript. It
// returns "" when capture was not running, so text is finalized at most
// once per listening period.
func (c *Coordinator) StopListening(ctx context.Context) (string, error) {
	if c.capture == nil {
		return "", ErrCaptureUnavailable
	}
	final := make(chan string, 1)
	if err := c.enqueue(ctx, envelope{ev: NewStopRequested(), final: final}); err != nil {
		return "", err
	}
	select {
	case text := <-final:
		return text, nil
	case <-c.closeCh:
		return "", ErrClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Speak plays text, cancelling any utterance already in flight, and
// blocks until playback ends. Interrupted or canceled playback returns
// nil; other failures return *PlaybackError.
func (c *Coordinator) Speak(ctx context.Context, text string, opts VoiceOptions) error {
	if c.synth == nil {
		return ErrSynthesisUnavailable
	}
	if err := ValidateText(text); err != nil {
		return err
	}

	c.mu.Lock()
	merged := c.voiceOpts.Merge(opts).Normalized()
	c.mu.Unlock()

	id := UtteranceID(c.nextID.Add(1))
	wait := make(chan error, 1)
	if err := c.enqueue(ctx, envelope{ev: NewSpeakRequested(id, text, merged), wait: wait}); err != nil {
		return err
	}

	select {
	case err := <-wait:
		return err
	case <-c.closeCh:
		return ErrClosed
	case <-ctx.Done():
		// Only this call's utterance; a newer Speak may already own playback.
		_ = c.enqueue(context.WithoutCancel(ctx), envelope{ev: NewCancelRequested(id)})
		return ctx.Err()
	}
}

// Cancel stops the active utterance.
func (c *Coordinator) Cancel(ctx context.Context) error {
	return c.enqueue(ctx, envelope{ev: NewCancelRequested(0)})
}

// Pause pauses the active utterance.
func (c *Coordinator) Pause(ctx context.Context) error {
	return c.enqueue(ctx, envelope{ev: NewPauseRequested()})
}

// Resume resumes a paused utterance.
func (c *Coordinator) Resume(ctx context.Context) error {
	return c.enqueue(ctx, envelope{ev: NewResumeRequested()})
}

// SetVisibility reports the host page being hidden or shown.
func (c *Coordinator) SetVisibility(ctx context.Context, hidden bool) error {
	return c.enqueue(ctx, envelope{ev: NewVisibilityChanged(hidden)})
}

func (c *Coordinator) enqueue(ctx context.Context, env envelope) error {
	select {
	case <-c.closeCh:
		return ErrClosed
	default:
	}
	select {
	case c.queue <- env:
		return nil
	case <-c.closeCh:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) loop(ctx context.Context) {
	defer close(c.done)
	defer c.shutdown()

	for {
		select {
		case <-ctx.Done():
			c.closeOnce.Do(func() { close(c.closeCh) })
			return
		case <-c.closeCh:
			return
		case env := <-c.queue:
			c.handle(ctx, env)
		}
	}
}

func (c *Coordinator) handle(ctx context.Context, env envelope) {
	if sr, ok := env.ev.(SpeakRequested); ok && env.wait != nil {
		c.waiters[sr.Utterance] = env.wait
	}

	c.mu.Lock()
	next, effects := Transition(c.state, env.ev)
	changed := next != c.state
	c.state = next
	c.mu.Unlock()

	if changed && c.hooks.OnState != nil {
		c.hooks.OnState(next)
	}

	finalized := false
	for _, eff := range effects {
		if f, ok := eff.(Finalize); ok && env.final != nil {
			env.final <- f.Text
			finalized = true
			continue
		}
		c.run(ctx, eff)
	}
	if env.final != nil && !finalized {
		env.final <- ""
	}
}

// run executes one effect. Engine failures are fed back as events.
func (c *Coordinator) run(ctx context.Context, eff Effect) {
	switch e := eff.(type) {
	case StartCapture, RestartCapture:
		c.mu.Lock()
		opts := c.captureOpts
		c.mu.Unlock()
		if err := c.capture.Start(ctx, opts); err != nil {
			if _, restart := e.(RestartCapture); restart {
				err = fmt.Errorf("restart capture: %w", err)
			}
			c.handle(ctx, envelope{ev: NewCaptureError(err)})
		}
	case StopCapture:
		if err := c.capture.Stop(); err != nil {
			logger.DebugContext(ctx, "capture stop failed", "error", err)
		}
	case Finalize:
		if c.hooks.OnFinal != nil {
			c.hooks.OnFinal(e.Text)
		}
	case CaptureFailed:
		logger.WarnContext(ctx, "speech capture failed", "error", e.Err)
		if c.hooks.OnError != nil {
			c.hooks.OnError(e.Err)
		}
	case StartPlayback:
		if err := c.synth.Speak(ctx, e.Utterance, e.Text, e.Options); err != nil {
			c.handle(ctx, envelope{ev: NewPlaybackError(e.Utterance, CauseSynthesisFailed, err)})
		}
	case CancelPlayback:
		if err := c.synth.Cancel(); err != nil {
			logger.DebugContext(ctx, "playback cancel failed", "error", err)
		}
	case PausePlayback:
		if err := c.synth.Pause(); err != nil {
			logger.DebugContext(ctx, "playback pause failed", "error", err)
		}
	case ResumePlayback:
		if err := c.synth.Resume(); err != nil {
			logger.DebugContext(ctx, "playback resume failed", "error", err)
		}
	case Resolve:
		if ch, ok := c.waiters[e.Utterance]; ok {
			delete(c.waiters, e.Utterance)
			ch <- e.Err
		}
	}
}

func (c *Coordinator) shutdown() {
	c.mu.Lock()
	s := c.state
	c.state = InitialState()
	c.mu.Unlock()

	if s.Capture == CaptureListening && c.capture != nil {
		_ = c.capture.Stop()
	}
	if s.Playback == PlaybackSpeaking && c.synth != nil {
		_ = c.synth.Cancel()
	}
	for id, ch := range c.waiters {
		delete(c.waiters, id)
		ch <- ErrClosed
	}
}
