package voice

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/lingua-lessons/internal/domain"
	"github.com/ashureev/lingua-lessons/internal/identity"
	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSessionID = "9b2f6c1e-4a7d-4c3b-8e21-5d0f9a7b3c11"

type fakeAuthorizer struct{ err error }

func (f fakeAuthorizer) Authorize(_ context.Context, sessionID, userID string) (*domain.LessonSession, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.LessonSession{ID: sessionID, UserID: userID, Status: domain.StatusActive}, nil
}

type fakeTurns struct {
	mu    sync.Mutex
	reqs  []domain.TurnRequest
	reply string
	err   error
}

func (f *fakeTurns) SubmitTurn(_ context.Context, req domain.TurnRequest, _ string) (*domain.TurnResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return &domain.TurnResult{AIMessage: f.reply, Status: domain.StatusActive}, nil
}

func (f *fakeTurns) requests() []domain.TurnRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.TurnRequest(nil), f.reqs...)
}

func newTestServer(t *testing.T, turns *fakeTurns, authz Authorizer) (*httptest.Server, *Registry) {
	t.Helper()
	reg := NewRegistry()
	r := chi.NewRouter()
	r.Use(identity.Middleware(identity.HeaderAuthenticator{}))
	r.Handle("/ws/lesson", NewHandler(turns, authz, reg, "*", true))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, reg
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/lesson?session_id=" + testSessionID
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: http.Header{identity.UserHeaderName: []string{"user-1"}},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func writeFrame(t *testing.T, conn *websocket.Conn, v interface{}) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, data))
}

// readUntil skips frames until one of type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, frameType string) outbound {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		_, data, err := conn.Read(ctx)
		require.NoError(t, err, "waiting for %s", frameType)
		var f outbound
		require.NoError(t, json.Unmarshal(data, &f))
		if f.Type == frameType {
			return f
		}
	}
}

func TestHandlerRejectsBeforeUpgrade(t *testing.T) {
	tests := []struct {
		name     string
		user     string
		authz    Authorizer
		wantCode int
	}{
		{"anonymous", "", fakeAuthorizer{}, http.StatusUnauthorized},
		{"foreign session", "user-1", fakeAuthorizer{err: domain.ErrNotFound}, http.StatusNotFound},
		{"completed session", "user-1", fakeAuthorizer{err: domain.ErrAlreadyCompleted}, http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(t, &fakeTurns{}, tt.authz)
			req, err := http.NewRequest(http.MethodGet, srv.URL+"/ws/lesson?session_id="+testSessionID, nil)
			require.NoError(t, err)
			if tt.user != "" {
				req.Header.Set(identity.UserHeaderName, tt.user)
			}
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.wantCode, resp.StatusCode)
		})
	}
}

func TestHandlerReadyFrame(t *testing.T) {
	srv, reg := newTestServer(t, &fakeTurns{}, fakeAuthorizer{})
	conn := dial(t, srv)

	ready := readUntil(t, conn, frameReady)
	require.NotNil(t, ready.Capabilities)
	assert.True(t, ready.Capabilities.Capture)
	assert.True(t, ready.Capabilities.Synthesis)
	require.NotNil(t, ready.Capture)
	assert.Equal(t, "en-US", ready.Capture.Language)
	assert.Equal(t, 1, reg.Len())

	writeFrame(t, conn, inbound{Type: framePing})
	readUntil(t, conn, framePong)
}

func TestHandlerSpokenTurn(t *testing.T) {
	turns := &fakeTurns{reply: "Great! What would you like to drink?"}
	srv, _ := newTestServer(t, turns, fakeAuthorizer{})
	conn := dial(t, srv)
	readUntil(t, conn, frameReady)

	writeFrame(t, conn, inbound{Type: frameInputStart})
	start := readUntil(t, conn, frameCaptureStart)
	require.NotNil(t, start.Capture)
	assert.True(t, start.Capture.InterimResults)

	writeFrame(t, conn, inbound{Type: frameCaptureInterim, Text: "I would like a pizza"})
	writeFrame(t, conn, inbound{Type: frameTurnSubmit})

	readUntil(t, conn, frameCaptureStop)
	pending := readUntil(t, conn, frameTurnPending)
	assert.Equal(t, "I would like a pizza", pending.Text)
	assert.Equal(t, "local-1", pending.LocalID)

	result := readUntil(t, conn, frameTurnResult)
	assert.Equal(t, "local-1", result.LocalID)
	assert.Equal(t, turns.reply, result.AIMessage)
	assert.Equal(t, domain.StatusActive, result.Status)

	speak := readUntil(t, conn, frameSynthSpeak)
	assert.Equal(t, turns.reply, speak.Text)
	require.NotZero(t, speak.Utterance)
	require.NotNil(t, speak.Voice)
	assert.InDelta(t, 1.0, speak.Voice.Rate, 1e-9)

	writeFrame(t, conn, inbound{Type: "playback.ended", Utterance: speak.Utterance})
	for {
		f := readUntil(t, conn, frameState)
		if f.State.Playback == "idle" {
			break
		}
	}

	reqs := turns.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, testSessionID, reqs[0].SessionID)
	assert.Equal(t, "I would like a pizza", reqs[0].UserMessage)
}

func TestHandlerTurnError(t *testing.T) {
	turns := &fakeTurns{err: domain.GenerationFailed(context.DeadlineExceeded)}
	srv, _ := newTestServer(t, turns, fakeAuthorizer{})
	conn := dial(t, srv)
	readUntil(t, conn, frameReady)

	writeFrame(t, conn, inbound{Type: frameTurnSubmit, Text: "Hello there"})

	f := readUntil(t, conn, frameTurnError)
	assert.Equal(t, domain.KindGenerationFailed, f.Kind)
	assert.Equal(t, "error generating AI response", f.Error)
	assert.Equal(t, "Hello there", f.Text)
	assert.Equal(t, "local-1", f.LocalID)
}

func TestHandlerEmptyTurnIsRejected(t *testing.T) {
	turns := &fakeTurns{}
	srv, _ := newTestServer(t, turns, fakeAuthorizer{})
	conn := dial(t, srv)
	readUntil(t, conn, frameReady)

	writeFrame(t, conn, inbound{Type: frameTurnSubmit, Text: "   "})

	f := readUntil(t, conn, frameTurnError)
	assert.Equal(t, domain.KindInvalidInput, f.Kind)
	assert.Empty(t, turns.requests())
}

func TestHandlerAutoplayOff(t *testing.T) {
	turns := &fakeTurns{reply: "Nice."}
	srv, _ := newTestServer(t, turns, fakeAuthorizer{})
	conn := dial(t, srv)
	readUntil(t, conn, frameReady)

	off := false
	writeFrame(t, conn, inbound{Type: frameSettings, Autoplay: &off})
	writeFrame(t, conn, inbound{Type: frameTurnSubmit, Text: "Hi"})
	readUntil(t, conn, frameTurnResult)

	// Nothing is spoken, so the next frame is the pong.
	writeFrame(t, conn, inbound{Type: framePing})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var f outbound
	require.NoError(t, json.Unmarshal(data, &f))
	assert.Equal(t, framePong, f.Type)
}
