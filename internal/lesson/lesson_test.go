package lesson

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/ashureev/lingua-lessons/internal/domain"
	"github.com/ashureev/lingua-lessons/internal/llm"
	"github.com/ashureev/lingua-lessons/internal/proficiency"
	"github.com/ashureev/lingua-lessons/internal/prompt"
	"github.com/ashureev/lingua-lessons/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResponder struct {
	mu      sync.Mutex
	replies []string
	err     error
	calls   int
	last    []llm.ChatMessage
	lastSys string

	entered chan struct{}
	block   chan struct{}
}

func (f *fakeResponder) Generate(_ context.Context, instruction string, transcript []llm.ChatMessage) (string, error) {
	f.mu.Lock()
	f.calls++
	f.last = transcript
	f.lastSys = instruction
	idx := f.calls - 1
	f.mu.Unlock()

	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return "", f.err
	}
	if idx < len(f.replies) {
		return f.replies[idx], nil
	}
	return "Nice! What else?", nil
}

func (f *fakeResponder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// failingAIStore rejects tutor replies so storage failures after
// generation can be observed.
type failingAIStore struct {
	*store.SQLiteStore
}

func (s failingAIStore) InsertMessage(ctx context.Context, sessionID string, role domain.Role, content string) (*domain.Message, error) {
	if role == domain.RoleAI {
		return nil, errors.New("disk full")
	}
	return s.SQLiteStore.InsertMessage(ctx, sessionID, role, content)
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestOrchestrator(repo store.Repository, gen Responder, limits Limits) *Orchestrator {
	return NewOrchestrator(repo, proficiency.NewAggregator(repo), gen, NewMemoryLock(), limits)
}

func seedSession(t *testing.T, repo store.Repository, userID string) *domain.LessonSession {
	t.Helper()
	session, err := NewService(repo, 20).CreateSession(context.Background(), userID, "ordering food", "beginner")
	require.NoError(t, err)
	return session
}

func TestSubmitTurnPersistsOrderedTranscript(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t)
	session := seedSession(t, repo, "user-1")
	gen := &fakeResponder{replies: []string{"Hello! What would you like?", "Great choice. Anything to drink?", "Sure."}}
	o := newTestOrchestrator(repo, gen, Limits{MaxMessageChars: 4000})

	inputs := []string{"Hi, I want to order", "A pizza please", "Water"}
	for i, in := range inputs {
		res, err := o.SubmitTurn(ctx, domain.TurnRequest{SessionID: session.ID, UserMessage: in}, "user-1")
		require.NoError(t, err)
		assert.Equal(t, gen.replies[i], res.AIMessage)
		assert.Equal(t, domain.StatusActive, res.Status)
	}

	messages, err := repo.ListMessages(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2*len(inputs))
	for i, m := range messages {
		if i%2 == 0 {
			assert.Equal(t, domain.RoleUser, m.Role)
			assert.Equal(t, inputs[i/2], m.Content)
		} else {
			assert.Equal(t, domain.RoleAI, m.Role)
			assert.Equal(t, gen.replies[i/2], m.Content)
		}
	}

	// The last call saw the full history once, with the new message last.
	require.Len(t, gen.last, 5)
	assert.Equal(t, llm.RoleUser, gen.last[0].Role)
	assert.Equal(t, llm.RoleAssistant, gen.last[1].Role)
	assert.Equal(t, llm.ChatMessage{Role: llm.RoleUser, Content: "Water"}, gen.last[4])
	assert.Contains(t, gen.lastSys, "ordering food")
	assert.Contains(t, gen.lastSys, "level beginner")
}

func TestSubmitTurnCompletesOnMarker(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t)
	session := seedSession(t, repo, "user-1")
	gen := &fakeResponder{replies: []string{`You did very well today! "STATUS":"completed"`}}
	o := newTestOrchestrator(repo, gen, Limits{})

	res, err := o.SubmitTurn(ctx, domain.TurnRequest{SessionID: session.ID, UserMessage: "Thanks!"}, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "You did very well today!", res.AIMessage)
	assert.Equal(t, domain.StatusCompleted, res.Status)

	_, err = o.SubmitTurn(ctx, domain.TurnRequest{SessionID: session.ID, UserMessage: "One more"}, "user-1")
	assert.ErrorIs(t, err, domain.ErrAlreadyCompleted)
	assert.Equal(t, 1, gen.callCount())

	messages, err := repo.ListMessages(ctx, session.ID)
	require.NoError(t, err)
	assert.Len(t, messages, 2)
	assert.NotContains(t, messages[1].Content, "completed")
}

func TestSubmitTurnMarkerOnlyReplyStoresClosingLine(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t)
	session := seedSession(t, repo, "user-1")
	gen := &fakeResponder{replies: []string{`{"status":"completed"}`}}
	o := newTestOrchestrator(repo, gen, Limits{})

	res, err := o.SubmitTurn(ctx, domain.TurnRequest{SessionID: session.ID, UserMessage: "Bye!"}, "user-1")
	require.NoError(t, err)
	assert.Equal(t, prompt.ClosingMessage, res.AIMessage)
	assert.Equal(t, domain.StatusCompleted, res.Status)

	messages, err := repo.ListMessages(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, prompt.ClosingMessage, messages[1].Content)
}

func TestSubmitTurnMessageCapCompletes(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t)
	session := seedSession(t, repo, "user-1")
	o := newTestOrchestrator(repo, &fakeResponder{}, Limits{MaxMessages: 4})

	res, err := o.SubmitTurn(ctx, domain.TurnRequest{SessionID: session.ID, UserMessage: "one"}, "user-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, res.Status)

	res, err = o.SubmitTurn(ctx, domain.TurnRequest{SessionID: session.ID, UserMessage: "two"}, "user-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, res.Status)

	stored, err := repo.GetSession(ctx, session.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, stored.Status)
}

func TestSubmitTurnGenerationFailureKeepsUserMessage(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t)
	session := seedSession(t, repo, "user-1")
	o := newTestOrchestrator(repo, &fakeResponder{err: &llm.APIError{StatusCode: 500, Message: "boom"}}, Limits{})

	_, err := o.SubmitTurn(ctx, domain.TurnRequest{SessionID: session.ID, UserMessage: "hello"}, "user-1")
	require.Error(t, err)
	assert.Equal(t, domain.KindGenerationFailed, domain.KindOf(err))

	var apiErr *llm.APIError
	assert.True(t, errors.As(err, &apiErr))

	messages, err := repo.ListMessages(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, domain.RoleUser, messages[0].Role)

	stored, err := repo.GetSession(ctx, session.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, stored.Status)
}

func TestSubmitTurnReplyStorageFailure(t *testing.T) {
	ctx := context.Background()
	base := newTestStore(t)
	session := seedSession(t, base, "user-1")
	repo := failingAIStore{base}
	o := newTestOrchestrator(repo, &fakeResponder{}, Limits{})

	_, err := o.SubmitTurn(ctx, domain.TurnRequest{SessionID: session.ID, UserMessage: "hello"}, "user-1")
	assert.Equal(t, domain.KindStorageFailed, domain.KindOf(err))

	messages, err := base.ListMessages(ctx, session.ID)
	require.NoError(t, err)
	assert.Len(t, messages, 1)
}

func TestSubmitTurnRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t)
	session := seedSession(t, repo, "user-1")
	gen := &fakeResponder{}
	o := newTestOrchestrator(repo, gen, Limits{MaxMessageChars: 10})

	tests := []struct {
		name      string
		sessionID string
		message   string
		userID    string
		want      domain.Kind
	}{
		{"empty message", session.ID, "", "user-1", domain.KindInvalidInput},
		{"whitespace message", session.ID, " \n\t ", "user-1", domain.KindInvalidInput},
		{"message too long", session.ID, strings.Repeat("a", 11), "user-1", domain.KindInvalidInput},
		{"empty session id", "", "hi", "user-1", domain.KindInvalidInput},
		{"not a uuid", "abc", "hi", "user-1", domain.KindInvalidInput},
		{"nil uuid", "00000000-0000-0000-0000-000000000000", "hi", "user-1", domain.KindInvalidInput},
		{"injection", "'; DROP TABLE lesson_sessions; --", "hi", "user-1", domain.KindInvalidInput},
		{"no user", session.ID, "hi", "", domain.KindUnauthenticated},
		{"foreign session", session.ID, "hi", "user-2", domain.KindNotFound},
		{"missing session", uuid.NewString(), "hi", "user-1", domain.KindNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := o.SubmitTurn(ctx, domain.TurnRequest{SessionID: tt.sessionID, UserMessage: tt.message}, tt.userID)
			assert.Equal(t, tt.want, domain.KindOf(err))
		})
	}

	assert.Zero(t, gen.callCount())
	messages, err := repo.ListMessages(ctx, session.ID)
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestSubmitTurnUppercaseSessionID(t *testing.T) {
	repo := newTestStore(t)
	session := seedSession(t, repo, "user-1")
	o := newTestOrchestrator(repo, &fakeResponder{}, Limits{})

	// Format check is case-insensitive; the store lookup is exact.
	_, err := o.SubmitTurn(context.Background(), domain.TurnRequest{SessionID: strings.ToUpper(session.ID), UserMessage: "hi"}, "user-1")
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
}

func TestSubmitTurnConcurrentTurnIsBusy(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t)
	session := seedSession(t, repo, "user-1")
	gen := &fakeResponder{entered: make(chan struct{}, 1), block: make(chan struct{})}
	o := newTestOrchestrator(repo, gen, Limits{})

	done := make(chan error, 1)
	go func() {
		_, err := o.SubmitTurn(ctx, domain.TurnRequest{SessionID: session.ID, UserMessage: "first"}, "user-1")
		done <- err
	}()
	<-gen.entered

	_, err := o.SubmitTurn(ctx, domain.TurnRequest{SessionID: session.ID, UserMessage: "second"}, "user-1")
	assert.ErrorIs(t, err, domain.ErrBusy)

	close(gen.block)
	require.NoError(t, <-done)

	messages, err := repo.ListMessages(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "first", messages[0].Content)

	// Lock is released after the turn.
	gen.entered = nil
	gen.block = nil
	_, err = o.SubmitTurn(ctx, domain.TurnRequest{SessionID: session.ID, UserMessage: "third"}, "user-1")
	assert.NoError(t, err)
}

func TestBuildTranscriptSkipsCurrentMessage(t *testing.T) {
	history := []domain.Message{
		{ID: "1", Role: domain.RoleUser, Content: "hi"},
		{ID: "3", Role: domain.RoleUser, Content: "now"},
		{ID: "2", Role: domain.RoleAI, Content: "hello"},
	}
	got := buildTranscript(history, "3", "now")
	assert.Equal(t, []llm.ChatMessage{
		{Role: llm.RoleUser, Content: "hi"},
		{Role: llm.RoleAssistant, Content: "hello"},
		{Role: llm.RoleUser, Content: "now"},
	}, got)
}
