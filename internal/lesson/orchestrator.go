// Package lesson runs lesson sessions: the per-turn pipeline that turns a
// student message into a persisted tutor reply, and the session lifecycle
// around it.
package lesson

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ashureev/lingua-lessons/internal/domain"
	"github.com/ashureev/lingua-lessons/internal/llm"
	"github.com/ashureev/lingua-lessons/internal/prompt"
	"github.com/ashureev/lingua-lessons/internal/store"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Responder produces the tutor reply for an instruction and transcript.
type Responder interface {
	Generate(ctx context.Context, instruction string, transcript []llm.ChatMessage) (string, error)
}

// ProfileSource yields the proficiency profile for a turn.
type ProfileSource interface {
	Aggregate(ctx context.Context, userID string, sessionLevel domain.Level) (domain.ProficiencyProfile, error)
}

// Limits bound a single session.
type Limits struct {
	// MaxMessageChars caps one user message, in characters. Zero disables.
	MaxMessageChars int
	// MaxMessages completes a session once its transcript reaches this
	// many messages. Zero disables.
	MaxMessages int
}

// Orchestrator executes lesson turns.
type Orchestrator struct {
	repo     store.Repository
	guard    *Guard
	profiles ProfileSource
	gen      Responder
	lock     TurnLock
	limits   Limits
}

// NewOrchestrator wires a turn pipeline. A nil lock falls back to a
// process-local MemoryLock.
func NewOrchestrator(repo store.Repository, profiles ProfileSource, gen Responder, lock TurnLock, limits Limits) *Orchestrator {
	if lock == nil {
		lock = NewMemoryLock()
	}
	return &Orchestrator{
		repo:     repo,
		guard:    NewGuard(repo),
		profiles: profiles,
		gen:      gen,
		lock:     lock,
		limits:   limits,
	}
}

// SubmitTurn persists the user's message, generates and persists the
// tutor reply, and completes the session when the reply carries the
// completion marker or the transcript reaches its cap.
//
// A generation failure leaves the user message stored without a reply.
// Nothing is retried.
func (o *Orchestrator) SubmitTurn(ctx context.Context, req domain.TurnRequest, userID string) (*domain.TurnResult, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "lesson turn", trace.WithAttributes(
		attribute.String("session.id", req.SessionID),
		attribute.Int("message.chars", utf8.RuneCountInString(req.UserMessage)),
	))
	defer span.End()

	result, err := o.submit(ctx, req, userID)

	outcome := "ok"
	if err != nil {
		outcome = string(domain.KindOf(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	} else {
		span.SetAttributes(attribute.String("session.status", string(result.Status)))
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	turnCounter.Add(ctx, 1, attrs)
	turnDuration.Record(ctx, time.Since(start).Seconds(), attrs)

	return result, err
}

func (o *Orchestrator) submit(ctx context.Context, req domain.TurnRequest, userID string) (*domain.TurnResult, error) {
	text := req.UserMessage
	if strings.TrimSpace(text) == "" {
		return nil, domain.InvalidInput("userMessage is required")
	}
	if o.limits.MaxMessageChars > 0 && utf8.RuneCountInString(text) > o.limits.MaxMessageChars {
		return nil, domain.InvalidInput(fmt.Sprintf("userMessage is too long (maximum %d characters)", o.limits.MaxMessageChars))
	}
	if !ValidSessionID(req.SessionID) {
		return nil, domain.InvalidInput("invalid session ID format")
	}
	if userID == "" {
		return nil, domain.ErrUnauthenticated
	}

	release, err := o.lock.Acquire(ctx, req.SessionID)
	if errors.Is(err, ErrTurnInProgress) {
		return nil, domain.ErrBusy
	}
	if err != nil {
		return nil, domain.StorageFailed("acquire turn lock", err)
	}
	defer release()

	session, err := o.guard.Authorize(ctx, req.SessionID, userID)
	if err != nil {
		return nil, err
	}

	userMsg, err := o.repo.InsertMessage(ctx, session.ID, domain.RoleUser, text)
	if err != nil {
		return nil, domain.StorageFailed("save user message", err)
	}

	history, err := o.repo.ListMessages(ctx, session.ID)
	if err != nil {
		return nil, domain.StorageFailed("load transcript", err)
	}
	transcript := buildTranscript(history, userMsg.ID, text)

	profile, err := o.profiles.Aggregate(ctx, userID, session.Level)
	if err != nil {
		return nil, domain.StorageFailed("load proficiency", err)
	}
	instruction := prompt.Compose(session.Topic, session.Level, profile)

	raw, err := o.gen.Generate(ctx, instruction, transcript)
	if err != nil {
		logger.ErrorContext(ctx, "tutor reply generation failed",
			"session_id", session.ID,
			"user_id", userID,
			"error", err)
		return nil, domain.GenerationFailed(err)
	}
	reply := prompt.Detect(raw)

	if _, err := o.repo.InsertMessage(ctx, session.ID, domain.RoleAI, reply.Text); err != nil {
		return nil, domain.StorageFailed("save AI message", err)
	}

	status := session.Status
	reason := ""
	switch {
	case reply.Completed:
		reason = "marker"
	case o.limits.MaxMessages > 0 && len(history)+1 >= o.limits.MaxMessages:
		reason = "message_cap"
	}
	if reason != "" {
		changed, err := o.repo.UpdateStatus(ctx, session.ID, userID, domain.StatusCompleted)
		if err != nil {
			return nil, domain.StorageFailed("mark session completed", err)
		}
		status = domain.StatusCompleted
		if changed {
			completionCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
			logger.InfoContext(ctx, "lesson completed", "session_id", session.ID, "user_id", userID, "reason", reason)
		}
	}

	return &domain.TurnResult{AIMessage: reply.Text, Status: status}, nil
}

// buildTranscript maps stored messages to chat roles, oldest first. The
// message with skipID is left out and text is appended last, so the
// current turn appears exactly once whatever the store's ordering.
func buildTranscript(history []domain.Message, skipID, text string) []llm.ChatMessage {
	transcript := make([]llm.ChatMessage, 0, len(history))
	for _, m := range history {
		if m.ID == skipID {
			continue
		}
		role := llm.RoleUser
		if m.Role == domain.RoleAI {
			role = llm.RoleAssistant
		}
		transcript = append(transcript, llm.ChatMessage{Role: role, Content: m.Content})
	}
	return append(transcript, llm.ChatMessage{Role: llm.RoleUser, Content: text})
}
