package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/ashureev/lingua-lessons/internal/domain"
	"github.com/ashureev/lingua-lessons/internal/identity"
	"github.com/ashureev/lingua-lessons/internal/lesson"
	"github.com/go-chi/chi/v5"
)

// TurnSubmitter runs one lesson turn.
type TurnSubmitter interface {
	SubmitTurn(ctx context.Context, req domain.TurnRequest, userID string) (*domain.TurnResult, error)
}

// SessionService manages lesson sessions.
type SessionService interface {
	CreateSession(ctx context.Context, userID, topic, level string) (*domain.LessonSession, error)
	ListSessions(ctx context.Context, userID string) ([]*domain.LessonSession, error)
	GetSession(ctx context.Context, userID, id string) (*lesson.SessionView, error)
	EndSession(ctx context.Context, userID, id string) (*domain.LessonSession, error)
	ExportTranscript(ctx context.Context, userID, id string, w io.Writer) error
}

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// LessonHandler serves lesson turns and session lifecycle endpoints.
type LessonHandler struct {
	turns       TurnSubmitter
	sessions    SessionService
	maxBodySize int64
	turnLimit   func(http.Handler) http.Handler
}

// NewLessonHandler creates a LessonHandler. turnLimit wraps only the turn
// endpoint and may be nil.
func NewLessonHandler(turns TurnSubmitter, sessions SessionService, maxBodySize int64, turnLimit func(http.Handler) http.Handler) *LessonHandler {
	return &LessonHandler{turns: turns, sessions: sessions, maxBodySize: maxBodySize, turnLimit: turnLimit}
}

// RegisterRoutes registers lesson routes on the /api router.
func (h *LessonHandler) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		if h.turnLimit != nil {
			r.Use(h.turnLimit)
		}
		r.Post("/lesson-turn", h.SubmitTurn)
	})
	r.Route("/lessons", func(r chi.Router) {
		r.Post("/", h.CreateSession)
		r.Get("/", h.ListSessions)
		r.Get("/{id}", h.GetSession)
		r.Post("/{id}/end", h.EndSession)
		r.Get("/{id}/export", h.ExportTranscript)
	})
}

// SubmitTurn handles POST /api/lesson-turn.
func (h *LessonHandler) SubmitTurn(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		WriteError(w, r, domain.ErrUnauthenticated)
		return
	}

	var req domain.TurnRequest
	if !decodeJSON(w, r, h.maxBodySize, &req) {
		return
	}

	slog.Info("Lesson turn request",
		"user_id", userID,
		"session_id", req.SessionID,
		"message_length", len(req.UserMessage),
	)

	result, err := h.turns.SubmitTurn(r.Context(), req, userID)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, result)
}

type createSessionRequest struct {
	Topic string `json:"topic"`
	Level string `json:"level"`
}

// CreateSession handles POST /api/lessons.
func (h *LessonHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		WriteError(w, r, domain.ErrUnauthenticated)
		return
	}

	var req createSessionRequest
	if !decodeJSON(w, r, h.maxBodySize, &req) {
		return
	}

	session, err := h.sessions.CreateSession(r.Context(), userID, req.Topic, req.Level)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	JSON(w, http.StatusCreated, session)
}

// ListSessions handles GET /api/lessons.
func (h *LessonHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.sessions.ListSessions(r.Context(), identity.UserIDFromContext(r.Context()))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	if sessions == nil {
		sessions = []*domain.LessonSession{}
	}
	JSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}

// GetSession handles GET /api/lessons/{id}.
func (h *LessonHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	view, err := h.sessions.GetSession(r.Context(), identity.UserIDFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, view)
}

// EndSession handles POST /api/lessons/{id}/end.
func (h *LessonHandler) EndSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.EndSession(r.Context(), identity.UserIDFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, session)
}

// ExportTranscript handles GET /api/lessons/{id}/export.
func (h *LessonHandler) ExportTranscript(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	// Buffer so a failure can still be reported as JSON.
	var buf bytes.Buffer
	if err := h.sessions.ExportTranscript(r.Context(), identity.UserIDFromContext(r.Context()), id, &buf); err != nil {
		WriteError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="lesson-%s.xlsx"`, id))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		slog.Warn("failed to write transcript export", "session_id", id, "error", err)
	}
}
