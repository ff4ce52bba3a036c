package lesson

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ashureev/lingua-lessons/internal/domain"
	"github.com/ashureev/lingua-lessons/internal/store"
	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
)

// Topic length bounds, in characters.
const (
	minTopicChars = 3
	maxTopicChars = 200
)

// SessionView is a session plus its progress toward the message cap.
type SessionView struct {
	*domain.LessonSession
	Messages []domain.Message `json:"messages"`
	Progress float64          `json:"progress"`
}

// Service manages the session lifecycle outside of turns.
type Service struct {
	repo        store.Repository
	guard       *Guard
	maxMessages int
}

// NewService creates a Service. maxMessages drives Progress; zero
// reports progress as 0.
func NewService(repo store.Repository, maxMessages int) *Service {
	return &Service{repo: repo, guard: NewGuard(repo), maxMessages: maxMessages}
}

// CreateSession starts a new active session. An empty level falls back to
// the user's stored level, then intermediate.
func (s *Service) CreateSession(ctx context.Context, userID, topic, level string) (*domain.LessonSession, error) {
	if userID == "" {
		return nil, domain.ErrUnauthenticated
	}

	topic = strings.TrimSpace(topic)
	switch n := utf8.RuneCountInString(topic); {
	case n == 0:
		return nil, domain.InvalidInput("topic is required")
	case n < minTopicChars:
		return nil, domain.InvalidInput(fmt.Sprintf("topic must be at least %d characters", minTopicChars))
	case n > maxTopicChars:
		return nil, domain.InvalidInput(fmt.Sprintf("topic is too long (maximum %d characters)", maxTopicChars))
	}

	lvl, err := s.resolveLevel(ctx, userID, level)
	if err != nil {
		return nil, err
	}

	session := &domain.LessonSession{
		ID:        uuid.NewString(),
		UserID:    userID,
		Topic:     topic,
		Level:     lvl,
		Status:    domain.StatusActive,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.CreateSession(ctx, session); err != nil {
		return nil, domain.StorageFailed("create session", err)
	}

	logger.InfoContext(ctx, "lesson session created", "session_id", session.ID, "user_id", userID, "level", lvl)
	return session, nil
}

func (s *Service) resolveLevel(ctx context.Context, userID, level string) (domain.Level, error) {
	if strings.TrimSpace(level) != "" {
		lvl, ok := domain.ParseLevel(level)
		if !ok {
			return "", domain.InvalidInput("level must be beginner, intermediate or advanced")
		}
		return lvl, nil
	}

	profile, err := s.repo.GetProfile(ctx, userID)
	if err != nil {
		return "", domain.StorageFailed("load profile", err)
	}
	if profile.HasLevel() {
		return profile.ProficiencyLevel, nil
	}
	return domain.LevelIntermediate, nil
}

// ListSessions returns the user's sessions, newest first.
func (s *Service) ListSessions(ctx context.Context, userID string) ([]*domain.LessonSession, error) {
	if userID == "" {
		return nil, domain.ErrUnauthenticated
	}
	sessions, err := s.repo.ListSessions(ctx, userID)
	if err != nil {
		return nil, domain.StorageFailed("list sessions", err)
	}
	return sessions, nil
}

// GetSession returns a session with its transcript and progress. Completed
// sessions are readable.
func (s *Service) GetSession(ctx context.Context, userID, id string) (*SessionView, error) {
	session, err := s.guard.load(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	messages := session.Messages
	if messages == nil {
		messages = []domain.Message{}
	}
	return &SessionView{LessonSession: session, Messages: messages, Progress: s.progress(len(messages))}, nil
}

func (s *Service) progress(messages int) float64 {
	if s.maxMessages <= 0 {
		return 0
	}
	return min(1, float64(messages)/float64(s.maxMessages))
}

// EndSession completes a session on the student's request. Ending an
// already completed session returns it unchanged.
func (s *Service) EndSession(ctx context.Context, userID, id string) (*domain.LessonSession, error) {
	session, err := s.guard.load(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if session.IsCompleted() {
		return session, nil
	}

	changed, err := s.repo.UpdateStatus(ctx, id, userID, domain.StatusCompleted)
	if err != nil {
		return nil, domain.StorageFailed("end session", err)
	}
	if changed {
		completionCounter.Add(ctx, 1)
		logger.InfoContext(ctx, "lesson ended by student", "session_id", id, "user_id", userID)
	}
	session.Status = domain.StatusCompleted
	return session, nil
}

// ExportTranscript writes the session as an .xlsx workbook to w.
func (s *Service) ExportTranscript(ctx context.Context, userID, id string, w io.Writer) error {
	session, err := s.guard.load(ctx, id, userID)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			logger.DebugContext(ctx, "failed to close workbook", "error", err)
		}
	}()

	const sheet = "Transcript"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	rows := [][]any{
		{"Topic", session.Topic},
		{"Level", string(session.Level)},
		{"Status", string(session.Status)},
		{"Started", session.CreatedAt.UTC().Format(time.RFC3339)},
		{},
		{"#", "Speaker", "Message", "Time"},
	}
	for i, m := range session.Messages {
		speaker := "Student"
		if m.Role == domain.RoleAI {
			speaker = "Tutor"
		}
		rows = append(rows, []any{i + 1, speaker, m.Content, m.CreatedAt.UTC().Format(time.RFC3339)})
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("cell name: %w", err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	if err := f.SetColWidth(sheet, "C", "C", 80); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
