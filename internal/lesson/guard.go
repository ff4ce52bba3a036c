package lesson

import (
	"context"
	"regexp"

	"github.com/ashureev/lingua-lessons/internal/domain"
)

var sessionIDPattern = regexp.MustCompile(`(?i)^[0-9a-f]{8}-[0-9a-f]{4}-[1-5][0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

// ValidSessionID reports whether id is a canonical UUID.
func ValidSessionID(id string) bool {
	return sessionIDPattern.MatchString(id)
}

// SessionReader loads a session scoped to its owner.
type SessionReader interface {
	GetSession(ctx context.Context, id, userID string) (*domain.LessonSession, error)
}

// Guard decides whether a user may take a turn in a session.
type Guard struct {
	sessions SessionReader
}

// NewGuard creates a Guard backed by sessions.
func NewGuard(sessions SessionReader) *Guard {
	return &Guard{sessions: sessions}
}

// Authorize returns the session if userID owns it and it is still active.
// The id format is checked before any I/O. Missing and foreign sessions
// both report NotFound.
func (g *Guard) Authorize(ctx context.Context, sessionID, userID string) (*domain.LessonSession, error) {
	session, err := g.load(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	if session.IsCompleted() {
		return nil, domain.ErrAlreadyCompleted
	}
	return session, nil
}

// load applies every check except the status one.
func (g *Guard) load(ctx context.Context, sessionID, userID string) (*domain.LessonSession, error) {
	if !ValidSessionID(sessionID) {
		return nil, domain.InvalidInput("invalid session ID format")
	}
	if userID == "" {
		return nil, domain.ErrUnauthenticated
	}

	session, err := g.sessions.GetSession(ctx, sessionID, userID)
	if err != nil {
		return nil, domain.StorageFailed("load session", err)
	}
	if session == nil || !session.OwnedBy(userID) {
		return nil, domain.ErrNotFound
	}
	return session, nil
}
