// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"

	"github.com/ashureev/lingua-lessons/internal/domain"
)

var (
	// ErrSessionNotFound is returned by writes that target a missing or
	// foreign session. Reads return nil, nil instead.
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvalidTransition is returned when a status change would move a
	// session backwards.
	ErrInvalidTransition = errors.New("invalid session status transition")
)

// Repository defines the persistence contract for lesson sessions,
// their messages and the read-only proficiency inputs.
type Repository interface {
	// CreateSession inserts a new session. ID and CreatedAt must be set.
	CreateSession(ctx context.Context, session *domain.LessonSession) error

	// ListSessions returns the user's sessions, newest first.
	ListSessions(ctx context.Context, userID string) ([]*domain.LessonSession, error)

	// GetSession loads a session owned by userID with its messages oldest first.
	// Returns nil, nil if the session does not exist or belongs to someone else.
	GetSession(ctx context.Context, id, userID string) (*domain.LessonSession, error)

	// UpdateStatus moves a session to status. Only active -> completed is
	// allowed; repeating it is a no-op. changed reports whether this call
	// performed the transition.
	UpdateStatus(ctx context.Context, id, userID string, status domain.Status) (changed bool, err error)

	// InsertMessage appends a message to a session transcript.
	InsertMessage(ctx context.Context, sessionID string, role domain.Role, content string) (*domain.Message, error)

	// ListMessages returns a session's messages ordered by creation.
	ListMessages(ctx context.Context, sessionID string) ([]domain.Message, error)

	// RecentSnapshots returns up to limit proficiency snapshots, newest first.
	RecentSnapshots(ctx context.Context, userID string, limit int) ([]domain.ProficiencySnapshot, error)

	// InsertSnapshot records a proficiency snapshot.
	InsertSnapshot(ctx context.Context, snapshot *domain.ProficiencySnapshot) error

	// GetProfile retrieves a user profile. Returns nil, nil if none exists.
	GetProfile(ctx context.Context, userID string) (*domain.UserProfile, error)

	// UpsertProfile creates or updates a user profile.
	UpsertProfile(ctx context.Context, profile *domain.UserProfile) error

	// Ping verifies connectivity to the backing store.
	Ping(ctx context.Context) error

	// Close releases the underlying connection.
	Close() error
}

// OrphanCounter is implemented by stores that can cheaply count user
// messages that never received a reply.
type OrphanCounter interface {
	CountOrphanMessages(ctx context.Context) (int64, error)
}
