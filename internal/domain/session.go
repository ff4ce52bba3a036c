package domain

import (
	"strings"
	"time"
)

// Level is the student's stated proficiency level.
type Level string

// Proficiency levels.
const (
	LevelBeginner     Level = "beginner"
	LevelIntermediate Level = "intermediate"
	LevelAdvanced     Level = "advanced"
)

// ParseLevel normalizes s into a Level. ok is false for unknown values.
func ParseLevel(s string) (Level, bool) {
	l := Level(strings.ToLower(strings.TrimSpace(s)))
	return l, l.Valid()
}

// Valid reports whether l is one of the known levels.
func (l Level) Valid() bool {
	switch l {
	case LevelBeginner, LevelIntermediate, LevelAdvanced:
		return true
	}
	return false
}

// Status is the lifecycle state of a lesson session.
type Status string

// Session statuses. The only transition is active -> completed.
const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// LessonSession is one lesson's ordered conversation plus its status.
type LessonSession struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Topic     string    `json:"topic"`
	Level     Level     `json:"level"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`

	// Messages is only populated by loads that join the transcript.
	Messages []Message `json:"messages,omitempty"`
}

// IsCompleted returns true once the session no longer accepts turns.
func (s *LessonSession) IsCompleted() bool {
	return s.Status == StatusCompleted
}

// OwnedBy reports whether userID owns the session.
func (s *LessonSession) OwnedBy(userID string) bool {
	return s != nil && userID != "" && s.UserID == userID
}
