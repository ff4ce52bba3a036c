// Package domain contains core domain types for lesson sessions.
package domain

import (
	"time"
)

// UserProfile holds the per-user settings the lesson engine reads.
// ProficiencyLevel is empty when the user never picked one.
type UserProfile struct {
	UserID           string    `json:"user_id"`
	ProficiencyLevel Level     `json:"proficiency_level,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// HasLevel returns true if the profile carries a valid stored level.
func (u *UserProfile) HasLevel() bool {
	return u != nil && u.ProficiencyLevel.Valid()
}
