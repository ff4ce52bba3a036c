package domain

import (
	"time"
)

// Role identifies the author of a lesson message.
type Role string

// Message roles as persisted.
const (
	RoleUser Role = "user"
	RoleAI   Role = "ai"
)

// Message is an immutable entry in a session transcript.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// TurnRequest is the inbound half of one turn.
type TurnRequest struct {
	SessionID   string `json:"sessionId"`
	UserMessage string `json:"userMessage"`
}

// TurnResult is what a successful turn returns to the caller.
type TurnResult struct {
	AIMessage string `json:"aiMessage"`
	Status    Status `json:"status"`
}
