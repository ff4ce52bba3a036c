// Package llm talks to OpenAI-compatible chat-completion and speech APIs.
package llm

import (
	"context"
	"fmt"
)

// Roles in the outbound chat representation.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Client is an OpenAI-compatible backend.
type Client interface {
	// CreateChatCompletion sends a non-streaming chat completion request.
	CreateChatCompletion(ctx context.Context, req *ChatCompletionRequest) (*ChatCompletionResponse, error)

	// Synthesize renders text to audio.
	Synthesize(ctx context.Context, req *SpeechRequest) (*SpeechResponse, error)
}

// ChatCompletionRequest represents the OpenAI chat completion request.
type ChatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
}

// ChatMessage represents a chat message.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionResponse represents the OpenAI chat completion response.
type ChatCompletionResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   *Usage   `json:"usage,omitempty"`
}

// Choice represents a completion choice.
type Choice struct {
	Index        int          `json:"index"`
	Message      *ChatMessage `json:"message,omitempty"`
	FinishReason string       `json:"finish_reason,omitempty"`
}

// Usage represents token usage information.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// SpeechRequest is an OpenAI-compatible /v1/audio/speech request.
type SpeechRequest struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	ResponseFormat string  `json:"response_format,omitempty"`
	Speed          float64 `json:"speed,omitempty"`
}

// SpeechResponse carries rendered audio.
type SpeechResponse struct {
	Audio  []byte
	Format string
}

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error *APIErrorBody `json:"error"`
}

// APIErrorBody represents the error details.
type APIErrorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
}

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Message    string
	Type       string
}

func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("LLM API error [%d]: %s (type: %s)", e.StatusCode, e.Message, e.Type)
	}
	return fmt.Sprintf("LLM API error [%d]: %s", e.StatusCode, e.Message)
}
