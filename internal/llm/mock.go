package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// mockCompletionAfter is the number of user messages after which the mock
// tutor declares the lesson complete.
const mockCompletionAfter = 10

// MockClient is an offline Client for development and tests. It answers
// every turn with a canned follow-up and appends the completion marker
// once the transcript is long enough.
type MockClient struct{}

var _ Client = (*MockClient)(nil)

// NewMockClient creates a new mock client.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// CreateChatCompletion returns a canned tutor reply.
func (m *MockClient) CreateChatCompletion(_ context.Context, req *ChatCompletionRequest) (*ChatCompletionResponse, error) {
	var lastUser string
	userTurns := 0
	for _, msg := range req.Messages {
		if msg.Role == RoleUser {
			userTurns++
			lastUser = msg.Content
		}
	}

	content := fmt.Sprintf("Thanks for sharing! You said: %q. Can you tell me more about that?", strings.TrimSpace(lastUser))
	if userTurns >= mockCompletionAfter {
		content = `Great job today, you have practiced this topic well! "status":"completed"`
	}

	return &ChatCompletionResponse{
		ID:      fmt.Sprintf("mock-chatcmpl-%d", time.Now().UnixNano()),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []Choice{{
			Message:      &ChatMessage{Role: RoleAssistant, Content: content},
			FinishReason: "stop",
		}},
	}, nil
}

// Synthesize returns a short placeholder payload instead of real audio.
func (m *MockClient) Synthesize(_ context.Context, req *SpeechRequest) (*SpeechResponse, error) {
	format := req.ResponseFormat
	if format == "" {
		format = "mp3"
	}
	return &SpeechResponse{Audio: []byte("mock-audio:" + req.Input), Format: format}, nil
}
