package llm

import (
	"context"
	"errors"
	"strings"
)

// ErrEmptyCompletion is returned when the model answers without content.
var ErrEmptyCompletion = errors.New("LLM returned no completion content")

// Params are the per-request generation settings.
type Params struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// Generator turns an instruction plus transcript into a single reply.
type Generator struct {
	client Client
	params Params
}

// NewGenerator creates a Generator that calls client with params.
func NewGenerator(client Client, params Params) *Generator {
	return &Generator{client: client, params: params}
}

// Generate sends the system instruction followed by the transcript and
// returns the first choice's content.
func (g *Generator) Generate(ctx context.Context, instruction string, transcript []ChatMessage) (string, error) {
	messages := make([]ChatMessage, 0, len(transcript)+1)
	messages = append(messages, ChatMessage{Role: RoleSystem, Content: instruction})
	messages = append(messages, transcript...)

	temperature := g.params.Temperature
	maxTokens := g.params.MaxTokens
	resp, err := g.client.CreateChatCompletion(ctx, &ChatCompletionRequest{
		Model:       g.params.Model,
		Messages:    messages,
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message == nil {
		return "", ErrEmptyCompletion
	}

	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", ErrEmptyCompletion
	}
	return content, nil
}
