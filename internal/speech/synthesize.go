package speech

import (
	"context"
	"encoding/base64"

	"github.com/ashureev/lingua-lessons/internal/domain"
	"github.com/ashureev/lingua-lessons/internal/llm"
)

// Audio is rendered speech ready for a JSON response.
type Audio struct {
	Content string `json:"audioContent"`
	Format  string `json:"format"`
}

// Renderer renders text to audio through a speech API.
type Renderer interface {
	Synthesize(ctx context.Context, req *llm.SpeechRequest) (*llm.SpeechResponse, error)
}

// Synthesizer turns text into base64 audio on the server.
type Synthesizer struct {
	renderer Renderer
	model    string
	voice    string
}

// NewSynthesizer creates a Synthesizer using model and a default voice.
func NewSynthesizer(renderer Renderer, model, voice string) *Synthesizer {
	return &Synthesizer{renderer: renderer, model: model, voice: voice}
}

// Synthesize validates text and renders it with voice, or the default
// voice when empty.
func (s *Synthesizer) Synthesize(ctx context.Context, text, voice string) (*Audio, error) {
	if err := ValidateText(text); err != nil {
		return nil, domain.InvalidInput(err.Error())
	}
	if voice == "" {
		voice = s.voice
	}

	resp, err := s.renderer.Synthesize(ctx, &llm.SpeechRequest{
		Model:          s.model,
		Input:          text,
		Voice:          voice,
		ResponseFormat: "mp3",
	})
	if err != nil {
		logger.ErrorContext(ctx, "speech synthesis failed", "chars", len(text), "error", err)
		return nil, domain.NewError(domain.KindGenerationFailed, "Failed to synthesize speech", err)
	}
	return &Audio{Content: base64.StdEncoding.EncodeToString(resp.Audio), Format: resp.Format}, nil
}
