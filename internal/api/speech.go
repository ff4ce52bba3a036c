package api

import (
	"context"
	"net/http"

	"github.com/ashureev/lingua-lessons/internal/domain"
	"github.com/ashureev/lingua-lessons/internal/identity"
	"github.com/ashureev/lingua-lessons/internal/speech"
	"github.com/go-chi/chi/v5"
)

// SpeechRenderer renders text to base64 audio.
type SpeechRenderer interface {
	Synthesize(ctx context.Context, text, voice string) (*speech.Audio, error)
}

// SpeechHandler serves server-side speech synthesis.
type SpeechHandler struct {
	renderer    SpeechRenderer
	maxBodySize int64
}

// NewSpeechHandler creates a SpeechHandler.
func NewSpeechHandler(renderer SpeechRenderer, maxBodySize int64) *SpeechHandler {
	return &SpeechHandler{renderer: renderer, maxBodySize: maxBodySize}
}

// RegisterRoutes registers speech routes on the /api router.
func (h *SpeechHandler) RegisterRoutes(r chi.Router) {
	r.Post("/speech/synthesize", h.Synthesize)
}

type synthesizeRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
}

// Synthesize handles POST /api/speech/synthesize.
func (h *SpeechHandler) Synthesize(w http.ResponseWriter, r *http.Request) {
	if identity.UserIDFromContext(r.Context()) == "" {
		WriteError(w, r, domain.ErrUnauthenticated)
		return
	}

	var req synthesizeRequest
	if !decodeJSON(w, r, h.maxBodySize, &req) {
		return
	}

	audio, err := h.renderer.Synthesize(r.Context(), req.Text, req.Voice)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, audio)
}
