package llm

import (
	"log/slog"
	"time"
)

// ModeMock selects the offline client.
const ModeMock = "MOCK"

// NewClient returns a MockClient when mode is ModeMock, otherwise an
// HTTPClient for baseURL.
func NewClient(mode, baseURL, apiKey string, timeout time.Duration) Client {
	if mode == ModeMock {
		slog.Info("LLM_MODE=MOCK detected, using mock LLM client")
		return NewMockClient()
	}
	return NewHTTPClient(baseURL, apiKey, timeout)
}
