package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// maxErrorBody bounds how much of a failed response ends up in errors.
const maxErrorBody = 4 << 10

// HTTPClient is the OpenAI-compatible HTTP client.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a client for baseURL (without the /v1 suffix).
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimSuffix(strings.TrimSuffix(baseURL, "/"), "/v1"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport,
				otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
					return "llm " + r.Method + " " + r.URL.Path
				})),
		},
	}
}

// CreateChatCompletion sends a chat completion request (non-streaming).
func (c *HTTPClient) CreateChatCompletion(ctx context.Context, req *ChatCompletionRequest) (*ChatCompletionResponse, error) {
	ctx, span := tracer.Start(ctx, "chat completion")
	defer span.End()
	span.SetAttributes(
		attribute.String("request.model", req.Model),
		attribute.Int("request.messages", len(req.Messages)),
	)

	respBody, err := c.post(ctx, "/v1/chat/completions", req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "chat completion failed")
		return nil, err
	}

	var result ChatCompletionResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "malformed response")
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if result.Usage != nil {
		span.SetAttributes(
			attribute.Int("usage.prompt", result.Usage.PromptTokens),
			attribute.Int("usage.completion", result.Usage.CompletionTokens),
		)
	}
	return &result, nil
}

// Synthesize calls /v1/audio/speech and returns the raw audio bytes.
func (c *HTTPClient) Synthesize(ctx context.Context, req *SpeechRequest) (*SpeechResponse, error) {
	ctx, span := tracer.Start(ctx, "synthesize speech")
	defer span.End()
	span.SetAttributes(attribute.String("request.model", req.Model), attribute.Int("request.chars", len(req.Input)))

	if req.ResponseFormat == "" {
		req.ResponseFormat = "mp3"
	}
	audio, err := c.post(ctx, "/v1/audio/speech", req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "speech synthesis failed")
		return nil, err
	}
	return &SpeechResponse{Audio: audio, Format: req.ResponseFormat}, nil
}

func (c *HTTPClient) post(ctx context.Context, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			logger.DebugContext(ctx, "failed to close response body", "error", closeErr)
		}
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var errResp ErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error != nil {
			apiErr.Message = errResp.Error.Message
			apiErr.Type = errResp.Error.Type
		} else {
			if len(respBody) > maxErrorBody {
				respBody = respBody[:maxErrorBody]
			}
			apiErr.Message = string(respBody)
		}
		logger.WarnContext(ctx, "LLM API returned error", "status", resp.StatusCode, "path", path, "error", apiErr.Message)
		return nil, apiErr
	}

	return respBody, nil
}
