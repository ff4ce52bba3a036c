package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPClientCreateChatCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4", req.Model)
		require.NotNil(t, req.Temperature)
		assert.Equal(t, 0.7, *req.Temperature)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","choices":[{"index":0,"message":{"role":"assistant","content":"Hello there!"}}],"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}`))
	}))
	defer srv.Close()

	gen := NewGenerator(NewHTTPClient(srv.URL+"/v1/", "test-key", 5*time.Second), Params{Model: "gpt-4", Temperature: 0.7, MaxTokens: 500})
	out, err := gen.Generate(context.Background(), "be nice", []ChatMessage{{Role: RoleUser, Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "Hello there!", out)
}

func TestHTTPClientAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit"}}`))
	}))
	defer srv.Close()

	_, err := NewHTTPClient(srv.URL, "k", time.Second).CreateChatCompletion(context.Background(), &ChatCompletionRequest{Model: "gpt-4"})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Equal(t, "slow down", apiErr.Message)
}

func TestHTTPClientMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	_, err := NewHTTPClient(srv.URL, "k", time.Second).CreateChatCompletion(context.Background(), &ChatCompletionRequest{})
	assert.Error(t, err)
}

func TestGeneratorRejectsEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	_, err := NewGenerator(NewHTTPClient(srv.URL, "k", time.Second), Params{}).Generate(context.Background(), "x", nil)
	assert.ErrorIs(t, err, ErrEmptyCompletion)
}

func TestHTTPClientSynthesize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/audio/speech", r.URL.Path)
		var req SpeechRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "mp3", req.ResponseFormat)
		_, _ = w.Write([]byte{0x49, 0x44, 0x33})
	}))
	defer srv.Close()

	resp, err := NewHTTPClient(srv.URL, "k", time.Second).Synthesize(context.Background(), &SpeechRequest{Model: "tts-1", Input: "hi", Voice: "alloy"})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x49, 0x44, 0x33}, resp.Audio)
	assert.Equal(t, "mp3", resp.Format)
}

func TestMockClientCompletesAfterEnoughTurns(t *testing.T) {
	gen := NewGenerator(NewClient(ModeMock, "", "", time.Second), Params{Model: "gpt-4"})

	short, err := gen.Generate(context.Background(), "sys", []ChatMessage{{Role: RoleUser, Content: "hello"}})
	require.NoError(t, err)
	assert.NotContains(t, short, `"status":"completed"`)

	var long []ChatMessage
	for i := 0; i < mockCompletionAfter; i++ {
		long = append(long, ChatMessage{Role: RoleUser, Content: "hi"}, ChatMessage{Role: RoleAssistant, Content: "ok"})
	}
	done, err := gen.Generate(context.Background(), "sys", long)
	require.NoError(t, err)
	assert.Contains(t, done, `"status":"completed"`)
}
