package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantBody   string
	}{
		{"ok", nil, http.StatusOK, `"status":"ok"`},
		{"degraded", errors.New("dial tcp 10.0.0.5:5432: connection refused"), http.StatusServiceUnavailable, `"status":"degraded"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			NewHealthHandler(fakePinger{err: tt.err}).Health(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))

			if w.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, w.Code)
			}
			body := w.Body.String()
			if !strings.Contains(body, tt.wantBody) {
				t.Errorf("Expected body to contain %s, got %s", tt.wantBody, body)
			}
			if strings.Contains(body, "10.0.0.5") {
				t.Errorf("Expected error detail to stay in logs, got %s", body)
			}
		})
	}
}
