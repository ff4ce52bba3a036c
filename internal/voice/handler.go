package voice

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ashureev/lingua-lessons/internal/api"
	"github.com/ashureev/lingua-lessons/internal/domain"
	"github.com/ashureev/lingua-lessons/internal/identity"
	"github.com/coder/websocket"
)

// Authorizer checks that a user may run turns in a session.
type Authorizer interface {
	Authorize(ctx context.Context, sessionID, userID string) (*domain.LessonSession, error)
}

// Handler upgrades GET /ws/lesson?session_id=... to a voice lesson.
type Handler struct {
	turns         api.TurnSubmitter
	authz         Authorizer
	registry      *Registry
	allowedOrigin string
	isDev         bool
}

// NewHandler creates a voice lesson handler.
func NewHandler(turns api.TurnSubmitter, authz Authorizer, registry *Registry, allowedOrigin string, isDev bool) *Handler {
	return &Handler{
		turns:         turns,
		authz:         authz,
		registry:      registry,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// ServeHTTP implements http.Handler for the WebSocket upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := r.URL.Query().Get("session_id")
	slog.Info("Voice lesson connection request", "user_id", userID, "session_id", sessionID, "ip", r.RemoteAddr)

	if userID == "" {
		api.WriteError(w, r, domain.ErrUnauthenticated)
		return
	}
	if _, err := h.authz.Authorize(r.Context(), sessionID, userID); err != nil {
		api.WriteError(w, r, err)
		return
	}
	if !h.checkOrigin(r) {
		api.Error(w, http.StatusForbidden, "origin not allowed")
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "lesson ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()

	h.registry.Register(userID, sessionID, ws)
	defer h.registry.Unregister(userID, sessionID, ws)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	newLessonConn(ctx, ws, userID, sessionID, h.turns).run(cancel)
	slog.Info("Voice lesson ended", "user_id", userID, "session_id", sessionID)
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}
