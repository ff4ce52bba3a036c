// Package voice serves spoken lessons over a WebSocket. The browser hosts
// the speech engines; the server drives them through a speech.Coordinator
// and runs turns through the lesson orchestrator.
package voice

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// Registry tracks the live voice connection for each user and lesson.
type Registry struct {
	mu     sync.RWMutex
	active map[string]map[string]*websocket.Conn
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		active: make(map[string]map[string]*websocket.Conn),
	}
}

// Active returns the connection for a user and lesson session.
func (m *Registry) Active(userID, sessionID string) *websocket.Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if sessions, ok := m.active[userID]; ok {
		return sessions[sessionID]
	}
	return nil
}

// Register adds conn. A lesson opened in a second tab replaces the first
// connection.
func (m *Registry) Register(userID, sessionID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.active[userID]; !exists {
		m.active[userID] = make(map[string]*websocket.Conn)
	}

	if existing, exists := m.active[userID][sessionID]; exists && existing != conn {
		_ = existing.Close(websocket.StatusPolicyViolation, "lesson opened elsewhere")
	}

	m.active[userID][sessionID] = conn
	slog.Info("Voice lesson registered", "user_id", userID, "session_id", sessionID)
}

// Unregister removes conn if it is still the registered one.
func (m *Registry) Unregister(userID, sessionID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sessions, ok := m.active[userID]; ok {
		if current, exists := sessions[sessionID]; exists && current == conn {
			delete(sessions, sessionID)
			if len(sessions) == 0 {
				delete(m.active, userID)
			}
			slog.Info("Voice lesson unregistered", "user_id", userID, "session_id", sessionID)
		}
	}
}

// CloseAll closes every connection. Hijacked connections are not closed by
// http.Server.Shutdown, so the server calls this on the way out.
func (m *Registry) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for userID, sessions := range m.active {
		for _, conn := range sessions {
			_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		}
		delete(m.active, userID)
	}
}

// Len returns the number of live connections.
func (m *Registry) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, sessions := range m.active {
		n += len(sessions)
	}
	return n
}
