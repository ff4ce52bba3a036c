package lesson

import (
	"context"
	"errors"
	"sync"
)

// ErrTurnInProgress is returned by a TurnLock when another turn holds the
// session.
var ErrTurnInProgress = errors.New("turn already in progress")

// TurnLock serializes turns per session. Acquire never waits: it either
// returns a release func or ErrTurnInProgress.
type TurnLock interface {
	Acquire(ctx context.Context, sessionID string) (release func(), err error)
}

// MemoryLock is a process-local TurnLock.
type MemoryLock struct {
	mu     sync.Mutex
	active map[string]struct{}
}

var _ TurnLock = (*MemoryLock)(nil)

// NewMemoryLock creates an empty MemoryLock.
func NewMemoryLock() *MemoryLock {
	return &MemoryLock{active: make(map[string]struct{})}
}

// Acquire claims sessionID for the caller.
func (l *MemoryLock) Acquire(_ context.Context, sessionID string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.active[sessionID]; busy {
		return nil, ErrTurnInProgress
	}
	l.active[sessionID] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.active, sessionID)
			l.mu.Unlock()
		})
	}, nil
}
