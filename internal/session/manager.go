package session

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrSessionNotFound is returned when the session id is unknown or expired.
var ErrSessionNotFound = errors.New("session: not found")

type managed struct {
	engine      *Engine
	learnerID   string
	scriptID    string
	startedAt   time.Time
	lastTouched time.Time
	cancel      context.CancelFunc
}

// Manager owns the active session engines, keyed by generated session id.
// All exported methods are safe for concurrent use.
type Manager struct {
	mu          sync.Mutex
	sessions    map[string]*managed
	idleTimeout time.Duration
}

// NewManager creates a manager that considers sessions idle after
// idleTimeout without interaction.
func NewManager(idleTimeout time.Duration) *Manager {
	return &Manager{
		sessions:    make(map[string]*managed),
		idleTimeout: idleTimeout,
	}
}

// NewID returns a fresh session id. Generated up front so the caller can
// hand it to the engine's collaborators before registering.
func NewID() string {
	return uuid.NewString()
}

// Start registers the engine under the given id and launches its run loop
// in the background.
func (m *Manager) Start(id string, e *Engine, learnerID, scriptID string) {
	ctx, cancel := context.WithCancel(context.Background())

	m.mu.Lock()
	m.sessions[id] = &managed{
		engine:      e,
		learnerID:   learnerID,
		scriptID:    scriptID,
		startedAt:   time.Now(),
		lastTouched: time.Now(),
		cancel:      cancel,
	}
	m.mu.Unlock()

	go func() {
		if err := e.Run(ctx); err != nil && !errors.Is(err, ErrAborted) {
			log.Printf("session %s: run loop error: %v", id, err)
		}
	}()

	log.Printf("session %s started: learner=%s script=%s", id, learnerID, scriptID)
}

// Get returns the engine for the given session id and refreshes its idle
// timer.
func (m *Manager) Get(id string) (*Engine, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	ms.lastTouched = time.Now()
	return ms.engine, true
}

// Abort aborts the session and removes it from the registry.
func (m *Manager) Abort(id string) error {
	m.mu.Lock()
	ms, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	ms.engine.Abort()
	ms.cancel()
	log.Printf("session %s aborted", id)
	return nil
}

// Remove drops a session from the registry without aborting it. Used once a
// completed session's results have been collected.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// Count returns the number of registered sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// CleanupIdle aborts and removes sessions with no interaction for longer
// than the idle timeout. Returns the number of sessions removed.
func (m *Manager) CleanupIdle() int {
	cutoff := time.Now().Add(-m.idleTimeout)

	m.mu.Lock()
	var expired []*managed
	var ids []string
	for id, ms := range m.sessions {
		if ms.lastTouched.Before(cutoff) {
			expired = append(expired, ms)
			ids = append(ids, id)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for i, ms := range expired {
		ms.engine.Abort()
		ms.cancel()
		log.Printf("session %s expired after idle timeout", ids[i])
	}
	return len(expired)
}
