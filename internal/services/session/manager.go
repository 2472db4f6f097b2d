package session

import (
	"strings"
	"sync"

	"github.com/google/uuid"

	"checkoutflow/internal/gateway"
)

// Manager hands out sessions to the HTTP surface, keyed by opaque ids. The
// registry is in-memory only; sessions are as transient as the checkout
// attempts they represent. Each session gets the configured redirect targets
// with its id appended so the challenge callback can find its way back.
type Manager struct {
	gw      gateway.Client
	targets RedirectTargets

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager builds a registry creating sessions against gw. targets are the
// base success and failure redirect URLs from configuration.
func NewManager(gw gateway.Client, targets RedirectTargets) *Manager {
	return &Manager{
		gw:       gw,
		targets:  targets,
		sessions: make(map[string]*Session),
	}
}

// Create registers a new session and returns its id.
func (m *Manager) Create() (string, *Session) {
	id := uuid.NewString()
	sess := New(m.gw, RedirectTargets{
		SuccessURL: withSessionID(m.targets.SuccessURL, id),
		FailureURL: withSessionID(m.targets.FailureURL, id),
	})

	m.mu.Lock()
	m.sessions[id] = sess
	m.mu.Unlock()
	return id, sess
}

// Get looks up a session by id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[id]
	return sess, ok
}

// Remove drops a session from the registry.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

func withSessionID(target, id string) string {
	if target == "" {
		return ""
	}
	sep := "?"
	if strings.Contains(target, "?") {
		sep = "&"
	}
	return target + sep + "sid=" + id
}
