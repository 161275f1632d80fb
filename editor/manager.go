package editor

import (
	"fmt"
	"sync"

	"pixelstack/core"
	"pixelstack/renderer"
)

// Manager holds the live editing sessions. Sessions are in-memory and
// session-scoped; persistence happens only through explicit project
// save/load.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	renderer renderer.Renderer
}

// NewManager creates an empty session registry backed by the given
// renderer.
func NewManager(r renderer.Renderer) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		renderer: r,
	}
}

// Create starts a new session over a base image.
func (m *Manager) Create(base core.ImageRef) *Session {
	s := NewSession(base, m.renderer)
	m.mu.Lock()
	m.sessions[s.ID()] = s
	m.mu.Unlock()
	return s
}

// Open starts a session from a saved project.
func (m *Manager) Open(p *core.Project) *Session {
	s := SessionFromProject(p, m.renderer)
	m.mu.Lock()
	m.sessions[s.ID()] = s
	m.mu.Unlock()
	return s
}

// Get returns a live session by id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, core.ErrNotFound)
	}
	return s, nil
}

// Close drops a session from the registry.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return fmt.Errorf("session %s: %w", id, core.ErrNotFound)
	}
	delete(m.sessions, id)
	return nil
}
