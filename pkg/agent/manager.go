package agent

import (
	"sync"
)

// Manager owns one controller per conversation.
type Manager struct {
	deps Deps

	mu          sync.Mutex
	controllers map[string]*Controller
}

// NewManager creates a manager that builds controllers from deps.
func NewManager(deps Deps) *Manager {
	return &Manager{
		deps:        deps,
		controllers: make(map[string]*Controller),
	}
}

// Controller returns the controller for the conversation, creating it on
// first use. The user ID scopes preference storage.
func (m *Manager) Controller(conversationID, userID string) *Controller {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.controllers[conversationID]; ok {
		return c
	}
	c := NewController(conversationID, userID, m.deps)
	m.controllers[conversationID] = c
	return c
}

// Lookup returns the controller for the conversation without creating one.
func (m *Manager) Lookup(conversationID string) (*Controller, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.controllers[conversationID]
	return c, ok
}

// CancelAll aborts every in-flight turn. Used at shutdown.
func (m *Manager) CancelAll() {
	m.mu.Lock()
	controllers := make([]*Controller, 0, len(m.controllers))
	for _, c := range m.controllers {
		controllers = append(controllers, c)
	}
	m.mu.Unlock()

	for _, c := range controllers {
		c.Cancel()
	}
}
