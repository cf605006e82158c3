package session

import (
	"sync"

	"github.com/google/uuid"
)

// Manager tracks every open connection regardless of room binding, so that
// shutdown can close them all and stats can report totals.
// All methods are safe for concurrent use.
type Manager struct {
	mu    sync.RWMutex
	conns map[uuid.UUID]*Conn
}

// NewManager creates an empty Manager.
func NewManager() *Manager {
	return &Manager{conns: make(map[uuid.UUID]*Conn)}
}

// Add registers c.
//
// Precondition: c must be non-nil.
func (m *Manager) Add(c *Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conns[c.ID()] = c
}

// Remove forgets the connection with id. It does not close it.
func (m *Manager) Remove(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.conns, id)
}

// Count returns the number of tracked connections.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}

// CloseAll closes and forgets every tracked connection.
//
// Postcondition: Count() == 0.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	conns := make([]*Conn, 0, len(m.conns))
	for id, c := range m.conns {
		conns = append(conns, c)
		delete(m.conns, id)
	}
	m.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
}
