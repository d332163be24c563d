// Package session tracks live session groups: one group per browser
// session, shared by every tab the client opens on the same mount.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"
)

// Group is one session group. Value carries the mount's per-group state
// (the rendering session); the manager only owns the lifecycle.
type Group struct {
	ID         string
	Value      interface{}
	CreatedAt  time.Time
	LastAccess time.Time
}

// Manager handles group lifecycle with a sliding TTL: every access
// refreshes the expiry.
type Manager struct {
	groups map[string]*Group
	mu     sync.RWMutex
	ttl    time.Duration
}

// NewManager creates a manager. A zero ttl defaults to 24 hours.
func NewManager(ttl time.Duration) *Manager {
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	return &Manager{
		groups: make(map[string]*Group),
		ttl:    ttl,
	}
}

// Create registers a new group around value and returns it.
func (m *Manager) Create(value interface{}) (*Group, error) {
	id, err := generateGroupID()
	if err != nil {
		return nil, err
	}

	group := &Group{
		ID:         id,
		Value:      value,
		CreatedAt:  time.Now(),
		LastAccess: time.Now(),
	}

	m.mu.Lock()
	m.groups[id] = group
	m.mu.Unlock()

	return group, nil
}

// Get retrieves a group by ID, refreshing its expiry. Expired groups are
// removed on access and report absent.
func (m *Manager) Get(id string) (*Group, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	group, exists := m.groups[id]
	if !exists {
		return nil, false
	}
	if time.Since(group.LastAccess) > m.ttl {
		delete(m.groups, id)
		return nil, false
	}

	group.LastAccess = time.Now()
	return group, true
}

// Delete removes a group.
func (m *Manager) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.groups, id)
}

// Count returns the number of live groups, expired ones included until
// the next sweep.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.groups)
}

// CleanupExpired sweeps expired groups and returns how many were removed.
func (m *Manager) CleanupExpired() int {
	return len(m.RemoveExpired())
}

// RemoveExpired sweeps expired groups and returns them, so callers can
// tear down whatever the group values carry.
func (m *Manager) RemoveExpired() []*Group {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed []*Group
	cutoff := time.Now().Add(-m.ttl)
	for id, group := range m.groups {
		if group.LastAccess.Before(cutoff) {
			delete(m.groups, id)
			removed = append(removed, group)
		}
	}
	return removed
}

// generateGroupID creates a cryptographically secure group ID.
func generateGroupID() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
