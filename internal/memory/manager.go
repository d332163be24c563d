// Package memory enforces per-engine memory budgets across live sessions.
package memory

import (
	"fmt"
	"sort"
	"sync"
)

// Manager tracks estimated memory usage per session and enforces a
// global budget so a runaway stream cannot exhaust the process.
type Manager struct {
	maxBytes     int64
	currentUsage int64
	sessionUsage map[string]int64
	thresholds   Thresholds
	config       *Config
	mu           sync.RWMutex
}

// Config defines memory manager limits.
type Config struct {
	MaxMemoryMB          int // global budget in MB
	WarningThresholdPct  int
	CriticalThresholdPct int
}

// Thresholds holds the precomputed byte boundaries for warning levels.
type Thresholds struct {
	WarningBytes  int64
	CriticalBytes int64
}

// DefaultConfig returns the default budget: 100MB, warn at 75%, critical at 90%.
func DefaultConfig() *Config {
	return &Config{
		MaxMemoryMB:          100,
		WarningThresholdPct:  75,
		CriticalThresholdPct: 90,
	}
}

// NewManager creates a memory manager with the given config (nil uses defaults).
func NewManager(config *Config) *Manager {
	if config == nil {
		config = DefaultConfig()
	}

	maxBytes := int64(config.MaxMemoryMB) * 1024 * 1024

	return &Manager{
		maxBytes:     maxBytes,
		sessionUsage: make(map[string]int64),
		config:       config,
		thresholds: Thresholds{
			WarningBytes:  (maxBytes * int64(config.WarningThresholdPct)) / 100,
			CriticalBytes: (maxBytes * int64(config.CriticalThresholdPct)) / 100,
		},
	}
}

// AllocateSession reserves budget for a new session, rejecting the
// allocation if it would exceed the global limit.
func (m *Manager) AllocateSession(sessionID string, estimatedSize int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.currentUsage+estimatedSize > m.maxBytes {
		return fmt.Errorf("memory allocation would exceed limit: %d + %d > %d",
			m.currentUsage, estimatedSize, m.maxBytes)
	}

	m.sessionUsage[sessionID] = estimatedSize
	m.currentUsage += estimatedSize

	return nil
}

// ReleaseSession returns a session's reservation to the budget.
func (m *Manager) ReleaseSession(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if usage, exists := m.sessionUsage[sessionID]; exists {
		m.currentUsage -= usage
		delete(m.sessionUsage, sessionID)
	}
}

// UpdateSessionUsage re-estimates a session's footprint, typically after a
// spec update or a large state write grows the session.
func (m *Manager) UpdateSessionUsage(sessionID string, newSize int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	oldSize, exists := m.sessionUsage[sessionID]
	if !exists {
		return fmt.Errorf("session not found: %s", sessionID)
	}

	delta := newSize - oldSize
	if m.currentUsage+delta > m.maxBytes {
		return fmt.Errorf("memory update would exceed limit: %d + %d > %d",
			m.currentUsage, delta, m.maxBytes)
	}

	m.sessionUsage[sessionID] = newSize
	m.currentUsage += delta

	return nil
}

// Status contains a point-in-time view of budget consumption.
type Status struct {
	CurrentUsage         int64   `json:"current_usage"`
	MaxMemory            int64   `json:"max_memory"`
	UsagePercentage      float64 `json:"usage_percentage"`
	Level                string  `json:"level"` // "OK", "WARNING", "CRITICAL"
	ActiveSessions       int     `json:"active_sessions"`
	AverageSessionMemory int64   `json:"average_session_memory"`
	WarningThreshold     int64   `json:"warning_threshold"`
	CriticalThreshold    int64   `json:"critical_threshold"`
}

// GetStatus returns current budget consumption.
func (m *Manager) GetStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status := Status{
		CurrentUsage:      m.currentUsage,
		MaxMemory:         m.maxBytes,
		UsagePercentage:   float64(m.currentUsage) / float64(m.maxBytes) * 100,
		ActiveSessions:    len(m.sessionUsage),
		WarningThreshold:  m.thresholds.WarningBytes,
		CriticalThreshold: m.thresholds.CriticalBytes,
	}

	switch {
	case m.currentUsage >= m.thresholds.CriticalBytes:
		status.Level = "CRITICAL"
	case m.currentUsage >= m.thresholds.WarningBytes:
		status.Level = "WARNING"
	default:
		status.Level = "OK"
	}

	if len(m.sessionUsage) > 0 {
		status.AverageSessionMemory = m.currentUsage / int64(len(m.sessionUsage))
	}

	return status
}

// IsAtCapacity reports whether usage has crossed the critical threshold.
func (m *Manager) IsAtCapacity() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentUsage >= m.thresholds.CriticalBytes
}

// IsNearCapacity reports whether usage has crossed the warning threshold.
func (m *Manager) IsNearCapacity() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentUsage >= m.thresholds.WarningBytes
}

// AvailableMemory returns remaining budget in bytes.
func (m *Manager) AvailableMemory() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	available := m.maxBytes - m.currentUsage
	if available < 0 {
		return 0
	}
	return available
}

// CanAllocate reports whether size fits in the remaining budget.
func (m *Manager) CanAllocate(size int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentUsage+size <= m.maxBytes
}

// SessionUsage returns the tracked usage for a session.
func (m *Manager) SessionUsage(sessionID string) (int64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	usage, exists := m.sessionUsage[sessionID]
	return usage, exists
}

// SessionMemoryInfo pairs a session with its tracked usage.
type SessionMemoryInfo struct {
	SessionID string `json:"session_id"`
	Usage     int64  `json:"usage"`
}

// TopSessions returns the sessions using the most memory, largest first.
// These are the eviction candidates when the budget runs hot.
func (m *Manager) TopSessions(limit int) []SessionMemoryInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := make([]SessionMemoryInfo, 0, len(m.sessionUsage))
	for id, usage := range m.sessionUsage {
		sessions = append(sessions, SessionMemoryInfo{SessionID: id, Usage: usage})
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].Usage > sessions[j].Usage
	})

	if limit > len(sessions) {
		limit = len(sessions)
	}
	return sessions[:limit]
}

// SessionCount returns the number of tracked sessions.
func (m *Manager) SessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessionUsage)
}

// Reset clears all tracking.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.currentUsage = 0
	m.sessionUsage = make(map[string]int64)
}
