package livespec

import (
	"sync"

	"github.com/gorilla/websocket"
)

// Connection is one WebSocket client with its metadata. Connections in
// the same group share a session (multi-tab); connections with the same
// user span devices. The Session field is per-group and shared; the
// socket itself is per-connection.
type Connection struct {
	Conn    *websocket.Conn
	GroupID string
	UserID  string // "" for anonymous
	Session *Session

	mu sync.Mutex // guards socket writes
}

// Send writes one message to this connection. Safe for concurrent use.
func (c *Connection) Send(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(messageType, data)
}

// ConnectionRegistry tracks active WebSocket connections with dual
// indexing: by group for multi-tab broadcast, by user for multi-device
// broadcast. Safe for concurrent use.
type ConnectionRegistry struct {
	byGroup map[string][]*Connection
	byUser  map[string][]*Connection
	mu      sync.RWMutex
}

// NewConnectionRegistry creates an empty registry.
func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{
		byGroup: make(map[string][]*Connection),
		byUser:  make(map[string][]*Connection),
	}
}

// Register adds a connection to both indexes.
func (r *ConnectionRegistry) Register(conn *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byGroup[conn.GroupID] = append(r.byGroup[conn.GroupID], conn)
	r.byUser[conn.UserID] = append(r.byUser[conn.UserID], conn)
}

// Unregister removes a connection from both indexes. Unknown connections
// are a no-op.
func (r *ConnectionRegistry) Unregister(conn *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byGroup[conn.GroupID] = removeConnection(r.byGroup[conn.GroupID], conn)
	if len(r.byGroup[conn.GroupID]) == 0 {
		delete(r.byGroup, conn.GroupID)
	}
	r.byUser[conn.UserID] = removeConnection(r.byUser[conn.UserID], conn)
	if len(r.byUser[conn.UserID]) == 0 {
		delete(r.byUser, conn.UserID)
	}
}

// GetByGroup returns all connections in a session group. The slice is a
// copy.
func (r *ConnectionRegistry) GetByGroup(groupID string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Connection(nil), r.byGroup[groupID]...)
}

// GetByUser returns all connections for a user. The slice is a copy.
func (r *ConnectionRegistry) GetByUser(userID string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Connection(nil), r.byUser[userID]...)
}

// GetAll returns every active connection.
func (r *ConnectionRegistry) GetAll() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []*Connection
	for _, conns := range r.byGroup {
		result = append(result, conns...)
	}
	return result
}

// Count returns the total number of active connections.
func (r *ConnectionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, conns := range r.byGroup {
		count += len(conns)
	}
	return count
}

// GroupCount returns the number of session groups with live connections.
func (r *ConnectionRegistry) GroupCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byGroup)
}

func removeConnection(conns []*Connection, target *Connection) []*Connection {
	result := make([]*Connection, 0, len(conns))
	for _, conn := range conns {
		if conn != target {
			result = append(result, conn)
		}
	}
	return result
}
