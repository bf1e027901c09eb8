package realtime

import (
	"sync"

	"therapymeet/internal/metrics"
)

// Registry tracks live connections and which session codes each one has
// joined. Membership here is transport-level and deliberately independent of
// the room store: a broadcast for a code can still reach members after the
// room's state has been deleted, which is exactly what the delayed
// force_disconnect after session completion needs.
type Registry struct {
	mu      sync.RWMutex
	conns   map[string]*Connection         // connID -> connection
	members map[string]map[string]struct{} // sessionCode -> connID set
	joined  map[string]map[string]struct{} // connID -> sessionCode set
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		conns:   make(map[string]*Connection),
		members: make(map[string]map[string]struct{}),
		joined:  make(map[string]map[string]struct{}),
	}
}

// Register records a live connection.
func (r *Registry) Register(conn *Connection) error {
	if conn == nil {
		return ErrNilConnection
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.conns[conn.ID()]; exists {
		return ErrAlreadyRegistered
	}
	r.conns[conn.ID()] = conn
	metrics.ConnectionsOpen.Set(float64(len(r.conns)))
	return nil
}

// Deregister removes a connection and its room memberships, returning the
// session codes it had joined so the caller can run room cleanup. Idempotent:
// a second call for the same id returns nil.
func (r *Registry) Deregister(connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.conns[connID]; !exists {
		return nil
	}
	delete(r.conns, connID)

	var codes []string
	for code := range r.joined[connID] {
		codes = append(codes, code)
		if set, ok := r.members[code]; ok {
			delete(set, connID)
			if len(set) == 0 {
				delete(r.members, code)
			}
		}
	}
	delete(r.joined, connID)

	metrics.ConnectionsOpen.Set(float64(len(r.conns)))
	return codes
}

// JoinRoom adds a connection to a session code's member set.
func (r *Registry) JoinRoom(code, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.conns[connID]; !exists {
		return
	}
	if r.members[code] == nil {
		r.members[code] = make(map[string]struct{})
	}
	r.members[code][connID] = struct{}{}
	if r.joined[connID] == nil {
		r.joined[connID] = make(map[string]struct{})
	}
	r.joined[connID][code] = struct{}{}
}

// LeaveRoom removes a connection from a session code's member set.
func (r *Registry) LeaveRoom(code, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if set, ok := r.members[code]; ok {
		delete(set, connID)
		if len(set) == 0 {
			delete(r.members, code)
		}
	}
	if set, ok := r.joined[connID]; ok {
		delete(set, code)
		if len(set) == 0 {
			delete(r.joined, connID)
		}
	}
}

// Get returns the connection for an id.
func (r *Registry) Get(connID string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, exists := r.conns[connID]
	return conn, exists
}

// RoomConnections returns every live connection that joined a session code.
// An unknown code yields an empty slice, never an error.
func (r *Registry) RoomConnections(code string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var conns []*Connection
	for connID := range r.members[code] {
		if conn, ok := r.conns[connID]; ok {
			conns = append(conns, conn)
		}
	}
	return conns
}

// Stats reports registry counters for the health endpoint.
func (r *Registry) Stats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return map[string]int{
		"open_connections": len(r.conns),
		"joined_rooms":     len(r.members),
	}
}
