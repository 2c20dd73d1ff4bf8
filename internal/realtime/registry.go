package realtime

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"shopfloor_backend/platform/logger"
)

// Conn is a live transport connection.
type Conn interface {
	// ID uniquely identifies the connection.
	ID() string
	// Kind names the transport, "ws" or "sse".
	Kind() string
	// Send queues msg without blocking. It returns false when the
	// connection is closed or its buffer is full.
	Send(msg Message) bool
	// Close releases the connection. It is safe to call more than once.
	Close()
}

// Dispatcher handles inbound messages and connection lifecycle.
type Dispatcher interface {
	// Connected runs once a connection is registered.
	Connected(ctx context.Context, conn Conn)
	// Dispatch handles one inbound message from conn.
	Dispatch(ctx context.Context, conn Conn, msg Message) error
}

type registration struct {
	conn   Conn
	userID string
}

// Registry maps user identities to their live connections. A user may have
// several connections; a connection belongs to at most one user.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*registration
	users map[string]map[string]struct{}
	log   *logger.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(log *logger.Logger) *Registry {
	if log == nil {
		log = logger.Discard()
	}
	return &Registry{
		conns: make(map[string]*registration),
		users: make(map[string]map[string]struct{}),
		log:   log,
	}
}

// Register adds a connection.
func (r *Registry) Register(c Conn) {
	r.mu.Lock()
	r.conns[c.ID()] = &registration{conn: c}
	r.mu.Unlock()
	r.log.ConnectionEvent("connected", c.ID(), "", c.Kind())
}

// Unregister removes a connection and its user binding.
func (r *Registry) Unregister(connID string) {
	r.mu.Lock()
	reg, ok := r.conns[connID]
	if ok {
		delete(r.conns, connID)
		r.unbindLocked(connID, reg.userID)
	}
	r.mu.Unlock()
	if ok {
		r.log.ConnectionEvent("disconnected", connID, reg.userID, reg.conn.Kind())
	}
}

// Bind associates a connection with a user, replacing any earlier binding.
func (r *Registry) Bind(connID, userID string) error {
	if userID == "" {
		return fmt.Errorf("user id is required")
	}
	r.mu.Lock()
	reg, ok := r.conns[connID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("connection %s is not registered", connID)
	}
	r.unbindLocked(connID, reg.userID)
	reg.userID = userID
	set := r.users[userID]
	if set == nil {
		set = make(map[string]struct{})
		r.users[userID] = set
	}
	set[connID] = struct{}{}
	kind := reg.conn.Kind()
	r.mu.Unlock()

	r.log.ConnectionEvent("registered", connID, userID, kind)
	return nil
}

func (r *Registry) unbindLocked(connID, userID string) {
	if userID == "" {
		return
	}
	set := r.users[userID]
	delete(set, connID)
	if len(set) == 0 {
		delete(r.users, userID)
	}
}

// UserOf returns the user bound to a connection.
func (r *Registry) UserOf(connID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if reg, ok := r.conns[connID]; ok {
		return reg.userID
	}
	return ""
}

// Users returns the sorted ids of users with at least one connection.
func (r *Registry) Users() []string {
	r.mu.RLock()
	users := make([]string, 0, len(r.users))
	for id := range r.users {
		users = append(users, id)
	}
	r.mu.RUnlock()
	sort.Strings(users)
	return users
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Broadcast sends msg to every connection except exceptConnID and returns
// the number of connections that accepted it.
func (r *Registry) Broadcast(msg Message, exceptConnID string) int {
	r.mu.RLock()
	targets := make([]Conn, 0, len(r.conns))
	for id, reg := range r.conns {
		if id != exceptConnID {
			targets = append(targets, reg.conn)
		}
	}
	r.mu.RUnlock()

	return r.deliver(targets, msg)
}

// SendToConn sends msg to a single connection.
func (r *Registry) SendToConn(connID string, msg Message) error {
	r.mu.RLock()
	reg, ok := r.conns[connID]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("connection %s is not registered", connID)
	}
	if r.deliver([]Conn{reg.conn}, msg) == 0 {
		return fmt.Errorf("connection %s dropped", connID)
	}
	return nil
}

// SendToUser sends msg to every connection of userID and returns how many
// accepted it.
func (r *Registry) SendToUser(userID string, msg Message) int {
	r.mu.RLock()
	targets := make([]Conn, 0, len(r.users[userID]))
	for connID := range r.users[userID] {
		if reg, ok := r.conns[connID]; ok {
			targets = append(targets, reg.conn)
		}
	}
	r.mu.RUnlock()

	return r.deliver(targets, msg)
}

// deliver never blocks. A connection whose buffer is full is dropped; the
// client catches up with a full sync when it reconnects.
func (r *Registry) deliver(targets []Conn, msg Message) int {
	delivered := 0
	for _, c := range targets {
		if c.Send(msg) {
			delivered++
			continue
		}
		r.log.ConnectionEvent("dropped_slow_consumer", c.ID(), r.UserOf(c.ID()), c.Kind())
		r.Unregister(c.ID())
		c.Close()
	}
	return delivered
}

// Close drops every connection.
func (r *Registry) Close() {
	r.mu.Lock()
	conns := make([]Conn, 0, len(r.conns))
	for _, reg := range r.conns {
		conns = append(conns, reg.conn)
	}
	r.conns = make(map[string]*registration)
	r.users = make(map[string]map[string]struct{})
	r.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}
