package realtime

import (
	"encoding/json"
	"sync"

	"github.com/sirupsen/logrus"
)

// Conn is one live push connection.
type Conn interface {
	ID() string
	UserID() string
	SessionID() string
	// Rebind moves the connection to a renewed session.
	Rebind(sessionID string)
	// Enqueue queues a frame without blocking. It returns false when the
	// connection is closed or its queue is full.
	Enqueue(frame []byte) bool
	// Close is idempotent.
	Close()
}

type group struct {
	mu    sync.Mutex
	conns map[string]Conn
}

// Registry maps user ids to their live connections. Membership is derived
// purely from connections that are currently open; nothing is persisted.
//
// Lock order is registry then group. Emit never holds both, and no lock is
// held across network I/O: Enqueue only hands the frame to a buffered queue.
type Registry struct {
	mu     sync.RWMutex
	groups map[string]*group
}

func NewRegistry() *Registry {
	return &Registry{groups: make(map[string]*group)}
}

// Add places conn in its user's group, creating the group on first use.
func (r *Registry) Add(conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.groups[conn.UserID()]
	if !ok {
		g = &group{conns: make(map[string]Conn)}
		r.groups[conn.UserID()] = g
	}

	g.mu.Lock()
	g.conns[conn.ID()] = conn
	size := len(g.conns)
	g.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"user_id":       conn.UserID(),
		"connection_id": conn.ID(),
		"connections":   size,
	}).Debug("Connection joined user group")
}

// Remove drops conn from its group. Calling it more than once is harmless.
func (r *Registry) Remove(conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.groups[conn.UserID()]
	if !ok {
		return
	}

	g.mu.Lock()
	existing, found := g.conns[conn.ID()]
	if found && existing == conn {
		delete(g.conns, conn.ID())
	}
	empty := len(g.conns) == 0
	g.mu.Unlock()

	if empty {
		delete(r.groups, conn.UserID())
	}

	if found {
		logrus.WithFields(logrus.Fields{
			"user_id":       conn.UserID(),
			"connection_id": conn.ID(),
		}).Debug("Connection left user group")
	}
}

// Emit sends ev to every connection of userID and returns how many accepted
// it. Emits for the same user are serialised, so every connection sees the
// same order. Connections that refuse the frame are pruned and closed.
func (r *Registry) Emit(userID string, ev Event) int {
	frame, err := encode(ev)
	if err != nil {
		logrus.WithError(err).WithField("event", ev.Event).Error("Failed to encode push event")
		return 0
	}

	r.mu.RLock()
	g, ok := r.groups[userID]
	r.mu.RUnlock()
	if !ok {
		return 0
	}

	var dead []Conn
	delivered := 0

	g.mu.Lock()
	for _, conn := range g.conns {
		if conn.Enqueue(frame) {
			delivered++
			continue
		}
		dead = append(dead, conn)
	}
	g.mu.Unlock()

	for _, conn := range dead {
		logrus.WithFields(logrus.Fields{
			"user_id":       userID,
			"connection_id": conn.ID(),
		}).Warn("Pruning unresponsive push connection")
		r.Remove(conn)
		conn.Close()
	}

	return delivered
}

// Connections returns the number of live connections for userID.
func (r *Registry) Connections(userID string) int {
	r.mu.RLock()
	g, ok := r.groups[userID]
	r.mu.RUnlock()
	if !ok {
		return 0
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.conns)
}

// Users returns the number of users with at least one connection.
func (r *Registry) Users() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.groups)
}

// CloseSession closes every connection opened with sessionID.
func (r *Registry) CloseSession(sessionID string) int {
	matched := r.bySession(sessionID)
	for _, conn := range matched {
		r.Remove(conn)
		conn.Close()
	}
	return len(matched)
}

// RebindSession moves the connections of a rotated session to its
// replacement, so a later CloseSession on the new id still reaches them.
func (r *Registry) RebindSession(oldID, newID string) int {
	matched := r.bySession(oldID)
	for _, conn := range matched {
		conn.Rebind(newID)
	}

	if len(matched) > 0 {
		logrus.WithField("connections", len(matched)).Debug("Push connections moved to renewed session")
	}
	return len(matched)
}

func (r *Registry) bySession(sessionID string) []Conn {
	var matched []Conn

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, g := range r.groups {
		g.mu.Lock()
		for _, conn := range g.conns {
			if conn.SessionID() == sessionID {
				matched = append(matched, conn)
			}
		}
		g.mu.Unlock()
	}
	return matched
}

func encode(ev Event) ([]byte, error) {
	return json.Marshal(ev)
}
