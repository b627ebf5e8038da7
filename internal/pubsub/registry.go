package pubsub

import (
	"log/slog"
	"sync"

	"github.com/Guizzs26/live_polling_system/internal/model"
)

// Conn is one admitted participant connection. A participant may hold several
// (multiple devices); each is tracked on its own.
type Conn interface {
	ID() string
	ParticipantID() string
	Role() model.Role
	// Send queues msg without blocking and reports whether it was accepted.
	Send(msg []byte) bool
	Close()
}

type Partition string

const (
	Admins   Partition = "admins"
	Members  Partition = "members"
	Everyone Partition = "everyone"
)

func partitionOf(role model.Role) Partition {
	if role == model.RoleAdmin {
		return Admins
	}
	return Members
}

// Registry tracks the live connections of one group, split into the admin
// and member partitions.
type Registry struct {
	mu         sync.RWMutex
	conns      map[string]Conn
	partitions map[Partition]map[string]Conn
	logger     *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		conns: make(map[string]Conn),
		partitions: map[Partition]map[string]Conn{
			Admins:  make(map[string]Conn),
			Members: make(map[string]Conn),
		},
		logger: logger,
	}
}

func (r *Registry) Admit(c Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.conns[c.ID()] = c
	r.partitions[partitionOf(c.Role())][c.ID()] = c
}

// Remove drops c from every partition and reports whether it was present.
func (r *Registry) Remove(c Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[c.ID()]; !ok {
		return false
	}
	delete(r.conns, c.ID())
	for _, set := range r.partitions {
		delete(set, c.ID())
	}
	return true
}

func (r *Registry) IsEmpty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns) == 0
}

func (r *Registry) Count(p Partition) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p == Everyone {
		return len(r.conns)
	}
	return len(r.partitions[p])
}

// Snapshot returns the connections of p at this instant.
func (r *Registry) Snapshot(p Partition) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.conns
	if p != Everyone {
		set = r.partitions[p]
	}
	out := make([]Conn, 0, len(set))
	for _, c := range set {
		out = append(out, c)
	}
	return out
}

// Broadcast encodes the event once and queues it on every connection of p.
// A connection refusing the message does not stop delivery to the others.
// It returns the number of connections that accepted the message.
func (r *Registry) Broadcast(p Partition, eventType string, payload any) int {
	msg, err := Encode(eventType, payload)
	if err != nil {
		r.logger.Error("broadcast dropped", "event", eventType, "error", err)
		return 0
	}

	delivered := 0
	for _, c := range r.Snapshot(p) {
		if c.Send(msg) {
			delivered++
			continue
		}
		r.logger.Warn("broadcast not delivered", "event", eventType, "conn", c.ID(), "participant", c.ParticipantID())
	}
	return delivered
}

// SendTo queues an event for a single connection.
func (r *Registry) SendTo(c Conn, eventType string, payload any) bool {
	msg, err := Encode(eventType, payload)
	if err != nil {
		r.logger.Error("send dropped", "event", eventType, "error", err)
		return false
	}
	return c.Send(msg)
}

// CloseAll removes and closes every connection.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	conns := r.conns
	r.conns = make(map[string]Conn)
	for p := range r.partitions {
		r.partitions[p] = make(map[string]Conn)
	}
	r.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}
