package websocket

import (
	"fmt"
	"sort"
	"sync"

	"github.com/nfrund/gobychat/internal/domain"
	"github.com/nfrund/gobychat/internal/metrics"
)

// Conn is a live connection as seen by the registry and by everything that
// pushes frames to clients.
type Conn interface {
	ID() string
	Identity() domain.Identity
	// Send queues a frame without blocking.
	Send(frame []byte) error
	Close()
}

// EventKind classifies a registry event.
type EventKind int

const (
	// EventOnline: an identity got its first connection.
	EventOnline EventKind = iota + 1
	// EventOffline: an identity lost its last connection.
	EventOffline
	// EventSync: a connection joined an identity that was already online.
	// Only that connection needs the current presence set.
	EventSync
)

func (k EventKind) String() string {
	switch k {
	case EventOnline:
		return "online"
	case EventOffline:
		return "offline"
	case EventSync:
		return "sync"
	default:
		return "unknown"
	}
}

// Event is a registry change. Events are numbered and queued in the order
// the mutations were applied.
type Event struct {
	Seq      uint64
	Kind     EventKind
	Identity domain.Identity
	// Online is the presence set right after the change, sorted by id.
	Online []domain.Identity
	// Target is the joining connection for EventSync.
	Target Conn
}

// Registry maps identities to their live connections. A single mutex guards
// every map; nothing under the lock blocks or performs I/O.
type Registry struct {
	mu         sync.Mutex
	conns      map[string]Conn
	byIdentity map[string]map[string]Conn
	identities map[string]domain.Identity

	seq     uint64
	pending []Event
	notify  chan struct{}

	metrics *metrics.Metrics
}

// NewRegistry creates an empty Registry. m may be nil.
func NewRegistry(m *metrics.Metrics) *Registry {
	return &Registry{
		conns:      make(map[string]Conn),
		byIdentity: make(map[string]map[string]Conn),
		identities: make(map[string]domain.Identity),
		notify:     make(chan struct{}, 1),
		metrics:    m,
	}
}

// Register adds conn to its identity's set. Registering the same connection
// id again is a no-op. Connections without an identity are rejected.
func (r *Registry) Register(conn Conn) error {
	identity := conn.Identity()
	if identity.IsZero() {
		return fmt.Errorf("%w: connection %s has no identity", domain.ErrUnauthenticated, conn.ID())
	}

	r.mu.Lock()
	if _, ok := r.conns[conn.ID()]; ok {
		r.mu.Unlock()
		return nil
	}

	r.conns[conn.ID()] = conn
	set, existed := r.byIdentity[identity.ID()]
	if !existed {
		set = make(map[string]Conn)
		r.byIdentity[identity.ID()] = set
		r.identities[identity.ID()] = identity
	}
	set[conn.ID()] = conn

	if existed {
		r.emitLocked(Event{Kind: EventSync, Identity: identity, Target: conn})
	} else {
		r.emitLocked(Event{Kind: EventOnline, Identity: identity})
	}
	r.metrics.SetConnections(len(r.conns), len(r.byIdentity))
	r.mu.Unlock()

	r.signal()
	return nil
}

// Unregister removes the connection from whichever identity owns it. The
// identity is dropped once its last connection is gone. Unknown ids are
// ignored.
func (r *Registry) Unregister(connID string) {
	r.mu.Lock()
	conn, ok := r.conns[connID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.conns, connID)

	key := conn.Identity().ID()
	set := r.byIdentity[key]
	delete(set, connID)
	offline := len(set) == 0
	if offline {
		identity := r.identities[key]
		delete(r.byIdentity, key)
		delete(r.identities, key)
		r.emitLocked(Event{Kind: EventOffline, Identity: identity})
	}
	r.metrics.SetConnections(len(r.conns), len(r.byIdentity))
	r.mu.Unlock()

	if offline {
		r.signal()
	}
}

// ConnectionsFor returns a snapshot of the identity's live connections.
func (r *Registry) ConnectionsFor(identity domain.Identity) []Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	set := r.byIdentity[identity.ID()]
	out := make([]Conn, 0, len(set))
	for _, c := range set {
		out = append(out, c)
	}
	return out
}

// IsOnline reports whether the identity has at least one live connection.
func (r *Registry) IsOnline(identity domain.Identity) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byIdentity[identity.ID()]) > 0
}

// Online returns the presence set sorted by id.
func (r *Registry) Online() []domain.Identity {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.onlineLocked()
}

// All returns a snapshot of every live connection.
func (r *Registry) All() []Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Conn, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// Notify fires after new events were queued. Consumers call Drain on every
// signal; one signal may cover several events.
func (r *Registry) Notify() <-chan struct{} {
	return r.notify
}

// Drain returns and clears the queued events, oldest first.
func (r *Registry) Drain() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	events := r.pending
	r.pending = nil
	return events
}

func (r *Registry) emitLocked(ev Event) {
	r.seq++
	ev.Seq = r.seq
	ev.Online = r.onlineLocked()
	r.pending = append(r.pending, ev)
}

func (r *Registry) onlineLocked() []domain.Identity {
	out := make([]domain.Identity, 0, len(r.identities))
	for _, id := range r.identities {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

func (r *Registry) signal() {
	select {
	case r.notify <- struct{}{}:
	default:
	}
}
