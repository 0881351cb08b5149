package realtime

import "sync"

// Conn is the transport-side endpoint the registry holds on behalf of a
// subscriber. The transport layer owns the connection; we only keep a
// reference for the lifetime of the subscription. Send must be safe to call
// from the relay goroutine and must return an error (rather than block
// forever) once the connection is closed.
type Conn interface {
	ID() string
	Send(payload []byte) error
}

// Registry is the per-process map from channel key to the set of live
// connections subscribed to it. It guards only its own state; relay
// lifecycle decisions belong to the Gateway, driven by the boolean
// Remove returns.
type Registry struct {
	mu    sync.RWMutex
	conns map[ChannelKey]map[string]Conn
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[ChannelKey]map[string]Conn)}
}

// Add registers conn under key. Adding the same connection twice is a no-op.
// Returns true if the connection was newly added.
func (r *Registry) Add(key ChannelKey, conn Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.conns[key]
	if !ok {
		set = make(map[string]Conn)
		r.conns[key] = set
	}
	if _, exists := set[conn.ID()]; exists {
		return false
	}
	set[conn.ID()] = conn
	return true
}

// Remove unregisters conn under key if present. Returns true if the set for
// key is now empty (the caller should tear the relay down).
func (r *Registry) Remove(key ChannelKey, conn Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.conns[key]
	if !ok {
		return true
	}
	delete(set, conn.ID())
	if len(set) == 0 {
		delete(r.conns, key)
		return true
	}
	return false
}

// Snapshot returns a point-in-time copy of the connections subscribed to key,
// so delivery never iterates the live map while it is being mutated.
func (r *Registry) Snapshot(key ChannelKey) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.conns[key]
	if len(set) == 0 {
		return nil
	}
	out := make([]Conn, 0, len(set))
	for _, c := range set {
		out = append(out, c)
	}
	return out
}

// Count reports the number of live connections for key.
func (r *Registry) Count(key ChannelKey) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns[key])
}
