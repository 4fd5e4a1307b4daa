package notify

import "sync"

// Registry holds every user's live connections, keyed user id -> conn id.
// The handle-keyed map makes self-removal safe under concurrent append of new
// connections and removal of exiting loops.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]map[string]*Conn
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]map[string]*Conn),
	}
}

// Add registers a connection under its owning user.
func (r *Registry) Add(c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.conns[c.UserID]
	if !ok {
		set = make(map[string]*Conn)
		r.conns[c.UserID] = set
	}
	set[c.ID] = c
}

// Remove deletes one connection by identity. Removing an already-removed
// connection is a no-op and never disturbs the remaining set.
func (r *Registry) Remove(userID, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.conns[userID]
	if !ok {
		return
	}
	delete(set, connID)
	if len(set) == 0 {
		delete(r.conns, userID)
	}
}

// Publish enqueues an event on every live connection of a user and returns
// how many connections it reached. A user with no connections is not an
// error; the event is simply not delivered.
func (r *Registry) Publish(userID string, ev Event) int {
	msg := ev.Marshal()

	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.conns[userID]
	for _, c := range set {
		c.Enqueue(msg)
	}
	return len(set)
}

// CloseUser cancels every delivery loop of a user. Each loop deregisters
// itself as it exits.
func (r *Registry) CloseUser(userID string) {
	r.mu.RLock()
	snapshot := make([]*Conn, 0, len(r.conns[userID]))
	for _, c := range r.conns[userID] {
		snapshot = append(snapshot, c)
	}
	r.mu.RUnlock()

	for _, c := range snapshot {
		c.Stop()
	}
}

// Count returns the number of live connections of a user.
func (r *Registry) Count(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns[userID])
}
