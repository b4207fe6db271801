package ws

import (
	"sync"
)

// Registry maps a logical user identity to its current live connection.
// It is one of two pieces of shared mutable state in the realtime layer
// (the other is the room table), so every access goes through the mutex —
// register, lookup, and disconnect cleanup race freely across connections'
// event handlers.
//
// The invariant: at most one live connection per identity. A second
// register for the same identity replaces the handle outright; the old
// connection is not closed here — its own disconnect path will tear it
// down, and until then it is simply orphaned (no longer reachable by
// identity).
type Registry struct {
	mu    sync.RWMutex
	conns map[string]Conn
	// plans records the optional security-plan affiliation announced at
	// register time. Carried for future recipient filtering; nothing in the
	// fan-out engine enforces it.
	plans map[string]string
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]Conn),
		plans: make(map[string]string),
	}
}

// Register stores (or overwrites) the identity → connection mapping.
// Idempotent; the only failure is a missing identity, which is a
// caller-input error with no side effect.
func (r *Registry) Register(userID string, conn Conn, securityPlanID string) error {
	if userID == "" {
		return ErrMissingIdentity
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[userID] = conn
	if securityPlanID != "" {
		r.plans[userID] = securityPlanID
	} else {
		delete(r.plans, userID)
	}
	return nil
}

// Lookup returns the live connection for an identity, if any.
func (r *Registry) Lookup(userID string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[userID]
	return conn, ok
}

// RemoveByConn clears the registration owning the given connection and
// returns the identity it was registered under. Disconnect only hands us
// the transport handle, not the logical identity, so this is a scan —
// acceptable because disconnects are rare next to lookups.
//
// If the identity re-registered on a newer connection in the meantime, the
// old handle matches nothing and the newer registration survives.
func (r *Registry) RemoveByConn(conn Conn) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for userID, c := range r.conns {
		if c == conn {
			delete(r.conns, userID)
			delete(r.plans, userID)
			return userID, true
		}
	}
	return "", false
}

// Plan returns the affiliation tag announced at register time, if any.
func (r *Registry) Plan(userID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	plan, ok := r.plans[userID]
	return plan, ok
}

// Count is the number of currently registered identities. Feeds the health
// endpoint's connectedUsers figure.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
