package chat

import (
	"log/slog"
	"sort"
	"sync"
)

// Transition is the presence effect of a single register/unregister call,
// computed inside the same critical section that mutates the registry.
type Transition uint8

const (
	// TransitionNone: the user's online/offline state did not change
	// (second device added, non-last device removed, unknown handle).
	TransitionNone Transition = iota
	// TransitionOnline: the user went from zero to one live connections.
	TransitionOnline
	// TransitionOffline: the user went from one to zero live connections.
	TransitionOffline
)

// Registry owns the in-memory mapping of online users to their live
// connection handles. It is the only concurrently-mutated shared resource in
// the core; every mutation is an atomic add/remove keyed by connection id,
// with transition detection under the same lock.
type Registry struct {
	log *slog.Logger

	mu    sync.RWMutex
	users map[string]map[string]*Client // userID -> connID -> client
	conns map[string]*Client            // connID -> client (reverse index)
}

// NewRegistry constructs an empty Registry.
func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		log:   log,
		users: make(map[string]map[string]*Client),
		conns: make(map[string]*Client),
	}
}

// Register adds client as a live connection for its user. A user may hold
// several concurrent handles (multi-device). Re-registering a known conn id
// replaces the handle without firing a transition.
func (r *Registry) Register(client *Client) Transition {
	if r == nil || client == nil || client.ConnID == "" || client.UserID == "" {
		return TransitionNone
	}

	r.mu.Lock()
	set := r.users[client.UserID]
	if set == nil {
		set = make(map[string]*Client, 2)
		r.users[client.UserID] = set
	}
	_, known := set[client.ConnID]
	wasOnline := len(set) > 0
	set[client.ConnID] = client
	r.conns[client.ConnID] = client
	r.mu.Unlock()

	r.log.Info("registry.register",
		"user_id", client.UserID, "conn_id", client.ConnID, "was_online", wasOnline)

	if !wasOnline && !known {
		return TransitionOnline
	}
	return TransitionNone
}

// Unregister removes exactly the handle identified by connID. Removing the
// user's last handle transitions the user offline. Unknown handles are a
// no-op, which absorbs channel-close events firing after cleanup.
func (r *Registry) Unregister(connID string) Transition {
	if r == nil || connID == "" {
		return TransitionNone
	}

	var (
		client  *Client
		offline bool
	)

	r.mu.Lock()
	client = r.conns[connID]
	if client != nil {
		delete(r.conns, connID)
		set := r.users[client.UserID]
		delete(set, connID)
		if len(set) == 0 {
			delete(r.users, client.UserID)
			offline = true
		}
	}
	r.mu.Unlock()

	if client == nil {
		return TransitionNone
	}

	// Signal client shutdown after removing from the registry.
	// This ordering avoids race windows where a broadcaster still holds a
	// pointer while the client goroutines are being torn down.
	client.Close()

	r.log.Info("registry.unregister",
		"user_id", client.UserID, "conn_id", connID, "went_offline", offline)

	if offline {
		return TransitionOffline
	}
	return TransitionNone
}

// IsOnline reports whether userID currently holds at least one connection.
func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users[userID]) > 0
}

// ConnectionsFor returns the live clients for userID (empty when offline).
func (r *Registry) ConnectionsFor(userID string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.users[userID]
	if len(set) == 0 {
		return nil
	}
	out := make([]*Client, 0, len(set))
	for _, c := range set {
		out = append(out, c)
	}
	return out
}

// OnlineUsers returns the sorted set of user ids holding >= 1 connection.
// This is the PresenceSet: recomputed, never stored independently.
func (r *Registry) OnlineUsers() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.users))
	for id := range r.users {
		out = append(out, id)
	}
	r.mu.RUnlock()

	sort.Strings(out)
	return out
}

// AllClients returns every live client across all users.
func (r *Registry) AllClients() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Client, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}
