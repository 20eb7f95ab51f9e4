package identity

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// User is the read-only profile record exposed to the chat surfaces.
// The id is stable for the lifetime of an account.
type User struct {
	ID                string `json:"id"`
	Username          string `json:"username"`
	ProfilePictureURL string `json:"profile_picture_url,omitempty"`
}

// Directory is the user-lookup boundary. The full contact list derivation
// ("all other users") is owned by the external identity service; the chat
// layer only reads through this interface.
type Directory interface {
	// Lookup returns the user for id, or ErrNotFound.
	Lookup(ctx context.Context, id string) (User, error)

	// Others returns every known user except excludeID, ordered by username.
	Others(ctx context.Context, excludeID string) ([]User, error)
}

// MemoryDirectory is an in-process Directory for dev and tests.
type MemoryDirectory struct {
	mu    sync.RWMutex
	users map[string]User
}

// NewMemoryDirectory constructs a MemoryDirectory seeded with the given users.
func NewMemoryDirectory(users ...User) *MemoryDirectory {
	d := &MemoryDirectory{users: make(map[string]User, len(users))}
	for _, u := range users {
		if strings.TrimSpace(u.ID) == "" {
			continue
		}
		d.users[u.ID] = u
	}
	return d
}

// Put adds or replaces a user record.
func (d *MemoryDirectory) Put(u User) {
	if d == nil || strings.TrimSpace(u.ID) == "" {
		return
	}
	d.mu.Lock()
	d.users[u.ID] = u
	d.mu.Unlock()
}

// Lookup implements Directory.
func (d *MemoryDirectory) Lookup(ctx context.Context, id string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	d.mu.RLock()
	u, ok := d.users[id]
	d.mu.RUnlock()

	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

// Others implements Directory.
func (d *MemoryDirectory) Others(ctx context.Context, excludeID string) ([]User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.RLock()
	out := make([]User, 0, len(d.users))
	for id, u := range d.users {
		if id == excludeID {
			continue
		}
		out = append(out, u)
	}
	d.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Username != out[j].Username {
			return out[i].Username < out[j].Username
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
