package identity

import "errors"

// ErrUnauthenticated is returned by a Gate when a request carries no valid,
// already-verified identity. Callers map it to HTTP 401 and never retry.
var ErrUnauthenticated = errors.New("identity: unauthenticated")

// ErrNotFound is returned by a Directory when a user id is unknown.
var ErrNotFound = errors.New("identity: user not found")

// IsUnauthenticated reports whether err represents ErrUnauthenticated.
func IsUnauthenticated(err error) bool { return errors.Is(err, ErrUnauthenticated) }
