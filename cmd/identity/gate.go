package identity

import (
	"net/http"
	"strings"
)

// Gate resolves the verified user id behind an HTTP request or websocket
// handshake. Implementations never issue credentials; they only recognize
// identities minted elsewhere.
//
// Contract:
//   - a non-empty user id and nil error on success
//   - ErrUnauthenticated (possibly wrapped) when no valid identity is present
type Gate interface {
	UserID(r *http.Request) (string, error)
}

// GateFunc adapts a function to the Gate interface.
type GateFunc func(r *http.Request) (string, error)

// UserID implements Gate.
func (f GateFunc) UserID(r *http.Request) (string, error) { return f(r) }

// StaticGate authorizes requests whose user header matches a fixed allowlist.
// It exists for tests and local development only; production deployments use
// TokenGate.
type StaticGate struct {
	// Header is the request header carrying the user id (default X-Duplex-User).
	Header string

	// Allowed restricts accepted ids. Empty means any non-empty id passes.
	Allowed map[string]struct{}
}

// DefaultUserHeader is the header StaticGate reads when none is configured.
const DefaultUserHeader = "X-Duplex-User"

// NewStaticGate constructs a StaticGate for the given user ids.
func NewStaticGate(userIDs ...string) *StaticGate {
	g := &StaticGate{Header: DefaultUserHeader}
	if len(userIDs) > 0 {
		g.Allowed = make(map[string]struct{}, len(userIDs))
		for _, id := range userIDs {
			id = strings.TrimSpace(id)
			if id != "" {
				g.Allowed[id] = struct{}{}
			}
		}
	}
	return g
}

// UserID implements Gate.
func (g *StaticGate) UserID(r *http.Request) (string, error) {
	if g == nil || r == nil {
		return "", ErrUnauthenticated
	}

	header := g.Header
	if header == "" {
		header = DefaultUserHeader
	}

	id := strings.TrimSpace(r.Header.Get(header))
	if id == "" {
		return "", ErrUnauthenticated
	}
	if g.Allowed != nil {
		if _, ok := g.Allowed[id]; !ok {
			return "", ErrUnauthenticated
		}
	}
	return id, nil
}
