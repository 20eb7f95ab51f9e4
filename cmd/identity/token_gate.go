package identity

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// SessionCookieName is the cookie minted by the external auth service.
const SessionCookieName = "duplex_session"

// TokenGate verifies HS256 session tokens minted by the external credential
// service. The token is read from the session cookie or, as a fallback, an
// Authorization bearer header. The "sub" claim is the user id.
//
// Verification only: this gate cannot mint tokens and holds no user secrets
// beyond the shared signing key.
type TokenGate struct {
	key    []byte
	issuer string
}

// minTokenKeyBytes is the minimum accepted HMAC key length.
// 32 bytes matches the HS256 block-size recommendation.
const minTokenKeyBytes = 32

// NewTokenGate constructs a TokenGate. Issuer is optional; when set, tokens
// with a different "iss" claim are rejected.
func NewTokenGate(key []byte, issuer string) (*TokenGate, error) {
	if len(key) < minTokenKeyBytes {
		return nil, fmt.Errorf("identity: token key too short: got=%d min=%d", len(key), minTokenKeyBytes)
	}
	return &TokenGate{key: key, issuer: strings.TrimSpace(issuer)}, nil
}

// UserID implements Gate.
func (g *TokenGate) UserID(r *http.Request) (string, error) {
	if g == nil || r == nil {
		return "", ErrUnauthenticated
	}

	raw := tokenFromRequest(r)
	if raw == "" {
		return "", ErrUnauthenticated
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if g.issuer != "" {
		opts = append(opts, jwt.WithIssuer(g.issuer))
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		return g.key, nil
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}

	sub := strings.TrimSpace(claims.Subject)
	if sub == "" {
		return "", fmt.Errorf("%w: missing sub claim", ErrUnauthenticated)
	}
	return sub, nil
}

func tokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(SessionCookieName); err == nil && c != nil {
		if v := strings.TrimSpace(c.Value); v != "" {
			return v
		}
	} else if err != nil && !errors.Is(err, http.ErrNoCookie) {
		return ""
	}

	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if len(auth) > len(prefix) && strings.EqualFold(auth[:len(prefix)], prefix) {
		return strings.TrimSpace(auth[len(prefix):])
	}
	return ""
}
