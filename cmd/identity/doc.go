// Package identity is the Duplex identity-gate boundary.
//
// Credential issuance and verification (signup, login, password hashing,
// session minting) live outside this repository. This package only consumes
// an already-verified identity: it extracts a user id from a request or
// websocket handshake, and exposes a read-only user directory for the
// contacts and chat-partner surfaces.
//
// This package is intentionally dependency-light and security-first.
package identity
