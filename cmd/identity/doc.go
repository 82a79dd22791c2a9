// Package identity implements Axon's identity & authentication foundation.
//
// It contains security primitives (ULID, password hashing), the canonical
// user model including two-factor state, and the store interfaces used by
// the HTTP and WebSocket layers.
//
// This package is intentionally dependency-light and security-first.
package identity
