// Package token provides token hashing primitives for Axon.
//
// It is the single source of truth for refresh-token hashing behavior:
// the refresh-token store never keeps the signed token string itself, only
// a stable 64-char hex digest of it.
//
// Environment:
// - AXON_TOKEN_HMAC_KEY: when set, digests are HMAC-SHA256(token, key);
//   otherwise SHA-256(token) is used for dev/back-compat.
package token
