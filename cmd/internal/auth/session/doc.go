// Package session implements stateless JWT access tokens, server-tracked
// refresh tokens, and the login state machine built on top of them.
//
// Access tokens are short-lived HS256 JWTs that carry the user id and admin
// flag. Refresh tokens are longer-lived HS256 JWTs whose hashes are recorded
// in a RefreshTokenStore at issue time; a refresh token that is absent from
// the store is rejected even when its signature still verifies, which is what
// makes logout effective before expiry.
//
// The Service type ties the token manager, the refresh store, the identity
// store, and the optional second-factor engine into the account operations
// exposed over HTTP: register, login, second-factor login, refresh, logout.
package session
