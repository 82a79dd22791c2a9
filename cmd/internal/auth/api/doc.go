// Package authapi exposes account and two-factor management over HTTP.
//
// It is a thin JSON layer: request decoding, access-token authentication,
// and error mapping live here, while all semantics live in the identity,
// session, and twofactor packages. Authenticated routes read the access
// token from the X-Access-Token header.
package authapi
