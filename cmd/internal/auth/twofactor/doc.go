// Package twofactor implements TOTP second-factor enrollment and challenges.
//
// Enrollment is a two-step handshake: GenerateSetup provisions a secret and
// returns the otpauth URI for the authenticator app, and ConfirmSetup flips
// the account to enabled only after the user proves possession with a valid
// code. Until that confirmation the secret is inert and logins stay
// single-factor.
//
// Codes are accepted within a small step window around the current time to
// tolerate clock drift between the server and the authenticator device.
package twofactor
