package session

import "errors"

var (
	// ErrInvalidToken is returned when an access or refresh token fails
	// signature or claims verification, or when a refresh token is not
	// registered in the store.
	ErrInvalidToken = errors.New("invalid token")

	// ErrInvalidCredentials is returned for login attempts with an unknown
	// email or a wrong password. The two cases are deliberately
	// indistinguishable to the caller.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)
