package twofactor

import "errors"

var (
	// ErrInvalidCode is returned when a TOTP code does not match the
	// account's secret within the accepted window.
	ErrInvalidCode = errors.New("invalid two-factor code")

	// ErrNotProvisioned is returned when a code is confirmed or challenged
	// before GenerateSetup stored a secret.
	ErrNotProvisioned = errors.New("two-factor not provisioned")

	// ErrNotEnabled is returned by Challenge when the account has a secret
	// but never confirmed it.
	ErrNotEnabled = errors.New("two-factor not enabled")

	// ErrAlreadyEnabled is returned when GenerateSetup would overwrite the
	// secret of an account that is actively using it.
	ErrAlreadyEnabled = errors.New("two-factor already enabled")
)
