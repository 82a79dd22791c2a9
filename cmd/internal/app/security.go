package app

import (
	"errors"

	"axon/cmd/security/token"
)

// ValidateSecurityConfig enforces the refresh-token hashing policy at startup.
// Fail-fast: silently falling back to weaker crypto in production is unacceptable,
// so when the policy is on, a missing or short HMAC key stops the process.
func ValidateSecurityConfig(cfg Config) error {
	if !cfg.RequireTokenHMAC {
		return nil
	}

	// Minimum 32 bytes for an HMAC-SHA256 secret. Bytes, not runes: the key
	// is used as raw bytes.
	if _, err := token.HMACKeyFromEnv(32); err != nil {
		switch {
		case errors.Is(err, token.ErrHMACKeyMissing):
			return errors.New("security policy: AXON_REQUIRE_TOKEN_HMAC=true but AXON_TOKEN_HMAC_KEY is missing")
		case errors.Is(err, token.ErrHMACKeyTooShort):
			return errors.New("security policy: AXON_REQUIRE_TOKEN_HMAC=true but AXON_TOKEN_HMAC_KEY is too short (min 32 bytes)")
		default:
			return err
		}
	}

	if !token.HMACEnabled() {
		return errors.New("security policy: AXON_REQUIRE_TOKEN_HMAC=true but token hasher is not in HMAC mode")
	}

	return nil
}
