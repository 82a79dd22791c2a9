package session

import (
	"os"
	"time"
)

// Config defines all runtime configuration for the session subsystem.
//
// It controls access- and refresh-token lifetimes, clock skew tolerance,
// and the HMAC signing keys. The struct is intentionally explicit and
// environment-driven so that production deployments can tune security
// parameters without code changes.
type Config struct {
	// Issuer is the value set in the "iss" claim of issued tokens.
	Issuer string

	// AccessTokenTTL defines the lifetime of access tokens.
	AccessTokenTTL time.Duration

	// RefreshTokenTTL defines the lifetime of refresh tokens.
	RefreshTokenTTL time.Duration

	// ClockSkew defines the allowed time skew during token validation.
	ClockSkew time.Duration

	// AccessSigningKey is the HS256 key for access tokens.
	AccessSigningKey []byte

	// RefreshSigningKey is the HS256 key for refresh tokens.
	// When empty, AccessSigningKey is used for both.
	RefreshSigningKey []byte
}

// DefaultConfig returns a configuration suitable for development.
// Signing keys are not defaulted and must always be supplied.
func DefaultConfig() Config {
	return Config{
		Issuer:          "axon",
		AccessTokenTTL:  time.Hour,
		RefreshTokenTTL: 7 * 24 * time.Hour,
		ClockSkew:       30 * time.Second,
	}
}

// LoadConfigFromEnv loads session configuration from environment variables.
//
// Required:
//   - AXON_TOKEN_KEY
//
// Optional (durations must be valid Go duration strings):
//   - AXON_REFRESH_TOKEN_KEY (falls back to AXON_TOKEN_KEY when unset)
//   - AXON_AUTH_ISSUER
//   - AXON_AUTH_ACCESS_TTL
//   - AXON_AUTH_REFRESH_TTL
//   - AXON_AUTH_CLOCK_SKEW
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	key := os.Getenv("AXON_TOKEN_KEY")
	if key == "" {
		return Config{}, ErrConfig
	}
	cfg.AccessSigningKey = []byte(key)

	if v := os.Getenv("AXON_REFRESH_TOKEN_KEY"); v != "" {
		cfg.RefreshSigningKey = []byte(v)
	}

	if v := os.Getenv("AXON_AUTH_ISSUER"); v != "" {
		cfg.Issuer = v
	}

	if v := os.Getenv("AXON_AUTH_ACCESS_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.AccessTokenTTL = d
	}

	if v := os.Getenv("AXON_AUTH_REFRESH_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.RefreshTokenTTL = d
	}

	if v := os.Getenv("AXON_AUTH_CLOCK_SKEW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return Config{}, ErrConfig
		}
		cfg.ClockSkew = d
	}

	return cfg, cfg.Validate()
}

// Validate checks the configuration for internal consistency.
func (c Config) Validate() error {
	if len(c.AccessSigningKey) == 0 {
		return ErrConfig
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		return ErrConfig
	}
	if c.RefreshTokenTTL < c.AccessTokenTTL {
		return ErrConfig
	}
	if c.ClockSkew < 0 {
		return ErrConfig
	}
	return nil
}

// refreshKey returns the effective refresh signing key.
func (c Config) refreshKey() []byte {
	if len(c.RefreshSigningKey) > 0 {
		return c.RefreshSigningKey
	}
	return c.AccessSigningKey
}
