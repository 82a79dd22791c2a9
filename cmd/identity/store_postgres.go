package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements identity persistence over PostgreSQL.
//
// Design notes:
// - The pgx pool is owned by the caller; this store must NOT close it.
// - Schema/table identifiers are safely quoted to avoid SQL injection via identifiers.
// - Uniqueness conflicts are mapped to ConflictError with a stable logical field name.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the Postgres schema used by the identity store (default "axon").
// The schema name is validated to be a legal PostgreSQL identifier.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("identity: empty schema")
		}
		if !pgIdentIsValid(schema) {
			return fmt.Errorf("identity: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore with secure defaults.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "axon",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	return st, nil
}

const userColumns = `id, username, username_norm, email, email_norm,
	   password_hash, is_admin, two_factor_secret, two_factor_enabled,
	   two_factor_backup_codes, created_at`

// CreateUser creates a new user row with a hashed password.
func (s *PostgresStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	if s == nil || s.pool == nil {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	username := strings.TrimSpace(in.Username)
	email := strings.TrimSpace(in.Email)
	if username == "" || email == "" || strings.TrimSpace(in.Password) == "" {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "username, email and password are required"}
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return User{}, err
	}

	id, err := NewULID(now)
	if err != nil {
		return User{}, err
	}

	u := User{
		ID:           id,
		Username:     username,
		UsernameNorm: NormalizeUsername(username),
		Email:        email,
		EmailNorm:    NormalizeEmail(email),
		PasswordHash: hash,
		IsAdmin:      in.IsAdmin,
		CreatedAt:    now,
	}

	users := pgIdent(s.schema, "users")

	_, err = s.pool.Exec(ctx,
		`INSERT INTO `+users+` (
		     id, username, username_norm, email, email_norm,
		     password_hash, is_admin, two_factor_secret, two_factor_enabled,
		     two_factor_backup_codes, created_at
		   ) VALUES ($1, $2, $3, $4, $5, $6, $7, '', FALSE, '{}', $8)`,
		u.ID, u.Username, u.UsernameNorm, u.Email, u.EmailNorm,
		u.PasswordHash, u.IsAdmin, u.CreatedAt,
	)
	if err != nil {
		if field, ok := uniqueViolationField(err); ok {
			return User{}, ConflictError{Op: op, Field: field}
		}
		return User{}, fmt.Errorf("%s: %w", op, err)
	}

	return u, nil
}

// GetUserByID returns the user with the given id.
func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (User, error) {
	return s.getUser(ctx, "identity.GetUserByID", `id = $1`, id)
}

// GetUserByEmail performs a case-insensitive email lookup.
func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return s.getUser(ctx, "identity.GetUserByEmail", `email_norm = $1`, NormalizeEmail(email))
}

// GetUserByUsername performs a case-insensitive username lookup.
func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (User, error) {
	return s.getUser(ctx, "identity.GetUserByUsername", `username_norm = $1`, NormalizeUsername(username))
}

func (s *PostgresStore) getUser(ctx context.Context, op, where string, arg any) (User, error) {
	if s == nil || s.pool == nil {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	users := pgIdent(s.schema, "users")

	var u User
	err := s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM `+users+` WHERE `+where, arg,
	).Scan(
		&u.ID, &u.Username, &u.UsernameNorm, &u.Email, &u.EmailNorm,
		&u.PasswordHash, &u.IsAdmin, &u.TwoFactorSecret, &u.TwoFactorEnabled,
		&u.BackupCodes, &u.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}
	if err != nil {
		return User{}, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// SetTwoFactorSecret stores a provisioned (not yet enabled) secret.
func (s *PostgresStore) SetTwoFactorSecret(ctx context.Context, userID, secret string) error {
	return s.updateUser(ctx, "identity.SetTwoFactorSecret",
		`two_factor_secret = $2`, userID, secret)
}

// SetTwoFactorEnabled flips the enablement gate.
func (s *PostgresStore) SetTwoFactorEnabled(ctx context.Context, userID string, enabled bool) error {
	return s.updateUser(ctx, "identity.SetTwoFactorEnabled",
		`two_factor_enabled = $2`, userID, enabled)
}

// ClearTwoFactor removes all two-factor state for the user.
func (s *PostgresStore) ClearTwoFactor(ctx context.Context, userID string) error {
	return s.updateUser(ctx, "identity.ClearTwoFactor",
		`two_factor_secret = '', two_factor_enabled = FALSE, two_factor_backup_codes = '{}'`,
		userID)
}

// SetBackupCodes replaces the full backup-code set.
func (s *PostgresStore) SetBackupCodes(ctx context.Context, userID string, codes []string) error {
	if codes == nil {
		codes = []string{}
	}
	return s.updateUser(ctx, "identity.SetBackupCodes",
		`two_factor_backup_codes = $2`, userID, codes)
}

func (s *PostgresStore) updateUser(ctx context.Context, op, set, userID string, args ...any) error {
	if s == nil || s.pool == nil {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	users := pgIdent(s.schema, "users")

	tag, err := s.pool.Exec(ctx,
		`UPDATE `+users+` SET `+set+` WHERE id = $1`,
		append([]any{userID}, args...)...,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return NotFoundError{Op: op, Resource: "user"}
	}
	return nil
}

// pgIdentIsValid checks if a string is a safe Postgres identifier.
func pgIdentIsValid(s string) bool {
	return pgIdentRe.MatchString(s)
}

// pgIdent safely quotes a schema-qualified identifier: "schema"."name".
func pgIdent(schema, name string) string {
	return `"` + schema + `"."` + name + `"`
}

// uniqueViolationField maps a unique_violation to a stable logical field name.
func uniqueViolationField(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	if pgErr.Code != "23505" { // unique_violation
		return "", false
	}

	c := strings.ToLower(strings.TrimSpace(pgErr.ConstraintName))
	switch {
	case strings.Contains(c, "email"):
		return "email", true
	case strings.Contains(c, "username"):
		return "username", true
	default:
		return "unique", true
	}
}
