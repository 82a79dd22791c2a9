package messages

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"axon/cmd/identity"
)

// PostgresStore is a Store backed by PostgreSQL.
//
// Ownership model:
// - PostgresStore does NOT own the pgx pool. The caller must close the pool.
// - Close() is therefore a no-op.
//
// Schema (created by the embedded migrations):
//
//	CREATE TABLE axon.messages (
//	    id            TEXT PRIMARY KEY,
//	    sender_id     TEXT NOT NULL,
//	    recipient_id  TEXT NOT NULL,
//	    username      TEXT NOT NULL DEFAULT '',
//	    content       TEXT NOT NULL,
//	    created_at    TIMESTAMPTZ NOT NULL
//	);
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures PostgresStore behavior.
type PostgresOption func(*PostgresStore) error

// WithSchema sets the DB schema used by this store (default: "axon").
// The schema name is validated and safely quoted in queries.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("messages: empty schema")
		}
		if !isValidPGIdent(schema) {
			return errors.New("messages: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a Postgres-backed Store.
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
		return nil, errors.New("messages: nil pool")
	}
	return st, nil
}

// Close is a no-op because the pool is owned by the caller.
func (s *PostgresStore) Close() error { return nil }

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func isValidPGIdent(s string) bool { return pgIdentRe.MatchString(s) }

func (s *PostgresStore) table() string {
	return fmt.Sprintf("%q.%q", s.schema, "messages")
}

const messageColumns = `id, sender_id, recipient_id, username, content, created_at`

// Save implements Store.
func (s *PostgresStore) Save(ctx context.Context, in SaveInput) (Message, error) {
	if in.SenderID == "" || in.RecipientID == "" || in.Content == "" {
		return Message{}, ErrInvalidInput
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	id, err := identity.NewULID(now)
	if err != nil {
		return Message{}, err
	}

	msg := Message{
		ID:          id,
		SenderID:    in.SenderID,
		RecipientID: in.RecipientID,
		Username:    in.Username,
		Content:     in.Content,
		CreatedAt:   now,
	}

	q := `INSERT INTO ` + s.table() + ` (` + messageColumns + `) VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := s.pool.Exec(ctx, q,
		msg.ID, msg.SenderID, msg.RecipientID, msg.Username, msg.Content, msg.CreatedAt,
	); err != nil {
		return Message{}, fmt.Errorf("messages: save: %w", err)
	}
	return msg, nil
}

// GetByID implements Store.
func (s *PostgresStore) GetByID(ctx context.Context, id string) (Message, error) {
	if id == "" {
		return Message{}, ErrInvalidInput
	}

	q := `SELECT ` + messageColumns + ` FROM ` + s.table() + ` WHERE id = $1`

	var msg Message
	err := s.pool.QueryRow(ctx, q, id).Scan(
		&msg.ID, &msg.SenderID, &msg.RecipientID, &msg.Username, &msg.Content, &msg.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Message{}, ErrNotFound
	}
	if err != nil {
		return Message{}, fmt.Errorf("messages: get: %w", err)
	}
	return msg, nil
}

// ListConversation implements Store.
func (s *PostgresStore) ListConversation(ctx context.Context, in ListInput) (ListResult, error) {
	if in.UserID == "" || in.PeerID == "" {
		return ListResult{}, ErrInvalidInput
	}

	limit := clampLimit(in.Limit)
	fetch := limit + 1

	q := `SELECT ` + messageColumns + ` FROM ` + s.table() + `
	       WHERE ((sender_id = $1 AND recipient_id = $2) OR (sender_id = $2 AND recipient_id = $1))
	         AND id > $3
	       ORDER BY id ASC
	       LIMIT $4`

	rows, err := s.pool.Query(ctx, q, in.UserID, in.PeerID, in.AfterID, fetch)
	if err != nil {
		return ListResult{}, fmt.Errorf("messages: list: %w", err)
	}
	defer rows.Close()

	out := make([]Message, 0, fetch)
	for rows.Next() {
		var msg Message
		if err := rows.Scan(
			&msg.ID, &msg.SenderID, &msg.RecipientID, &msg.Username, &msg.Content, &msg.CreatedAt,
		); err != nil {
			return ListResult{}, fmt.Errorf("messages: scan: %w", err)
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return ListResult{}, fmt.Errorf("messages: rows: %w", err)
	}

	if len(out) > limit {
		return ListResult{Messages: out[:limit], HasMore: true}, nil
	}
	return ListResult{Messages: out, HasMore: false}, nil
}

// ListConversations implements Store. One row per peer: the latest message
// of each thread, most recent thread first.
func (s *PostgresStore) ListConversations(ctx context.Context, userID string) ([]Conversation, error) {
	if userID == "" {
		return nil, ErrInvalidInput
	}

	q := `SELECT ` + messageColumns + ` FROM (
	        SELECT DISTINCT ON (CASE WHEN sender_id = $1 THEN recipient_id ELSE sender_id END)
	               ` + messageColumns + `
	          FROM ` + s.table() + `
	         WHERE sender_id = $1 OR recipient_id = $1
	         ORDER BY (CASE WHEN sender_id = $1 THEN recipient_id ELSE sender_id END), id DESC
	      ) latest
	      ORDER BY id DESC`

	rows, err := s.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("messages: list conversations: %w", err)
	}
	defer rows.Close()

	out := []Conversation{}
	for rows.Next() {
		var msg Message
		if err := rows.Scan(
			&msg.ID, &msg.SenderID, &msg.RecipientID, &msg.Username, &msg.Content, &msg.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("messages: scan: %w", err)
		}
		peer := msg.SenderID
		if peer == userID {
			peer = msg.RecipientID
		}
		out = append(out, Conversation{PeerID: peer, LastMessage: msg})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("messages: rows: %w", err)
	}
	return out, nil
}
