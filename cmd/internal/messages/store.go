// Package messages persists direct messages and serves their history.
//
// The realtime relay delivers messages to connected recipients only; this
// package is the durable record a client reads when it reconnects. A
// conversation is the unordered pair of two user ids.
package messages

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInvalidInput marks a save or query with missing fields.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound is returned when no message matches the id.
	ErrNotFound = errors.New("message not found")
)

// Message is the canonical persisted direct message.
type Message struct {
	ID          string    `json:"id"`
	SenderID    string    `json:"senderUserId"`
	RecipientID string    `json:"recipientUserId"`
	Username    string    `json:"username"`
	Content     string    `json:"content"`
	CreatedAt   time.Time `json:"createdAt"`
}

// SaveInput describes a message to persist. The id and timestamp are
// allocated by the store; Now falls back to the wall clock when zero.
type SaveInput struct {
	SenderID    string
	RecipientID string
	Username    string
	Content     string
	Now         time.Time
}

// ListInput queries a two-party conversation.
//
// Results are ordered by id ASC. Message ids are ULIDs, so that order is
// also chronological. AfterID pages forward: only messages with a larger
// id are returned.
type ListInput struct {
	UserID  string
	PeerID  string
	AfterID string
	Limit   int
}

// ListResult is one page of conversation history.
type ListResult struct {
	Messages []Message
	HasMore  bool
}

// Conversation summarizes one peer thread: the other participant and the
// latest message exchanged with them.
type Conversation struct {
	PeerID      string  `json:"peerUserId"`
	LastMessage Message `json:"lastMessage"`
}

// Store persists and queries direct messages.
type Store interface {
	Save(ctx context.Context, in SaveInput) (Message, error)
	GetByID(ctx context.Context, id string) (Message, error)
	ListConversation(ctx context.Context, in ListInput) (ListResult, error)

	// ListConversations returns one summary per peer the user has exchanged
	// messages with, most recent thread first.
	ListConversations(ctx context.Context, userID string) ([]Conversation, error)

	Close() error
}

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
