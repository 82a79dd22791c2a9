package messages

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"axon/cmd/identity"
)

const memMaxMessagesPerConversation = 10_000

// MemoryStore is an in-process Store for single-instance deployments and
// tests. History is bounded per conversation; the oldest messages fall off.
type MemoryStore struct {
	mu    sync.Mutex
	byID  map[string]Message
	convs map[string][]Message // conversation key -> messages ordered by id ASC
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:  make(map[string]Message),
		convs: make(map[string][]Message),
	}
}

// Close implements Store (noop for in-memory).
func (s *MemoryStore) Close() error { return nil }

// conversationKey is the unordered pair of the two participants.
func conversationKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}

// Save implements Store.
func (s *MemoryStore) Save(ctx context.Context, in SaveInput) (Message, error) {
	if in.SenderID == "" || in.RecipientID == "" || in.Content == "" {
		return Message{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Message{}, err
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

	key := conversationKey(in.SenderID, in.RecipientID)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.byID[msg.ID] = msg
	conv := append(s.convs[key], msg)
	if len(conv) > memMaxMessagesPerConversation {
		for _, old := range conv[:len(conv)-memMaxMessagesPerConversation] {
			delete(s.byID, old.ID)
		}
		conv = conv[len(conv)-memMaxMessagesPerConversation:]
	}
	s.convs[key] = conv

	return msg, nil
}

// GetByID implements Store.
func (s *MemoryStore) GetByID(ctx context.Context, id string) (Message, error) {
	if id == "" {
		return Message{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.byID[id]
	if !ok {
		return Message{}, ErrNotFound
	}
	return msg, nil
}

// ListConversation implements Store.
func (s *MemoryStore) ListConversation(ctx context.Context, in ListInput) (ListResult, error) {
	if in.UserID == "" || in.PeerID == "" {
		return ListResult{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return ListResult{}, err
	}

	limit := clampLimit(in.Limit)

	s.mu.Lock()
	snap := append([]Message(nil), s.convs[conversationKey(in.UserID, in.PeerID)]...)
	s.mu.Unlock()

	// ULIDs allocated within the same millisecond are not guaranteed to be
	// appended in sorted order.
	sort.Slice(snap, func(i, j int) bool { return snap[i].ID < snap[j].ID })

	if in.AfterID != "" {
		i := sort.Search(len(snap), func(i int) bool { return snap[i].ID > in.AfterID })
		snap = snap[i:]
	}

	if len(snap) > limit {
		return ListResult{Messages: snap[:limit], HasMore: true}, nil
	}
	return ListResult{Messages: snap, HasMore: false}, nil
}

// ListConversations implements Store.
func (s *MemoryStore) ListConversations(ctx context.Context, userID string) ([]Conversation, error) {
	if userID == "" {
		return nil, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	out := make([]Conversation, 0, len(s.convs))
	for key, conv := range s.convs {
		if len(conv) == 0 {
			continue
		}
		a, b, ok := strings.Cut(key, "|")
		if !ok {
			continue
		}
		var peer string
		switch userID {
		case a:
			peer = b
		case b:
			peer = a
		default:
			continue
		}

		last := conv[0]
		for _, m := range conv[1:] {
			if m.ID > last.ID {
				last = m
			}
		}
		out = append(out, Conversation{PeerID: peer, LastMessage: last})
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].LastMessage.ID > out[j].LastMessage.ID })
	return out, nil
}
