package messages

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
)

// Integration tests are enabled when AXON_DATABASE_URL is set.
// The target database must already carry the migrated axon schema.

func newIntegrationStore(ctx context.Context, t *testing.T) (*PostgresStore, *pgxpool.Pool) {
	t.Helper()

	dbURL := os.Getenv("AXON_DATABASE_URL")
	if dbURL == "" {
		t.Skip("AXON_DATABASE_URL is not set; skipping Postgres integration test")
	}

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("pgxpool.New: %v", err)
	}
	t.Cleanup(pool.Close)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		t.Skipf("Postgres unreachable: %v", err)
	}

	store, err := NewPostgresStore(pool)
	if err != nil {
		t.Fatalf("NewPostgresStore: %v", err)
	}
	return store, pool
}

func TestPostgresStore_SaveGetList(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, pool := newIntegrationStore(ctx, t)

	sender := ulid.Make().String()
	recipient := ulid.Make().String()
	t.Cleanup(func() {
		_, _ = pool.Exec(ctx, `DELETE FROM axon.messages WHERE sender_id = $1 OR recipient_id = $1`, sender)
	})

	var lastID string
	for i := 0; i < 3; i++ {
		msg, err := store.Save(ctx, SaveInput{
			SenderID:    sender,
			RecipientID: recipient,
			Username:    "navid",
			Content:     "integration message",
			Now:         time.Now().UTC().Add(time.Duration(i) * time.Millisecond),
		})
		if err != nil {
			t.Fatalf("Save: %v", err)
		}
		lastID = msg.ID
	}

	got, err := store.GetByID(ctx, lastID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.SenderID != sender || got.Content != "integration message" {
		t.Fatalf("unexpected message: %+v", got)
	}

	res, err := store.ListConversation(ctx, ListInput{UserID: recipient, PeerID: sender, Limit: 2})
	if err != nil {
		t.Fatalf("ListConversation: %v", err)
	}
	if len(res.Messages) != 2 || !res.HasMore {
		t.Fatalf("expected a truncated first page, got %d hasMore=%v", len(res.Messages), res.HasMore)
	}

	rest, err := store.ListConversation(ctx, ListInput{
		UserID:  recipient,
		PeerID:  sender,
		AfterID: res.Messages[1].ID,
		Limit:   10,
	})
	if err != nil {
		t.Fatalf("ListConversation page 2: %v", err)
	}
	if len(rest.Messages) != 1 || rest.HasMore {
		t.Fatalf("expected the final page, got %d hasMore=%v", len(rest.Messages), rest.HasMore)
	}
}

func TestPostgresStore_ListConversations(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, pool := newIntegrationStore(ctx, t)

	me := ulid.Make().String()
	peerA := ulid.Make().String()
	peerB := ulid.Make().String()
	t.Cleanup(func() {
		_, _ = pool.Exec(ctx, `DELETE FROM axon.messages WHERE sender_id = $1 OR recipient_id = $1`, me)
	})

	base := time.Now().UTC()
	seed := []SaveInput{
		{SenderID: me, RecipientID: peerA, Content: "first to A", Now: base},
		{SenderID: peerA, RecipientID: me, Content: "reply from A", Now: base.Add(time.Millisecond)},
		{SenderID: peerB, RecipientID: me, Content: "hello from B", Now: base.Add(2 * time.Millisecond)},
	}
	for i, in := range seed {
		if _, err := store.Save(ctx, in); err != nil {
			t.Fatalf("Save %d: %v", i, err)
		}
	}

	convs, err := store.ListConversations(ctx, me)
	if err != nil {
		t.Fatalf("ListConversations: %v", err)
	}
	if len(convs) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(convs))
	}
	if convs[0].PeerID != peerB || convs[0].LastMessage.Content != "hello from B" {
		t.Fatalf("expected the freshest thread first, got %+v", convs[0])
	}
	if convs[1].PeerID != peerA || convs[1].LastMessage.Content != "reply from A" {
		t.Fatalf("expected the latest message per thread, got %+v", convs[1])
	}
}

func TestPostgresStore_GetUnknownID(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, _ := newIntegrationStore(ctx, t)

	if _, err := store.GetByID(ctx, ulid.Make().String()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
