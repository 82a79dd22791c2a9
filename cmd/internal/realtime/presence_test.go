package realtime

import "testing"

func TestPresence_RegisterLookupRemove(t *testing.T) {
	p := NewPresence()

	a1 := NewClient("s1", "alice", "alice", 8)
	a2 := NewClient("s2", "alice", "alice", 8)
	b1 := NewClient("s3", "bob", "bob", 8)

	p.Register(a1)
	p.Register(a2)
	p.Register(b1)

	if got := len(p.Lookup("alice")); got != 2 {
		t.Fatalf("expected 2 sessions for alice, got %d", got)
	}
	if got := len(p.Lookup("bob")); got != 1 {
		t.Fatalf("expected 1 session for bob, got %d", got)
	}
	if p.Count() != 3 || p.CountUsers() != 2 {
		t.Fatalf("counts: sessions=%d users=%d", p.Count(), p.CountUsers())
	}

	p.Remove("s1")
	if got := len(p.Lookup("alice")); got != 1 {
		t.Fatalf("expected 1 session after removal, got %d", got)
	}
	if !p.Online("alice") {
		t.Fatalf("alice still has a live session")
	}

	p.Remove("s2")
	if p.Online("alice") {
		t.Fatalf("alice should be offline")
	}
	if p.Lookup("alice") != nil {
		t.Fatalf("expected nil lookup for offline user")
	}
	if p.CountUsers() != 1 {
		t.Fatalf("expected bob to remain, users=%d", p.CountUsers())
	}
}

func TestPresence_RemoveUnknownSession(t *testing.T) {
	p := NewPresence()
	p.Remove("never-registered")

	if p.Count() != 0 {
		t.Fatalf("expected empty registry")
	}
}

func TestPresence_ReregisterSameSession(t *testing.T) {
	p := NewPresence()

	first := NewClient("s1", "alice", "alice", 8)
	second := NewClient("s1", "alice", "alice", 8)

	p.Register(first)
	p.Register(second)

	if p.Count() != 1 {
		t.Fatalf("re-registration must replace, not duplicate: %d", p.Count())
	}
	if got := p.Lookup("alice"); len(got) != 1 || got[0] != second {
		t.Fatalf("expected the latest client to win")
	}
}

func TestPresence_IgnoresIncompleteClients(t *testing.T) {
	p := NewPresence()

	p.Register(nil)
	p.Register(NewClient("", "alice", "alice", 8))
	p.Register(NewClient("s1", "", "", 8))

	if p.Count() != 0 {
		t.Fatalf("expected nothing registered, got %d", p.Count())
	}
}
