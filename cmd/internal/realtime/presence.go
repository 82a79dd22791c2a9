package realtime

import (
	"sync"
)

// Presence tracks which users are connected and through which sessions.
//
// A user may hold several sessions at once (multiple tabs or devices); each
// session is delivered to independently. Lookup returns a snapshot so the
// caller can enqueue without holding the registry lock.
type Presence struct {
	mu sync.RWMutex

	// byUser maps user id -> session id -> client.
	byUser map[string]map[string]*Client

	// bySession maps session id -> user id, for O(1) removal on disconnect.
	bySession map[string]string
}

// NewPresence constructs an empty Presence registry.
func NewPresence() *Presence {
	return &Presence{
		byUser:    make(map[string]map[string]*Client),
		bySession: make(map[string]string),
	}
}

// Register adds a client's session to the registry.
// Re-registering the same session replaces the previous entry.
func (p *Presence) Register(c *Client) {
	if c == nil || c.UserID == "" || c.SessionID == "" {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if prevUser, ok := p.bySession[c.SessionID]; ok && prevUser != c.UserID {
		if sessions := p.byUser[prevUser]; sessions != nil {
			delete(sessions, c.SessionID)
			if len(sessions) == 0 {
				delete(p.byUser, prevUser)
			}
		}
	}

	sessions := p.byUser[c.UserID]
	if sessions == nil {
		sessions = make(map[string]*Client)
		p.byUser[c.UserID] = sessions
	}
	sessions[c.SessionID] = c
	p.bySession[c.SessionID] = c.UserID
}

// Remove drops a session from the registry. Unknown sessions are a no-op.
func (p *Presence) Remove(sessionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	userID, ok := p.bySession[sessionID]
	if !ok {
		return
	}
	delete(p.bySession, sessionID)

	if sessions := p.byUser[userID]; sessions != nil {
		delete(sessions, sessionID)
		if len(sessions) == 0 {
			delete(p.byUser, userID)
		}
	}
}

// Lookup returns all live sessions for a user. The slice is a snapshot; the
// registry may change immediately after it is taken.
func (p *Presence) Lookup(userID string) []*Client {
	p.mu.RLock()
	defer p.mu.RUnlock()

	sessions := p.byUser[userID]
	if len(sessions) == 0 {
		return nil
	}
	out := make([]*Client, 0, len(sessions))
	for _, c := range sessions {
		out = append(out, c)
	}
	return out
}

// Online reports whether the user has at least one live session.
func (p *Presence) Online(userID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.byUser[userID]) > 0
}

// Count returns the number of live sessions across all users.
func (p *Presence) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.bySession)
}

// CountUsers returns the number of distinct online users.
func (p *Presence) CountUsers() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.byUser)
}
