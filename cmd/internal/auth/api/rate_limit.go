package authapi

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

// loginThrottle is an in-memory per-IP sliding window over credential checks.
//
// It counts attempts rather than failures: a flood of valid logins from one
// address is as suspect as a flood of invalid ones.
type loginThrottle struct {
	mu     sync.Mutex
	byIP   map[string][]time.Time
	limit  int
	window time.Duration
}

func newLoginThrottle(limit int, window time.Duration) *loginThrottle {
	return &loginThrottle{
		byIP:   make(map[string][]time.Time),
		limit:  limit,
		window: window,
	}
}

// allow reports whether another attempt from ip is permitted at time now.
func (t *loginThrottle) allow(ip string, now time.Time) bool {
	if ip == "" || t.limit <= 0 {
		return true
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	cut := now.Add(-t.window)
	events := t.byIP[ip]
	dst := events[:0]
	for _, ts := range events {
		if ts.After(cut) {
			dst = append(dst, ts)
		}
	}

	if len(dst) >= t.limit {
		t.byIP[ip] = dst
		return false
	}

	t.byIP[ip] = append(dst, now)
	return true
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	if retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.FormatInt(int64(retryAfter.Seconds()), 10))
	}
	writeError(w, http.StatusTooManyRequests, "rate_limited", "too many attempts")
}
