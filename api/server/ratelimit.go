package server

import (
	"sync"
	"time"
)

const rateLimitWindow = 60 * time.Second

// Progressive ban durations
var banDurations = []time.Duration{
	10 * time.Minute,
	1 * time.Hour,
	24 * time.Hour,
}

const permabanDuration = 100 * 365 * 24 * time.Hour // effectively permanent

// rateLimiter is a sliding one-minute window per client. A client that
// exceeds the window is banned, for longer on each repeat violation.
type rateLimiter struct {
	limit int
	now   func() time.Time

	mu        sync.Mutex
	requests  map[string][]time.Time
	banned    map[string]time.Time
	banCounts map[string]int
	lastSweep time.Time
}

func newRateLimiter(perMinute int) *rateLimiter {
	return &rateLimiter{
		limit:     perMinute,
		now:       time.Now,
		requests:  make(map[string][]time.Time),
		banned:    make(map[string]time.Time),
		banCounts: make(map[string]int),
	}
}

// Allow records a request from client and reports whether it may proceed.
// The returned duration is how long the client remains banned.
func (l *rateLimiter) Allow(client string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) >= rateLimitWindow {
		l.sweep(now)
	}
	if expiry, ok := l.banned[client]; ok {
		if now.Before(expiry) {
			return false, expiry.Sub(now)
		}
		delete(l.banned, client)
	}

	// Keep only recent requests
	recent := l.requests[client][:0]
	for _, t := range l.requests[client] {
		if now.Sub(t) < rateLimitWindow {
			recent = append(recent, t)
		}
	}
	recent = append(recent, now)
	if len(recent) <= l.limit {
		l.requests[client] = recent
		return true, 0
	}

	delete(l.requests, client)
	l.banCounts[client]++
	dur := permabanDuration
	if n := l.banCounts[client]; n <= len(banDurations) {
		dur = banDurations[n-1]
	}
	l.banned[client] = now.Add(dur)
	return false, dur
}

// sweep drops clients with no request inside the window and expired bans.
// Ban counts are kept so repeat offenders still escalate.
func (l *rateLimiter) sweep(now time.Time) {
	l.lastSweep = now
	for client, times := range l.requests {
		if len(times) == 0 || now.Sub(times[len(times)-1]) >= rateLimitWindow {
			delete(l.requests, client)
		}
	}
	for client, expiry := range l.banned {
		if !now.Before(expiry) {
			delete(l.banned, client)
		}
	}
}

// Tracked reports how many clients have requests inside the window.
func (l *rateLimiter) Tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.requests)
}

// Banned reports how many clients are currently banned.
func (l *rateLimiter) Banned() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	n := 0
	for _, expiry := range l.banned {
		if now.Before(expiry) {
			n++
		}
	}
	return n
}
