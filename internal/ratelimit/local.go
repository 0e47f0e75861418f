package ratelimit

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const localIdleTTL = 10 * time.Minute

type localEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// LocalLimiter is an in-process token bucket per key, used when no Redis is
// configured. Quotas are not shared between instances.
type LocalLimiter struct {
	mu      sync.Mutex
	every   rate.Limit
	burst   int
	entries map[string]*localEntry
	sweepAt time.Time
}

// NewLocalLimiter allows limit requests per window with bursts up to limit.
func NewLocalLimiter(limit int, window time.Duration) (*LocalLimiter, error) {
	if limit <= 0 || window <= 0 {
		return nil, errors.New("rate limiter requires positive limit and window")
	}
	return &LocalLimiter{
		every:   rate.Every(window / time.Duration(limit)),
		burst:   limit,
		entries: make(map[string]*localEntry),
	}, nil
}

// Allow consumes one token for key.
func (l *LocalLimiter) Allow(_ context.Context, key string) bool {
	if l == nil {
		return false
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = "unknown"
	}
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	if now.After(l.sweepAt) {
		for k, e := range l.entries {
			if now.Sub(e.lastSeen) > localIdleTTL {
				delete(l.entries, k)
			}
		}
		l.sweepAt = now.Add(localIdleTTL)
	}
	e, ok := l.entries[key]
	if !ok {
		e = &localEntry{limiter: rate.NewLimiter(l.every, l.burst)}
		l.entries[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}
