package ratelimit

import (
	"sync"
	"time"
)

// Limiter applies a sliding-window request limit per client key
// (typically the remote address on credential endpoints).
type Limiter struct {
	mu      sync.Mutex
	clients map[string]*window
	maxReqs int
	period  time.Duration
	sweep   *time.Ticker
}

type window struct {
	requests []time.Time
	lastSeen time.Time
}

// NewLimiter creates a limiter allowing maxRequests per period per key.
func NewLimiter(maxRequests int, period time.Duration) *Limiter {
	l := &Limiter{
		clients: make(map[string]*window),
		maxReqs: maxRequests,
		period:  period,
		sweep:   time.NewTicker(5 * time.Minute),
	}
	go l.sweepStale()
	return l
}

// Allow reports whether the key may make another request now. An empty
// key is never limited.
func (l *Limiter) Allow(key string) bool {
	if key == "" {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	w, ok := l.clients[key]
	if !ok {
		w = &window{}
		l.clients[key] = w
	}

	cutoff := now.Add(-l.period)
	kept := w.requests[:0]
	for _, t := range w.requests {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	w.requests = kept
	w.lastSeen = now

	if len(w.requests) >= l.maxReqs {
		return false
	}
	w.requests = append(w.requests, now)
	return true
}

func (l *Limiter) sweepStale() {
	for range l.sweep.C {
		l.mu.Lock()
		stale := time.Now().Add(-15 * time.Minute)
		for key, w := range l.clients {
			if w.lastSeen.Before(stale) {
				delete(l.clients, key)
			}
		}
		l.mu.Unlock()
	}
}

// Stop halts the background sweep.
func (l *Limiter) Stop() {
	l.sweep.Stop()
}
