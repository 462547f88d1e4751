package throttle

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"testing"
	"time"
)

// memStore is an in-memory counter backend for throttle tests.
type memStore struct {
	counts  map[string]int64
	expires map[string]time.Duration
	failing bool
}

func newMemStore() *memStore {
	return &memStore{counts: make(map[string]int64), expires: make(map[string]time.Duration)}
}

var errStoreDown = errors.New("store down")

func (s *memStore) Incr(ctx context.Context, key string) (int64, error) {
	if s.failing {
		return 0, errStoreDown
	}
	s.counts[key]++
	return s.counts[key], nil
}

func (s *memStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if s.failing {
		return errStoreDown
	}
	s.expires[key] = ttl
	return nil
}

func (s *memStore) Get(ctx context.Context, key string) (string, error) {
	if s.failing {
		return "", errStoreDown
	}
	count, ok := s.counts[key]
	if !ok {
		return "", nil
	}
	return strconv.FormatInt(count, 10), nil
}

func (s *memStore) Delete(ctx context.Context, key string) error {
	if s.failing {
		return errStoreDown
	}
	delete(s.counts, key)
	return nil
}

func newTestThrottle(store Store, maxAttempts int) *SigninThrottle {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(store, maxAttempts, 15*time.Minute, log)
}

func TestAllowedFreshUsername(t *testing.T) {
	th := newTestThrottle(newMemStore(), 3)
	if !th.Allowed(context.Background(), "alice123") {
		t.Fatal("fresh username should be allowed")
	}
}

func TestBlocksAfterMaxAttempts(t *testing.T) {
	store := newMemStore()
	th := newTestThrottle(store, 3)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		th.RecordFailure(ctx, "alice123")
		if !th.Allowed(ctx, "alice123") {
			t.Fatalf("should still be allowed after %d failures", i+1)
		}
	}
	th.RecordFailure(ctx, "alice123")
	if th.Allowed(ctx, "alice123") {
		t.Fatal("should be blocked after 3 failures")
	}
}

func TestFailuresAreScopedPerUsername(t *testing.T) {
	store := newMemStore()
	th := newTestThrottle(store, 1)
	ctx := context.Background()

	th.RecordFailure(ctx, "alice123")
	if th.Allowed(ctx, "alice123") {
		t.Fatal("alice123 should be blocked")
	}
	if !th.Allowed(ctx, "bob456") {
		t.Fatal("bob456 should be unaffected")
	}
}

func TestResetClearsCounter(t *testing.T) {
	store := newMemStore()
	th := newTestThrottle(store, 1)
	ctx := context.Background()

	th.RecordFailure(ctx, "alice123")
	if th.Allowed(ctx, "alice123") {
		t.Fatal("should be blocked before reset")
	}
	th.Reset(ctx, "alice123")
	if !th.Allowed(ctx, "alice123") {
		t.Fatal("should be allowed after reset")
	}
}

func TestFirstFailureSetsWindowExpiry(t *testing.T) {
	store := newMemStore()
	th := newTestThrottle(store, 3)
	ctx := context.Background()

	th.RecordFailure(ctx, "alice123")
	if ttl := store.expires["signin_attempts:alice123"]; ttl != 15*time.Minute {
		t.Fatalf("expected 15m expiry on first failure, got %v", ttl)
	}
}

func TestStoreOutageDegradesToAllow(t *testing.T) {
	store := newMemStore()
	store.failing = true
	th := newTestThrottle(store, 1)
	ctx := context.Background()

	// Errors must never lock users out, even past the breaker threshold.
	for i := 0; i < 10; i++ {
		if !th.Allowed(ctx, "alice123") {
			t.Fatalf("allowed should degrade open on store error (attempt %d)", i)
		}
		th.RecordFailure(ctx, "alice123")
	}
}

func TestStoreRecoveryResumesCounting(t *testing.T) {
	store := newMemStore()
	th := newTestThrottle(store, 1)
	ctx := context.Background()

	// Trip the breaker with a run of store errors.
	store.failing = true
	for i := 0; i < 6; i++ {
		th.Allowed(ctx, "alice123")
	}
	store.failing = false

	// While the circuit is open nothing is counted against the user.
	th.RecordFailure(ctx, "alice123")
	if !th.Allowed(ctx, "alice123") {
		t.Fatal("open circuit should skip the store and allow")
	}
}
