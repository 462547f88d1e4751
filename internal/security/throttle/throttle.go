package throttle

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/aryan0dhankhar/identityhub/internal/reliability/circuitbreaker"
)

// Store is the counter backend, satisfied by the redis client.
type Store interface {
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}

// SigninThrottle blocks a username after too many failed signin attempts
// within a window. Counters live in redis with a TTL; a circuit breaker
// around the store means a redis outage degrades to allowing signins
// rather than failing them.
type SigninThrottle struct {
	store       Store
	breaker     *circuitbreaker.Breaker
	maxAttempts int
	window      time.Duration
	logger      *slog.Logger
}

// New creates a throttle allowing maxAttempts failures per window.
func New(store Store, maxAttempts int, window time.Duration, logger *slog.Logger) *SigninThrottle {
	if logger == nil {
		logger = slog.Default()
	}
	t := &SigninThrottle{
		store:       store,
		breaker:     circuitbreaker.New(5, 2, 30*time.Second),
		maxAttempts: maxAttempts,
		window:      window,
		logger:      logger,
	}
	t.breaker.OnStateChange(func(from, to circuitbreaker.State) {
		logger.Warn("throttle store circuit state changed",
			slog.String("from", from.String()),
			slog.String("to", to.String()),
		)
	})
	return t
}

// Allowed reports whether the username may attempt a signin now.
func (t *SigninThrottle) Allowed(ctx context.Context, username string) bool {
	if !t.breaker.Allow() {
		return true
	}
	raw, err := t.store.Get(ctx, t.key(username))
	if err != nil {
		t.breaker.Failure()
		return true
	}
	t.breaker.Success()
	if raw == "" {
		return true
	}
	count, err := strconv.Atoi(raw)
	if err != nil {
		return true
	}
	return count < t.maxAttempts
}

// RecordFailure counts one failed attempt against the username.
func (t *SigninThrottle) RecordFailure(ctx context.Context, username string) {
	if !t.breaker.Allow() {
		return
	}
	count, err := t.store.Incr(ctx, t.key(username))
	if err != nil {
		t.breaker.Failure()
		t.logger.Warn("failed to record signin attempt", slog.String("error", err.Error()))
		return
	}
	t.breaker.Success()
	if count == 1 {
		if err := t.store.Expire(ctx, t.key(username), t.window); err != nil {
			t.logger.Warn("failed to expire signin counter", slog.String("error", err.Error()))
		}
	}
}

// Reset clears the counter after a successful signin.
func (t *SigninThrottle) Reset(ctx context.Context, username string) {
	if !t.breaker.Allow() {
		return
	}
	if err := t.store.Delete(ctx, t.key(username)); err != nil {
		t.breaker.Failure()
		return
	}
	t.breaker.Success()
}

func (t *SigninThrottle) key(username string) string {
	return "signin_attempts:" + username
}
