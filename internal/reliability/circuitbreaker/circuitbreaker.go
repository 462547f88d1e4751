package circuitbreaker

import (
	"sync"
	"time"
)

// State represents the circuit breaker state
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Breaker fast-fails calls to a dependency that keeps erroring. After
// failureThreshold consecutive failures the circuit opens; once the
// cooldown elapses a probe request is let through, and successThreshold
// consecutive probe successes close the circuit again.
type Breaker struct {
	mu               sync.Mutex
	state            State
	failures         int
	successes        int
	openedAt         time.Time
	failureThreshold int
	successThreshold int
	cooldown         time.Duration
	onStateChange    func(from, to State)
}

// New creates a breaker in the closed state.
func New(failureThreshold, successThreshold int, cooldown time.Duration) *Breaker {
	return &Breaker{
		state:            StateClosed,
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		cooldown:         cooldown,
	}
}

// OnStateChange registers a callback invoked on every transition.
func (b *Breaker) OnStateChange(fn func(from, to State)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onStateChange = fn
}

// Allow reports whether a call may proceed, transitioning open circuits
// to half-open once the cooldown has elapsed.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed, StateHalfOpen:
		return true
	default:
		if time.Since(b.openedAt) > b.cooldown {
			b.transition(StateHalfOpen)
			b.failures = 0
			b.successes = 0
			return true
		}
		return false
	}
}

// Success records a successful call.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.successThreshold {
			b.transition(StateClosed)
			b.failures = 0
			b.successes = 0
		}
	}
}

// Failure records a failed call, possibly tripping the circuit open.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.failureThreshold {
			b.trip()
		}
	case StateHalfOpen:
		b.trip()
	}
}

// CurrentState returns the state at the time of the call.
func (b *Breaker) CurrentState() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) trip() {
	b.transition(StateOpen)
	b.openedAt = time.Now()
	b.failures = 0
	b.successes = 0
}

func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if b.onStateChange != nil {
		b.onStateChange(from, to)
	}
}
