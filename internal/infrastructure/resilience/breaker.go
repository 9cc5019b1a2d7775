package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("too many requests")
)

// State represents the circuit breaker state
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Settings configures the circuit breaker behavior
type Settings struct {
	// MaxRequests is the number of trial calls admitted while half-open
	MaxRequests uint32
	// Interval clears closed-state counts periodically; zero keeps them forever
	Interval time.Duration
	// Cooldown is how long the breaker stays open before admitting trial calls
	Cooldown time.Duration
	// ReadyToTrip decides whether a failure in the closed state opens the breaker
	ReadyToTrip func(counts Counts) bool
	// IsFailure classifies call errors; context cancellation is never a failure by default
	IsFailure func(err error) bool
	// OnStateChange is called whenever the state changes, outside the lock
	OnStateChange func(name string, from State, to State)
}

// Counts holds the statistics for the current generation
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// Breaker rejects calls to a dependency that keeps failing
type Breaker struct {
	name     string
	settings Settings
	now      func() time.Time

	mu         sync.Mutex
	state      State
	generation uint64
	counts     Counts
	expiry     time.Time
}

// New creates a new circuit breaker with the given settings
func New(name string, settings Settings) *Breaker {
	if settings.MaxRequests == 0 {
		settings.MaxRequests = 1
	}
	if settings.Cooldown == 0 {
		settings.Cooldown = 30 * time.Second
	}
	if settings.ReadyToTrip == nil {
		settings.ReadyToTrip = func(counts Counts) bool {
			return counts.ConsecutiveFailures >= 5
		}
	}
	if settings.IsFailure == nil {
		settings.IsFailure = func(err error) bool {
			return !errors.Is(err, context.Canceled)
		}
	}

	b := &Breaker{
		name:     name,
		settings: settings,
		now:      time.Now,
	}
	b.expiry = b.closedExpiry(b.now())
	return b
}

func (b *Breaker) Name() string {
	return b.name
}

// State returns the current state of the circuit breaker
func (b *Breaker) State() State {
	b.mu.Lock()
	state, _, change := b.refresh(b.now())
	b.mu.Unlock()

	b.notify(change)
	return state
}

// Counts returns a copy of the internal counts
func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts
}

// Do runs fn if the breaker admits it and records the outcome
func (b *Breaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	generation, err := b.admit()
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			b.record(generation, false)
			panic(r)
		}
	}()

	err = fn(ctx)
	b.record(generation, err == nil || !b.settings.IsFailure(err))
	return err
}

// Execute runs fn through b and returns its typed result
func Execute[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := b.Do(ctx, func(ctx context.Context) error {
		var callErr error
		result, callErr = fn(ctx)
		return callErr
	})
	return result, err
}

type transition struct {
	from, to State
	changed  bool
}

func (b *Breaker) admit() (uint64, error) {
	b.mu.Lock()
	state, generation, change := b.refresh(b.now())

	var err error
	switch {
	case state == StateOpen:
		err = ErrCircuitOpen
	case state == StateHalfOpen && b.counts.Requests >= b.settings.MaxRequests:
		err = ErrTooManyRequests
	default:
		b.counts.Requests++
	}
	b.mu.Unlock()

	b.notify(change)
	return generation, err
}

func (b *Breaker) record(generation uint64, success bool) {
	now := b.now()

	b.mu.Lock()
	state, current, change := b.refresh(now)
	if current != generation {
		b.mu.Unlock()
		b.notify(change)
		return
	}

	if success {
		b.counts.TotalSuccesses++
		b.counts.ConsecutiveSuccesses++
		b.counts.ConsecutiveFailures = 0
		if state == StateHalfOpen && b.counts.ConsecutiveSuccesses >= b.settings.MaxRequests {
			change = b.transition(StateClosed, now)
		}
	} else {
		b.counts.TotalFailures++
		b.counts.ConsecutiveFailures++
		b.counts.ConsecutiveSuccesses = 0
		if state == StateHalfOpen || b.settings.ReadyToTrip(b.counts) {
			change = b.transition(StateOpen, now)
		}
	}
	b.mu.Unlock()

	b.notify(change)
}

// refresh applies time-based transitions. Caller holds mu.
func (b *Breaker) refresh(now time.Time) (State, uint64, transition) {
	var change transition
	switch b.state {
	case StateClosed:
		if !b.expiry.IsZero() && now.After(b.expiry) {
			b.generation++
			b.counts = Counts{}
			b.expiry = b.closedExpiry(now)
		}
	case StateOpen:
		if now.After(b.expiry) {
			change = b.transition(StateHalfOpen, now)
		}
	}
	return b.state, b.generation, change
}

// transition moves to state and starts a new generation. Caller holds mu.
func (b *Breaker) transition(state State, now time.Time) transition {
	if b.state == state {
		return transition{}
	}

	prev := b.state
	b.state = state
	b.generation++
	b.counts = Counts{}

	switch state {
	case StateClosed:
		b.expiry = b.closedExpiry(now)
	case StateOpen:
		b.expiry = now.Add(b.settings.Cooldown)
	case StateHalfOpen:
		b.expiry = time.Time{}
	}
	return transition{from: prev, to: state, changed: true}
}

func (b *Breaker) closedExpiry(now time.Time) time.Time {
	if b.settings.Interval <= 0 {
		return time.Time{}
	}
	return now.Add(b.settings.Interval)
}

func (b *Breaker) notify(change transition) {
	if change.changed && b.settings.OnStateChange != nil {
		b.settings.OnStateChange(b.name, change.from, change.to)
	}
}
