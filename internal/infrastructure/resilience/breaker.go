package resilience

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrTrialInFlight is returned while a half-open breaker waits on its trial call
	ErrTrialInFlight = errors.New("circuit breaker trial in flight")
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

// Settings configures a Breaker
type Settings struct {
	// Threshold is the number of consecutive failures that opens the
	// breaker. Default 3.
	Threshold uint32
	// Cooldown is how long the breaker stays open before letting one
	// trial call through. Default 30s.
	Cooldown time.Duration
	// IsFailure decides whether an error counts against the breaker.
	// Errors it rejects are returned unchanged and count as neither outcome.
	IsFailure func(err error) bool
	// OnStateChange is called after each transition, outside the lock
	OnStateChange func(name string, from, to State)
}

// Breaker opens after repeated failures and recovers through a single
// half-open trial call
type Breaker struct {
	name     string
	settings Settings
	now      func() time.Time

	mu       sync.Mutex
	state    State
	failures uint32
	openedAt time.Time
	probing  bool
	// epoch changes on every transition so outcomes of calls admitted
	// before it are dropped
	epoch uint64
}

// New creates a closed breaker
func New(name string, settings Settings) *Breaker {
	if settings.Threshold == 0 {
		settings.Threshold = 3
	}
	if settings.Cooldown <= 0 {
		settings.Cooldown = 30 * time.Second
	}
	if settings.IsFailure == nil {
		settings.IsFailure = func(err error) bool { return err != nil }
	}
	return &Breaker{name: name, settings: settings, now: time.Now}
}

// Name returns the breaker name
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current state, moving an expired open breaker to
// half-open
func (b *Breaker) State() State {
	b.mu.Lock()
	state, notify := b.refresh()
	b.mu.Unlock()
	notify()
	return state
}

// Failures returns the current run of consecutive failures
func (b *Breaker) Failures() uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Do runs fn through b. A nil breaker runs fn directly.
func Do[T any](b *Breaker, fn func() (T, error)) (T, error) {
	if b == nil {
		return fn()
	}

	var zero T
	done, err := b.Allow()
	if err != nil {
		return zero, err
	}

	defer func() {
		if p := recover(); p != nil {
			done(errPanicked)
			panic(p)
		}
	}()

	result, err := fn()
	done(err)
	return result, err
}

var errPanicked = errors.New("panicked")

// Allow admits one call. The returned function must be called exactly once
// with the call's outcome.
func (b *Breaker) Allow() (func(err error), error) {
	b.mu.Lock()
	state, notify := b.refresh()
	switch {
	case state == StateOpen:
		b.mu.Unlock()
		notify()
		return nil, ErrCircuitOpen
	case state == StateHalfOpen && b.probing:
		b.mu.Unlock()
		notify()
		return nil, ErrTrialInFlight
	case state == StateHalfOpen:
		b.probing = true
	}
	epoch := b.epoch
	b.mu.Unlock()
	notify()

	var once sync.Once
	return func(err error) {
		once.Do(func() { b.record(epoch, err) })
	}, nil
}

// Reset forces the breaker closed, e.g. after the session is rebuilt
func (b *Breaker) Reset() {
	b.mu.Lock()
	notify := b.transition(StateClosed)
	b.failures = 0
	b.mu.Unlock()
	notify()
}

func (b *Breaker) record(epoch uint64, err error) {
	b.mu.Lock()
	if epoch != b.epoch {
		b.mu.Unlock()
		return
	}

	notify := func() {}
	switch {
	case err == nil:
		b.failures = 0
		if b.state == StateHalfOpen {
			notify = b.transition(StateClosed)
		}
	case err == errPanicked || b.settings.IsFailure(err):
		b.failures++
		if b.state == StateHalfOpen || b.failures >= b.settings.Threshold {
			notify = b.transition(StateOpen)
		}
	default:
		// not counted; a half-open breaker admits another trial call
		b.probing = false
	}
	b.mu.Unlock()
	notify()
}

// refresh must run with mu held
func (b *Breaker) refresh() (State, func()) {
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.settings.Cooldown {
		return StateHalfOpen, b.transition(StateHalfOpen)
	}
	return b.state, func() {}
}

// transition must run with mu held; the returned func fires the callback
// and must be called after unlocking
func (b *Breaker) transition(to State) func() {
	from := b.state
	if from == to {
		return func() {}
	}

	b.state = to
	b.epoch++
	b.probing = false
	switch to {
	case StateOpen:
		b.openedAt = b.now()
	case StateClosed:
		b.failures = 0
	}

	cb := b.settings.OnStateChange
	if cb == nil {
		return func() {}
	}
	return func() { cb(b.name, from, to) }
}
