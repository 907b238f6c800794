// Package circuit provides a consecutive-failure circuit breaker for calls to
// external systems.
package circuit

import (
	"sync"
	"time"
)

// State is the breaker's position.
type State int

const (
	// Closed lets every call through and counts consecutive failures.
	Closed State = iota
	// Open rejects calls until the cooldown has elapsed.
	Open
	// HalfOpen lets calls through; the next outcome decides between Closed and Open.
	HalfOpen
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	}
	return "unknown"
}

// Transition is the state change caused by one recorded outcome. From equals
// To when nothing changed.
type Transition struct {
	From, To State
}

// Changed reports whether the outcome moved the breaker to a new state.
func (t Transition) Changed() bool { return t.From != t.To }

const (
	// DefaultFailureThreshold is the number of consecutive failures that opens
	// a breaker built without WithFailureThreshold.
	DefaultFailureThreshold = 5
	// DefaultCooldown is how long an open breaker rejects calls before going
	// half-open.
	DefaultCooldown = 30 * time.Second
)

// Breaker opens after a run of consecutive failures. Once the cooldown has
// passed it goes half-open and lets calls through: the first success closes
// it, the first failure opens it again for another cooldown.
type Breaker struct {
	name      string
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithFailureThreshold sets how many consecutive failures open the breaker.
// Non-positive values keep the default.
func WithFailureThreshold(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.threshold = n
		}
	}
}

// WithCooldown sets how long the breaker stays open. Non-positive values keep
// the default.
func WithCooldown(d time.Duration) Option {
	return func(b *Breaker) {
		if d > 0 {
			b.cooldown = d
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) {
		if now != nil {
			b.now = now
		}
	}
}

// New returns a closed breaker named after the upstream it guards.
func New(name string, opts ...Option) *Breaker {
	b := &Breaker{
		name:      name,
		threshold: DefaultFailureThreshold,
		cooldown:  DefaultCooldown,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns the upstream name the breaker was built with.
func (b *Breaker) Name() string { return b.name }

// State returns the current state, moving an open breaker whose cooldown has
// elapsed to HalfOpen.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current()
}

// Allow reports whether a call may be attempted now.
func (b *Breaker) Allow() bool {
	return b.State() != Open
}

// Record feeds one call outcome into the breaker and returns the resulting
// transition.
func (b *Breaker) Record(failed bool) Transition {
	b.mu.Lock()
	defer b.mu.Unlock()

	from := b.current()
	switch {
	case !failed:
		b.failures = 0
		b.state = Closed
	case from == HalfOpen:
		b.open()
	case from == Closed:
		b.failures++
		if b.failures >= b.threshold {
			b.open()
		}
	}
	return Transition{From: from, To: b.state}
}

// current promotes an expired open circuit to half-open. Callers hold mu.
func (b *Breaker) current() State {
	if b.state == Open && !b.now().Before(b.openedAt.Add(b.cooldown)) {
		b.state = HalfOpen
	}
	return b.state
}

func (b *Breaker) open() {
	b.state = Open
	b.openedAt = b.now()
	b.failures = 0
}
