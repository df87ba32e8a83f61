// Package breaker implements the circuit breaker protecting every outbound
// unreliable call: timeout, failure-rate tracking over a rolling window, and
// a registered fallback so callers proceed in degraded mode.
package breaker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"chatgate/internal/platform/metrics"
)

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
		return "half_open"
	case StateOpen:
		return "open"
	}
	return "unknown"
}

var (
	// ErrOpenState is returned when a call is rejected without being executed.
	ErrOpenState = errors.New("breaker is open")
	// ErrTimeout is returned when the wrapped call exceeds the per-call
	// timeout. Treated identically to a failure for breaker-state purposes.
	ErrTimeout = errors.New("protected call timed out")
)

// Operation is the wrapped unreliable call. It must honor ctx cancellation.
type Operation func(ctx context.Context) error

// Fallback is invoked whenever the breaker rejects a call or the call times
// out. It must not fail; it lets the caller proceed in degraded mode.
type Fallback func(ctx context.Context, err error)

// Settings configures one named breaker. Each protected call site carries
// its own timeout and reset delay.
type Settings struct {
	Name             string
	Timeout          time.Duration // per-call ceiling
	ResetTimeout     time.Duration // open -> half-open delay
	Interval         time.Duration // rolling window length while closed
	FailureThreshold float64       // failure ratio that trips the breaker
	MinRequests      int           // observations required before tripping
	Fallback         Fallback
}

type Breaker struct {
	mu sync.Mutex

	name             string
	timeout          time.Duration
	resetTimeout     time.Duration
	interval         time.Duration
	failureThreshold float64
	minRequests      int
	fallback         Fallback
	log              *slog.Logger

	state         State
	requests      int
	failures      int
	windowStart   time.Time
	openedAt      time.Time
	trialInFlight bool
}

func New(log *slog.Logger, s Settings) *Breaker {
	b := &Breaker{
		name:             s.Name,
		timeout:          s.Timeout,
		resetTimeout:     s.ResetTimeout,
		interval:         s.Interval,
		failureThreshold: s.FailureThreshold,
		minRequests:      s.MinRequests,
		fallback:         s.Fallback,
		log:              log,
		state:            StateClosed,
		windowStart:      time.Now(),
	}
	metrics.BreakerState.WithLabelValues(b.name).Set(0)
	return b
}

func (b *Breaker) Name() string { return b.name }

// State returns the current state, promoting OPEN to HALF_OPEN when the
// reset timeout has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refresh(time.Now())
	return b.state
}

// Execute runs op under the breaker's timeout. When the breaker is open or
// the call times out, the registered fallback runs and the sentinel error is
// returned; the operation's own failures pass through unchanged.
func (b *Breaker) Execute(ctx context.Context, op Operation) error {
	if !b.allow() {
		metrics.BreakerFallbackTotal.WithLabelValues(b.name).Inc()
		if b.fallback != nil {
			b.fallback(ctx, ErrOpenState)
		}
		return ErrOpenState
	}

	callCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- op(callCtx) }()

	var err error
	select {
	case err = <-done:
	case <-callCtx.Done():
		err = ErrTimeout
	}
	b.record(err)

	if errors.Is(err, ErrTimeout) {
		metrics.BreakerFallbackTotal.WithLabelValues(b.name).Inc()
		if b.fallback != nil {
			b.fallback(ctx, err)
		}
	}
	return err
}

// allow decides whether the next call may execute and claims the half-open
// trial slot when applicable.
func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now()
	b.refresh(now)

	switch b.state {
	case StateClosed:
		if b.interval > 0 && now.Sub(b.windowStart) > b.interval {
			b.requests = 0
			b.failures = 0
			b.windowStart = now
		}
		return true
	case StateHalfOpen:
		if b.trialInFlight {
			return false
		}
		b.trialInFlight = true
		return true
	default:
		return false
	}
}

// refresh moves OPEN to HALF_OPEN once the reset timeout has elapsed.
// Caller must hold the lock.
func (b *Breaker) refresh(now time.Time) {
	if b.state == StateOpen && now.Sub(b.openedAt) >= b.resetTimeout {
		b.transition(StateHalfOpen)
		b.trialInFlight = false
	}
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen {
		b.trialInFlight = false
		if err != nil {
			b.openedAt = time.Now()
			b.transition(StateOpen)
			return
		}
		b.requests = 0
		b.failures = 0
		b.windowStart = time.Now()
		b.transition(StateClosed)
		return
	}

	b.requests++
	if err != nil {
		b.failures++
	}
	if b.requests >= b.minRequests &&
		float64(b.failures)/float64(b.requests) >= b.failureThreshold {
		b.openedAt = time.Now()
		b.transition(StateOpen)
	}
}

// transition updates state, gauge and log. Caller must hold the lock.
func (b *Breaker) transition(to State) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	metrics.BreakerState.WithLabelValues(b.name).Set(float64(to))
	b.log.Warn("breaker - state change", "name", b.name, "from", from.String(), "to", to.String())
}
