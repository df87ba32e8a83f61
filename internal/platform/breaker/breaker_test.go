package breaker

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var errDownstream = errors.New("downstream unavailable")

func testSettings(name string) Settings {
	return Settings{
		Name:             name,
		Timeout:          50 * time.Millisecond,
		ResetTimeout:     80 * time.Millisecond,
		Interval:         time.Minute,
		FailureThreshold: 0.5,
		MinRequests:      4,
	}
}

func failN(b *Breaker, n int) {
	for i := 0; i < n; i++ {
		_ = b.Execute(context.Background(), func(ctx context.Context) error {
			return errDownstream
		})
	}
}

func TestBreaker_StaysClosedBelowThreshold(t *testing.T) {
	req := require.New(t)
	b := New(slog.Default(), testSettings("closed"))

	// Given three failures, below the minimum observation count
	failN(b, 3)

	// Then the breaker still executes calls
	req.Equal(StateClosed, b.State())
	err := b.Execute(context.Background(), func(ctx context.Context) error { return nil })
	req.NoError(err)
}

func TestBreaker_OpensOnFailureRate(t *testing.T) {
	req := require.New(t)
	b := New(slog.Default(), testSettings("opens"))

	// When enough failures accumulate in the window
	failN(b, 4)

	// Then the breaker is open and fast-fails without invoking the operation
	req.Equal(StateOpen, b.State())
	invoked := false
	err := b.Execute(context.Background(), func(ctx context.Context) error {
		invoked = true
		return nil
	})
	req.ErrorIs(err, ErrOpenState)
	req.False(invoked)
}

func TestBreaker_FallbackInvokedWhenOpen(t *testing.T) {
	req := require.New(t)
	var fallbackErr error
	s := testSettings("fallback-open")
	s.Fallback = func(ctx context.Context, err error) { fallbackErr = err }
	b := New(slog.Default(), s)

	failN(b, 4)

	// When a call is rejected
	_ = b.Execute(context.Background(), func(ctx context.Context) error { return nil })

	// Then the fallback observed the open-state rejection
	req.ErrorIs(fallbackErr, ErrOpenState)
}

func TestBreaker_TimeoutCountsAsFailureAndTriggersFallback(t *testing.T) {
	req := require.New(t)
	var fallbacks atomic.Int32
	s := testSettings("timeout")
	s.MinRequests = 2
	s.Fallback = func(ctx context.Context, err error) { fallbacks.Add(1) }
	b := New(slog.Default(), s)

	slow := func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
			return nil
		}
	}

	// When two calls exceed the per-call timeout
	req.ErrorIs(b.Execute(context.Background(), slow), ErrTimeout)
	req.ErrorIs(b.Execute(context.Background(), slow), ErrTimeout)

	// Then both degraded through the fallback and the breaker tripped
	req.Equal(int32(2), fallbacks.Load())
	req.Equal(StateOpen, b.State())
}

func TestBreaker_HalfOpenTrialSuccessCloses(t *testing.T) {
	req := require.New(t)
	b := New(slog.Default(), testSettings("half-open-close"))
	failN(b, 4)
	req.Equal(StateOpen, b.State())

	// When the reset timeout elapses and the trial call succeeds
	time.Sleep(100 * time.Millisecond)
	req.Equal(StateHalfOpen, b.State())
	err := b.Execute(context.Background(), func(ctx context.Context) error { return nil })

	// Then the breaker closes again
	req.NoError(err)
	req.Equal(StateClosed, b.State())
}

func TestBreaker_HalfOpenTrialFailureReopens(t *testing.T) {
	req := require.New(t)
	b := New(slog.Default(), testSettings("half-open-reopen"))
	failN(b, 4)

	// When the trial call fails after the reset timeout
	time.Sleep(100 * time.Millisecond)
	err := b.Execute(context.Background(), func(ctx context.Context) error { return errDownstream })

	// Then the breaker goes straight back to open
	req.ErrorIs(err, errDownstream)
	req.Equal(StateOpen, b.State())
}

func TestRegistry_ReusesNamedInstance(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry()
	b := New(slog.Default(), testSettings("fanout.publish"))

	reg.Register(b)

	req.Same(b, reg.Get("fanout.publish"))
	req.Nil(reg.Get("events.publish"))
}
