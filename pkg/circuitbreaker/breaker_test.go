package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func newTestBreaker(cooldown time.Duration) *CircuitBreaker {
	return NewCircuitBreaker("test", Config{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		Cooldown:         cooldown,
		HalfOpenRequests: 1,
	})
}

func trip(t *testing.T, cb *CircuitBreaker) {
	t.Helper()
	for i := 0; i < 3; i++ {
		err := cb.Execute(context.Background(), func() error { return errBoom })
		require.ErrorIs(t, err, errBoom)
	}
	require.Equal(t, StateOpen, cb.State())
}

func TestOpensAfterConsecutiveFailures(t *testing.T) {
	cb := newTestBreaker(time.Minute)

	require.Equal(t, StateClosed, cb.State())
	trip(t, cb)

	err := cb.Execute(context.Background(), func() error { return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestSuccessResetsFailureCount(t *testing.T) {
	cb := newTestBreaker(time.Minute)

	for i := 0; i < 2; i++ {
		cb.Execute(context.Background(), func() error { return errBoom })
	}
	require.NoError(t, cb.Execute(context.Background(), func() error { return nil }))

	// Two more failures are not enough to open after the reset.
	for i := 0; i < 2; i++ {
		cb.Execute(context.Background(), func() error { return errBoom })
	}
	assert.Equal(t, StateClosed, cb.State())
}

func TestHalfOpenClosesAfterSuccesses(t *testing.T) {
	cb := newTestBreaker(time.Millisecond)
	trip(t, cb)

	time.Sleep(5 * time.Millisecond)

	require.NoError(t, cb.Execute(context.Background(), func() error { return nil }))
	require.Equal(t, StateHalfOpen, cb.State())
	require.NoError(t, cb.Execute(context.Background(), func() error { return nil }))
	assert.Equal(t, StateClosed, cb.State())
}

func TestHalfOpenFailureReopens(t *testing.T) {
	cb := newTestBreaker(time.Millisecond)
	trip(t, cb)

	time.Sleep(5 * time.Millisecond)

	err := cb.Execute(context.Background(), func() error { return errBoom })
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, StateOpen, cb.State())
}

func TestContextCancelledSkipsCall(t *testing.T) {
	cb := newTestBreaker(time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := cb.Execute(ctx, func() error { calls++; return nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}
