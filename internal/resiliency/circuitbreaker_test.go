package resiliency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreakerTripsAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker("test", 3, 50*time.Millisecond)

	assert.True(t, cb.Allow())
	cb.Failure()
	cb.Failure()
	assert.Equal(t, StateClosed, cb.CurrentState())
	cb.Failure()
	assert.Equal(t, StateOpen, cb.CurrentState())
	assert.False(t, cb.Allow())
}

func TestCircuitBreakerHalfOpenAfterTimeout(t *testing.T) {
	cb := NewCircuitBreaker("test", 1, 10*time.Millisecond)
	cb.Failure()
	require.Equal(t, StateOpen, cb.CurrentState())

	time.Sleep(20 * time.Millisecond)
	assert.True(t, cb.Allow())
	assert.Equal(t, StateHalfOpen, cb.CurrentState())

	cb.Success()
	assert.Equal(t, StateClosed, cb.CurrentState())
}

func TestExecutorRetriesThenSucceeds(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxJitter: time.Millisecond}
	exec := NewExecutor("test", 5, time.Second, policy)

	attempts := 0
	err := exec.Execute(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts < 2 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, StateClosed, exec.Breaker().CurrentState())
}

func TestExecutorOpensAfterExhaustedRetries(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxJitter: 0}
	exec := NewExecutor("test", 1, time.Second, policy)

	err := exec.Execute(context.Background(), func(ctx context.Context) error {
		return errors.New("boom")
	})
	require.Error(t, err)
	assert.Equal(t, StateOpen, exec.Breaker().CurrentState())

	err = exec.Execute(context.Background(), func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCircuitBreakerHalfOpenAllowsOnlyOneProbe(t *testing.T) {
	cb := NewCircuitBreaker("test", 1, 10*time.Millisecond)
	cb.Failure()
	require.Equal(t, StateOpen, cb.CurrentState())

	time.Sleep(20 * time.Millisecond)
	assert.True(t, cb.Allow(), "first caller after timeout gets the probe")
	assert.False(t, cb.Allow(), "second concurrent caller is rejected while the probe is in flight")
	assert.False(t, cb.Allow(), "rejection holds until the probe resolves")

	cb.Failure()
	assert.Equal(t, StateOpen, cb.CurrentState(), "a failed probe reopens immediately")
}

func TestExecutorRespectsContextCancellation(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 5, BaseDelay: 50 * time.Millisecond, MaxJitter: 0}
	exec := NewExecutor("test", 10, time.Second, policy)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := exec.Execute(ctx, func(ctx context.Context) error {
		return errors.New("should not matter")
	})
	assert.ErrorIs(t, err, context.Canceled)
}
