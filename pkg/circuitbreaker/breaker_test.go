package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBreaker(openTimeout time.Duration) *Breaker {
	return New("test", Config{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		OpenTimeout:      openTimeout,
	})
}

func failing() error { return errors.New("boom") }

func TestBreakerStaysClosedOnSuccess(t *testing.T) {
	b := newTestBreaker(time.Minute)

	for i := 0; i < 10; i++ {
		require.NoError(t, b.Execute(func() error { return nil }))
	}

	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := newTestBreaker(time.Minute)

	for i := 0; i < 3; i++ {
		assert.Error(t, b.Execute(failing))
	}

	assert.Equal(t, StateOpen, b.State())
	assert.ErrorIs(t, b.Execute(func() error { return nil }), ErrOpen)
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b := newTestBreaker(time.Minute)

	assert.Error(t, b.Execute(failing))
	assert.Error(t, b.Execute(failing))
	require.NoError(t, b.Execute(func() error { return nil }))
	assert.Error(t, b.Execute(failing))
	assert.Error(t, b.Execute(failing))

	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	b := newTestBreaker(10 * time.Millisecond)

	for i := 0; i < 3; i++ {
		assert.Error(t, b.Execute(failing))
	}
	require.Equal(t, StateOpen, b.State())

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateHalfOpen, b.State())

	require.NoError(t, b.Execute(func() error { return nil }))
	require.NoError(t, b.Execute(func() error { return nil }))

	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b := newTestBreaker(10 * time.Millisecond)

	for i := 0; i < 3; i++ {
		assert.Error(t, b.Execute(failing))
	}
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, StateHalfOpen, b.State())

	assert.Error(t, b.Execute(failing))
	assert.Equal(t, StateOpen, b.State())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "open", StateOpen.String())
}
