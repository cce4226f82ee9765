package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errProvider = errors.New("provider down")

func failN(cb *CircuitBreaker, n int) {
	for range n {
		_ = cb.Execute(context.Background(), func(context.Context) error {
			return errProvider
		})
	}
}

func succeedOnce(cb *CircuitBreaker) error {
	return cb.Execute(context.Background(), func(context.Context) error {
		return nil
	})
}

func TestBreakerOpensAtThreshold(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 3, ResetTimeout: time.Minute})

	failN(cb, 2)
	assert.Equal(t, CircuitClosed, cb.State())

	failN(cb, 1)
	assert.Equal(t, CircuitOpen, cb.State())

	err := cb.Execute(context.Background(), func(context.Context) error {
		t.Fatal("call should not run while open")
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestBreakerSuccessResetsFailureStreak(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 3, ResetTimeout: time.Minute})

	failN(cb, 2)
	require.NoError(t, succeedOnce(cb))
	failN(cb, 2)
	assert.Equal(t, CircuitClosed, cb.State(), "streak broken by success")
}

func TestBreakerHalfOpenAfterResetTimeout(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: 30 * time.Second})

	now := time.Now()
	cb.now = func() time.Time { return now }

	failN(cb, 1)
	assert.Equal(t, CircuitOpen, cb.State())

	now = now.Add(31 * time.Second)
	assert.Equal(t, CircuitHalfOpen, cb.State())
}

func TestBreakerClosesAfterSuccessfulProbe(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: 30 * time.Second})

	now := time.Now()
	cb.now = func() time.Time { return now }

	failN(cb, 1)
	now = now.Add(31 * time.Second)

	require.NoError(t, succeedOnce(cb))
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestBreakerFailedProbeReopens(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: 30 * time.Second})

	now := time.Now()
	cb.now = func() time.Time { return now }

	failN(cb, 1)
	now = now.Add(31 * time.Second)
	failN(cb, 1)

	assert.Equal(t, CircuitOpen, cb.State())
	err := succeedOnce(cb)
	assert.ErrorIs(t, err, ErrCircuitOpen, "reopened immediately after failed probe")
}

func TestBreakerMultipleProbesRequired(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold:  1,
		ResetTimeout:      30 * time.Second,
		HalfOpenMaxProbes: 2,
	})

	now := time.Now()
	cb.now = func() time.Time { return now }

	failN(cb, 1)
	now = now.Add(31 * time.Second)

	require.NoError(t, succeedOnce(cb))
	assert.Equal(t, CircuitHalfOpen, cb.State(), "one probe is not enough")

	require.NoError(t, succeedOnce(cb))
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestBreakerShouldTripFilter(t *testing.T) {
	t.Parallel()

	benign := errors.New("not found")
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     time.Minute,
		ShouldTrip:       func(err error) bool { return !errors.Is(err, benign) },
	})

	for range 5 {
		_ = cb.Execute(context.Background(), func(context.Context) error { return benign })
	}
	assert.Equal(t, CircuitClosed, cb.State(), "filtered errors never trip")

	failN(cb, 1)
	assert.Equal(t, CircuitOpen, cb.State())
}

func TestBreakerOnStateChange(t *testing.T) {
	t.Parallel()

	type change struct{ from, to CircuitState }
	var changes []change
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     30 * time.Second,
		OnStateChange:    func(from, to CircuitState) { changes = append(changes, change{from, to}) },
	})

	now := time.Now()
	cb.now = func() time.Time { return now }

	failN(cb, 1)
	now = now.Add(31 * time.Second)
	require.NoError(t, succeedOnce(cb))

	assert.Equal(t, []change{
		{CircuitClosed, CircuitOpen},
		{CircuitOpen, CircuitHalfOpen},
		{CircuitHalfOpen, CircuitClosed},
	}, changes)
}

func TestBreakerErrorPassthrough(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{})
	err := cb.Execute(context.Background(), func(context.Context) error { return errProvider })
	assert.ErrorIs(t, err, errProvider)
}

func TestCircuitStateString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "closed", CircuitClosed.String())
	assert.Equal(t, "open", CircuitOpen.String())
	assert.Equal(t, "half-open", CircuitHalfOpen.String())
	assert.Equal(t, "unknown", CircuitState(42).String())
}

func TestServiceBreakersIsolation(t *testing.T) {
	t.Parallel()

	sb := NewServiceBreakers(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Minute})

	failN(sb.Get("perplexity"), 1)

	assert.Equal(t, CircuitOpen, sb.Get("perplexity").State())
	assert.Equal(t, CircuitClosed, sb.Get("openai").State())

	states := sb.States()
	assert.Equal(t, CircuitOpen, states["perplexity"])
	assert.Equal(t, CircuitClosed, states["openai"])
}

func TestServiceBreakersSameInstance(t *testing.T) {
	t.Parallel()

	sb := NewServiceBreakers(CircuitBreakerConfig{})
	assert.Same(t, sb.Get("gemini"), sb.Get("gemini"))
}
