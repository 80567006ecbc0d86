package internal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestBreakerOpensAtThreshold verifies the breaker opens once failures in
// the window reach the threshold.
func TestBreakerOpensAtThreshold(t *testing.T) {
	cb := NewCircuitBreaker(3, time.Minute, time.Minute)
	cb.RecordFailure()
	cb.RecordFailure()
	assert.False(t, cb.IsOpen())
	cb.RecordFailure()
	assert.True(t, cb.IsOpen())
}

// TestBreakerSuccessResets verifies a success clears failure history.
func TestBreakerSuccessResets(t *testing.T) {
	cb := NewCircuitBreaker(2, time.Minute, time.Minute)
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	assert.False(t, cb.IsOpen())
}

// TestBreakerReclosesAfterOpenDuration verifies the breaker recloses once
// the open duration elapses.
func TestBreakerReclosesAfterOpenDuration(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Minute, 20*time.Millisecond)
	cb.RecordFailure()
	assert.True(t, cb.IsOpen())
	assert.Eventually(t, func() bool { return !cb.IsOpen() }, time.Second, 5*time.Millisecond)
}

// TestBreakerNilSafe verifies a nil breaker is inert.
func TestBreakerNilSafe(t *testing.T) {
	var cb *CircuitBreaker
	cb.RecordFailure()
	cb.RecordSuccess()
	assert.False(t, cb.IsOpen())
}
