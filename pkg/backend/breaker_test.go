package backend

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerStartsClosed(t *testing.T) {
	b := NewBreaker(3, 30*time.Second)

	assert.Equal(t, BreakerClosed, b.State())
	assert.True(t, b.Allow())
}

func TestBreakerOpensAtThreshold(t *testing.T) {
	b := NewBreaker(3, 30*time.Second)

	b.RecordFailure()
	b.RecordFailure()
	assert.Equal(t, BreakerClosed, b.State(), "below threshold should stay closed")

	b.RecordFailure()
	assert.Equal(t, BreakerOpen, b.State())
	assert.False(t, b.Allow(), "open breaker should reject calls")
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker(3, 30*time.Second)

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	b.RecordFailure()

	assert.Equal(t, BreakerClosed, b.State(), "failures are consecutive, not cumulative")
	assert.Equal(t, 2, b.FailureCount())
}

func TestBreakerHalfOpenSingleProbe(t *testing.T) {
	now := time.Now()
	b := NewBreaker(1, 30*time.Second)
	b.now = func() time.Time { return now }

	b.RecordFailure()
	require.Equal(t, BreakerOpen, b.State())
	assert.False(t, b.Allow(), "cooldown has not elapsed")

	// Advance past the cooldown: exactly one probe is admitted
	now = now.Add(31 * time.Second)
	assert.True(t, b.Allow())
	assert.Equal(t, BreakerHalfOpen, b.State())
	assert.False(t, b.Allow(), "second call during probe must be rejected")
}

func TestBreakerProbeSuccessCloses(t *testing.T) {
	now := time.Now()
	b := NewBreaker(1, 30*time.Second)
	b.now = func() time.Time { return now }

	b.RecordFailure()
	now = now.Add(31 * time.Second)
	require.True(t, b.Allow())

	b.RecordSuccess()
	assert.Equal(t, BreakerClosed, b.State())
	assert.Equal(t, 0, b.FailureCount())
	assert.True(t, b.Allow())
}

func TestBreakerProbeFailureReopensAndResetsCooldown(t *testing.T) {
	now := time.Now()
	b := NewBreaker(1, 30*time.Second)
	b.now = func() time.Time { return now }

	b.RecordFailure()
	now = now.Add(31 * time.Second)
	require.True(t, b.Allow())

	b.RecordFailure()
	assert.Equal(t, BreakerOpen, b.State())

	// The cooldown timer restarted at the failed probe
	now = now.Add(29 * time.Second)
	assert.False(t, b.Allow())
	now = now.Add(2 * time.Second)
	assert.True(t, b.Allow())
}
