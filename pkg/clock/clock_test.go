package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPolicyIsPast(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	policy := NewPolicy(Fixed{Instant: now}, 24*time.Hour)

	assert.True(t, policy.IsPast(now))
	assert.True(t, policy.IsPast(now.Add(-time.Second)))
	assert.False(t, policy.IsPast(now.Add(time.Second)))
}

func TestPolicyWithinCancellationWindow(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	policy := NewPolicy(Fixed{Instant: now}, 24*time.Hour)

	assert.True(t, policy.WithinCancellationWindow(now.Add(23*time.Hour)))
	assert.False(t, policy.WithinCancellationWindow(now.Add(25*time.Hour)))
	// Exactly at the boundary is still allowed.
	assert.False(t, policy.WithinCancellationWindow(now.Add(24*time.Hour)))
}

func TestPolicyDefaultsToRealClock(t *testing.T) {
	policy := NewPolicy(nil, time.Hour)
	assert.WithinDuration(t, time.Now().UTC(), policy.Now(), 2*time.Second)
}
