package ratelimit

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBucketAllowsUpToBurstThenBlocks(t *testing.T) {
	b := NewBucket(60) // 1 token/sec, burst 60
	frozen := time.Now()
	b.now = func() time.Time { return frozen }

	for i := 0; i < 60; i++ {
		require.True(t, b.Allow(), "token %d should be allowed within burst", i)
	}
	assert.False(t, b.Allow(), "bucket should be empty after burst is consumed")
}

func TestBucketRefillsOverTime(t *testing.T) {
	b := NewBucket(60)
	frozen := time.Now()
	b.now = func() time.Time { return frozen }
	require.True(t, b.AllowN(60))
	require.False(t, b.Allow())

	frozen = frozen.Add(2 * time.Second) // +2 tokens at 1/sec
	assert.True(t, b.Allow())
	assert.True(t, b.Allow())
	assert.False(t, b.Allow())
}

func TestWaitTimeMatchesRefillRate(t *testing.T) {
	b := NewBucket(120) // 2 tokens/sec
	frozen := time.Now()
	b.now = func() time.Time { return frozen }
	require.True(t, b.AllowN(120))
	wait := b.WaitTime()
	assert.InDelta(t, 500*time.Millisecond, wait, float64(10*time.Millisecond))
}

// TestRateLimitSoundness is the property from spec §8: over any window of
// length W seconds, the number of successful invocations of a skill is
// <= max_per_minute*(W/60) + burst_capacity.
func TestRateLimitSoundness(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("admitted count stays within bound", prop.ForAll(
		func(maxPerMinute int, windowSeconds int) bool {
			b := NewBucket(maxPerMinute)
			start := time.Now()
			clock := start
			b.now = func() time.Time { return clock }

			admitted := 0
			// Simulate one admission attempt per (simulated) second.
			for s := 0; s < windowSeconds; s++ {
				clock = start.Add(time.Duration(s) * time.Second)
				for b.Allow() {
					admitted++
				}
			}
			bound := float64(maxPerMinute)*(float64(windowSeconds)/60.0) + float64(maxPerMinute)
			return float64(admitted) <= bound+1e-9
		},
		gen.IntRange(1, 600),
		gen.IntRange(1, 3600),
	))

	properties.TestingRun(t)
}

func TestLimiterPerSkillIsolation(t *testing.T) {
	l := NewLimiter()
	l.Configure("skill-a", 1)
	l.Configure("skill-b", 120)

	assert.True(t, l.Allow("skill-a"))
	assert.False(t, l.Allow("skill-a"))
	// skill-b has its own independent bucket.
	assert.True(t, l.Allow("skill-b"))
}
