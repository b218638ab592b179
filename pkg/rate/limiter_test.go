package rate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func TestNoLimiter(t *testing.T) {
	var l Limiter = NoLimiter{}
	for i := 0; i < 1000; i++ {
		allowed, err := l.Allow("getAccountInfo")
		assert.NoError(t, err)
		assert.True(t, allowed)
	}
}

func TestLocalRateLimiter(t *testing.T) {
	l := NewLocalRateLimiter(rate.Limit(0.001), 2)

	for i := 0; i < 2; i++ {
		allowed, err := l.Allow("getAccountInfo")
		assert.NoError(t, err)
		assert.True(t, allowed)
	}

	allowed, err := l.Allow("getAccountInfo")
	assert.NoError(t, err)
	assert.False(t, allowed)

	// Each method has its own bucket
	for i := 0; i < 2; i++ {
		allowed, err := l.Allow("sendTransaction")
		assert.NoError(t, err)
		assert.True(t, allowed)
	}

	allowed, err = l.Allow("sendTransaction")
	assert.NoError(t, err)
	assert.False(t, allowed)
}

func TestLocalRateLimiter_MinimumBurst(t *testing.T) {
	l := NewLocalRateLimiter(rate.Limit(0.001), 0)

	allowed, err := l.Allow("getLatestBlockhash")
	assert.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = l.Allow("getLatestBlockhash")
	assert.NoError(t, err)
	assert.False(t, allowed)
}
