package ldapauth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoginRateLimiter(t *testing.T) {
	limiter := NewLoginRateLimiter(3, 100*time.Millisecond)
	defer limiter.Stop()

	ip := "192.168.1.1"
	for i := 0; i < 3; i++ {
		assert.True(t, limiter.Allow(ip), "attempt %d", i+1)
		limiter.RecordFailure(ip)
	}
	assert.False(t, limiter.Allow(ip))

	// other addresses have their own limit
	assert.True(t, limiter.Allow("192.168.1.2"))

	time.Sleep(110 * time.Millisecond)
	assert.True(t, limiter.Allow(ip))
}

func TestLoginRateLimiterReset(t *testing.T) {
	limiter := NewLoginRateLimiter(2, time.Minute)
	defer limiter.Stop()

	ip := "192.168.1.1"
	limiter.RecordFailure(ip)
	limiter.RecordFailure(ip)
	assert.False(t, limiter.Allow(ip))

	limiter.Reset(ip)
	assert.True(t, limiter.Allow(ip))
}

func TestLoginRateLimiterCleanup(t *testing.T) {
	limiter := NewLoginRateLimiter(5, 50*time.Millisecond)
	defer limiter.Stop()

	limiter.RecordFailure("192.168.1.1")
	time.Sleep(60 * time.Millisecond)
	limiter.cleanup()

	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	assert.Empty(t, limiter.failures)
}

func TestLoginRateLimiterDisabled(t *testing.T) {
	limiter := NewLoginRateLimiter(0, time.Minute)
	defer limiter.Stop()

	for i := 0; i < 10; i++ {
		limiter.RecordFailure("192.168.1.1")
	}
	assert.True(t, limiter.Allow("192.168.1.1"))
}

func TestLoginRateLimiterStop(t *testing.T) {
	limiter := NewLoginRateLimiter(3, time.Minute)
	limiter.Stop()
	assert.NotPanics(t, limiter.Stop)

	disabled := NewLoginRateLimiter(0, time.Minute)
	assert.NotPanics(t, disabled.Stop)
	assert.NotPanics(t, disabled.Stop)
}
