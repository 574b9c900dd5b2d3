package dispatcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCircuitBreaker(t *testing.T) {
	clock := newFakeClock()
	cb := newCircuitBreaker(3, time.Minute, clock.Now)

	t.Run("opens after threshold consecutive failures", func(t *testing.T) {
		assert.False(t, cb.RecordFailure())
		assert.False(t, cb.RecordFailure())
		assert.True(t, cb.RecordFailure())
		assert.True(t, cb.IsOpen())
		assert.False(t, cb.Allow())
	})

	t.Run("half-open after cooldown reopens on one failure", func(t *testing.T) {
		clock.Advance(time.Minute + time.Second)
		assert.True(t, cb.Allow())
		assert.False(t, cb.IsOpen())
		assert.True(t, cb.RecordFailure())
		assert.False(t, cb.Allow())
	})

	t.Run("success closes and resets", func(t *testing.T) {
		clock.Advance(2 * time.Minute)
		assert.True(t, cb.Allow())
		cb.RecordSuccess()
		assert.False(t, cb.RecordFailure())
		assert.False(t, cb.RecordFailure())
		assert.True(t, cb.Allow())
	})
}

func TestCircuitBreaker_Defaults(t *testing.T) {
	cb := newCircuitBreaker(0, 0, nil)
	assert.Equal(t, 5, cb.threshold)
	assert.Equal(t, time.Minute, cb.cooldown)
	assert.NotNil(t, cb.now)
}
