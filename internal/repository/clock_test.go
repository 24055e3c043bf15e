package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClock_StrictlyIncreasing(t *testing.T) {
	clock := NewClock()

	last := clock.Now()
	for i := 0; i < 1000; i++ {
		now := clock.Now()
		assert.True(t, now.After(last))
		last = now
	}
}

func TestClock_MicrosecondGranularity(t *testing.T) {
	clock := NewClock()
	now := clock.Now()

	assert.Equal(t, now, time.UnixMicro(now.UnixMicro()).UTC())
	assert.Equal(t, time.UTC, now.Location())
}
