package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllowRefills(t *testing.T) {
	l := New()
	now := time.Unix(0, 0)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("finnhub", 2, 1))
	assert.True(t, l.Allow("finnhub", 2, 1))
	assert.False(t, l.Allow("finnhub", 2, 1))
	assert.True(t, l.Allow("binance", 2, 1), "keys are independent")

	now = now.Add(1500 * time.Millisecond)
	assert.True(t, l.Allow("finnhub", 2, 1))
	assert.False(t, l.Allow("finnhub", 2, 1))

	now = now.Add(time.Hour)
	assert.True(t, l.Allow("finnhub", 2, 1))
	assert.True(t, l.Allow("finnhub", 2, 1))
	assert.False(t, l.Allow("finnhub", 2, 1), "capacity caps the refill")
}
