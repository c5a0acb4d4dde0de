package queue

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePayload(t *testing.T) {
	type alert struct {
		Symbol string `json:"symbol"`
		Level  int    `json:"level"`
	}
	got, err := ParsePayload[alert](json.RawMessage(`{"symbol":"stock:AAPL","level":2}`))
	require.NoError(t, err)
	assert.Equal(t, alert{Symbol: "stock:AAPL", Level: 2}, *got)

	_, err = ParsePayload[alert](nil)
	assert.Error(t, err)
	_, err = ParsePayload[alert](json.RawMessage(`[1,2]`))
	assert.Error(t, err)
}

func TestQueueDefaultsAndKeys(t *testing.T) {
	q := NewRedisQueue(nil, &QueueConfig{RetryDelay: 0}, nil, WithKeyPrefix("qw:notify"))
	assert.Equal(t, 1, q.config.Workers)
	assert.Equal(t, "qw:notify:messages", q.queueKey())
	assert.Equal(t, "qw:notify:retry", q.retryKey())
	assert.Equal(t, "qw:notify:dlq", q.deadLetterKey())
	assert.Equal(t, q.config.RetryDelay, q.backoff.Delay(1))
	assert.Equal(t, 2*q.config.RetryDelay, q.backoff.Delay(2))
}
