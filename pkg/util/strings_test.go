package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseIntDefault(t *testing.T) {
	assert.Equal(t, 7, ParseIntDefault("", 7))
	assert.Equal(t, 7, ParseIntDefault("x", 7))
	assert.Equal(t, 12, ParseIntDefault(" 12 ", 7))
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, SplitList(" a:9092, ,b:9092,"))
	assert.Empty(t, SplitList(""))
}

func TestSplitHostPort(t *testing.T) {
	cases := []struct {
		in   string
		host string
		port int
	}{
		{"redis:6380", "redis", 6380},
		{"redis", "redis", 6379},
		{"redis:abc", "redis", 6379},
		{"[::1]:7000", "::1", 7000},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			h, p := SplitHostPort(tc.in, 6379)
			assert.Equal(t, tc.host, h)
			assert.Equal(t, tc.port, p)
		})
	}
}
