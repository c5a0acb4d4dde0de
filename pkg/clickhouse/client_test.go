package clickhouse

import (
	"net/url"
	"testing"
	"time"

	"QuantWatch/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDSN(t *testing.T) {
	dsn := buildDSN(config.ClickHouseConfig{
		Host:             "ch.local",
		Port:             9000,
		Database:         "quantwatch",
		User:             "svc",
		Password:         "p@ss",
		DialTimeout:      5 * time.Second,
		ReadTimeout:      10 * time.Second,
		WriteTimeout:     10 * time.Second,
		MaxExecutionTime: 30 * time.Second,
		AsyncInsert:      true,
		WaitForAsync:     true,
	})

	u, err := url.Parse(dsn)
	require.NoError(t, err)
	assert.Equal(t, "clickhouse", u.Scheme)
	assert.Equal(t, "ch.local:9000", u.Host)
	assert.Equal(t, "/quantwatch", u.Path)
	pw, _ := u.User.Password()
	assert.Equal(t, "p@ss", pw)

	q := u.Query()
	assert.Equal(t, "5s", q.Get("dial_timeout"))
	assert.Equal(t, "30", q.Get("max_execution_time"))
	assert.Equal(t, "1", q.Get("async_insert"))
	assert.Equal(t, "1", q.Get("wait_for_async_insert"))
	assert.Empty(t, q.Get("write_timeout"))
}

func TestBuildDSNDefaults(t *testing.T) {
	u, err := url.Parse(buildDSN(config.ClickHouseConfig{Host: "h", Port: 8123, UseHTTP: true, WaitForAsync: true}))
	require.NoError(t, err)
	assert.Equal(t, "http", u.Scheme)
	assert.Equal(t, "/default", u.Path)
	assert.Equal(t, "default", u.User.Username())
	assert.Empty(t, u.Query().Get("async_insert"))
	assert.Empty(t, u.Query().Get("wait_for_async_insert"))
}

func TestNewClientRequiresHost(t *testing.T) {
	_, err := NewClient(config.ClickHouseConfig{Port: 9000})
	assert.Error(t, err)
}
