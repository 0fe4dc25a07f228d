/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	throttlequeue "github.com/acronis/go-throttlequeue"
	"github.com/acronis/go-throttlequeue/config"
)

func TestConfig(t *testing.T) {
	t.Run("full yaml", func(t *testing.T) {
		cfgData := bytes.NewBufferString(`
httpClient:
  timeout: 30s
  rateLimits:
    enabled: true
    limit: 50
    burst: 5
    waitTimeout: 2s
  throttling:
    enabled: true
    waitTimeout: 1m
    queue:
      maxPerInterval: 10
      interval: 1s
      evenlySpaced: true
      maxRetries: 3
      maxRetriesWithPauses: 5
      retryPolicy:
        strategy: constant
        constantBackoffInterval: 100ms
`)
		cfg := NewConfigWithKeyPrefix("httpClient")
		require.NoError(t, config.NewDefaultLoader("").LoadFromReader(cfgData, config.DataTypeYAML, cfg))

		require.Equal(t, 30*time.Second, time.Duration(cfg.Timeout))

		require.True(t, cfg.RateLimits.Enabled)
		require.Equal(t, 50, cfg.RateLimits.Limit)
		require.Equal(t, 5, cfg.RateLimits.Burst)
		require.Equal(t, 2*time.Second, time.Duration(cfg.RateLimits.WaitTimeout))

		require.True(t, cfg.Throttling.Enabled)
		require.Equal(t, time.Minute, time.Duration(cfg.Throttling.WaitTimeout))
		require.Equal(t, 10, cfg.Throttling.Queue.MaxPerInterval)
		require.Equal(t, time.Second, time.Duration(cfg.Throttling.Queue.Interval))
		require.True(t, cfg.Throttling.Queue.EvenlySpaced)
		require.Equal(t, 3, cfg.Throttling.Queue.MaxRetries)
		require.Equal(t, 5, cfg.Throttling.Queue.MaxRetriesWithPauses)
		require.Equal(t, throttlequeue.RetryPolicyConstant, cfg.Throttling.Queue.RetryPolicy.Strategy)
	})

	t.Run("defaults", func(t *testing.T) {
		cfgData := bytes.NewBufferString(`
httpClient:
  throttling:
    enabled: true
    queue:
      maxPerInterval: 1
      interval: 500ms
`)
		cfg := NewConfigWithKeyPrefix("httpClient")
		require.NoError(t, config.NewDefaultLoader("").LoadFromReader(cfgData, config.DataTypeYAML, cfg))

		require.Equal(t, DefaultClientWaitTimeout, time.Duration(cfg.Timeout))
		require.False(t, cfg.RateLimits.Enabled)
		require.Equal(t, 30, cfg.Throttling.Queue.MaxRetries)
		require.Equal(t, 30, cfg.Throttling.Queue.MaxRetriesWithPauses)
	})

	t.Run("invalid rate limit", func(t *testing.T) {
		cfgData := bytes.NewBufferString(`
httpClient:
  rateLimits:
    enabled: true
    limit: -1
`)
		cfg := NewConfigWithKeyPrefix("httpClient")
		err := config.NewDefaultLoader("").LoadFromReader(cfgData, config.DataTypeYAML, cfg)
		require.EqualError(t, err, "client rate limit must be positive")
	})

	t.Run("invalid queue interval", func(t *testing.T) {
		cfgData := bytes.NewBufferString(`
httpClient:
  throttling:
    enabled: true
    queue:
      maxPerInterval: 1
      interval: -1s
`)
		cfg := NewConfigWithKeyPrefix("httpClient")
		err := config.NewDefaultLoader("").LoadFromReader(cfgData, config.DataTypeYAML, cfg)
		require.EqualError(t, err, "queue interval must not be negative")
	})
}

func TestNewHTTPClient(t *testing.T) {
	cfgData := bytes.NewBufferString(`
httpClient:
  timeout: 5s
  rateLimits:
    enabled: true
    limit: 100
  throttling:
    enabled: true
    queue:
      maxPerInterval: 10
      interval: 100ms
`)
	cfg := NewConfigWithKeyPrefix("httpClient")
	require.NoError(t, config.NewDefaultLoader("").LoadFromReader(cfgData, config.DataTypeYAML, cfg))

	client, err := New(cfg)
	require.NoError(t, err)
	require.Equal(t, 5*time.Second, client.Timeout)

	rt, ok := client.Transport.(*ThrottlingRoundTripper)
	require.True(t, ok, "throttling round tripper must be the outermost one")
	require.NotNil(t, rt.Queue)
	_, ok = rt.Delegate.(*RateLimitingRoundTripper)
	require.True(t, ok)
}
