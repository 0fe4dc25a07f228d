/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"errors"
	"time"

	throttlequeue "github.com/acronis/go-throttlequeue"
	"github.com/acronis/go-throttlequeue/config"
)

const (
	// DefaultClientWaitTimeout is a default timeout for a client to wait for a request.
	DefaultClientWaitTimeout = 10 * time.Second

	// configuration properties
	cfgKeyRateLimitsEnabled       = "rateLimits.enabled"
	cfgKeyRateLimitsLimit         = "rateLimits.limit"
	cfgKeyRateLimitsBurst         = "rateLimits.burst"
	cfgKeyRateLimitsWaitTimeout   = "rateLimits.waitTimeout"
	cfgKeyThrottlingEnabled       = "throttling.enabled"
	cfgKeyThrottlingWaitTimeout   = "throttling.waitTimeout"
	cfgKeyThrottlingQueueSection  = "throttling.queue"
	cfgKeyTimeout                 = "timeout"
)

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// RateLimitConfig represents configuration options for HTTP client rate limits.
type RateLimitConfig struct {
	// Enabled is a flag that enables rate limiting.
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`

	// Limit is the maximum number of requests per second that can be made.
	Limit int `mapstructure:"limit" yaml:"limit" json:"limit"`

	// Burst allow temporary spikes in request rate.
	Burst int `mapstructure:"burst" yaml:"burst" json:"burst"`

	// WaitTimeout is the maximum time to wait for a request to be made.
	WaitTimeout config.TimeDuration `mapstructure:"waitTimeout" yaml:"waitTimeout" json:"waitTimeout"`
}

// Set is part of config interface implementation.
func (c *RateLimitConfig) Set(dp config.DataProvider) (err error) {
	enabled, err := dp.GetBool(cfgKeyRateLimitsEnabled)
	if err != nil {
		return err
	}
	c.Enabled = enabled

	if !c.Enabled {
		return nil
	}

	limit, err := dp.GetInt(cfgKeyRateLimitsLimit)
	if err != nil {
		return err
	}
	if limit <= 0 {
		return errors.New("client rate limit must be positive")
	}
	c.Limit = limit

	burst, err := dp.GetInt(cfgKeyRateLimitsBurst)
	if err != nil {
		return err
	}
	if burst < 0 {
		return errors.New("client burst must be positive")
	}
	c.Burst = burst

	waitTimeout, err := dp.GetDuration(cfgKeyRateLimitsWaitTimeout)
	if err != nil {
		return err
	}
	if waitTimeout < 0 {
		return errors.New("client wait timeout must be positive")
	}
	c.WaitTimeout = config.TimeDuration(waitTimeout)

	return nil
}

// SetProviderDefaults is part of config interface implementation.
func (c *RateLimitConfig) SetProviderDefaults(_ config.DataProvider) {}

// TransportOpts returns transport options.
func (c *RateLimitConfig) TransportOpts() RateLimitingRoundTripperOpts {
	return RateLimitingRoundTripperOpts{
		Burst:       c.Burst,
		WaitTimeout: time.Duration(c.WaitTimeout),
	}
}

// ThrottlingConfig represents configuration options for funneling HTTP client requests
// through a throttling queue.
type ThrottlingConfig struct {
	// Enabled is a flag that enables throttling.
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`

	// WaitTimeout limits how long a request may wait in the queue.
	WaitTimeout config.TimeDuration `mapstructure:"waitTimeout" yaml:"waitTimeout" json:"waitTimeout"`

	// Queue configures the underlying throttling queue.
	Queue throttlequeue.Config `mapstructure:"queue" yaml:"queue" json:"queue"`
}

// Set is part of config interface implementation.
func (c *ThrottlingConfig) Set(dp config.DataProvider) error {
	enabled, err := dp.GetBool(cfgKeyThrottlingEnabled)
	if err != nil {
		return err
	}
	c.Enabled = enabled

	if !c.Enabled {
		return nil
	}

	waitTimeout, err := dp.GetDuration(cfgKeyThrottlingWaitTimeout)
	if err != nil {
		return err
	}
	if waitTimeout < 0 {
		return errors.New("client throttling wait timeout must be positive")
	}
	c.WaitTimeout = config.TimeDuration(waitTimeout)

	return c.Queue.Set(config.NewKeyPrefixedDataProvider(dp, cfgKeyThrottlingQueueSection))
}

// SetProviderDefaults is part of config interface implementation.
func (c *ThrottlingConfig) SetProviderDefaults(dp config.DataProvider) {
	c.Queue.SetProviderDefaults(config.NewKeyPrefixedDataProvider(dp, cfgKeyThrottlingQueueSection))
}

// TransportOpts returns transport options.
func (c *ThrottlingConfig) TransportOpts() ThrottlingRoundTripperOpts {
	return ThrottlingRoundTripperOpts{
		WaitTimeout: time.Duration(c.WaitTimeout),
	}
}

// Config represents options for HTTP client configuration.
type Config struct {
	// RateLimits is a configuration for HTTP client rate limits.
	RateLimits RateLimitConfig `mapstructure:"rateLimits" yaml:"rateLimits" json:"rateLimits"`

	// Throttling is a configuration for funneling requests through a throttling queue.
	Throttling ThrottlingConfig `mapstructure:"throttling" yaml:"throttling" json:"throttling"`

	// Timeout is the maximum time to wait for a request to be made.
	Timeout config.TimeDuration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`

	// keyPrefix is a prefix for configuration parameters.
	keyPrefix string
}

// NewConfig creates a new instance of the Config.
func NewConfig() *Config {
	return NewConfigWithKeyPrefix("")
}

// NewConfigWithKeyPrefix creates a new instance of the Config.
// Allows specifying key prefix which will be used for parsing configuration parameters.
func NewConfigWithKeyPrefix(keyPrefix string) *Config {
	return &Config{keyPrefix: keyPrefix}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
func (c *Config) KeyPrefix() string {
	return c.keyPrefix
}

// Set is part of config interface implementation.
func (c *Config) Set(dp config.DataProvider) error {
	timeout, err := dp.GetDuration(cfgKeyTimeout)
	if err != nil {
		return err
	}
	c.Timeout = config.TimeDuration(timeout)

	if err = c.RateLimits.Set(dp); err != nil {
		return err
	}

	return c.Throttling.Set(dp)
}

// SetProviderDefaults is part of config interface implementation.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyTimeout, DefaultClientWaitTimeout)
	c.Throttling.SetProviderDefaults(dp)
}
