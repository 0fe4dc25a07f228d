/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package throttlequeue

import (
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/acronis/go-throttlequeue/config"
)

const cfgDefaultKeyPrefix = "throttleQueue"

const (
	// RetryPolicyExponential is a policy for exponential retries.
	RetryPolicyExponential = "exponential"

	// RetryPolicyConstant is a policy for constant retries.
	RetryPolicyConstant = "constant"

	// configuration properties
	cfgKeyMaxPerInterval                        = "maxPerInterval"
	cfgKeyInterval                              = "interval"
	cfgKeyEvenlySpaced                          = "evenlySpaced"
	cfgKeyMaxRetries                            = "maxRetries"
	cfgKeyMaxRetriesWithPauses                  = "maxRetriesWithPauses"
	cfgKeyRetryPolicyStrategy                   = "retryPolicy.strategy"
	cfgKeyRetryPolicyExponentialInitialInterval = "retryPolicy.exponentialBackoffInitialInterval"
	cfgKeyRetryPolicyExponentialMultiplier      = "retryPolicy.exponentialBackoffMultiplier"
	cfgKeyRetryPolicyConstantInterval           = "retryPolicy.constantBackoffInterval"
)

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// RetryPolicyConfig represents configuration options for the queue retry policy.
type RetryPolicyConfig struct {
	// Strategy is a strategy for retry policy.
	Strategy string `mapstructure:"strategy" yaml:"strategy" json:"strategy"`

	// ExponentialBackoffInitialInterval is the initial interval for exponential backoff.
	ExponentialBackoffInitialInterval config.TimeDuration `mapstructure:"exponentialBackoffInitialInterval" yaml:"exponentialBackoffInitialInterval" json:"exponentialBackoffInitialInterval"` // nolint:lll

	// ExponentialBackoffMultiplier is the multiplier for exponential backoff.
	ExponentialBackoffMultiplier float64 `mapstructure:"exponentialBackoffMultiplier" yaml:"exponentialBackoffMultiplier" json:"exponentialBackoffMultiplier"` // nolint:lll

	// ConstantBackoffInterval is the interval for constant backoff.
	ConstantBackoffInterval config.TimeDuration `mapstructure:"constantBackoffInterval" yaml:"constantBackoffInterval" json:"constantBackoffInterval"` // nolint:lll
}

// Set is part of config interface implementation.
func (c *RetryPolicyConfig) Set(dp config.DataProvider) (err error) {
	strategy, err := dp.GetString(cfgKeyRetryPolicyStrategy)
	if err != nil {
		return err
	}
	c.Strategy = strategy

	if c.Strategy != "" && c.Strategy != RetryPolicyExponential && c.Strategy != RetryPolicyConstant {
		return errors.New("queue retry policy must be one of: [exponential, constant]")
	}

	if c.Strategy == RetryPolicyExponential {
		var interval time.Duration
		interval, err = dp.GetDuration(cfgKeyRetryPolicyExponentialInitialInterval)
		if err != nil {
			return err
		}
		if interval < 0 {
			return errors.New("queue exponential backoff initial interval must be positive")
		}
		c.ExponentialBackoffInitialInterval = config.TimeDuration(interval)

		var multiplier float64
		multiplier, err = dp.GetFloat64(cfgKeyRetryPolicyExponentialMultiplier)
		if err != nil {
			return err
		}
		if multiplier <= 1 {
			return errors.New("queue exponential backoff multiplier must be greater than 1")
		}
		c.ExponentialBackoffMultiplier = multiplier

		return nil
	}

	if c.Strategy == RetryPolicyConstant {
		var interval time.Duration
		interval, err = dp.GetDuration(cfgKeyRetryPolicyConstantInterval)
		if err != nil {
			return err
		}
		if interval < 0 {
			return errors.New("queue constant backoff interval must be positive")
		}
		c.ConstantBackoffInterval = config.TimeDuration(interval)
	}

	return nil
}

// SetProviderDefaults is part of config interface implementation.
func (c *RetryPolicyConfig) SetProviderDefaults(_ config.DataProvider) {}

// GetPolicy returns a retry policy based on strategy or nil if none is provided.
func (c *RetryPolicyConfig) GetPolicy() RetryPolicy {
	if c.Strategy == RetryPolicyExponential {
		return RetryPolicyFunc(func() backoff.BackOff {
			eb := backoff.NewExponentialBackOff()
			eb.InitialInterval = time.Duration(c.ExponentialBackoffInitialInterval)
			eb.Multiplier = c.ExponentialBackoffMultiplier
			eb.MaxElapsedTime = 0
			eb.Reset()
			return eb
		})
	}
	if c.Strategy == RetryPolicyConstant {
		return RetryPolicyFunc(func() backoff.BackOff {
			bf := backoff.NewConstantBackOff(time.Duration(c.ConstantBackoffInterval))
			bf.Reset()
			return bf
		})
	}
	return nil
}

// Config represents a set of configuration parameters for Queue.
// Configuration can be loaded in different formats (YAML, JSON) using config.Loader, viper,
// or with json.Unmarshal/yaml.Unmarshal functions directly.
type Config struct {
	// MaxPerInterval is the admission quota per window. Zero means no quota.
	MaxPerInterval int `mapstructure:"maxPerInterval" yaml:"maxPerInterval" json:"maxPerInterval"`

	// Interval is the length of the admission window. Zero means no windowing.
	Interval config.TimeDuration `mapstructure:"interval" yaml:"interval" json:"interval"`

	// EvenlySpaced spreads admissions uniformly over the interval.
	EvenlySpaced bool `mapstructure:"evenlySpaced" yaml:"evenlySpaced" json:"evenlySpaced"`

	// MaxRetries is the cap on plain retries per logical execution.
	MaxRetries int `mapstructure:"maxRetries" yaml:"maxRetries" json:"maxRetries"`

	// MaxRetriesWithPauses is the cap on queue-pausing retries per logical execution.
	MaxRetriesWithPauses int `mapstructure:"maxRetriesWithPauses" yaml:"maxRetriesWithPauses" json:"maxRetriesWithPauses"`

	// RetryPolicy configures how delays grow between retries that carry no explicit delay.
	RetryPolicy RetryPolicyConfig `mapstructure:"retryPolicy" yaml:"retryPolicy" json:"retryPolicy"`

	// keyPrefix is a prefix for configuration parameters.
	keyPrefix string
}

// NewConfig creates a new instance of the Config.
func NewConfig() *Config {
	return NewConfigWithKeyPrefix(cfgDefaultKeyPrefix)
}

// NewConfigWithKeyPrefix creates a new instance of the Config.
// Allows specifying key prefix which will be used for parsing configuration parameters.
func NewConfigWithKeyPrefix(keyPrefix string) *Config {
	return &Config{keyPrefix: keyPrefix}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
// Implements config.KeyPrefixProvider interface.
func (c *Config) KeyPrefix() string {
	return c.keyPrefix
}

// SetProviderDefaults is part of config interface implementation.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyMaxRetries, DefaultMaxRetries)
	dp.SetDefault(cfgKeyMaxRetriesWithPauses, DefaultMaxRetriesWithPauses)
}

// Set is part of config interface implementation.
func (c *Config) Set(dp config.DataProvider) error {
	maxPerInterval, err := dp.GetInt(cfgKeyMaxPerInterval)
	if err != nil {
		return err
	}
	if maxPerInterval < 0 {
		return errors.New("queue max per interval must be positive or zero (unbounded)")
	}
	c.MaxPerInterval = maxPerInterval

	interval, err := dp.GetDuration(cfgKeyInterval)
	if err != nil {
		return err
	}
	if interval < 0 {
		return errors.New("queue interval must not be negative")
	}
	c.Interval = config.TimeDuration(interval)

	if c.EvenlySpaced, err = dp.GetBool(cfgKeyEvenlySpaced); err != nil {
		return err
	}

	maxRetries, err := dp.GetInt(cfgKeyMaxRetries)
	if err != nil {
		return err
	}
	if maxRetries < 0 {
		return errors.New("queue max retries must not be negative")
	}
	c.MaxRetries = maxRetries

	maxRetriesWithPauses, err := dp.GetInt(cfgKeyMaxRetriesWithPauses)
	if err != nil {
		return err
	}
	if maxRetriesWithPauses < 0 {
		return errors.New("queue max retries with pauses must not be negative")
	}
	c.MaxRetriesWithPauses = maxRetriesWithPauses

	return c.RetryPolicy.Set(dp)
}

// QueueOpts returns queue options based on the configuration values.
func (c *Config) QueueOpts() Opts {
	return Opts{
		MaxPerInterval:       c.MaxPerInterval,
		Interval:             time.Duration(c.Interval),
		EvenlySpaced:         c.EvenlySpaced,
		MaxRetries:           retryLimitOpt(c.MaxRetries),
		MaxRetriesWithPauses: retryLimitOpt(c.MaxRetriesWithPauses),
		RetryPolicy:          c.RetryPolicy.GetPolicy(),
	}
}

// retryLimitOpt converts an explicit config value into an Opts value:
// in configuration zero literally means "no retries", while in Opts zero means "use the default".
func retryLimitOpt(value int) int {
	if value == 0 {
		return NoRetries
	}
	return value
}
