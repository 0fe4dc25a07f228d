/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package throttlequeue

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy defines how delays grow between retries of the same logical execution
// when the retry carries no explicit delay.
type RetryPolicy interface {
	NewBackOff() backoff.BackOff
}

// The RetryPolicyFunc type is an adapter to allow the use of ordinary functions as RetryPolicy.
type RetryPolicyFunc func() backoff.BackOff

// NewBackOff implements RetryPolicy.
func (f RetryPolicyFunc) NewBackOff() backoff.BackOff {
	return f()
}

// ExponentialRetryPolicy means delays between retries grow exponentially.
type ExponentialRetryPolicy struct {
	initialInterval time.Duration
	multiplier      float64
}

// NewExponentialRetryPolicy returns an exponential retry policy with the given initial interval and multiplier.
func NewExponentialRetryPolicy(initialInterval time.Duration, multiplier float64) ExponentialRetryPolicy {
	return ExponentialRetryPolicy{initialInterval, multiplier}
}

// NewBackOff implements RetryPolicy.
func (p ExponentialRetryPolicy) NewBackOff() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.initialInterval
	eb.Multiplier = p.multiplier
	eb.MaxElapsedTime = 0
	eb.Reset()
	return eb
}

// ConstantRetryPolicy means delays between retries are constant.
type ConstantRetryPolicy struct {
	interval time.Duration
}

// NewConstantRetryPolicy returns a constant retry policy with the given interval.
func NewConstantRetryPolicy(interval time.Duration) ConstantRetryPolicy {
	return ConstantRetryPolicy{interval}
}

// NewBackOff implements RetryPolicy.
func (p ConstantRetryPolicy) NewBackOff() backoff.BackOff {
	bf := backoff.NewConstantBackOff(p.interval)
	bf.Reset()
	return bf
}
