/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package throttlequeue

import (
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/require"
)

func TestConstantRetryPolicy(t *testing.T) {
	policy := NewConstantRetryPolicy(100 * time.Millisecond)
	bf := policy.NewBackOff()
	for i := 0; i < 5; i++ {
		require.Equal(t, 100*time.Millisecond, bf.NextBackOff())
	}
}

func TestExponentialRetryPolicy(t *testing.T) {
	policy := NewExponentialRetryPolicy(time.Second, 2)
	bf := policy.NewBackOff()

	prev := time.Duration(0)
	for i := 0; i < 5; i++ {
		d := bf.NextBackOff()
		require.NotEqual(t, backoff.Stop, d)
		require.Greater(t, d, prev/2, "delays must grow on average")
		prev = d
	}
}

func TestRetryPolicyFunc(t *testing.T) {
	var policy RetryPolicy = RetryPolicyFunc(func() backoff.BackOff {
		return backoff.NewConstantBackOff(time.Second)
	})
	require.Equal(t, time.Second, policy.NewBackOff().NextBackOff())
}

func TestRetryPolicyBackOffIsPerExecution(t *testing.T) {
	// Each logical execution must get its own backoff sequence.
	policy := NewExponentialRetryPolicy(time.Second, 2)
	bf1 := policy.NewBackOff()
	bf2 := policy.NewBackOff()
	require.NotSame(t, bf1, bf2)
}
