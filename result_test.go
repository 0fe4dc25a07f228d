/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package throttlequeue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestResult(t *testing.T) {
	t.Run("get before completion", func(t *testing.T) {
		res := newResult[int]()
		_, err := res.Get()
		require.ErrorIs(t, err, ErrResultNotReady)
	})

	t.Run("resolve", func(t *testing.T) {
		res := newResult[int]()
		res.resolve(42)
		<-res.Done()
		value, err := res.Get()
		require.NoError(t, err)
		require.Equal(t, 42, value)

		value, err = res.Wait(context.Background())
		require.NoError(t, err)
		require.Equal(t, 42, value)
	})

	t.Run("fail", func(t *testing.T) {
		res := newResult[int]()
		wantErr := errors.New("boom")
		res.fail(wantErr)
		_, err := res.Wait(context.Background())
		require.ErrorIs(t, err, wantErr)
	})

	t.Run("wait is interrupted by context", func(t *testing.T) {
		res := newResult[int]()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		_, err := res.Wait(ctx)
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestRetryErrorMessage(t *testing.T) {
	require.EqualError(t, &RetryError{}, "execution retry requested")
	require.EqualError(t, &RetryError{Message: "too many requests"}, "execution retry requested: too many requests")
}
