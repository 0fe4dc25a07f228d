/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	throttlequeue "github.com/acronis/go-throttlequeue"
)

func mustQueue(t *testing.T, opts throttlequeue.Opts) *throttlequeue.Queue[*http.Response] {
	t.Helper()
	q, err := throttlequeue.New[*http.Response](opts)
	require.NoError(t, err)
	return q
}

func TestThrottlingRoundTripper(t *testing.T) {
	t.Run("successful response is passed through", func(t *testing.T) {
		var gotRetryHeader atomic.String
		server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			gotRetryHeader.Store(r.Header.Get(RetryAttemptNumberHeader))
			rw.WriteHeader(http.StatusOK)
			_, _ = rw.Write([]byte("ok"))
		}))
		defer server.Close()

		rt, err := NewThrottlingRoundTripper(http.DefaultTransport, mustQueue(t, throttlequeue.Opts{}))
		require.NoError(t, err)
		client := &http.Client{Transport: rt}

		resp, err := client.Get(server.URL)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.Equal(t, "ok", string(body))
		require.Empty(t, gotRetryHeader.Load(), "first attempt must not carry the retry header")
	})

	t.Run("503 responses are retried until success", func(t *testing.T) {
		var reqCount atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			if reqCount.Inc() <= 2 {
				rw.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			require.Equal(t, "2", r.Header.Get(RetryAttemptNumberHeader))
			rw.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		queue := mustQueue(t, throttlequeue.Opts{MaxPerInterval: 1, Interval: 20 * time.Millisecond})
		rt, err := NewThrottlingRoundTripper(http.DefaultTransport, queue)
		require.NoError(t, err)
		client := &http.Client{Transport: rt}

		resp, err := client.Get(server.URL)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.EqualValues(t, 3, reqCount.Load())
	})

	t.Run("request body is rewound between attempts", func(t *testing.T) {
		const wantBody = "hello throttled world"
		var reqCount atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			require.Equal(t, wantBody, string(body))
			if reqCount.Inc() == 1 {
				rw.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			rw.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		queue := mustQueue(t, throttlequeue.Opts{MaxPerInterval: 1, Interval: 20 * time.Millisecond})
		rt, err := NewThrottlingRoundTripper(http.DefaultTransport, queue)
		require.NoError(t, err)
		client := &http.Client{Transport: rt}

		resp, err := client.Post(server.URL, "text/plain", bytes.NewBufferString(wantBody))
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.EqualValues(t, 2, reqCount.Load())
	})

	t.Run("wait timeout interrupts round trip", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			rw.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		queue := mustQueue(t, throttlequeue.Opts{MaxPerInterval: 1, Interval: time.Hour})
		rt, err := NewThrottlingRoundTripperWithOpts(http.DefaultTransport, queue, ThrottlingRoundTripperOpts{
			WaitTimeout: 50 * time.Millisecond,
		})
		require.NoError(t, err)

		req, err := http.NewRequest(http.MethodGet, server.URL, nil)
		require.NoError(t, err)
		_, err = rt.RoundTrip(req)
		var waitErr *ThrottlingWaitError
		require.ErrorAs(t, err, &waitErr)
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("queue is required", func(t *testing.T) {
		_, err := NewThrottlingRoundTripper(http.DefaultTransport, nil)
		require.EqualError(t, err, "queue must not be nil")
	})
}

func TestDefaultCheckThrottle(t *testing.T) {
	makeResp := func(statusCode int, retryAfter string) *http.Response {
		resp := &http.Response{StatusCode: statusCode, Status: http.StatusText(statusCode), Header: http.Header{}}
		if retryAfter != "" {
			resp.Header.Set("Retry-After", retryAfter)
		}
		return resp
	}

	t.Run("ok response is final", func(t *testing.T) {
		require.Nil(t, DefaultCheckThrottle(makeResp(http.StatusOK, ""), nil))
	})

	t.Run("client error is final", func(t *testing.T) {
		require.Nil(t, DefaultCheckThrottle(makeResp(http.StatusBadRequest, ""), nil))
	})

	t.Run("429 pauses the queue", func(t *testing.T) {
		retryErr := DefaultCheckThrottle(makeResp(http.StatusTooManyRequests, "2"), nil)
		require.NotNil(t, retryErr)
		require.True(t, retryErr.PauseQueue)
		require.Equal(t, 2*time.Second, retryErr.RetryAfter)
	})

	t.Run("503 retries without pausing", func(t *testing.T) {
		retryErr := DefaultCheckThrottle(makeResp(http.StatusServiceUnavailable, ""), nil)
		require.NotNil(t, retryErr)
		require.False(t, retryErr.PauseQueue)
		require.Equal(t, time.Duration(0), retryErr.RetryAfter)
	})

	t.Run("temporary transport error retries", func(t *testing.T) {
		require.NotNil(t, DefaultCheckThrottle(nil, io.EOF))
	})

	t.Run("permanent transport error is final", func(t *testing.T) {
		require.Nil(t, DefaultCheckThrottle(nil, errors.New("no such host")))
	})
}

func TestParseRetryAfterFromResponse(t *testing.T) {
	makeResp := func(retryAfter string) *http.Response {
		resp := &http.Response{Header: http.Header{}}
		if retryAfter != "" {
			resp.Header.Set("Retry-After", retryAfter)
		}
		return resp
	}

	retryAfter, ok := parseRetryAfterFromResponse(makeResp("10"))
	require.True(t, ok)
	require.Equal(t, 10*time.Second, retryAfter)

	httpDate := time.Now().Add(time.Minute).UTC().Format(time.RFC1123)
	retryAfter, ok = parseRetryAfterFromResponse(makeResp(httpDate))
	require.True(t, ok)
	require.InDelta(t, time.Minute, retryAfter, float64(5*time.Second))

	_, ok = parseRetryAfterFromResponse(makeResp(""))
	require.False(t, ok)

	_, ok = parseRetryAfterFromResponse(makeResp("-1"))
	require.False(t, ok)

	_, ok = parseRetryAfterFromResponse(makeResp("soon"))
	require.False(t, ok)
}
