package netutil

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func failing(calls *int, err error) http.RoundTripper {
	return roundTripFunc(func(*http.Request) (*http.Response, error) {
		*calls++
		return nil, err
	})
}

func TestShouldRetry(t *testing.T) {
	dial := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	read := &net.OpError{Op: "read", Net: "tcp", Err: timeoutErr{}}

	assert.False(t, ShouldRetry(nil))
	assert.True(t, ShouldRetry(dial))
	assert.True(t, ShouldRetry(read))
	assert.True(t, ShouldRetry(&url.Error{Op: "Post", URL: "http://x", Err: dial}))
	assert.False(t, ShouldRetry(errors.New("boom")))
}

func TestIsDialError(t *testing.T) {
	dial := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	read := &net.OpError{Op: "read", Net: "tcp", Err: timeoutErr{}}

	assert.True(t, IsDialError(dial))
	assert.True(t, IsDialError(&url.Error{Op: "Post", URL: "http://x", Err: dial}))
	assert.False(t, IsDialError(read))
	assert.False(t, IsDialError(timeoutErr{}))
	assert.False(t, IsDialError(nil))
}

func TestRetryTransportUsesRetryFunc(t *testing.T) {
	timeout := &net.OpError{Op: "read", Net: "tcp", Err: timeoutErr{}}
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, "http://example.invalid", nil)
	require.NoError(t, err)

	calls := 0
	rt := &RetryTransport{Base: failing(&calls, timeout), MaxRetries: 2}
	_, err = rt.RoundTrip(req)
	require.ErrorIs(t, err, timeout)
	assert.Equal(t, 3, calls)

	calls = 0
	rt = &RetryTransport{Base: failing(&calls, timeout), MaxRetries: 2, Retry: IsDialError}
	_, err = rt.RoundTrip(req)
	require.ErrorIs(t, err, timeout)
	assert.Equal(t, 1, calls)

	dial := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	calls = 0
	rt = &RetryTransport{Base: failing(&calls, dial), MaxRetries: 2, Retry: IsDialError}
	_, err = rt.RoundTrip(req)
	require.ErrorIs(t, err, dial)
	assert.Equal(t, 3, calls)
}
