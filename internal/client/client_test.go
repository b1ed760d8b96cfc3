package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// staticToken is a test TokenSource that returns a fixed token.
type staticToken string

func (t staticToken) AccessToken() (string, error) {
	return string(t), nil
}

// failingToken is a test TokenSource that always errors.
type failingToken struct{}

func (failingToken) AccessToken() (string, error) {
	return "", errors.New("token unavailable")
}

func newTestClient(url string) *Client {
	c := New(url, staticToken("test-token"), nil)
	c.sleepFunc = func(time.Duration) {}

	return c
}

func TestGetAccount_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":"u1","email":"a@example.com"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	user, err := c.GetAccount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)
	assert.Equal(t, "a@example.com", user.Email)
}

func TestDoJSON_TokenError(t *testing.T) {
	c := New("http://unused.invalid", failingToken{}, nil)

	_, err := c.GetAccount(context.Background())
	require.Error(t, err)
}

func TestDoRetry_SessionExpiredNotRetried(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.GetAccount(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDoRetry_ServerErrorRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":"u1"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	user, err := c.GetAccount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)
	assert.Equal(t, int32(3), calls.Load())
}

func TestDoRetry_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.GetAccount(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrServer)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDoRetry_RateLimitedSurfacesImmediately(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.GetAccount(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, int32(1), calls.Load(), "rate limiting must surface to the caller, not retry inside the client")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 7, apiErr.RetryAfter)
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, 30, parseRetryAfter("30"))
	assert.Equal(t, defaultRetryAfter, parseRetryAfter(""))
	assert.Equal(t, defaultRetryAfter, parseRetryAfter("soon"))
	assert.Equal(t, defaultRetryAfter, parseRetryAfter("-5"))
}

func TestGetSalt_EscapesEmail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "a+b@example.com", r.URL.Query().Get("email"))
		_, _ = w.Write([]byte(`{"salt":"c2FsdA=="}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	resp, err := c.GetSalt(context.Background(), "a+b@example.com")
	require.NoError(t, err)
	assert.Equal(t, "c2FsdA==", resp.Salt)
}

func TestDoRetry_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := newTestClient(srv.URL)
	_, err := c.GetAccount(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPutBytes_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/octet-stream", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	err := c.PutBytes(context.Background(), srv.URL+"/upload", []byte("hello"))
	require.NoError(t, err)
}

func TestGetBytes_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("file contents"))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	data, err := c.GetBytes(context.Background(), srv.URL+"/download")
	require.NoError(t, err)
	assert.Equal(t, "file contents", string(data))
}

func TestCalcBackoff_Caps(t *testing.T) {
	for attempt := 0; attempt < 10; attempt++ {
		d := calcBackoff(attempt)
		assert.LessOrEqual(t, d, maxBackoff)
		assert.GreaterOrEqual(t, d, time.Duration(0))
	}
}
