package http

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

func TestClient_DoJSONRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := NewClient(time.Second, WithRetries(2, time.Millisecond))
	var out struct {
		OK bool `json:"ok"`
	}
	err := c.DoJSON(context.Background(), http.MethodPost, srv.URL, map[string]string{"Authorization": "Bearer key"}, map[string]int{"a": 1}, &out)
	require.NoError(t, err)
	assert.True(t, out.OK)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_DoJSONDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte("bad key"))
	}))
	defer srv.Close()

	c := NewClient(time.Second, WithRetries(3, time.Millisecond))
	err := c.DoJSON(context.Background(), http.MethodGet, srv.URL, nil, nil, nil)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusUnauthorized, se.StatusCode)
	assert.Equal(t, "bad key", se.Body)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClient_DoJSONBadBodyIsPermanent(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	c := NewClient(time.Second, WithRetries(3, time.Millisecond))
	var out map[string]interface{}
	err := c.DoJSON(context.Background(), http.MethodGet, srv.URL, nil, nil, &out)
	assert.ErrorIs(t, err, ErrDecode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClient_RateLimitHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(time.Second, WithRateLimit(0.01, 1))
	require.NoError(t, c.DoJSON(context.Background(), http.MethodGet, srv.URL, nil, nil, nil))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, c.DoJSON(ctx, http.MethodGet, srv.URL, nil, nil, nil))
}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestClient_WithTransport(t *testing.T) {
	var seen string
	rt := roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		seen = r.URL.String()
		rec := httptest.NewRecorder()
		_, _ = rec.WriteString(`{"ok":true}`)
		return rec.Result(), nil
	})

	c := NewClient(time.Second, WithTransport(rt))
	var out struct {
		OK bool `json:"ok"`
	}
	require.NoError(t, c.DoJSON(context.Background(), http.MethodGet, "http://engine.local/decide", nil, nil, &out))
	assert.True(t, out.OK)
	assert.Equal(t, "http://engine.local/decide", seen)
}
