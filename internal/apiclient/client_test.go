package apiclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roots/discourse-github-sponsors/internal/cache"
)

func newTestServer(t *testing.T, calls *int32, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestExecuteCachesSuccessfulResponses(t *testing.T) {
	var calls int32
	srv := newTestServer(t, &calls, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"value":1}`))
	})

	client := New(Options{Cache: cache.NewMemoryStore()})
	req := Request{Method: http.MethodGet, URL: srv.URL, CacheKey: "test:key", CacheTTL: time.Minute}

	first, err := client.Execute(context.Background(), req)
	require.NoError(t, err)

	second, err := client.Execute(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls), "second call within TTL must not hit the network")
}

func TestExecuteRefetchesAfterTTLExpiry(t *testing.T) {
	var calls int32
	srv := newTestServer(t, &calls, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"value":1}`))
	})

	client := New(Options{Cache: cache.NewMemoryStore()})
	req := Request{Method: http.MethodGet, URL: srv.URL, CacheKey: "test:key", CacheTTL: 30 * time.Millisecond}

	_, err := client.Execute(context.Background(), req)
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)

	_, err = client.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestExecuteBlocksForShortRateLimitResets(t *testing.T) {
	var calls int32
	srv := newTestServer(t, &calls, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})

	client := New(Options{})
	now := time.Now()
	client.now = func() time.Time { return now }

	var slept time.Duration
	client.sleep = func(d time.Duration) { slept = d }

	client.SetRateLimit(0, now.Add(30*time.Second))

	_, err := client.Execute(context.Background(), Request{Method: http.MethodGet, URL: srv.URL})
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second+waitMargin, slept)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
	assert.False(t, client.RateLimit().Known, "snapshot remaining must be cleared after the wait")
}

func TestExecuteFailsFastOnLongRateLimitResets(t *testing.T) {
	var calls int32
	srv := newTestServer(t, &calls, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})

	client := New(Options{})
	now := time.Now()
	client.now = func() time.Time { return now }
	client.sleep = func(d time.Duration) { t.Fatalf("unexpected sleep of %v", d) }

	resetAt := now.Add(120 * time.Second)
	client.SetRateLimit(0, resetAt)

	_, err := client.Execute(context.Background(), Request{Method: http.MethodGet, URL: srv.URL})
	require.Error(t, err)
	assert.True(t, IsKind(err, KindRateLimited))

	apiErr, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, resetAt, apiErr.ResetAt)
	assert.EqualValues(t, 0, atomic.LoadInt32(&calls), "request must not reach the network")
}

func TestExecuteUpdatesSnapshotFromHeaders(t *testing.T) {
	var calls int32
	srv := newTestServer(t, &calls, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Remaining", "4200")
		w.Header().Set("X-RateLimit-Reset", "1700000000")
		w.Write([]byte(`{}`))
	})

	client := New(Options{})
	_, err := client.Execute(context.Background(), Request{Method: http.MethodGet, URL: srv.URL})
	require.NoError(t, err)

	snap := client.RateLimit()
	assert.True(t, snap.Known)
	assert.Equal(t, 4200, snap.Remaining)
	assert.Equal(t, int64(1700000000), snap.ResetAt.Unix())
}

func TestExecuteMapsTransportFailures(t *testing.T) {
	client := New(Options{HTTPClient: &http.Client{Timeout: 50 * time.Millisecond}})

	_, err := client.Execute(context.Background(), Request{Method: http.MethodGet, URL: "http://127.0.0.1:1"})
	require.Error(t, err)
	assert.True(t, IsKind(err, KindTransient))
}

func TestExecuteRejectsMalformedBodies(t *testing.T) {
	var calls int32
	srv := newTestServer(t, &calls, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	})

	client := New(Options{})
	_, err := client.Execute(context.Background(), Request{Method: http.MethodGet, URL: srv.URL})
	require.Error(t, err)
	assert.True(t, IsKind(err, KindMalformed))
}

func TestExecuteSkipsCacheOnPayloadErrors(t *testing.T) {
	var calls int32
	srv := newTestServer(t, &calls, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"errors":[{"message":"boom"}]}`))
	})

	client := New(Options{
		Cache: cache.NewMemoryStore(),
		CheckPayload: func(body []byte) *Error {
			return &Error{Kind: KindAPI, Message: "embedded errors"}
		},
	})
	req := Request{Method: http.MethodGet, URL: srv.URL, CacheKey: "test:key", CacheTTL: time.Minute}

	_, err := client.Execute(context.Background(), req)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindAPI))

	_, err = client.Execute(context.Background(), req)
	require.Error(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls), "failed responses must not be cached")
}

func TestExecuteSignalsAuthFailures(t *testing.T) {
	var calls int32
	srv := newTestServer(t, &calls, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"bad credentials"}`))
	})

	var signalled bool
	client := New(Options{OnAuthFailure: func() { signalled = true }})

	_, err := client.Execute(context.Background(), Request{Method: http.MethodGet, URL: srv.URL})
	require.Error(t, err)
	assert.True(t, IsKind(err, KindAuth))
	assert.True(t, signalled)

	apiErr, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, "bad credentials", apiErr.Message)
}

func TestDefaultClassify(t *testing.T) {
	zeroRemaining := http.Header{}
	zeroRemaining.Set("X-RateLimit-Remaining", "0")

	tests := []struct {
		name   string
		status int
		header http.Header
		want   Kind
	}{
		{"unauthorized", http.StatusUnauthorized, http.Header{}, KindAuth},
		{"forbidden with quota left", http.StatusForbidden, http.Header{}, KindPermission},
		{"forbidden with zero quota", http.StatusForbidden, zeroRemaining, KindRateLimited},
		{"not found", http.StatusNotFound, http.Header{}, KindNotFound},
		{"unprocessable", http.StatusUnprocessableEntity, http.Header{}, KindInvalidRequest},
		{"too many requests", http.StatusTooManyRequests, http.Header{}, KindRateLimited},
		{"server error", http.StatusBadGateway, http.Header{}, KindServer},
		{"teapot", http.StatusTeapot, http.Header{}, KindAPI},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := defaultClassify(tt.status, tt.header, nil, "X-RateLimit-Remaining")
			assert.Equal(t, tt.want, err.Kind)
			assert.Equal(t, tt.status, err.Status)
		})
	}
}

func TestMessageFromBody(t *testing.T) {
	assert.Equal(t, "nope", messageFromBody([]byte(`{"message":"nope"}`)))
	assert.Equal(t, "a; b", messageFromBody([]byte(`{"errors":[{"message":"a"},{"message":"b"}]}`)))
	assert.Equal(t, "", messageFromBody([]byte(`garbage`)))
}
