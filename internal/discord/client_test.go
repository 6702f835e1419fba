package discord

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roots/discourse-github-sponsors/internal/apiclient"
	"github.com/roots/discourse-github-sponsors/internal/cache"
)

func newTestClient(t *testing.T, calls *int32, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	return NewClient(Config{
		BotToken:   "test-token",
		GuildID:    "guild-1",
		ChannelID:  "channel-1",
		WebhookURL: srv.URL + "/webhook",
		BaseURL:    srv.URL,
		Cache:      cache.NewMemoryStore(),
	})
}

func TestMemberExistsFindsMatches(t *testing.T) {
	var calls int32
	client := newTestClient(t, &calls, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/guilds/guild-1/members/search", r.URL.Path)
		assert.Equal(t, "Bot test-token", r.Header.Get("Authorization"))
		w.Write([]byte(`[{"user":{"username":"alice"}}]`))
	})

	assert.True(t, client.MemberExists(context.Background(), "alice"))
}

func TestMemberExistsCachesResults(t *testing.T) {
	var calls int32
	client := newTestClient(t, &calls, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})

	assert.False(t, client.MemberExists(context.Background(), "alice"))
	assert.False(t, client.MemberExists(context.Background(), "ALICE"))
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls), "second check within TTL must be served from cache")
}

func TestMemberExistsDegradesToFalseOnErrors(t *testing.T) {
	var calls int32
	client := newTestClient(t, &calls, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"message":"boom"}`))
	})

	assert.False(t, client.MemberExists(context.Background(), "alice"))
}

func TestCreateInviteReturnsCodeAndExpiry(t *testing.T) {
	var calls int32
	client := newTestClient(t, &calls, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/channels/channel-1/invites", r.URL.Path)
		w.Write([]byte(`{"code":"abc123","expires_at":"2026-03-01T13:00:00Z"}`))
	})

	inv, err := client.CreateInvite(context.Background(), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "abc123", inv.Code)
	assert.Equal(t, time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC), inv.ExpiresAt.UTC())
}

func TestCreateInviteDistinguishesPermissionFailures(t *testing.T) {
	var calls int32
	client := newTestClient(t, &calls, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"message":"Missing Permissions"}`))
	})

	_, err := client.CreateInvite(context.Background(), time.Hour)
	require.Error(t, err)
	assert.True(t, apiclient.IsKind(err, apiclient.KindPermission))
}

func TestCreateInviteTreatsZeroQuotaForbiddenAsRateLimited(t *testing.T) {
	var calls int32
	client := newTestClient(t, &calls, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Remaining", "0")
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"message":"quota"}`))
	})

	_, err := client.CreateInvite(context.Background(), time.Hour)
	require.Error(t, err)
	assert.True(t, apiclient.IsKind(err, apiclient.KindRateLimited))
}

func TestCreateInviteParsesRetryAfterOn429(t *testing.T) {
	var calls int32
	client := newTestClient(t, &calls, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"message":"rate limited","retry_after":2.5}`))
	})

	_, err := client.CreateInvite(context.Background(), time.Hour)
	require.Error(t, err)
	assert.True(t, apiclient.IsKind(err, apiclient.KindRateLimited))

	apiErr, ok := apiclient.AsError(err)
	require.True(t, ok)
	assert.False(t, apiErr.ResetAt.IsZero())
}

func TestNotifyReportsSuccess(t *testing.T) {
	var calls int32
	client := newTestClient(t, &calls, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/webhook", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	})

	assert.True(t, client.Notify(context.Background(), "hello"))
}

func TestNotifySwallowsFailures(t *testing.T) {
	var calls int32
	client := newTestClient(t, &calls, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"message":"boom"}`))
	})

	assert.False(t, client.Notify(context.Background(), "hello"))
}

func TestNotifyWithoutWebhookConfigured(t *testing.T) {
	client := NewClient(Config{BotToken: "t", GuildID: "g", ChannelID: "c"})
	assert.False(t, client.Notify(context.Background(), "hello"))
}
