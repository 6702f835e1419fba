package invite

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roots/discourse-github-sponsors/internal/discord"
	"github.com/roots/discourse-github-sponsors/pkg/response"
)

func TestMarkUsedEndpointTransitionsInvite(t *testing.T) {
	store := &fakeStore{}
	gateway := &fakeGateway{minted: &discord.Invite{Code: "abc123", ExpiresAt: time.Now().Add(time.Hour)}}
	svc := newTestService(store, gateway, &fakeGroupChecker{isMember: true})
	handler := NewHandler(svc)

	_, err := svc.Create(context.Background(), 1, "alice#123")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/used", strings.NewReader(`{"invite_code":"abc123"}`))
	rec := httptest.NewRecorder()
	handler.AdminRoutes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Success bool            `json:"success"`
		Data    *InviteResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, StatusUsed, body.Data.Status)
	assert.NotEmpty(t, body.Data.UsedAt)
}

func TestMarkUsedEndpointUnknownCode(t *testing.T) {
	handler := NewHandler(newTestService(&fakeStore{}, &fakeGateway{}, &fakeGroupChecker{isMember: true}))

	req := httptest.NewRequest(http.MethodPost, "/used", strings.NewReader(`{"invite_code":"nope"}`))
	rec := httptest.NewRecorder()
	handler.AdminRoutes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)

	var body response.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Success)
}

func TestMarkUsedEndpointRejectsEmptyCode(t *testing.T) {
	handler := NewHandler(newTestService(&fakeStore{}, &fakeGateway{}, &fakeGroupChecker{isMember: true}))

	req := httptest.NewRequest(http.MethodPost, "/used", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	handler.AdminRoutes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
