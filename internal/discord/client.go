package discord

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/roots/discourse-github-sponsors/internal/apiclient"
	"github.com/roots/discourse-github-sponsors/internal/cache"
)

const (
	defaultBaseURL = "https://discord.com/api/v10"

	memberCheckTTL = 5 * time.Minute
)

// Config configures a Discord API client
type Config struct {
	BotToken   string
	GuildID    string
	ChannelID  string
	WebhookURL string
	BaseURL    string
	Cache      cache.Store
	Logger     *slog.Logger
	HTTPClient *http.Client
}

// Client talks to the Discord REST API through a rate-limited client
type Client struct {
	api        *apiclient.Client
	guildID    string
	channelID  string
	webhookURL string
	baseURL    string
	token      string
	logger     *slog.Logger
}

// NewClient creates a Discord API client
func NewClient(cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	api := apiclient.New(apiclient.Options{
		HTTPClient: cfg.HTTPClient,
		Cache:      cfg.Cache,
		Logger:     logger,
		Classifier: classify,
	})

	return &Client{
		api:        api,
		guildID:    cfg.GuildID,
		channelID:  cfg.ChannelID,
		webhookURL: cfg.WebhookURL,
		baseURL:    baseURL,
		token:      cfg.BotToken,
		logger:     logger,
	}
}

// classify maps Discord responses onto error kinds. A 403 with the
// remaining-rate header at zero is quota exhaustion, not a permission
// failure; 429 carries the retry delay in its body.
func classify(status int, header http.Header, body []byte) *apiclient.Error {
	if status == http.StatusTooManyRequests {
		e := &apiclient.Error{Kind: apiclient.KindRateLimited, Message: "rate limit exceeded", Status: status}
		var payload struct {
			RetryAfter float64 `json:"retry_after"`
		}
		if err := json.Unmarshal(body, &payload); err == nil && payload.RetryAfter > 0 {
			e.ResetAt = time.Now().Add(time.Duration(payload.RetryAfter * float64(time.Second)))
		}
		return e
	}
	// 403 handling (zero-remaining vs permission) and the rest follow the
	// standard mapping.
	return nil
}

func (c *Client) authHeader() http.Header {
	header := http.Header{}
	header.Set("Authorization", "Bot "+c.token)
	header.Set("Content-Type", "application/json")
	return header
}

// MemberExists reports whether a guild member matches username. Results are
// cached for five minutes. Any failure degrades to false so callers never
// block on this check.
func (c *Client) MemberExists(ctx context.Context, username string) bool {
	query := url.Values{}
	query.Set("query", username)
	query.Set("limit", "1")

	body, err := c.api.Execute(ctx, apiclient.Request{
		Method:   http.MethodGet,
		URL:      c.baseURL + "/guilds/" + c.guildID + "/members/search?" + query.Encode(),
		Header:   c.authHeader(),
		CacheKey: "discord:member:" + strings.ToLower(username),
		CacheTTL: memberCheckTTL,
	})
	if err != nil {
		c.logger.Warn("guild member search failed", "username", username, "error", err)
		return false
	}

	var members []struct {
		User struct {
			Username string `json:"username"`
		} `json:"user"`
	}
	if err := json.Unmarshal(body, &members); err != nil {
		c.logger.Warn("failed to parse member search response", "error", err)
		return false
	}
	return len(members) > 0
}

// Invite is a freshly minted single-use channel invite
type Invite struct {
	Code      string
	ExpiresAt time.Time
}

// CreateInvite mints a single-use invite for the configured channel with the
// given lifetime. Permission failures surface as KindPermission so callers
// can answer with a permission-specific message.
func (c *Client) CreateInvite(ctx context.Context, ttl time.Duration) (*Invite, error) {
	reqBody, err := json.Marshal(map[string]any{
		"max_age":  int(ttl.Seconds()),
		"max_uses": 1,
		"unique":   true,
	})
	if err != nil {
		return nil, &apiclient.Error{Kind: apiclient.KindInvalidRequest, Message: "failed to encode invite request", Cause: err}
	}

	body, err := c.api.Execute(ctx, apiclient.Request{
		Method: http.MethodPost,
		URL:    c.baseURL + "/channels/" + c.channelID + "/invites",
		Header: c.authHeader(),
		Body:   reqBody,
	})
	if err != nil {
		return nil, err
	}

	var payload struct {
		Code      string `json:"code"`
		ExpiresAt string `json:"expires_at"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.Code == "" {
		return nil, &apiclient.Error{Kind: apiclient.KindMalformed, Message: "invite response missing code", Cause: err}
	}

	expiresAt, err := time.Parse(time.RFC3339, payload.ExpiresAt)
	if err != nil {
		expiresAt = time.Now().Add(ttl)
	}

	return &Invite{Code: payload.Code, ExpiresAt: expiresAt}, nil
}

// Notify posts a text message to the configured webhook. Failures are
// swallowed and reported as false; notifications are best-effort.
func (c *Client) Notify(ctx context.Context, message string) bool {
	if c.webhookURL == "" {
		return false
	}

	reqBody, err := json.Marshal(map[string]string{"content": message})
	if err != nil {
		return false
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json")

	if _, err := c.api.Execute(ctx, apiclient.Request{
		Method: http.MethodPost,
		URL:    c.webhookURL,
		Header: header,
		Body:   reqBody,
	}); err != nil {
		c.logger.Warn("webhook notification failed", "error", err)
		return false
	}
	return true
}

// RateLimit returns the client's current view of the rate-limit window
func (c *Client) RateLimit() apiclient.Snapshot {
	return c.api.RateLimit()
}
