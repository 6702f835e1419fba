package github

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/roots/discourse-github-sponsors/internal/apiclient"
	"github.com/roots/discourse-github-sponsors/internal/cache"
)

const defaultEndpoint = "https://api.github.com/graphql"

// Config configures a GitHub GraphQL client
type Config struct {
	Token    string
	Endpoint string
	Cache    cache.Store
	Logger   *slog.Logger
	// OnAuthFailure signals an external health check when the token is
	// rejected
	OnAuthFailure func()
	HTTPClient    *http.Client
}

// Client runs GraphQL queries against the GitHub API through a rate-limited
// client
type Client struct {
	api      *apiclient.Client
	token    string
	endpoint string
	logger   *slog.Logger
}

// NewClient creates a GitHub GraphQL client
func NewClient(cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}

	api := apiclient.New(apiclient.Options{
		HTTPClient:    cfg.HTTPClient,
		Cache:         cfg.Cache,
		Logger:        logger,
		CheckPayload:  checkGraphQLErrors,
		OnAuthFailure: cfg.OnAuthFailure,
	})

	return &Client{
		api:      api,
		token:    cfg.Token,
		endpoint: endpoint,
		logger:   logger,
	}
}

// checkGraphQLErrors rejects 2xx responses that carry an embedded errors
// array; GraphQL reports most failures this way
func checkGraphQLErrors(body []byte) *apiclient.Error {
	var payload struct {
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return &apiclient.Error{Kind: apiclient.KindMalformed, Message: "failed to parse GraphQL response", Cause: err}
	}
	if len(payload.Errors) == 0 {
		return nil
	}
	messages := make([]string, 0, len(payload.Errors))
	for _, e := range payload.Errors {
		messages = append(messages, e.Message)
	}
	return &apiclient.Error{Kind: apiclient.KindAPI, Message: strings.Join(messages, "; ")}
}

// query executes one GraphQL query and returns the data object
func (c *Client) query(ctx context.Context, query string, variables map[string]any, cacheKey string, cacheTTL time.Duration) (json.RawMessage, error) {
	reqBody, err := json.Marshal(map[string]any{
		"query":     query,
		"variables": variables,
	})
	if err != nil {
		return nil, &apiclient.Error{Kind: apiclient.KindInvalidRequest, Message: "failed to encode query", Cause: err}
	}

	header := http.Header{}
	header.Set("Authorization", "bearer "+c.token)
	header.Set("Content-Type", "application/json")

	body, err := c.api.Execute(ctx, apiclient.Request{
		Method:   http.MethodPost,
		URL:      c.endpoint,
		Header:   header,
		Body:     reqBody,
		CacheKey: cacheKey,
		CacheTTL: cacheTTL,
	})
	if err != nil {
		return nil, err
	}

	var payload struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &apiclient.Error{Kind: apiclient.KindMalformed, Message: "failed to parse GraphQL response", Cause: err}
	}
	return payload.Data, nil
}

// updateRateLimit feeds a payload-embedded rate-limit object into the
// snapshot; the payload value wins over headers
func (c *Client) updateRateLimit(rl *rateLimitInfo) {
	if rl == nil {
		return
	}
	resetAt, err := time.Parse(time.RFC3339, rl.ResetAt)
	if err != nil {
		resetAt = time.Time{}
	}
	c.api.SetRateLimit(rl.Remaining, resetAt)
}

type rateLimitInfo struct {
	Remaining int    `json:"remaining"`
	ResetAt   string `json:"resetAt"`
}

// RateLimit probes the API for the current rate-limit window
func (c *Client) RateLimit(ctx context.Context) (apiclient.Snapshot, error) {
	const q = `query { rateLimit { remaining resetAt } }`

	data, err := c.query(ctx, q, nil, "", 0)
	if err != nil {
		return apiclient.Snapshot{}, err
	}

	var payload struct {
		RateLimit *rateLimitInfo `json:"rateLimit"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return apiclient.Snapshot{}, &apiclient.Error{Kind: apiclient.KindMalformed, Message: "failed to parse rate limit", Cause: err}
	}
	c.updateRateLimit(payload.RateLimit)
	return c.api.RateLimit(), nil
}
