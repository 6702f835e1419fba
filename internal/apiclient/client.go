package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/roots/discourse-github-sponsors/internal/cache"
)

const (
	// waitThreshold bounds the in-process rate-limit wait; anything longer
	// fails fast so request latency stays bounded.
	waitThreshold = 60 * time.Second
	// waitMargin is added to the computed wait so the window has actually
	// rolled over by the time the request goes out.
	waitMargin = time.Second

	defaultTimeout  = 15 * time.Second
	defaultLowWater = 50
)

// Request describes one API call. CacheKey is optional; when set together
// with CacheTTL, a prior successful response short-circuits the network.
type Request struct {
	Method   string
	URL      string
	Header   http.Header
	Body     []byte
	CacheKey string
	CacheTTL time.Duration
}

// Snapshot is the client's view of the provider's rate-limit window.
// Remaining is meaningful only when Known is true; a zero ResetAt means the
// reset time is unknown.
type Snapshot struct {
	Remaining int
	Known     bool
	ResetAt   time.Time
}

// Classifier maps a non-2xx response to a classified error
type Classifier func(status int, header http.Header, body []byte) *Error

// Options configures a Client
type Options struct {
	HTTPClient *http.Client
	Cache      cache.Store
	Logger     *slog.Logger

	// Classifier overrides the default non-2xx mapping
	Classifier Classifier
	// CheckPayload inspects a 2xx body for embedded provider errors; a
	// non-nil return fails the request and skips the cache write
	CheckPayload func(body []byte) *Error
	// OnAuthFailure is invoked when a request classifies as KindAuth,
	// signalling an external health check
	OnAuthFailure func()

	// RemainingHeader and ResetHeader name the provider's rate-limit
	// headers; ResetHeader carries epoch seconds
	RemainingHeader string
	ResetHeader     string
	// LowWater triggers a warning log when remaining quota drops below it
	LowWater int
}

// Client executes HTTP requests against one API provider with rate-limit
// tracking and optional response caching. Each Client owns its Snapshot
// exclusively; the snapshot is never persisted.
type Client struct {
	httpClient    *http.Client
	cache         cache.Store
	logger        *slog.Logger
	classify      Classifier
	checkPayload  func([]byte) *Error
	onAuthFailure func()

	remainingHeader string
	resetHeader     string
	lowWater        int

	mu       sync.Mutex
	snapshot Snapshot

	now   func() time.Time
	sleep func(time.Duration)
}

// New creates a Client with bounded timeouts and the default classifier
func New(opts Options) *Client {
	c := &Client{
		httpClient:      opts.HTTPClient,
		cache:           opts.Cache,
		logger:          opts.Logger,
		classify:        opts.Classifier,
		checkPayload:    opts.CheckPayload,
		onAuthFailure:   opts.OnAuthFailure,
		remainingHeader: opts.RemainingHeader,
		resetHeader:     opts.ResetHeader,
		lowWater:        opts.LowWater,
		now:             time.Now,
		sleep:           time.Sleep,
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: defaultTimeout}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.classify == nil {
		c.classify = DefaultClassifier("")
	}
	if c.remainingHeader == "" {
		c.remainingHeader = "X-RateLimit-Remaining"
	}
	if c.resetHeader == "" {
		c.resetHeader = "X-RateLimit-Reset"
	}
	if c.lowWater == 0 {
		c.lowWater = defaultLowWater
	}
	return c
}

// Execute performs one API call, honoring the cache and the rate-limit
// snapshot. Only a fully successful response (2xx, parseable, no embedded
// provider errors) is written to the cache.
func (c *Client) Execute(ctx context.Context, req Request) ([]byte, error) {
	if c.cache != nil && req.CacheKey != "" {
		data, ok, err := c.cache.Get(ctx, req.CacheKey)
		if err != nil {
			c.logger.Warn("cache read failed", "key", req.CacheKey, "error", err)
		} else if ok {
			return data, nil
		}
	}

	if err := c.gate(); err != nil {
		return nil, err
	}

	body, header, status, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}

	c.updateFromHeaders(header)

	if status < 200 || status >= 300 {
		apiErr := c.classify(status, header, body)
		if apiErr == nil {
			apiErr = defaultClassify(status, header, body, c.remainingHeader)
		}
		if apiErr.Kind == KindAuth && c.onAuthFailure != nil {
			c.onAuthFailure()
		}
		return nil, apiErr
	}

	if len(body) > 0 && !json.Valid(body) {
		return nil, &Error{Kind: KindMalformed, Message: "response body is not valid JSON", Status: status}
	}
	if c.checkPayload != nil {
		if apiErr := c.checkPayload(body); apiErr != nil {
			return nil, apiErr
		}
	}

	if c.cache != nil && req.CacheKey != "" && req.CacheTTL > 0 {
		if err := c.cache.Set(ctx, req.CacheKey, body, req.CacheTTL); err != nil {
			c.logger.Warn("cache write failed", "key", req.CacheKey, "error", err)
		}
	}

	return body, nil
}

// gate blocks briefly or fails fast when the snapshot says the quota is
// exhausted
func (c *Client) gate() error {
	c.mu.Lock()
	snap := c.snapshot
	c.mu.Unlock()

	if !snap.Known || snap.Remaining > 0 || snap.ResetAt.IsZero() {
		return nil
	}

	wait := snap.ResetAt.Sub(c.now())
	if wait <= 0 {
		// Window already rolled over; forget the stale snapshot.
		c.clearRemaining()
		return nil
	}
	if wait >= waitThreshold {
		return &Error{
			Kind:    KindRateLimited,
			Message: fmt.Sprintf("rate limit exhausted until %s", snap.ResetAt.UTC().Format(time.RFC3339)),
			ResetAt: snap.ResetAt,
		}
	}

	c.logger.Warn("rate limit exhausted, waiting for reset", "wait", wait+waitMargin)
	c.sleep(wait + waitMargin)
	c.clearRemaining()
	return nil
}

func (c *Client) clearRemaining() {
	c.mu.Lock()
	c.snapshot.Known = false
	c.snapshot.Remaining = 0
	c.mu.Unlock()
}

func (c *Client) do(ctx context.Context, req Request) ([]byte, http.Header, int, error) {
	var reader io.Reader
	if len(req.Body) > 0 {
		reader = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, reader)
	if err != nil {
		return nil, nil, 0, &Error{Kind: KindInvalidRequest, Message: "failed to build request", Cause: err}
	}
	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, nil, 0, &Error{Kind: KindTransient, Message: "request failed", Cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, 0, &Error{Kind: KindTransient, Message: "failed to read response body", Cause: err}
	}

	return body, resp.Header, resp.StatusCode, nil
}

// updateFromHeaders refreshes the snapshot from the provider's rate-limit
// headers when present
func (c *Client) updateFromHeaders(header http.Header) {
	remainingStr := header.Get(c.remainingHeader)
	if remainingStr == "" {
		return
	}
	remaining, err := strconv.Atoi(remainingStr)
	if err != nil {
		return
	}

	resetAt := time.Time{}
	if resetStr := header.Get(c.resetHeader); resetStr != "" {
		// Reset headers carry epoch seconds, fractional for some providers.
		if epoch, err := strconv.ParseFloat(resetStr, 64); err == nil {
			sec := int64(epoch)
			nsec := int64((epoch - float64(sec)) * float64(time.Second))
			resetAt = time.Unix(sec, nsec)
		}
	}

	c.SetRateLimit(remaining, resetAt)
}

// SetRateLimit replaces the snapshot. Providers that embed rate-limit data
// in the response payload call this after parsing; the payload value wins
// over headers because it is computed server-side at query time.
func (c *Client) SetRateLimit(remaining int, resetAt time.Time) {
	c.mu.Lock()
	c.snapshot = Snapshot{Remaining: remaining, Known: true, ResetAt: resetAt}
	c.mu.Unlock()

	if remaining < c.lowWater {
		c.logger.Warn("rate limit running low", "remaining", remaining, "reset_at", resetAt)
	}
}

// RateLimit returns a copy of the current snapshot
func (c *Client) RateLimit() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot
}

// DefaultClassifier returns the standard status mapping. remainingHeader
// disambiguates 403 quota exhaustion from a real permission failure; empty
// means X-RateLimit-Remaining.
func DefaultClassifier(remainingHeader string) Classifier {
	if remainingHeader == "" {
		remainingHeader = "X-RateLimit-Remaining"
	}
	return func(status int, header http.Header, body []byte) *Error {
		return defaultClassify(status, header, body, remainingHeader)
	}
}

func defaultClassify(status int, header http.Header, body []byte, remainingHeader string) *Error {
	message := messageFromBody(body)

	switch {
	case status == http.StatusUnauthorized:
		return classified(KindAuth, status, message, "authentication failed")
	case status == http.StatusForbidden && header.Get(remainingHeader) == "0":
		resetAt := time.Time{}
		if epoch, err := strconv.ParseFloat(header.Get("X-RateLimit-Reset"), 64); err == nil {
			resetAt = time.Unix(int64(epoch), 0)
		}
		e := classified(KindRateLimited, status, message, "rate limit exceeded")
		e.ResetAt = resetAt
		return e
	case status == http.StatusForbidden:
		return classified(KindPermission, status, message, "permission denied")
	case status == http.StatusNotFound:
		return classified(KindNotFound, status, message, "not found")
	case status == http.StatusUnprocessableEntity:
		return classified(KindInvalidRequest, status, message, "invalid request")
	case status == http.StatusTooManyRequests:
		return classified(KindRateLimited, status, message, "rate limit exceeded")
	case status >= 500:
		return classified(KindServer, status, message, "server error")
	default:
		return classified(KindAPI, status, message, "unexpected response")
	}
}

func classified(kind Kind, status int, message, fallback string) *Error {
	if message == "" {
		message = fallback
	}
	return &Error{Kind: kind, Message: message, Status: status}
}
