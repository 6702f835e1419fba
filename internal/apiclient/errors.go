package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind is the closed classification of API request failures
type Kind string

const (
	KindRateLimited    Kind = "rate_limited"
	KindAuth           Kind = "auth"
	KindPermission     Kind = "permission"
	KindNotFound       Kind = "not_found"
	KindInvalidRequest Kind = "invalid_request"
	KindServer         Kind = "server"
	KindAPI            Kind = "api"
	KindMalformed      Kind = "malformed_response"
	KindTransient      Kind = "transient"
)

// Error is a classified API request failure
type Error struct {
	Kind    Kind
	Message string
	Status  int
	// ResetAt is set for rate-limited failures when the reset time is known
	ResetAt time.Time
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// IsKind reports whether any error in the chain is an *Error of the given kind
func IsKind(err error, kind Kind) bool {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind == kind
	}
	return false
}

// AsError extracts the *Error from an error chain
func AsError(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// messageFromBody pulls a human-readable message out of a JSON error body.
// Handles both {"message": "..."} and {"errors": [{"message": "..."}]}.
func messageFromBody(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Errors  []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if payload.Message != "" {
		return payload.Message
	}
	var messages []string
	for _, e := range payload.Errors {
		if e.Message != "" {
			messages = append(messages, e.Message)
		}
	}
	return strings.Join(messages, "; ")
}
