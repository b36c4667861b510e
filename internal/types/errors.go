package types

import (
	"errors"
	"regexp"
)

// Error kinds the core recognizes (§7). Callers classify with errors.As.

// AuthError indicates the remote API rejected credentials.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string { return "auth error: " + e.Message }

// NotFoundError indicates a game resource has vanished server-side.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return "not found: " + e.Message }

// TransportError wraps any other HTTP/IO failure from the API client.
type TransportError struct {
	Message string
	Cause   error
}

func (e *TransportError) Error() string {
	if e.Cause != nil {
		return "transport error: " + e.Message + ": " + e.Cause.Error()
	}
	return "transport error: " + e.Message
}

func (e *TransportError) Unwrap() error { return e.Cause }

// IllegalActionError indicates the server rejected a move the orchestrator chose.
type IllegalActionError struct {
	Action CanonicalAction
}

func (e *IllegalActionError) Error() string { return "illegal action: " + string(e.Action) }

// ParseError indicates a decision source response was not a valid JSON object.
type ParseError struct {
	Raw string
}

func (e *ParseError) Error() string { return "parse error: malformed decision response" }

// ErrBudgetExhausted indicates the per-turn model call budget was spent.
var ErrBudgetExhausted = errors.New("decision source budget exhausted for this turn")

// ErrReplayOrStale indicates a pushed event failed the timestamp or
// idempotency guard and should be acknowledged without dispatch.
var ErrReplayOrStale = errors.New("event is a replay or stale")

// gameNotFoundPattern matches the contractual error-message shape the
// remote API uses for vanished games (§4.1, §6).
var gameNotFoundPattern = regexp.MustCompile(`(?i)game[_\s-]?not[_\s-]?found`)

// ClassifyAPIError maps a raw HTTP status and body message to one of the
// API client's recognized error kinds.
func ClassifyAPIError(statusCode int, message string) error {
	switch {
	case statusCode == 401 || statusCode == 403:
		return &AuthError{Message: message}
	case gameNotFoundPattern.MatchString(message):
		return &NotFoundError{Message: message}
	default:
		return &TransportError{Message: message}
	}
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsAuthError reports whether err is (or wraps) an AuthError.
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}
