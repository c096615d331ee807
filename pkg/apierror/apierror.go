package apierror

import (
	"fmt"
	"net/http"
)

type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	HTTPStatus int    `json:"-"`

	// RetryAfter is the number of seconds a rate-limited client must wait.
	// Only set for 429 responses.
	RetryAfter int `json:"-"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}

	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}

	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func New(code string, message string, details string, status int) *APIError {
	return &APIError{Code: code, Message: message, Details: details, HTTPStatus: status}
}

// Unauthenticated covers missing, invalid, and expired credentials.
func Unauthenticated(message string) *APIError {
	return New("UNAUTHORIZED", message, "", http.StatusUnauthorized)
}

// Forbidden covers valid identity with insufficient role, and CSRF failures.
func Forbidden(message string) *APIError {
	return New("FORBIDDEN", message, "", http.StatusForbidden)
}

// RateLimited carries the retry-after hint for the Retry-After header.
func RateLimited(message string, retryAfter int) *APIError {
	e := New("RATE_LIMITED", message, "", http.StatusTooManyRequests)
	e.RetryAfter = retryAfter
	return e
}

// Validation names the first offending field path so the client can fix it.
func Validation(message string, field string) *APIError {
	return New("VALIDATION_ERROR", message, field, http.StatusBadRequest)
}

// Rejected is intentionally vague: the request matched an attack signature
// and the response must not coach the attacker on which one tripped.
func Rejected() *APIError {
	return New("BAD_REQUEST", "request rejected", "", http.StatusBadRequest)
}

// Internal hides the underlying cause from the client.
func Internal() *APIError {
	return New("INTERNAL_ERROR", "Unexpected server error", "", http.StatusInternalServerError)
}
