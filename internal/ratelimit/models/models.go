// Package models holds the request-throttling result and response types.
package models

import "time"

// RateLimitResult is the outcome of one admission check.
type RateLimitResult struct {
	Allowed    bool      `json:"allowed"`
	Limit      int       `json:"limit"`
	Remaining  int       `json:"remaining"`
	ResetAt    time.Time `json:"reset_at"`
	RetryAfter int       `json:"retry_after,omitempty"` // seconds, only set when not allowed
}

// RateLimitExceededResponse is the 429 body.
type RateLimitExceededResponse struct {
	Error      string `json:"error"`
	Message    string `json:"error_description"`
	RetryAfter int    `json:"retry_after"`
}

// Key builds the bucket key for a caller or client address.
func Key(kind, value string) string {
	return "ratelimit:" + kind + ":" + value
}
