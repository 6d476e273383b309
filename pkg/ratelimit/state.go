// Package ratelimit implements rate limit observation and backoff for the
// timeline API. It reads the x-rate-limit-remaining and x-rate-limit-reset
// headers together with the server Date header and pauses the caller until
// the window resets whenever the remaining call budget runs low.
package ratelimit

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Response headers carrying the rate limit window.
const (
	HeaderRemaining  = "X-Rate-Limit-Remaining"
	HeaderReset      = "X-Rate-Limit-Reset"
	HeaderServerTime = "Date"
)

// Redis keys for rate limit state storage.
const (
	RedisKeyRemaining      = "crawler:rate_limit:remaining"
	RedisKeyResetTimestamp = "crawler:rate_limit:reset_timestamp"
	RedisKeyServerTime     = "crawler:rate_limit:server_time"
	RedisKeyLastUpdate     = "crawler:rate_limit:last_update"
)

// ErrMissingHeader is returned when a required rate limit header is absent.
var ErrMissingHeader = errors.New("rate limit header missing")

// RateLimitState is the rate limit window reported by a single response.
type RateLimitState struct {
	// Remaining is the number of calls left in the current window.
	Remaining int `json:"remaining"`

	// ResetAt is when the window resets (x-rate-limit-reset, unix seconds).
	ResetAt time.Time `json:"reset_at"`

	// ServerTime is the server clock at response time (Date header).
	// Zero when the header was not needed to make a decision.
	ServerTime time.Time `json:"server_time"`

	// LastUpdate is when this state was observed locally.
	LastUpdate time.Time `json:"last_update"`
}

// ParseRemaining reads only the remaining-calls header.
func ParseRemaining(h http.Header) (int, error) {
	v := h.Get(HeaderRemaining)
	if v == "" {
		return 0, fmt.Errorf("%w: %s", ErrMissingHeader, HeaderRemaining)
	}
	remaining, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s header: %w", HeaderRemaining, err)
	}
	return remaining, nil
}

// ParseWindow reads the reset timestamp and the server time.
func ParseWindow(h http.Header) (resetAt, serverTime time.Time, err error) {
	resetStr := h.Get(HeaderReset)
	if resetStr == "" {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %s", ErrMissingHeader, HeaderReset)
	}
	reset, err := strconv.ParseInt(resetStr, 10, 64)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse %s header: %w", HeaderReset, err)
	}

	dateStr := h.Get(HeaderServerTime)
	if dateStr == "" {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %s", ErrMissingHeader, HeaderServerTime)
	}
	now, err := http.ParseTime(dateStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse %s header: %w", HeaderServerTime, err)
	}

	return time.Unix(reset, 0), now, nil
}

// NeedsBackoff returns true if remaining calls are at or below the low-water mark.
func (s *RateLimitState) NeedsBackoff(lowWaterMark int) bool {
	return s.Remaining <= lowWaterMark
}

// SleepDuration returns how long to wait for the window to reset, measured
// on the server clock and padded by buffer. Returns 0 if that is negative.
func (s *RateLimitState) SleepDuration(buffer time.Duration) time.Duration {
	d := s.ResetAt.Sub(s.ServerTime) + buffer
	if d < 0 {
		return 0
	}
	return d
}

// IsStale returns true if the state is older than maxAge.
func (s *RateLimitState) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}
