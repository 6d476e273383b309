package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for rate limit coordination.
var (
	rateLimitRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crawler_rate_limit_remaining",
		Help: "Calls remaining in the current rate limit window",
	})

	rateLimitBackoffsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crawler_rate_limit_backoffs_total",
		Help: "Total number of rate limit backoffs by reason",
	}, []string{"reason"})

	rateLimitBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "crawler_rate_limit_backoff_seconds",
		Help:    "Rate limit backoff duration in seconds by reason",
		Buckets: []float64{1, 10, 60, 300, 900, 1800},
	}, []string{"reason"})
)

// Backoff reasons used as metric labels.
const (
	ReasonWindow  = "window"
	ReasonHeaders = "header_anomaly"
)

// Config holds the coordinator thresholds.
type Config struct {
	// LowWaterMark pauses the caller when remaining calls are <= this value.
	LowWaterMark int

	// ResetBuffer is added to the time until the window resets.
	ResetBuffer time.Duration

	// FailureRetryDelay is the fixed pause used when headers are unusable.
	FailureRetryDelay time.Duration
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		LowWaterMark:      5,
		ResetBuffer:       60 * time.Second,
		FailureRetryDelay: 60 * time.Second,
	}
}

// Sleeper pauses the caller for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the default Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("rate limit backoff interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

// Coordinator decides, per response, whether the caller has to wait before
// issuing its next request.
type Coordinator struct {
	config Config
	store  *Store
	sleep  Sleeper
	logger zerolog.Logger
}

// NewCoordinator creates a coordinator. store may be nil.
func NewCoordinator(cfg Config, store *Store, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		config: cfg,
		store:  store,
		sleep:  SleepContext,
		logger: logger,
	}
}

// SetSleeper replaces the sleep function (for testing).
func (c *Coordinator) SetSleeper(s Sleeper) {
	c.sleep = s
}

// Config returns the coordinator thresholds.
func (c *Coordinator) Config() Config {
	return c.config
}

// Observe inspects the rate limit headers of a completed response and blocks
// when the window is nearly spent. Missing or malformed headers cause a fixed
// FailureRetryDelay pause. The only error returned is context cancellation.
func (c *Coordinator) Observe(ctx context.Context, h http.Header) error {
	remaining, err := ParseRemaining(h)
	if err != nil {
		return c.headerFailure(ctx, err)
	}

	state := &RateLimitState{
		Remaining:  remaining,
		LastUpdate: time.Now(),
	}
	rateLimitRemaining.Set(float64(remaining))

	if !state.NeedsBackoff(c.config.LowWaterMark) {
		// Window details are informational here.
		if resetAt, serverTime, err := ParseWindow(h); err == nil {
			state.ResetAt, state.ServerTime = resetAt, serverTime
		}
		c.save(ctx, state)
		return nil
	}

	c.logger.Debug().Int("remaining", remaining).Msg("Hit rate limit")

	resetAt, serverTime, err := ParseWindow(h)
	if err != nil {
		return c.headerFailure(ctx, err)
	}
	state.ResetAt, state.ServerTime = resetAt, serverTime
	c.save(ctx, state)

	wait := state.SleepDuration(c.config.ResetBuffer)
	c.logger.Debug().
		Int("remaining", remaining).
		Dur("reset_in", resetAt.Sub(serverTime)).
		Dur("sleep", wait).
		Msg("Sleeping until rate limit window resets")

	rateLimitBackoffsTotal.WithLabelValues(ReasonWindow).Inc()
	rateLimitBackoffSeconds.WithLabelValues(ReasonWindow).Observe(wait.Seconds())

	return c.sleep(ctx, wait)
}

// headerFailure applies the fixed backoff for unusable headers.
func (c *Coordinator) headerFailure(ctx context.Context, cause error) error {
	c.logger.Warn().
		Err(cause).
		Dur("sleep", c.config.FailureRetryDelay).
		Msg("Rate limit headers unusable")

	rateLimitBackoffsTotal.WithLabelValues(ReasonHeaders).Inc()
	rateLimitBackoffSeconds.WithLabelValues(ReasonHeaders).Observe(c.config.FailureRetryDelay.Seconds())

	return c.sleep(ctx, c.config.FailureRetryDelay)
}

func (c *Coordinator) save(ctx context.Context, state *RateLimitState) {
	if c.store == nil {
		return
	}
	if err := c.store.Save(ctx, state); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to store rate limit state")
	}
}
