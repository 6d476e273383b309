package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for retry operations.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crawler_retries_total",
		Help: "Total number of retried attempts by outcome",
	}, []string{"outcome"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crawler_retry_exhausted_total",
		Help: "Total number of operations that exhausted their retries",
	}, []string{"operation"})
)

// maxLoggedBody caps response bodies included in log events.
const maxLoggedBody = 512

// step tells the retry loop what to do after a response was handled.
type step int

const (
	// stepRetry counts a failed attempt and repeats the same request.
	stepRetry step = iota

	// stepProgress resets the attempt counter and issues the next request.
	stepProgress

	// stepDone observes the rate limit and ends the operation.
	stepDone

	// stepDoneNow ends the operation without observing the rate limit.
	stepDoneNow
)

// operation describes one logical fetch driven by retryLoop.
type operation struct {
	name     string
	endpoint string

	// params is re-encoded for every attempt; handlers may update it.
	params url.Values

	// absent lists statuses treated as "subject not found".
	absent []int
}

// handler processes Success and NotFound responses.
type handler func(resp *Response, outcome Outcome) step

// retryLoop issues op until handle reports completion. Throttled and
// unexpected responses, as well as transport errors, count as failed
// attempts; MaxRetries consecutive failures end in a *RetryExhaustedError.
// Every response except a stepDoneNow one goes through the rate limit
// coordinator before the next request.
func (c *Client) retryLoop(ctx context.Context, op operation, handle handler) error {
	attempts := 0
	lastStatus := 0

	for attempts < c.config.MaxRetries {
		resp, err := c.Get(ctx, op.endpoint, op.params)

		var header http.Header
		outcome := OutcomeUnexpected
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("%s: %w", op.name, ctx.Err())
			}
			lastStatus = 0
			c.logger.Warn().
				Err(err).
				Str("operation", op.name).
				Int("attempt", attempts).
				Msg("Request failed")
		} else {
			header = resp.Header
			lastStatus = resp.StatusCode
			outcome = Classify(resp.StatusCode, op.absent)
		}

		next := stepRetry
		switch outcome {
		case OutcomeSuccess:
			next = handle(resp, outcome)
		case OutcomeNotFound:
			c.logger.Info().
				Str("operation", op.name).
				Int("attempt", attempts).
				Int("status", resp.StatusCode).
				Str("body", truncate(resp.Body)).
				Msg("Subject does not exist")
			next = handle(resp, outcome)
		case OutcomeThrottled:
			c.logger.Info().
				Str("operation", op.name).
				Int("attempt", attempts).
				Int("status", resp.StatusCode).
				Str("body", truncate(resp.Body)).
				Msg("Being throttled")
		default:
			if resp != nil {
				c.logger.Warn().
					Str("operation", op.name).
					Int("attempt", attempts).
					Int("status", resp.StatusCode).
					Str("body", truncate(resp.Body)).
					Msg("Unexpected response")
			}
		}

		if next == stepDoneNow {
			return nil
		}

		if err := c.coordinator.Observe(ctx, header); err != nil {
			return fmt.Errorf("%s: %w", op.name, err)
		}

		switch next {
		case stepDone:
			return nil
		case stepProgress:
			attempts = 0
		default:
			attempts++
			retriesTotal.WithLabelValues(outcome.String()).Inc()
		}
	}

	retryExhaustedTotal.WithLabelValues(op.name).Inc()
	c.logger.Error().
		Str("operation", op.name).
		Int("attempts", attempts).
		Int("last_status", lastStatus).
		Msg("Maximum retries exhausted")

	return &RetryExhaustedError{
		Operation:  op.name,
		Attempts:   attempts,
		LastStatus: lastStatus,
	}
}

func truncate(body []byte) string {
	if len(body) > maxLoggedBody {
		return string(body[:maxLoggedBody]) + "..."
	}
	return string(body)
}
