// Package client provides the timeline API client with OAuth1 signing,
// rate limit coordination, cursor pagination and bounded retries.
package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Sternrassler/timeline-crawler/pkg/ratelimit"
	"github.com/dghubble/oauth1"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for client operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crawler_requests_total",
		Help: "Total API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "crawler_request_duration_seconds",
		Help:    "API request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"endpoint"})

	recordsFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crawler_records_fetched_total",
		Help: "Total records returned to callers by operation",
	}, []string{"operation"})
)

// DefaultBaseURL is the REST API root.
const DefaultBaseURL = "https://api.twitter.com/1.1"

// MaxLookupUsers is the largest batch accepted by UsersLookup.
const MaxLookupUsers = 100

// Outcome classifies a response for the retry loop.
type Outcome int

const (
	// OutcomeSuccess is a 200 response.
	OutcomeSuccess Outcome = iota

	// OutcomeThrottled is a 400 response, used by the API for throttling.
	OutcomeThrottled

	// OutcomeNotFound means the subject does not exist or is not visible.
	OutcomeNotFound

	// OutcomeUnexpected is any other status or a transport failure.
	OutcomeUnexpected
)

// String returns the metric label for the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeThrottled:
		return "throttled"
	case OutcomeNotFound:
		return "not_found"
	default:
		return "unexpected"
	}
}

// Classify maps an HTTP status to an Outcome. absent lists the statuses the
// calling operation treats as "subject not found".
func Classify(statusCode int, absent []int) Outcome {
	switch statusCode {
	case http.StatusOK:
		return OutcomeSuccess
	case http.StatusBadRequest:
		return OutcomeThrottled
	}
	for _, s := range absent {
		if statusCode == s {
			return OutcomeNotFound
		}
	}
	return OutcomeUnexpected
}

// Credentials is the OAuth1 signing material.
type Credentials struct {
	ClientKey           string
	ClientSecret        string
	ResourceOwnerKey    string
	ResourceOwnerSecret string
}

// Validate checks that all four fields are set.
func (c Credentials) Validate() error {
	switch {
	case c.ClientKey == "":
		return fmt.Errorf("client key is required")
	case c.ClientSecret == "":
		return fmt.Errorf("client secret is required")
	case c.ResourceOwnerKey == "":
		return fmt.Errorf("resource owner key is required")
	case c.ResourceOwnerSecret == "":
		return fmt.Errorf("resource owner secret is required")
	}
	return nil
}

// Config holds the client configuration.
type Config struct {
	Credentials Credentials

	// BaseURL is the API root, without trailing slash.
	BaseURL string

	// Timeout per HTTP request.
	Timeout time.Duration

	// MaxRetries is the number of consecutive failed attempts after which an
	// operation gives up with ErrRetryExhausted.
	MaxRetries int

	// PageSize is the count parameter for timeline pages.
	PageSize int

	// RateLimit holds the coordinator thresholds.
	RateLimit ratelimit.Config

	// Store optionally records observed rate limit state in Redis.
	Store *ratelimit.Store
}

// DefaultConfig returns the standard configuration for creds.
func DefaultConfig(creds Credentials) Config {
	return Config{
		Credentials: creds,
		BaseURL:     DefaultBaseURL,
		Timeout:     60 * time.Second,
		MaxRetries:  24 * 60, // a day of 60s backoffs
		PageSize:    200,
		RateLimit:   ratelimit.DefaultConfig(),
	}
}

// Response is a fully read API response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Client fetches timelines and profiles for one caller at a time.
type Client struct {
	httpClient  *http.Client
	coordinator *ratelimit.Coordinator
	config      Config
	logger      zerolog.Logger
}

// New creates a new client.
func New(cfg Config) (*Client, error) {
	if err := cfg.Credentials.Validate(); err != nil {
		return nil, err
	}

	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}

	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be positive (got %v)", cfg.Timeout)
	}

	if cfg.MaxRetries < 1 {
		return nil, fmt.Errorf("max_retries must be >= 1 (got %d)", cfg.MaxRetries)
	}

	if cfg.PageSize < 1 || cfg.PageSize > 200 {
		return nil, fmt.Errorf("page_size must be between 1 and 200 (got %d)", cfg.PageSize)
	}

	logger := log.With().Str("component", "crawler-client").Logger()

	oauthConfig := oauth1.NewConfig(cfg.Credentials.ClientKey, cfg.Credentials.ClientSecret)
	token := oauth1.NewToken(cfg.Credentials.ResourceOwnerKey, cfg.Credentials.ResourceOwnerSecret)
	httpClient := oauthConfig.Client(oauth1.NoContext, token)
	httpClient.Timeout = cfg.Timeout

	return &Client{
		httpClient:  httpClient,
		coordinator: ratelimit.NewCoordinator(cfg.RateLimit, cfg.Store, log.With().Str("component", "ratelimit").Logger()),
		config:      cfg,
		logger:      logger,
	}, nil
}

// Get sends a signed GET request and reads the whole response.
func (c *Client) Get(ctx context.Context, endpoint string, params url.Values) (*Response, error) {
	target := c.config.BaseURL + endpoint
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("query", params.Encode()).
		Msg("Executing API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		return nil, fmt.Errorf("request %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		return nil, fmt.Errorf("read response body: %w", err)
	}

	requestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

// Config returns the client configuration.
func (c *Client) Config() Config {
	return c.config
}

// SetHTTPClient replaces the signed HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// SetSleeper replaces the rate limit sleep function (for testing).
func (c *Client) SetSleeper(s ratelimit.Sleeper) {
	c.coordinator.SetSleeper(s)
}
