// Package testutil provides testing utilities for the timeline crawler.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MockResponse defines one scripted API response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
}

// RecordedRequest is a request seen by the mock server.
type RecordedRequest struct {
	Path          string
	Query         url.Values
	Authorization string
}

// MockAPI is a scripted API server. Each path serves its queued responses
// in order, then repeats its fallback.
type MockAPI struct {
	server *httptest.Server

	mu        sync.Mutex
	scripts   map[string][]MockResponse
	fallbacks map[string]MockResponse
	requests  []RecordedRequest
}

// NewMockAPI creates and starts a new mock API server.
func NewMockAPI() *MockAPI {
	mock := &MockAPI{
		scripts:   make(map[string][]MockResponse),
		fallbacks: make(map[string]MockResponse),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(mock.serve))
	return mock
}

func (m *MockAPI) serve(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.requests = append(m.requests, RecordedRequest{
		Path:          r.URL.Path,
		Query:         r.URL.Query(),
		Authorization: r.Header.Get("Authorization"),
	})

	resp, ok := m.fallbacks[r.URL.Path]
	if queue := m.scripts[r.URL.Path]; len(queue) > 0 {
		resp, ok = queue[0], true
		m.scripts[r.URL.Path] = queue[1:]
	}
	m.mu.Unlock()

	if !ok {
		resp = NewServerErrorResponse()
	}

	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

// URL returns the mock server URL.
func (m *MockAPI) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockAPI) Close() {
	m.server.Close()
}

// Enqueue appends responses to the script of path.
func (m *MockAPI) Enqueue(path string, responses ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts[path] = append(m.scripts[path], responses...)
}

// SetFallback sets the response served once the script of path is empty.
func (m *MockAPI) SetFallback(path string, resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallbacks[path] = resp
}

// Requests returns a copy of all recorded requests.
func (m *MockAPI) Requests() []RecordedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RecordedRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// RequestCount returns the number of requests made to path.
func (m *MockAPI) RequestCount(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.requests {
		if r.Path == path {
			n++
		}
	}
	return n
}

// RateLimitHeaders returns rate limit headers for a window resetting in
// resetIn, with the server clock at now.
func RateLimitHeaders(remaining int, resetIn time.Duration, now time.Time) map[string]string {
	return map[string]string{
		"X-Rate-Limit-Remaining": strconv.Itoa(remaining),
		"X-Rate-Limit-Reset":     strconv.FormatInt(now.Add(resetIn).Unix(), 10),
		"Date":                   now.UTC().Format(http.TimeFormat),
		"Content-Type":           "application/json; charset=utf-8",
	}
}

func healthyHeaders() map[string]string {
	return RateLimitHeaders(180, 15*time.Minute, time.Now())
}

// NewOKResponse creates a 200 response with a healthy rate limit window.
func NewOKResponse(body string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Headers:    healthyHeaders(),
	}
}

// NewThrottledResponse creates the API's 400 throttling response.
func NewThrottledResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusBadRequest,
		Body:       `{"errors":[{"code":88,"message":"Rate limit exceeded"}]}`,
		Headers:    healthyHeaders(),
	}
}

// NewNotFoundResponse creates an absence response with the given status.
func NewNotFoundResponse(status int) MockResponse {
	return MockResponse{
		StatusCode: status,
		Body:       fmt.Sprintf(`{"errors":[{"code":50,"message":"User not found (%d)."}]}`, status),
		Headers:    healthyHeaders(),
	}
}

// NewServerErrorResponse creates a 500 response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"errors":[{"code":131,"message":"Internal error"}]}`,
		Headers:    healthyHeaders(),
	}
}

// TweetPage renders a JSON array of minimal tweets with the given ids.
func TweetPage(ids ...int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf(`{"id":%d,"id_str":"%d","text":"tweet %d"}`, id, id, id)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// UserProfile renders a minimal user object.
func UserProfile(id int64, screenName string) string {
	return fmt.Sprintf(`{"id":%d,"id_str":"%d","screen_name":%q}`, id, id, screenName)
}

// UserList renders a JSON array of minimal user objects.
func UserList(ids ...int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = UserProfile(id, fmt.Sprintf("user%d", id))
	}
	return "[" + strings.Join(parts, ",") + "]"
}
