package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/Sternrassler/timeline-crawler/internal/testutil"
	"github.com/Sternrassler/timeline-crawler/pkg/client"
)

// setupEnv points the CLI at mock with test credentials and no config files.
func setupEnv(t *testing.T, mock *testutil.MockAPI) {
	t.Helper()

	t.Setenv("HOME", t.TempDir())
	for _, kv := range os.Environ() {
		if name, _, ok := strings.Cut(kv, "="); ok && strings.HasPrefix(name, "CRAWLER_") {
			t.Setenv(name, "")
		}
	}

	t.Setenv("CRAWLER_CLIENT_KEY", "ck")
	t.Setenv("CRAWLER_CLIENT_SECRET", "cs")
	t.Setenv("CRAWLER_RESOURCE_OWNER_KEY", "rok")
	t.Setenv("CRAWLER_RESOURCE_OWNER_SECRET", "ros")
	t.Setenv("CRAWLER_LOG_LEVEL", "error")
	if mock != nil {
		t.Setenv("CRAWLER_BASE_URL", mock.URL())
	}
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func decodeIDs(t *testing.T, out string) []int64 {
	t.Helper()

	var records []client.Record
	if err := json.Unmarshal([]byte(out), &records); err != nil {
		t.Fatalf("output is not a record array: %v\n%s", err, out)
	}
	ids := make([]int64, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	return ids
}

func TestTimelineCommand(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	setupEnv(t, mock)

	mock.Enqueue(client.EndpointUserTimeline,
		testutil.NewOKResponse(testutil.TweetPage(30, 20)),
		testutil.NewOKResponse(testutil.TweetPage(20, 10)),
		testutil.NewOKResponse(testutil.TweetPage(10)),
	)

	out, err := run(t, "timeline", "42")
	if err != nil {
		t.Fatalf("timeline error = %v", err)
	}

	ids := decodeIDs(t, out)
	if len(ids) != 3 || ids[0] != 30 || ids[2] != 10 {
		t.Errorf("ids = %v, want [30 20 10]", ids)
	}
	if got := mock.Requests()[0].Query.Get("user_id"); got != "42" {
		t.Errorf("user_id = %q, want 42", got)
	}
}

func TestTimelineCommand_RetryExhausted(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	setupEnv(t, mock)
	t.Setenv("CRAWLER_MAX_RETRIES", "2")

	mock.SetFallback(client.EndpointUserTimeline, testutil.NewServerErrorResponse())

	out, err := run(t, "timeline", "42")
	if !client.IsTerminal(err) {
		t.Fatalf("error = %v, want terminal", err)
	}
	if out != "" {
		t.Errorf("stdout = %q, want nothing on failure", out)
	}
	if n := mock.RequestCount(client.EndpointUserTimeline); n != 2 {
		t.Errorf("requests = %d, want 2", n)
	}
}

func TestLookupCommand_Batches(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	setupEnv(t, mock)

	mock.Enqueue(client.EndpointUsersLookup,
		testutil.NewOKResponse(testutil.UserList(1, 2)),
		testutil.NewNotFoundResponse(http.StatusNotFound),
	)

	args := []string{"lookup"}
	for i := 1; i <= client.MaxLookupUsers+1; i++ {
		args = append(args, strconv.Itoa(i))
	}

	out, err := run(t, args...)
	if err != nil {
		t.Fatalf("lookup error = %v", err)
	}

	if ids := decodeIDs(t, out); len(ids) != 2 {
		t.Errorf("ids = %v, want [1 2]", ids)
	}

	reqs := mock.Requests()
	if len(reqs) != 2 {
		t.Fatalf("requests = %d, want 2 batches", len(reqs))
	}
	if got := reqs[1].Query.Get("user_id"); got != strconv.Itoa(client.MaxLookupUsers+1) {
		t.Errorf("second batch user_id = %q, want %d", got, client.MaxLookupUsers+1)
	}
}

func TestShowCommand(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	setupEnv(t, mock)

	mock.Enqueue(client.EndpointUsersShow, testutil.NewNotFoundResponse(http.StatusForbidden))

	out, err := run(t, "show", "7")
	if err != nil {
		t.Fatalf("show error = %v", err)
	}

	var result showResult
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("output is not a show result: %v\n%s", err, out)
	}
	if result.Status != http.StatusForbidden {
		t.Errorf("status = %d, want 403", result.Status)
	}
	if !strings.Contains(string(result.Body), "User not found") {
		t.Errorf("body = %s, want the API error payload", result.Body)
	}
}

func TestStatusCommand(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	setupEnv(t, mock)

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	defer mr.Close()

	if _, err := run(t, "status", "--redis-addr", mr.Addr()); err == nil {
		t.Error("status before any request: error = nil, want no state error")
	}

	mock.Enqueue(client.EndpointUsersShow, testutil.NewOKResponse(testutil.UserProfile(7, "seven")))
	if _, err := run(t, "show", "7", "--redis-addr", mr.Addr()); err != nil {
		t.Fatalf("show error = %v", err)
	}

	out, err := run(t, "status", "--redis-addr", mr.Addr())
	if err != nil {
		t.Fatalf("status error = %v", err)
	}

	var result struct {
		Remaining int  `json:"remaining"`
		Stale     bool `json:"stale"`
	}
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("output is not a status result: %v\n%s", err, out)
	}
	if result.Remaining != 180 {
		t.Errorf("remaining = %d, want 180", result.Remaining)
	}
	if result.Stale {
		t.Error("stale = true, want false right after a request")
	}
}

func TestStatusCommand_RequiresRedis(t *testing.T) {
	setupEnv(t, nil)

	_, err := run(t, "status")
	if err == nil || !strings.Contains(err.Error(), "Redis") {
		t.Errorf("error = %v, want Redis address error", err)
	}
}

func TestCommands_InvalidInput(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	setupEnv(t, mock)

	tests := []struct {
		name string
		args []string
	}{
		{name: "non-numeric id", args: []string{"timeline", "alice"}},
		{name: "negative id", args: []string{"show", "-5"}},
		{name: "missing id", args: []string{"timeline"}},
		{name: "unknown log level", args: []string{"show", "7", "--log-level", "loud"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := run(t, tt.args...); err == nil {
				t.Error("error = nil, want error")
			}
		})
	}

	if n := len(mock.Requests()); n != 0 {
		t.Errorf("requests = %d, want 0", n)
	}
}

func TestCommands_MissingCredentials(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	setupEnv(t, mock)
	t.Setenv("CRAWLER_CLIENT_SECRET", "")

	_, err := run(t, "show", "7")
	if err == nil || !strings.Contains(err.Error(), "client secret") {
		t.Errorf("error = %v, want client secret error", err)
	}
}

func TestBatches(t *testing.T) {
	tests := []struct {
		n    int
		size int
		want []int
	}{
		{n: 0, size: 100, want: nil},
		{n: 1, size: 100, want: []int{1}},
		{n: 100, size: 100, want: []int{100}},
		{n: 250, size: 100, want: []int{100, 100, 50}},
	}

	for _, tt := range tests {
		ids := make([]int64, tt.n)
		got := batches(ids, tt.size)
		if len(got) != len(tt.want) {
			t.Errorf("batches(%d, %d) = %d chunks, want %d", tt.n, tt.size, len(got), len(tt.want))
			continue
		}
		for i := range got {
			if len(got[i]) != tt.want[i] {
				t.Errorf("batches(%d, %d)[%d] = %d ids, want %d", tt.n, tt.size, i, len(got[i]), tt.want[i])
			}
		}
	}
}
