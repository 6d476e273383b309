package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/Sternrassler/timeline-crawler/pkg/client"
	"github.com/Sternrassler/timeline-crawler/pkg/ratelimit"
)

func newTimelineCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "timeline <user_id>",
		Short: "Fetch every reachable tweet of a user, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseUserID(args[0])
			if err != nil {
				return err
			}

			c, err := a.newClient()
			if err != nil {
				return err
			}

			tweets, err := c.UserTimeline(cmd.Context(), userID)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), tweets)
		},
	}
}

func newLookupCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <user_id>...",
		Short: "Fetch the profiles of existing users",
		Long: fmt.Sprintf(`Fetch the profiles of the given users. Ids are sent in batches of %d;
unknown, suspended or deleted users are left out of the result.`, client.MaxLookupUsers),
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, len(args))
			for i, arg := range args {
				id, err := parseUserID(arg)
				if err != nil {
					return err
				}
				ids[i] = id
			}

			c, err := a.newClient()
			if err != nil {
				return err
			}

			profiles := make([]client.Record, 0, len(ids))
			for _, batch := range batches(ids, client.MaxLookupUsers) {
				found, err := c.UsersLookup(cmd.Context(), batch)
				if err != nil {
					return err
				}
				profiles = append(profiles, found...)
			}

			a.logger.Info().
				Int("requested", len(ids)).
				Int("found", len(profiles)).
				Msg("Lookup complete")

			return writeJSON(cmd.OutOrStdout(), profiles)
		},
	}
}

// showResult is the output of the show command.
type showResult struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body"`
}

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <user_id>",
		Short: "Fetch one profile, or the reason it is unavailable",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseUserID(args[0])
			if err != nil {
				return err
			}

			c, err := a.newClient()
			if err != nil {
				return err
			}

			status, body, err := c.UsersShow(cmd.Context(), userID)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), showResult{Status: status, Body: body})
		},
	}
}

// statusResult is the output of the status command.
type statusResult struct {
	*ratelimit.RateLimitState
	Stale bool `json:"stale"`
}

func newStatusCmd(a *app) *cobra.Command {
	var maxAge time.Duration

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the last rate limit state recorded in Redis",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.store == nil {
				return errors.New("status requires a Redis address (--redis-addr or CRAWLER_REDIS_ADDR)")
			}

			state, err := a.store.Load(cmd.Context())
			if errors.Is(err, ratelimit.ErrNoState) {
				return errors.New("no rate limit state recorded yet")
			}
			if err != nil {
				return err
			}

			return writeJSON(cmd.OutOrStdout(), statusResult{
				RateLimitState: state,
				Stale:          state.IsStale(maxAge),
			})
		},
	}

	cmd.Flags().DurationVar(&maxAge, "max-age", 15*time.Minute, "report the state as stale when older than this")
	return cmd
}

func parseUserID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid user id %q", s)
	}
	return id, nil
}

// batches splits ids into consecutive chunks of at most size.
func batches(ids []int64, size int) [][]int64 {
	var out [][]int64
	for len(ids) > size {
		out = append(out, ids[:size])
		ids = ids[size:]
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
