package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Profile endpoint paths.
const (
	EndpointUsersLookup = "/users/lookup.json"
	EndpointUsersShow   = "/users/show.json"
)

// profileAbsent are the statuses meaning the profile does not exist.
var profileAbsent = []int{http.StatusForbidden, http.StatusNotFound}

// UsersLookup returns the profiles the API provides for up to
// MaxLookupUsers ids. Unknown ids are silently omitted, so the result does
// not correspond 1:1 with userIDs. If none of them exist the result is empty.
func (c *Client) UsersLookup(ctx context.Context, userIDs []int64) ([]Record, error) {
	if len(userIDs) == 0 || len(userIDs) > MaxLookupUsers {
		return nil, fmt.Errorf("%w: %d ids (want 1-%d)", ErrInvalidLookup, len(userIDs), MaxLookupUsers)
	}

	ids := make([]string, len(userIDs))
	for i, id := range userIDs {
		ids[i] = strconv.FormatInt(id, 10)
	}

	params := url.Values{}
	params.Set("user_id", strings.Join(ids, ","))
	params.Set("include_entities", "1")

	op := operation{
		name:     "users_lookup",
		endpoint: EndpointUsersLookup,
		params:   params,
		absent:   profileAbsent,
	}

	profiles := make([]Record, 0)
	err := c.retryLoop(ctx, op, func(resp *Response, outcome Outcome) step {
		if outcome == OutcomeNotFound {
			return stepDone
		}

		decoded, err := decodeRecords(resp.Body)
		if err != nil {
			c.logger.Warn().Err(err).Int("users", len(userIDs)).Msg("Undecodable lookup response")
			return stepRetry
		}
		profiles = decoded
		return stepDone
	})
	if err != nil {
		return nil, err
	}

	recordsFetchedTotal.WithLabelValues(op.name).Add(float64(len(profiles)))
	return profiles, nil
}

// UsersShow returns the status code and body for a single profile. On 200
// the body is the profile; on 403 or 404 it is the API's error payload
// explaining the absence, so callers must branch on the status.
func (c *Client) UsersShow(ctx context.Context, userID int64) (int, json.RawMessage, error) {
	params := url.Values{}
	params.Set("user_id", strconv.FormatInt(userID, 10))
	params.Set("include_entities", "1")

	op := operation{
		name:     "users_show",
		endpoint: EndpointUsersShow,
		params:   params,
		absent:   profileAbsent,
	}

	var (
		status int
		body   json.RawMessage
	)
	err := c.retryLoop(ctx, op, func(resp *Response, outcome Outcome) step {
		if outcome == OutcomeSuccess {
			if !json.Valid(resp.Body) {
				c.logger.Warn().Int64("user_id", userID).Msg("Undecodable profile")
				return stepRetry
			}
			status, body = resp.StatusCode, json.RawMessage(resp.Body)
			return stepDone
		}

		status, body = resp.StatusCode, errorPayload(resp.Body)
		return stepDone
	})
	if err != nil {
		return 0, nil, err
	}

	if status == http.StatusOK {
		recordsFetchedTotal.WithLabelValues(op.name).Inc()
	}
	return status, body, nil
}

// errorPayload returns body as JSON, quoting it when the API sent plain text.
func errorPayload(body []byte) json.RawMessage {
	if json.Valid(body) {
		return json.RawMessage(body)
	}
	quoted, _ := json.Marshal(string(body))
	return quoted
}
