package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/Sternrassler/timeline-crawler/pkg/pagination"
)

// EndpointUserTimeline is the timeline endpoint path.
const EndpointUserTimeline = "/statuses/user_timeline.json"

// timelineAbsent are the statuses meaning the timeline cannot be read.
var timelineAbsent = []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound}

// UserTimeline returns as many tweets of userID as the API will page
// through, newest first, without duplicates. The result may be empty but is
// never nil. A missing or protected user ends the walk with whatever was
// collected so far.
func (c *Client) UserTimeline(ctx context.Context, userID int64) ([]Record, error) {
	params := url.Values{}
	params.Set("user_id", strconv.FormatInt(userID, 10))
	params.Set("count", strconv.Itoa(c.config.PageSize))
	params.Set("include_rts", "1")
	params.Set("include_entities", "1")

	op := operation{
		name:     "user_timeline",
		endpoint: EndpointUserTimeline,
		params:   params,
		absent:   timelineAbsent,
	}

	tweets := pagination.NewCollector[Record]()
	pages := 0

	err := c.retryLoop(ctx, op, func(resp *Response, outcome Outcome) step {
		if outcome == OutcomeNotFound {
			return stepDone
		}

		page, err := decodeRecords(resp.Body)
		if err != nil {
			c.logger.Warn().
				Err(err).
				Int64("user_id", userID).
				Msg("Undecodable timeline page")
			return stepRetry
		}
		pages++

		if tweets.AddPage(page) == 0 {
			return stepDoneNow
		}

		maxID, _ := tweets.Cursor()
		params.Set("max_id", strconv.FormatInt(maxID, 10))

		c.logger.Debug().
			Int64("user_id", userID).
			Int("page", pages).
			Int("collected", tweets.Len()).
			Int64("max_id", maxID).
			Msg("Timeline page collected")

		return stepProgress
	})
	if err != nil {
		return nil, err
	}

	recordsFetchedTotal.WithLabelValues(op.name).Add(float64(tweets.Len()))
	c.logger.Info().
		Int64("user_id", userID).
		Int("pages", pages).
		Int("tweets", tweets.Len()).
		Msg("Timeline fetch complete")

	return tweets.Items(), nil
}
