package scenario

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"diagload/internal/client"
)

// PollInterval is the pause between result polls, before time scaling.
const PollInterval = 10 * time.Second

// GetAnalysis polls a submitted task until it leaves "pending" or the
// attempt budget runs out, and records exactly one verdict for it:
// analysis_correct when the result is covid, errors otherwise.
//
// A 200 whose body does not parse ends the poll immediately. Any other
// non-terminal response (still pending, non-200, no response) is retried
// after PollInterval. When the budget is spent the last response is judged
// once: it passes only if it is a parseable 200 reporting covid.
func (e *Env) GetAnalysis(ctx context.Context, attempts int, taskID, endpoint, tag string) bool {
	if attempts < 1 {
		attempts = 1
	}
	q := url.Values{"request_id": {taskID}}

	var (
		last   *client.Response
		result analysis
		parsed bool
	)

	for attempt := 1; attempt <= attempts; attempt++ {
		last = e.API.Get(ctx, "/analysis", q)
		parsed = false

		if last.OK(http.StatusOK) {
			var a analysis
			if err := last.JSON(&a); err != nil {
				e.fail(ctx, endpoint, tag, err)
				return false
			}
			result, parsed = a, true

			if a.Result != ResultPending {
				return e.verdict(endpoint, tag, e.check(tag, "analysis correct", a.Result == ResultCovid))
			}
		}

		if err := e.pause(ctx, PollInterval); err != nil {
			break
		}
	}

	ok := e.check(tag, "analysis result status 200", last.OK(http.StatusOK)) &&
		parsed &&
		e.check(tag, "analysis correct", result.Result == ResultCovid)

	return e.verdict(endpoint, tag, ok)
}
