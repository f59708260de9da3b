package scenario

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
)

var errNotArray = errors.New("expected a JSON array")

// LabResults fetches a collection of results and records one errors event
// if it cannot be read or any entry is neither pending nor covid. A non-200
// status alone is only a failed check.
func (e *Env) LabResults(ctx context.Context, path string, query url.Values, endpoint, tag string) bool {
	res := e.API.Get(ctx, path, query)
	e.check(tag, "is status 200", res.OK(http.StatusOK))

	var entries []labResult
	if err := res.JSON(&entries); err != nil {
		e.fail(ctx, endpoint, tag, err)
		return false
	}
	if entries == nil {
		e.fail(ctx, endpoint, tag, errNotArray)
		return false
	}

	valid := true
	for _, entry := range entries {
		if entry.Result != ResultPending && entry.Result != ResultCovid {
			valid = false
			break
		}
	}

	if !e.check(tag, "all results valid (pending/covid)", valid) {
		e.fail(ctx, endpoint, tag, nil)
		return false
	}
	return true
}

// labFiltered queries a lab's results with urgent/status filters and
// verifies the service honoured them on every entry.
func (e *Env) labFiltered(ctx context.Context, lab string, urgent bool, status, tag string) bool {
	q := url.Values{}
	q.Set("urgent", strconv.FormatBool(urgent))
	q.Set("status", status)

	res := e.API.Get(ctx, "/labs/results/"+lab, q)
	e.check(tag, "lab results status 200", res.OK(http.StatusOK))

	var entries []labResult
	err := res.JSON(&entries)
	if err == nil && entries == nil {
		err = errNotArray
	}

	valid := err == nil
	for _, entry := range entries {
		if !valid {
			break
		}
		valid = entry.Urgent != nil && *entry.Urgent == urgent &&
			entry.Result == status &&
			entry.LabID == lab
	}

	if !e.check(tag, "all results match urgent/status filter", valid) {
		e.fail(ctx, EndpointLabResults, tag, err)
		return false
	}
	return true
}
