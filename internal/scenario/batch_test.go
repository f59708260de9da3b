package scenario

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"diagload/internal/client"
	"diagload/internal/metrics"
)

func TestLabResults(t *testing.T) {
	cases := []struct {
		name   string
		resp   *client.Response
		ok     bool
		errors float64
	}{
		{
			name: "all valid",
			resp: reply(http.StatusOK, []map[string]string{{"result": ResultPending}, {"result": ResultCovid}}),
			ok:   true,
		},
		{
			name: "empty collection",
			resp: reply(http.StatusOK, "[]"),
			ok:   true,
		},
		{
			name:   "one healthy among many",
			resp:   reply(http.StatusOK, []map[string]string{{"result": ResultCovid}, {"result": ResultHealthy}, {"result": ResultH5N1}}),
			errors: 1,
		},
		{
			name: "non-200 with valid body is only a check failure",
			resp: reply(http.StatusInternalServerError, "[]"),
			ok:   true,
		},
		{
			name:   "not json",
			resp:   reply(http.StatusOK, "Internal Server Error"),
			errors: 1,
		},
		{
			name:   "json null",
			resp:   reply(http.StatusOK, "null"),
			errors: 1,
		},
		{
			name:   "object instead of array",
			resp:   reply(http.StatusOK, `{"result":"covid"}`),
			errors: 1,
		},
		{
			name:   "no response",
			resp:   &client.Response{Err: errors.New("timeout")},
			errors: 1,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env, api, _ := newEnv(func(c call) *client.Response { return tc.resp })

			ok := env.LabResults(context.Background(), "/labs/results/"+LabACL42151, nil, EndpointLabResults, TagInvalidJSON)

			assert.Equal(t, tc.ok, ok)
			assert.Len(t, api.Calls(), 1)
			assert.Equal(t, tc.errors, env.Sink.Value(metrics.Errors, tags(EndpointLabResults, TagInvalidJSON)))
			assert.Equal(t, tc.errors, env.Sink.Total(metrics.Errors))
		})
	}
}

func TestLabFiltered(t *testing.T) {
	yes, no := true, false

	cases := []struct {
		name    string
		urgent  bool
		entries any
		ok      bool
	}{
		{
			name:    "matching",
			urgent:  true,
			entries: []labResult{{LabID: LabQML41203, Result: ResultCovid, Urgent: &yes}},
			ok:      true,
		},
		{
			name:    "empty",
			urgent:  false,
			entries: []labResult{},
			ok:      true,
		},
		{
			name:    "urgent mismatch",
			urgent:  false,
			entries: []labResult{{LabID: LabQML41203, Result: ResultCovid, Urgent: &no}, {LabID: LabQML41203, Result: ResultCovid, Urgent: &yes}},
		},
		{
			name:    "urgent missing",
			urgent:  false,
			entries: []map[string]string{{"lab_id": LabQML41203, "result": ResultCovid}},
		},
		{
			name:    "status mismatch",
			urgent:  true,
			entries: []labResult{{LabID: LabQML41203, Result: ResultPending, Urgent: &yes}},
		},
		{
			name:    "lab mismatch",
			urgent:  true,
			entries: []labResult{{LabID: LabACL42151, Result: ResultCovid, Urgent: &yes}},
		},
		{
			name:    "not json",
			urgent:  true,
			entries: "oops",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env, api, _ := newEnv(func(c call) *client.Response { return reply(http.StatusOK, tc.entries) })

			ok := env.labFiltered(context.Background(), LabQML41203, tc.urgent, ResultCovid, TagEpidemicPeak)

			assert.Equal(t, tc.ok, ok)
			calls := api.Calls()
			if assert.Len(t, calls, 1) {
				assert.Equal(t, "/labs/results/"+LabQML41203, calls[0].Path)
				assert.Equal(t, ResultCovid, calls[0].Query.Get("status"))
			}

			want := 0.0
			if !tc.ok {
				want = 1
			}
			assert.Equal(t, want, env.Sink.Value(metrics.Errors, tags(EndpointLabResults, TagEpidemicPeak)))
		})
	}
}
