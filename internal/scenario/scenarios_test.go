package scenario

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diagload/internal/client"
	"diagload/internal/metrics"
)

// service answers like a healthy backend: task "abc" resolves to covid
// and every collection is empty.
func service(over map[string]func(c call) *client.Response) handler {
	return func(c call) *client.Response {
		if h, ok := over[c.Method+" "+c.Path]; ok {
			return h(c)
		}
		switch {
		case c.Method == http.MethodPost && c.Path == "/analysis":
			return reply(http.StatusCreated, map[string]string{"id": "abc", "status": ResultPending})
		case c.Method == http.MethodGet && c.Path == "/analysis":
			return reply(http.StatusOK, map[string]string{"request_id": "abc", "lab_id": LabACL42151, "result": ResultCovid})
		case c.Method == http.MethodPut && c.Path == "/analysis":
			return reply(http.StatusOK, nil)
		default:
			return reply(http.StatusOK, "[]")
		}
	}
}

func TestNormal_SubmitAndPoll(t *testing.T) {
	env, api, sl := newEnv(service(nil))

	env.Normal(context.Background(), newVU(0, 0.9, 0.1))

	calls := api.Calls()
	require.Len(t, calls, 2)

	post := calls[0]
	assert.Equal(t, http.MethodPost, post.Method)
	assert.Equal(t, PatientRegular, post.Query.Get("patient_id"))
	assert.Equal(t, LabQML40671, post.Query.Get("lab_id"))
	assert.Equal(t, "false", post.Query.Get("urgent"))
	assert.Equal(t, map[string]string{"image": env.Image}, post.Body)

	assert.Equal(t, "abc", calls[1].Query.Get("request_id"))

	assert.Equal(t, 1.0, env.Sink.Value(metrics.AnalysesAttempted, metrics.Tags{Tag: TagNormal}))
	assert.Equal(t, 1.0, env.Sink.Value(metrics.AnalysisCorrect, tags(EndpointGetAnalysis, TagNormal)))
	assert.Zero(t, env.Sink.Total(metrics.Errors))
	assert.Equal(t, []time.Duration{10 * time.Second}, sl.all())
}

func TestNormal_UrgentAndNoPoll(t *testing.T) {
	env, api, _ := newEnv(service(nil))

	env.Normal(context.Background(), newVU(0, 0.01, 0.5))

	calls := api.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "true", calls[0].Query.Get("urgent"))
	assert.Zero(t, events(env.Sink))
}

func TestNumericTaskID(t *testing.T) {
	env, api, _ := newEnv(service(map[string]func(call) *client.Response{
		"POST /analysis": func(call) *client.Response { return reply(http.StatusCreated, map[string]int{"id": 42}) },
	}))

	env.Normal(context.Background(), newVU(0, 0.9, 0.1))

	calls := api.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "42", calls[1].Query.Get("request_id"))
}

func TestSubmitFailureAbortsIteration(t *testing.T) {
	bodies := map[string]*client.Response{
		"missing id": reply(http.StatusCreated, map[string]string{"status": ResultPending}),
		"not json":   reply(http.StatusBadGateway, "<html>bad gateway</html>"),
		"null id":    reply(http.StatusCreated, `{"id":null}`),
	}

	for name, resp := range bodies {
		t.Run(name, func(t *testing.T) {
			env, api, sl := newEnv(service(map[string]func(call) *client.Response{
				"POST /analysis": func(call) *client.Response { return resp },
			}))

			// draws would otherwise take every follow-up branch
			env.EpidemicPeak(context.Background(), newVU(0, 0.9, 0.05))

			assert.Len(t, api.Calls(), 1)
			assert.Equal(t, 1.0, env.Sink.Value(metrics.Errors, tags(EndpointPostAnalysis, TagEpidemicPeak)))
			assert.Equal(t, 1.0, env.Sink.Total(metrics.Errors))
			assert.Zero(t, env.Sink.Total(metrics.AnalysisCorrect))
			assert.Equal(t, 1.0, env.Sink.Value(metrics.AnalysesAttempted, metrics.Tags{Tag: TagEpidemicPeak}))
			assert.Empty(t, sl.all())
		})
	}
}

func TestEpidemicPeak_FilteredMismatch(t *testing.T) {
	env, api, _ := newEnv(service(map[string]func(call) *client.Response{
		"GET /labs/results/" + LabQML41203: func(c call) *client.Response {
			return reply(http.StatusOK, `[{"request_id":"x","lab_id":"QML41203","result":"covid","urgent":true}]`)
		},
	}))

	env.EpidemicPeak(context.Background(), newVU(0, 0.9, 0.05))

	assert.Equal(t, 1.0, env.Sink.Total(metrics.Errors))
	assert.Equal(t, 1.0, env.Sink.Value(metrics.Errors, tags(EndpointLabResults, TagEpidemicPeak)))

	// p < 0.5 also polls
	assert.Equal(t, 1, api.count(http.MethodGet, "/analysis"))
	assert.Equal(t, 1.0, env.Sink.Value(metrics.AnalysisCorrect, tags(EndpointGetAnalysis, TagEpidemicPeak)))

	var filtered call
	for _, c := range api.Calls() {
		if c.Path == "/labs/results/"+LabQML41203 {
			filtered = c
		}
	}
	assert.Equal(t, "false", filtered.Query.Get("urgent"))
	assert.Equal(t, ResultCovid, filtered.Query.Get("status"))
}

func TestEpidemicPeak_Branches(t *testing.T) {
	cases := []struct {
		p        float64
		lab      int
		filtered int
		summary  int
		polls    int
		puts     int
	}{
		{p: 0.05, filtered: 1, polls: 1},
		{p: 0.15, lab: 1, polls: 1},
		{p: 0.3, polls: 1},
		{p: 0.55, puts: 1, polls: 1},
		{p: 0.7},
		{p: 0.8, summary: 1},
	}

	for _, tc := range cases {
		env, api, _ := newEnv(service(map[string]func(call) *client.Response{
			"GET /labs/results/" + LabACL42151 + "/summary": func(call) *client.Response {
				return reply(http.StatusOK, labSummary{Pending: 3, Covid: 2})
			},
		}))

		env.EpidemicPeak(context.Background(), newVU(0, 0.9, tc.p))

		assert.Equal(t, tc.filtered, api.count(http.MethodGet, "/labs/results/"+LabQML41203), "p=%v", tc.p)
		assert.Equal(t, tc.lab, api.count(http.MethodGet, "/labs/results/"+LabACL42151), "p=%v", tc.p)
		assert.Equal(t, tc.summary, api.count(http.MethodGet, "/labs/results/"+LabACL42151+"/summary"), "p=%v", tc.p)
		assert.Equal(t, tc.polls, api.count(http.MethodGet, "/analysis"), "p=%v", tc.p)
		assert.Equal(t, tc.puts, api.count(http.MethodPut, "/analysis"), "p=%v", tc.p)
	}
}

func TestEpidemicPeak_Reassign(t *testing.T) {
	lab := LabACL42151
	over := map[string]func(call) *client.Response{
		"PUT /analysis": func(c call) *client.Response {
			lab = c.Query.Get("lab_id")
			return reply(http.StatusOK, nil)
		},
		"GET /analysis": func(c call) *client.Response {
			return reply(http.StatusOK, analysis{RequestID: c.Query.Get("request_id"), LabID: lab, Result: ResultPending})
		},
	}
	env, api, _ := newEnv(service(over))

	env.EpidemicPeak(context.Background(), newVU(0, 0.9, 0.55))

	var put call
	for _, c := range api.Calls() {
		if c.Method == http.MethodPut {
			put = c
		}
	}
	assert.Equal(t, "abc", put.Query.Get("request_id"))
	assert.Equal(t, LabQML41203, put.Query.Get("lab_id"))
	assert.Zero(t, env.Sink.Total(metrics.Errors))
}

func TestEpidemicPeak_ReassignNotPersisted(t *testing.T) {
	env, _, _ := newEnv(service(nil))

	env.EpidemicPeak(context.Background(), newVU(0, 0.9, 0.55))

	// the service keeps reporting the original lab
	assert.Equal(t, 1.0, env.Sink.Value(metrics.Errors, tags(EndpointGetAnalysis, TagEpidemicPeak)))
	assert.Equal(t, 1.0, env.Sink.Total(metrics.Errors))
}

func TestEpidemicPeak_Summary(t *testing.T) {
	cases := []struct {
		name   string
		resp   *client.Response
		errors float64
	}{
		{name: "pending and covid", resp: reply(http.StatusOK, `{"pending":1,"covid":4}`)},
		{name: "missing fields default to zero", resp: reply(http.StatusOK, `{"covid":1}`)},
		{name: "empty lab", resp: reply(http.StatusOK, `{}`), errors: 1},
		{name: "healthy present", resp: reply(http.StatusOK, `{"pending":1,"healthy":1}`), errors: 1},
		{name: "unparseable", resp: reply(http.StatusOK, `nope`), errors: 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env, _, sl := newEnv(service(map[string]func(call) *client.Response{
				"GET /labs/results/" + LabACL42151 + "/summary": func(call) *client.Response { return tc.resp },
			}))

			env.EpidemicPeak(context.Background(), newVU(0, 0.9, 0.8))

			assert.Equal(t, tc.errors, env.Sink.Value(metrics.Errors, tags(EndpointLabSummary, TagEpidemicPeak)))
			// a failed summary does not cut the iteration short
			assert.Equal(t, []time.Duration{time.Second}, sl.all())
		})
	}
}

func TestCuriosity_SubmitsOnlyEarlyIterations(t *testing.T) {
	env, api, _ := newEnv(service(nil))
	env.Curiosity(context.Background(), newVU(0, 0.1, 0.5, 0.1))

	calls := api.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, http.MethodPost, calls[0].Method)
	assert.Equal(t, LabQML41203, calls[0].Query.Get("lab_id"))
	assert.Equal(t, "true", calls[0].Query.Get("urgent"))
	assert.Equal(t, "/analysis", calls[1].Path)
	assert.Equal(t, "/labs/results/"+LabQML40671, calls[2].Path)

	env, api, _ = newEnv(service(nil))
	env.Curiosity(context.Background(), newVU(2, 0.5))

	calls = api.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "/patients/results", calls[0].Path)
	assert.Equal(t, PatientRegular, calls[0].Query.Get("patient_id"))
	assert.Equal(t, 1.0, env.Sink.Value(metrics.AnalysesAttempted, metrics.Tags{Tag: TagCuriosity}))
}

func TestCuriosity_BatchErrorsUseInvalidJSONTag(t *testing.T) {
	env, _, sl := newEnv(service(map[string]func(call) *client.Response{
		"GET /patients/results": func(call) *client.Response {
			return reply(http.StatusOK, `[{"result":"healthy"}]`)
		},
	}))

	env.Curiosity(context.Background(), newVU(5, 0.5))

	assert.Equal(t, 1.0, env.Sink.Value(metrics.Errors, tags(EndpointPatients, TagInvalidJSON)))
	assert.Equal(t, []time.Duration{5 * time.Second}, sl.all())
}

func TestEpidemicEarly_Branches(t *testing.T) {
	env, api, _ := newEnv(service(nil))
	env.EpidemicEarly(context.Background(), newVU(0, 0.9, 0.9))

	assert.Equal(t, 0, api.count(http.MethodGet, "/analysis"))
	assert.Equal(t, 1, api.count(http.MethodGet, "/labs/results/"+LabQML41203))
	assert.Equal(t, 0, api.count(http.MethodGet, "/labs/results/"+LabACL42151))

	post := api.Calls()[0]
	assert.Equal(t, PatientEpidemic, post.Query.Get("patient_id"))
	assert.Equal(t, LabACL42151, post.Query.Get("lab_id"))

	env, api, _ = newEnv(service(nil))
	env.EpidemicEarly(context.Background(), newVU(0, 0.9, 0.1))

	assert.Equal(t, 1, api.count(http.MethodGet, "/analysis"))
	assert.Equal(t, 0, api.count(http.MethodGet, "/labs/results/"+LabQML41203))
	assert.Equal(t, 1, api.count(http.MethodGet, "/labs/results/"+LabACL42151))
}

func TestCoolDown_OnlySleeps(t *testing.T) {
	env, api, sl := newEnv(service(nil))
	env.TimeScale = 0.5

	env.CoolDown(context.Background(), newVU(0))

	assert.Empty(t, api.Calls())
	assert.Equal(t, []time.Duration{7500 * time.Millisecond}, sl.all())
	assert.Empty(t, env.Sink.Snapshot())
}

func TestSubmit_CancelledRunIsNotAnError(t *testing.T) {
	aborted := func(c call) *client.Response {
		return &client.Response{
			Method: c.Method,
			URL:    c.Path,
			Err:    &url.Error{Op: "Post", URL: c.Path, Err: context.Canceled},
		}
	}
	env, api, _ := newEnv(service(map[string]func(c call) *client.Response{
		"POST /analysis": aborted,
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	env.Normal(ctx, newVU(0, 0.9, 0.1))

	assert.Len(t, api.Calls(), 1)
	assert.Equal(t, 1.0, env.Sink.Value(metrics.AnalysesAttempted, metrics.Tags{Tag: TagNormal}))
	assert.Zero(t, env.Sink.Total(metrics.Errors))
}

func TestSubmit_TransportErrorCounts(t *testing.T) {
	env, _, _ := newEnv(service(map[string]func(c call) *client.Response{
		"POST /analysis": func(c call) *client.Response {
			return &client.Response{Method: c.Method, URL: c.Path, Err: context.Canceled}
		},
	}))

	// the request was cut short but the run goes on
	env.Normal(context.Background(), newVU(0, 0.9, 0.1))

	assert.Equal(t, 1.0, env.Sink.Value(metrics.Errors, tags(EndpointPostAnalysis, TagNormal)))
}
