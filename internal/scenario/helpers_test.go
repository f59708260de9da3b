package scenario

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	"diagload/internal/client"
	"diagload/internal/metrics"
	"diagload/internal/runner"
)

// scripted replays fixed draws, then keeps returning the last one.
type scripted struct {
	draws []float64
	i     int
}

func (s *scripted) Float64() float64 {
	if len(s.draws) == 0 {
		return 0.999
	}
	if s.i >= len(s.draws) {
		return s.draws[len(s.draws)-1]
	}
	v := s.draws[s.i]
	s.i++
	return v
}

func newVU(iteration int, draws ...float64) *runner.VU {
	return &runner.VU{ID: 1, Scenario: "test", Iteration: iteration, Rand: &scripted{draws: draws}}
}

type call struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
}

type handler func(c call) *client.Response

// fakeAPI answers requests from a handler and records every call.
type fakeAPI struct {
	mu     sync.Mutex
	calls  []call
	handle handler
}

func (f *fakeAPI) serve(c call) *client.Response {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()
	if f.handle == nil {
		return &client.Response{Method: c.Method, URL: c.Path, Status: http.StatusNotFound}
	}
	return f.handle(c)
}

func (f *fakeAPI) Get(ctx context.Context, path string, query url.Values) *client.Response {
	return f.serve(call{Method: http.MethodGet, Path: path, Query: query})
}

func (f *fakeAPI) Post(ctx context.Context, path string, query url.Values, body any) *client.Response {
	return f.serve(call{Method: http.MethodPost, Path: path, Query: query, Body: body})
}

func (f *fakeAPI) Put(ctx context.Context, path string, query url.Values) *client.Response {
	return f.serve(call{Method: http.MethodPut, Path: path, Query: query})
}

func (f *fakeAPI) Calls() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func (f *fakeAPI) count(method, path string) int {
	n := 0
	for _, c := range f.Calls() {
		if c.Method == method && c.Path == path {
			n++
		}
	}
	return n
}

func reply(status int, body any) *client.Response {
	var raw []byte
	switch b := body.(type) {
	case nil:
	case string:
		raw = []byte(b)
	default:
		raw, _ = json.Marshal(b)
	}
	return &client.Response{Status: status, Body: raw}
}

type sleeps struct {
	mu sync.Mutex
	d  []time.Duration
}

func (s *sleeps) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.d = append(s.d, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *sleeps) all() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.d...)
}

func newEnv(h handler) (*Env, *fakeAPI, *sleeps) {
	api := &fakeAPI{handle: h}
	sl := &sleeps{}
	env := &Env{
		API:   api,
		Sink:  metrics.NewSink(),
		Image: "aW1hZ2U=",
		Sleep: sl.sleep,
	}
	return env, api, sl
}

func tags(endpoint, tag string) metrics.Tags {
	return metrics.Tags{Endpoint: endpoint, Tag: tag}
}

func events(s *metrics.Sink) float64 {
	return s.Total(metrics.Errors) + s.Total(metrics.AnalysisCorrect)
}
