package scenario

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diagload/internal/client"
	"diagload/internal/metrics"
)

func TestGetAnalysis_ResolvesAfterPending(t *testing.T) {
	n := 0
	env, api, sl := newEnv(func(c call) *client.Response {
		n++
		if n < 3 {
			return reply(http.StatusOK, map[string]string{"request_id": "abc", "result": ResultPending})
		}
		return reply(http.StatusOK, map[string]string{"request_id": "abc", "result": ResultCovid})
	})

	ok := env.GetAnalysis(context.Background(), 6, "abc", EndpointGetAnalysis, TagNormal)

	assert.True(t, ok)
	assert.Equal(t, 3, api.count(http.MethodGet, "/analysis"))
	assert.Len(t, sl.all(), 2)
	assert.Equal(t, "abc", api.Calls()[0].Query.Get("request_id"))
	assert.Equal(t, 1.0, env.Sink.Value(metrics.AnalysisCorrect, tags(EndpointGetAnalysis, TagNormal)))
	assert.Zero(t, env.Sink.Total(metrics.Errors))
}

func TestGetAnalysis_WrongDiagnosis(t *testing.T) {
	env, api, _ := newEnv(func(c call) *client.Response {
		return reply(http.StatusOK, map[string]string{"result": ResultH5N1})
	})

	ok := env.GetAnalysis(context.Background(), 6, "abc", EndpointGetAnalysis, TagNormal)

	assert.False(t, ok)
	assert.Equal(t, 1, len(api.Calls()))
	assert.Equal(t, 1.0, env.Sink.Value(metrics.Errors, tags(EndpointGetAnalysis, TagNormal)))
	assert.Zero(t, env.Sink.Total(metrics.AnalysisCorrect))
}

func TestGetAnalysis_UnparseableEndsPoll(t *testing.T) {
	env, api, sl := newEnv(func(c call) *client.Response {
		return reply(http.StatusOK, "<html>")
	})

	ok := env.GetAnalysis(context.Background(), 12, "abc", EndpointGetAnalysis, TagCuriosity)

	assert.False(t, ok)
	assert.Len(t, api.Calls(), 1)
	assert.Empty(t, sl.all())
	assert.Equal(t, 1.0, env.Sink.Value(metrics.Errors, tags(EndpointGetAnalysis, TagCuriosity)))
}

func TestGetAnalysis_BudgetExhausted(t *testing.T) {
	env, api, sl := newEnv(func(c call) *client.Response {
		return reply(http.StatusOK, map[string]string{"result": ResultPending})
	})

	ok := env.GetAnalysis(context.Background(), 6, "abc", EndpointGetAnalysis, TagNormal)

	assert.False(t, ok)
	assert.Len(t, api.Calls(), 6)
	assert.Len(t, sl.all(), 6)
	assert.Equal(t, 1.0, env.Sink.Value(metrics.Errors, tags(EndpointGetAnalysis, TagNormal)))
}

func TestGetAnalysis_RetriesNon200(t *testing.T) {
	n := 0
	env, api, _ := newEnv(func(c call) *client.Response {
		n++
		switch n {
		case 1:
			return reply(http.StatusServiceUnavailable, nil)
		case 2:
			return &client.Response{Err: errors.New("connection refused")}
		default:
			return reply(http.StatusOK, map[string]string{"result": ResultCovid})
		}
	})

	ok := env.GetAnalysis(context.Background(), 6, "abc", EndpointGetAnalysis, TagNormal)

	assert.True(t, ok)
	assert.Len(t, api.Calls(), 3)
	assert.Equal(t, 1.0, env.Sink.Total(metrics.AnalysisCorrect))
	assert.Zero(t, env.Sink.Total(metrics.Errors))
}

func TestGetAnalysis_CancelledStillRecordsOneEvent(t *testing.T) {
	env, api, _ := newEnv(func(c call) *client.Response {
		return reply(http.StatusOK, map[string]string{"result": ResultPending})
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ok := env.GetAnalysis(ctx, 18, "abc", EndpointGetAnalysis, TagEpidemicPeak)

	assert.False(t, ok)
	assert.Len(t, api.Calls(), 1)
	assert.Equal(t, 1.0, events(env.Sink))
}

func TestGetAnalysis_ExactlyOneEvent(t *testing.T) {
	responses := map[string]func() *client.Response{
		"pending":     func() *client.Response { return reply(http.StatusOK, map[string]string{"result": ResultPending}) },
		"covid":       func() *client.Response { return reply(http.StatusOK, map[string]string{"result": ResultCovid}) },
		"healthy":     func() *client.Response { return reply(http.StatusOK, map[string]string{"result": ResultHealthy}) },
		"garbage":     func() *client.Response { return reply(http.StatusOK, "not json") },
		"unavailable": func() *client.Response { return reply(http.StatusInternalServerError, "oops") },
		"no response": func() *client.Response { return &client.Response{Err: errors.New("timeout")} },
	}

	for name, resp := range responses {
		for _, budget := range []int{1, 2, 6, 12, 18} {
			env, api, _ := newEnv(func(c call) *client.Response { return resp() })

			env.GetAnalysis(context.Background(), budget, "abc", EndpointGetAnalysis, TagNormal)

			require.Equal(t, 1.0, events(env.Sink), "%s with budget %d", name, budget)
			require.LessOrEqual(t, len(api.Calls()), budget, "%s with budget %d", name, budget)
		}
	}
}

func TestGetAnalysis_ZeroBudgetPollsOnce(t *testing.T) {
	env, api, _ := newEnv(func(c call) *client.Response {
		return reply(http.StatusOK, map[string]string{"result": ResultCovid})
	})

	assert.True(t, env.GetAnalysis(context.Background(), 0, "abc", EndpointGetAnalysis, TagNormal))
	assert.Len(t, api.Calls(), 1)
}
