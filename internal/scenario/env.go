// Package scenario implements the traffic shapes run against the
// diagnostic service: one iteration body per scenario, plus the polling
// and batch-validation helpers they share.
package scenario

import (
	"context"
	"errors"
	"net/url"
	"time"

	"go.uber.org/zap"

	"diagload/internal/client"
	"diagload/internal/metrics"
)

// API is the request surface scenarios need. *client.Client implements it.
type API interface {
	Get(ctx context.Context, path string, query url.Values) *client.Response
	Post(ctx context.Context, path string, query url.Values, body any) *client.Response
	Put(ctx context.Context, path string, query url.Values) *client.Response
}

// Env carries everything an iteration reads or reports to. It is shared by
// all VUs and never mutated after construction.
type Env struct {
	API   API
	Sink  *metrics.Sink
	Image string
	Log   *zap.Logger

	// TimeScale multiplies think-times, the poll interval and the plan's
	// stage durations and offsets. Zero means 1.
	TimeScale float64

	// Sleep replaces the context-aware timer used for pauses.
	Sleep func(ctx context.Context, d time.Duration) error
}

func (e *Env) scaled(d time.Duration) time.Duration {
	if e.TimeScale <= 0 {
		return d
	}
	return time.Duration(float64(d) * e.TimeScale)
}

func (e *Env) logger() *zap.Logger {
	if e.Log == nil {
		return zap.NewNop()
	}
	return e.Log
}

// pause sleeps d (scaled) or until ctx is done.
func (e *Env) pause(ctx context.Context, d time.Duration) error {
	d = e.scaled(d)
	if e.Sleep != nil {
		return e.Sleep(ctx, d)
	}
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// check evaluates a named assertion. Only failures are logged.
func (e *Env) check(tag, name string, ok bool) bool {
	if !ok {
		e.logger().Debug("check failed",
			zap.String("check", name),
			zap.String("tag", tag),
		)
	}
	return ok
}

// fail records one errors event. err, when present, is the parse or
// transport failure behind it. Requests aborted because the run itself was
// cancelled are not counted.
func (e *Env) fail(ctx context.Context, endpoint, tag string, err error) {
	if errors.Is(ctx.Err(), context.Canceled) && errors.Is(err, context.Canceled) {
		e.logger().Debug("request aborted by run cancellation",
			zap.String("endpoint", endpoint),
			zap.String("tag", tag),
		)
		return
	}
	if err != nil {
		e.logger().Warn("unusable response",
			zap.String("endpoint", endpoint),
			zap.String("tag", tag),
			zap.Error(err),
		)
	}
	e.Sink.Inc(metrics.Errors, metrics.Tags{Endpoint: endpoint, Tag: tag})
}

// verdict records exactly one pass or fail event for an analysis result.
func (e *Env) verdict(endpoint, tag string, ok bool) bool {
	name := metrics.Errors
	if ok {
		name = metrics.AnalysisCorrect
	}
	e.Sink.Inc(name, metrics.Tags{Endpoint: endpoint, Tag: tag})
	return ok
}

func (e *Env) attempted(tag string) {
	e.Sink.Inc(metrics.AnalysesAttempted, metrics.Tags{Tag: tag})
}
