// Package session assembles one load-test run from a Config: the HTTP
// client, the scenario plan, the scheduler and the counters they report to.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"diagload/internal/client"
	"diagload/internal/config"
	"diagload/internal/metrics"
	"diagload/internal/runner"
	"diagload/internal/scenario"
	"diagload/internal/stats"
	"diagload/internal/storage"
)

type Session struct {
	ID        string
	Config    config.Config
	Sink      *metrics.Sink
	Stats     *stats.Stats
	Scheduler *runner.Scheduler

	log      *zap.Logger
	registry *prometheus.Registry

	mu       sync.Mutex
	started  time.Time
	finished time.Time
	runErr   error
}

// New builds a session. api may be nil, in which case requests go to
// cfg.Endpoint.
func New(cfg config.Config, api scenario.API, log *zap.Logger) (*Session, error) {
	if log == nil {
		log = zap.NewNop()
	}

	s := &Session{
		ID:       storage.NewID(),
		Config:   cfg,
		Sink:     metrics.NewSink(),
		Stats:    stats.NewStats(),
		log:      log,
		registry: prometheus.NewRegistry(),
	}

	if api == nil {
		api = client.New(client.Config{BaseURL: cfg.Endpoint, Timeout: cfg.Timeout}, s.Stats, log.Named("client"))
	}

	env := &scenario.Env{
		API:       api,
		Sink:      s.Sink,
		Image:     cfg.ImageData,
		Log:       log.Named("scenario"),
		TimeScale: cfg.TimeScale,
	}

	plan, err := scenario.Select(env.Plan(), cfg.Scenarios)
	if err != nil {
		return nil, err
	}

	opts := []runner.Option{
		runner.WithTick(cfg.Tick),
		runner.WithLogger(log.Named("scheduler")),
	}
	if cfg.Seed != 0 {
		opts = append(opts, runner.WithSeed(cfg.Seed))
	}

	s.Scheduler, err = runner.New(plan, opts...)
	if err != nil {
		return nil, err
	}

	s.registerGauges()
	return s, nil
}

func (s *Session) registerGauges() {
	s.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "diagload_live_vus",
			Help: "Virtual users currently running an iteration loop.",
		}, func() float64 { return float64(s.Scheduler.Live()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "diagload_inflight_requests",
			Help: "Requests awaiting a response.",
		}, func() float64 { return float64(s.Stats.Inflight.Load()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "diagload_requests_total",
			Help: "Requests issued to the service.",
		}, func() float64 { return float64(s.Stats.Requests.Load()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "diagload_latency_p99_ms",
			Help: "99th percentile response time so far.",
		}, func() float64 { return s.Stats.Latency.Quantile(99) }),
	)
}

// Gatherer exposes the scenario counters together with the run gauges.
func (s *Session) Gatherer() prometheus.Gatherer {
	return prometheus.Gatherers{s.Sink.Registry(), s.registry}
}

// Run drives the plan to completion or until ctx is cancelled.
func (s *Session) Run(ctx context.Context) error {
	s.mu.Lock()
	s.started = time.Now()
	s.mu.Unlock()

	s.log.Info("run started",
		zap.String("run_id", s.ID),
		zap.String("endpoint", s.Config.Endpoint),
		zap.Float64("time_scale", s.Config.TimeScale),
		zap.Duration("planned", s.Scheduler.TotalDuration()),
	)

	err := s.Scheduler.Run(ctx)

	s.mu.Lock()
	s.finished = time.Now()
	s.runErr = err
	s.mu.Unlock()

	s.log.Info("run finished",
		zap.String("run_id", s.ID),
		zap.Float64("errors", s.Sink.Total(metrics.Errors)),
		zap.Float64("analyses_attempted", s.Sink.Total(metrics.AnalysesAttempted)),
		zap.Float64("analysis_correct", s.Sink.Total(metrics.AnalysisCorrect)),
		zap.Uint64("requests", s.Stats.Requests.Load()),
		zap.Error(err),
	)

	return err
}

// Record snapshots the session for history and reports.
func (s *Session) Record() storage.RunRecord {
	s.mu.Lock()
	started, finished, runErr := s.started, s.finished, s.runErr
	s.mu.Unlock()

	if finished.IsZero() {
		finished = time.Now()
	}

	var names []string
	for _, st := range s.Scheduler.Status() {
		names = append(names, st.Name)
	}

	return storage.RunRecord{
		ID:         s.ID,
		StartedAt:  started,
		FinishedAt: finished,
		Endpoint:   s.Config.Endpoint,
		Scenarios:  names,
		TimeScale:  s.Config.TimeScale,
		Seed:       s.Config.Seed,
		Cancelled:  errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded),
		Counters:   s.Sink.Snapshot(),
		Latency:    s.Stats.Summary(),
		Schedules:  s.Scheduler.Status(),
	}
}

// ServeMetrics exposes /metrics on addr until ctx is done.
func (s *Session) ServeMetrics(ctx context.Context, addr string) error {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(s.Gatherer(), promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	s.log.Info("serving metrics", zap.String("addr", addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
