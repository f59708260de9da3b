package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"diagload/internal/metrics"
	"diagload/internal/session"
	"diagload/internal/storage"
)

const refresh = 200 * time.Millisecond

// Start runs the session headless, redrawing a one-line progress view on
// w until the plan completes, then prints the summary.
func Start(ctx context.Context, s *session.Session, w io.Writer) (storage.RunRecord, error) {
	printHeader(w, s)

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	ticker := time.NewTicker(refresh)
	defer ticker.Stop()

	total := s.Scheduler.TotalDuration()

	for {
		select {
		case err := <-done:
			fmt.Fprintln(w)
			rec := s.Record()
			PrintSummary(w, rec)
			return rec, err
		case <-ticker.C:
			fmt.Fprint(w, "\r"+progressLine(s, total))
		}
	}
}

func progressLine(s *session.Session, total time.Duration) string {
	elapsed := s.Scheduler.Elapsed()
	pct := 0.0
	if total > 0 {
		pct = elapsed.Seconds() / total.Seconds()
	}
	if pct > 1 {
		pct = 1
	}

	if elapsed >= total && s.Scheduler.Live() > 0 {
		return fmt.Sprintf("%s %3.0f%% | %s/%s | Draining: %d VUs...          ",
			progressBar(1, 20), 100.0,
			elapsed.Round(time.Second), total.Round(time.Second),
			s.Scheduler.Live())
	}

	return fmt.Sprintf("%s %3.0f%% | %s/%s | VUs: %3d | Inf: %3d | Req: %d (%.1f%% failed) | Err: %.0f | OK: %.0f",
		progressBar(pct, 20), pct*100,
		elapsed.Round(time.Second), total.Round(time.Second),
		s.Scheduler.Live(),
		s.Stats.Inflight.Load(),
		s.Stats.Requests.Load(),
		s.Stats.ErrorRate(),
		s.Sink.Total(metrics.Errors),
		s.Sink.Total(metrics.AnalysisCorrect),
	)
}

func printHeader(w io.Writer, s *session.Session) {
	fmt.Fprintf(w, "\n🚀 STARTING DIAGLOAD RUN %s\n", s.ID)
	fmt.Fprintf(w, "======================================================================\n")
	fmt.Fprintf(w, "Endpoint   : %s\n", s.Config.Endpoint)
	fmt.Fprintf(w, "Time scale : %g (plan %s)\n", s.Config.TimeScale, s.Scheduler.TotalDuration().Round(time.Second))
	fmt.Fprintf(w, "Timeout    : %s\n", s.Config.Timeout)
	for _, st := range s.Scheduler.Status() {
		fmt.Fprintf(w, "  %-24s +%-8s %8s  peak %d VUs\n",
			st.Name, st.StartOffset.Round(time.Second), st.Duration.Round(time.Second), st.Peak)
	}
	fmt.Fprintf(w, "======================================================================\n\n")
}

func progressBar(pct float64, width int) string {
	filled := int(pct * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return "[" + strings.Repeat("█", filled) + strings.Repeat("-", width-filled) + "]"
}

// PrintSummary writes the end-of-run report for rec.
func PrintSummary(w io.Writer, rec storage.RunRecord) {
	elapsed := rec.Elapsed()
	rps := 0.0
	if elapsed > 0 {
		rps = float64(rec.Latency.Requests) / elapsed.Seconds()
	}

	fmt.Fprintf(w, "\n📊 RUN RESULTS\n")
	fmt.Fprintf(w, "======================================================================\n")
	fmt.Fprintf(w, "Run            : %s\n", rec.ID)
	fmt.Fprintf(w, "Total Duration : %s\n", elapsed.Round(time.Second))
	if rec.Cancelled {
		fmt.Fprintf(w, "Status         : cancelled\n")
	}
	fmt.Fprintf(w, "Requests Sent  : %d\n", rec.Latency.Requests)
	fmt.Fprintf(w, "HTTP 2xx       : %d\n", rec.Latency.Success)
	fmt.Fprintf(w, "HTTP other     : %d\n", rec.Latency.Fail)
	fmt.Fprintf(w, "Actual RPS     : %.2f\n", rps)

	fmt.Fprintf(w, "\n🧪 SCENARIOS\n")
	for _, st := range rec.Schedules {
		fmt.Fprintf(w, "   %-24s %-9s iterations %-6d", st.Name, st.PhaseName, st.Iterations)
		if st.Panics > 0 {
			fmt.Fprintf(w, " panics %d", st.Panics)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "\n🔢 COUNTERS\n")
	for _, name := range metrics.Names {
		fmt.Fprintf(w, "   %-20s %.0f\n", name, rec.Counter(name))
		for _, c := range rec.Counters {
			if c.Name != name {
				continue
			}
			label := c.Tag
			if c.Endpoint != "" {
				label = c.Endpoint + " · " + c.Tag
			}
			fmt.Fprintf(w, "      %-46s %.0f\n", label, c.Value)
		}
	}

	fmt.Fprintf(w, "\n⏱️  RESPONSE TIMES (ms)\n")
	fmt.Fprintf(w, "   Avg : %.2f\n", rec.Latency.AvgMs)
	fmt.Fprintf(w, "   P50 : %.2f\n", rec.Latency.P50Ms)
	fmt.Fprintf(w, "   P90 : %.2f\n", rec.Latency.P90Ms)
	fmt.Fprintf(w, "   P95 : %.2f\n", rec.Latency.P95Ms)
	fmt.Fprintf(w, "   P99 : %.2f\n", rec.Latency.P99Ms)
	fmt.Fprintf(w, "   Max : %.2f\n", rec.Latency.MaxMs)

	if len(rec.Latency.Errors) > 0 {
		fmt.Fprintf(w, "\n❌ TRANSPORT FAILURES\n")
		for _, e := range rec.Latency.Errors {
			fmt.Fprintf(w, "   %d x %s\n", e.Count, e.Err)
		}
	}
	fmt.Fprintf(w, "======================================================================\n")
}
