package stats

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Stats holds transport-level aggregates for every request the client
// issues, independent of the scenario counters.
type Stats struct {
	Requests atomic.Uint64
	Success  atomic.Uint64
	Fail     atomic.Uint64
	Bytes    atomic.Uint64
	Inflight atomic.Int64

	// Latency in microseconds, transport failures excluded
	Latency *SafeHistogram

	mu        sync.Mutex
	errCounts map[string]uint64
}

func NewStats() *Stats {
	return &Stats{
		Latency:   NewSafeHistogram(),
		errCounts: make(map[string]uint64),
	}
}

// Observe records one finished request. status is zero when the request
// never produced a response, in which case errMsg says why.
func (s *Stats) Observe(status int, bytes int64, elapsed time.Duration, errMsg string) {
	s.Requests.Add(1)
	if bytes > 0 {
		s.Bytes.Add(uint64(bytes))
	}

	if status >= 200 && status < 300 {
		s.Success.Add(1)
	} else {
		s.Fail.Add(1)
	}

	if status == 0 {
		s.mu.Lock()
		s.errCounts[errMsg]++
		s.mu.Unlock()
		return
	}

	s.Latency.Record(elapsed)
}

func (s *Stats) ErrorRate() float64 {
	reqs := s.Requests.Load()
	if reqs == 0 {
		return 0
	}
	return (float64(s.Fail.Load()) / float64(reqs)) * 100
}

// ErrorCount is one distinct transport failure and how often it occurred.
type ErrorCount struct {
	Err   string `json:"error"`
	Count uint64 `json:"count"`
}

// ErrorCounts returns transport failures, most frequent first.
func (s *Stats) ErrorCounts() []ErrorCount {
	s.mu.Lock()
	out := make([]ErrorCount, 0, len(s.errCounts))
	for k, v := range s.errCounts {
		out = append(out, ErrorCount{Err: k, Count: v})
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Err < out[j].Err
	})
	return out
}

// Summary is a point-in-time copy for reports and history.
type Summary struct {
	Requests uint64       `json:"requests"`
	Success  uint64       `json:"success"`
	Fail     uint64       `json:"fail"`
	Bytes    uint64       `json:"bytes"`
	AvgMs    float64      `json:"avg_ms"`
	P50Ms    float64      `json:"p50_ms"`
	P90Ms    float64      `json:"p90_ms"`
	P95Ms    float64      `json:"p95_ms"`
	P99Ms    float64      `json:"p99_ms"`
	MaxMs    float64      `json:"max_ms"`
	Errors   []ErrorCount `json:"errors,omitempty"`
}

func (s *Stats) Summary() Summary {
	return Summary{
		Requests: s.Requests.Load(),
		Success:  s.Success.Load(),
		Fail:     s.Fail.Load(),
		Bytes:    s.Bytes.Load(),
		AvgMs:    s.Latency.MeanMs(),
		P50Ms:    s.Latency.Quantile(50),
		P90Ms:    s.Latency.Quantile(90),
		P95Ms:    s.Latency.Quantile(95),
		P99Ms:    s.Latency.Quantile(99),
		MaxMs:    s.Latency.MaxMs(),
		Errors:   s.ErrorCounts(),
	}
}
