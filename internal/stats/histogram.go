package stats

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// SafeHistogram is a thread-safe wrapper around hdrhistogram
type SafeHistogram struct {
	hist *hdrhistogram.Histogram
	mu   sync.Mutex
}

func NewSafeHistogram() *SafeHistogram {
	// 1us to 10min, 3 significant figures
	h := hdrhistogram.New(1, int64(10*time.Minute/time.Microsecond), 3)
	return &SafeHistogram{hist: h}
}

// Record stores a duration at microsecond resolution. Values outside the
// trackable range are clamped rather than dropped.
func (h *SafeHistogram) Record(d time.Duration) {
	v := d.Microseconds()
	if v < 1 {
		v = 1
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if limit := h.hist.HighestTrackableValue(); v > limit {
		v = limit
	}
	_ = h.hist.RecordValue(v)
}

// Quantile returns the q-th percentile (0-100) in milliseconds.
func (h *SafeHistogram) Quantile(q float64) float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return float64(h.hist.ValueAtQuantile(q)) / 1000.0
}

// MeanMs returns the mean in milliseconds.
func (h *SafeHistogram) MeanMs() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hist.Mean() / 1000.0
}

// MaxMs returns the largest recorded value in milliseconds.
func (h *SafeHistogram) MaxMs() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return float64(h.hist.Max()) / 1000.0
}

func (h *SafeHistogram) TotalCount() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hist.TotalCount()
}
