package storage

import (
	"time"

	"github.com/google/uuid"

	"diagload/internal/metrics"
	"diagload/internal/runner"
	"diagload/internal/stats"
)

// RunRecord is what history keeps of one completed run.
type RunRecord struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Endpoint  string   `json:"endpoint"`
	Scenarios []string `json:"scenarios"`
	TimeScale float64  `json:"time_scale"`
	Seed      uint64   `json:"seed"`
	Cancelled bool     `json:"cancelled"`

	Counters  []metrics.Sample `json:"counters"`
	Latency   stats.Summary    `json:"latency"`
	Schedules []runner.Status  `json:"schedules"`
}

// NewID returns a time-ordered run id, so key order in the store is run
// order.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Counter sums one counter across all of its tags.
func (r RunRecord) Counter(name string) float64 {
	var total float64
	for _, s := range r.Counters {
		if s.Name == name {
			total += s.Value
		}
	}
	return total
}

func (r RunRecord) Elapsed() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
