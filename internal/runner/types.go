package runner

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidSchedule = errors.New("invalid schedule")
	ErrAlreadyRunning  = errors.New("scheduler already running")
)

// Stage is one segment of a population curve: over Duration the target
// moves linearly from the previous stage's Target to this one's.
type Stage struct {
	Duration time.Duration `json:"duration"`
	Target   int           `json:"target"`
}

// Body is one iteration of a virtual user. It must not retain vu.
type Body func(ctx context.Context, vu *VU)

// Schedule binds a scenario body to its ramp and its start offset from the
// beginning of the run.
type Schedule struct {
	Name        string
	Stages      []Stage
	StartOffset time.Duration
	Body        Body
}

// Duration is the length of the stage sequence, offset excluded.
func (s Schedule) Duration() time.Duration {
	var d time.Duration
	for _, st := range s.Stages {
		d += st.Duration
	}
	return d
}

// Peak is the highest target any stage reaches.
func (s Schedule) Peak() int {
	var peak int
	for _, st := range s.Stages {
		if st.Target > peak {
			peak = st.Target
		}
	}
	return peak
}

// Rand is the randomness a VU draws branch decisions from.
type Rand interface {
	Float64() float64
}

// VU is a virtual user handed to every iteration of its lifecycle.
// Iteration counts completed iterations, so the first call sees 0.
type VU struct {
	ID        int
	Scenario  string
	Iteration int
	Rand      Rand
}

type Phase int32

const (
	PhaseWaiting Phase = iota
	PhaseRunning
	PhaseDraining
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseWaiting:
		return "waiting"
	case PhaseRunning:
		return "running"
	case PhaseDraining:
		return "draining"
	case PhaseDone:
		return "done"
	default:
		return fmt.Sprintf("phase(%d)", int32(p))
	}
}

// Status is a point-in-time view of one schedule.
type Status struct {
	Name        string        `json:"name"`
	Phase       Phase         `json:"-"`
	PhaseName   string        `json:"phase"`
	StartOffset time.Duration `json:"start_offset"`
	Duration    time.Duration `json:"duration"`
	Peak        int           `json:"peak"`
	Target      int           `json:"target"`
	Active      int           `json:"active"`
	Live        int           `json:"live"`
	Iterations  uint64        `json:"iterations"`
	Panics      uint64        `json:"panics"`
}
