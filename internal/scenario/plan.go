package scenario

import (
	"fmt"
	"time"

	"diagload/internal/runner"
)

// Schedule names, as accepted by --scenarios.
const (
	NameNormal        = "normal_circumstances"
	NameCuriosity     = "curiosity_killed_server"
	NameEpidemicEarly = "epidemic_early_stages"
	NameEpidemicPeak  = "epidemic_peak"
	NameCoolDown      = "cool_down"
)

// Plan returns the full test plan, durations scaled by e.TimeScale.
func (e *Env) Plan() []runner.Schedule {
	stages := func(pairs ...any) []runner.Stage {
		out := make([]runner.Stage, 0, len(pairs)/2)
		for i := 0; i+1 < len(pairs); i += 2 {
			out = append(out, runner.Stage{
				Duration: e.scaled(pairs[i].(time.Duration)),
				Target:   pairs[i+1].(int),
			})
		}
		return out
	}

	return []runner.Schedule{
		{
			Name:   NameNormal,
			Stages: stages(time.Minute, 5, 3*time.Minute, 15, time.Minute, 0),
			Body:   e.Normal,
		},
		{
			// leaves time for normal traffic to finish its analyses
			Name:        NameCuriosity,
			Stages:      stages(2*time.Minute, 20, 2*time.Minute, 45, 2*time.Minute, 80, 2*time.Minute, 50, 2*time.Minute, 0),
			StartOffset: e.scaled(10 * time.Minute),
			Body:        e.Curiosity,
		},
		{
			Name:        NameEpidemicEarly,
			Stages:      stages(2*time.Minute, 40, 4*time.Minute, 60, time.Minute, 0),
			StartOffset: e.scaled(24 * time.Minute),
			Body:        e.EpidemicEarly,
		},
		{
			Name:        NameEpidemicPeak,
			Stages:      stages(2*time.Minute, 40, time.Minute, 60, 4*time.Minute, 80, 2*time.Minute, 0),
			StartOffset: e.scaled(35 * time.Minute),
			Body:        e.EpidemicPeak,
		},
		{
			Name:        NameCoolDown,
			Stages:      stages(2*time.Minute, 1, 2*time.Minute, 0),
			StartOffset: e.scaled(45 * time.Minute),
			Body:        e.CoolDown,
		},
	}
}

// Select keeps the named schedules, in plan order. No names keeps all.
func Select(plan []runner.Schedule, names []string) ([]runner.Schedule, error) {
	if len(names) == 0 {
		return plan, nil
	}

	known := make(map[string]bool, len(plan))
	for _, sc := range plan {
		known[sc.Name] = true
	}

	want := make(map[string]bool, len(names))
	for _, n := range names {
		if !known[n] {
			return nil, fmt.Errorf("unknown scenario %q", n)
		}
		want[n] = true
	}

	var out []runner.Schedule
	for _, sc := range plan {
		if want[sc.Name] {
			out = append(out, sc)
		}
	}
	return out, nil
}
