package runner

import (
	"math"
	"time"
)

// curve samples a stage sequence at non-decreasing elapsed times. It keeps
// its place between calls so each sample only walks the stages it crossed.
type curve struct {
	stages     []Stage
	idx        int
	stageStart time.Duration
	from       int
}

func newCurve(stages []Stage) *curve {
	return &curve{stages: stages}
}

// At returns the target population at elapsed, and whether every stage has
// finished. Rising segments round down and falling ones round up, so a
// stage's declared target is hit exactly at its end and never overshot.
func (c *curve) At(elapsed time.Duration) (int, bool) {
	for c.idx < len(c.stages) {
		st := c.stages[c.idx]
		end := c.stageStart + st.Duration

		if elapsed < end {
			frac := float64(elapsed-c.stageStart) / float64(st.Duration)
			v := float64(c.from) + float64(st.Target-c.from)*frac
			if st.Target >= c.from {
				return int(math.Floor(v)), false
			}
			return int(math.Ceil(v)), false
		}

		c.from = st.Target
		c.stageStart = end
		c.idx++
	}

	return c.from, true
}
