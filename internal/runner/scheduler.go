package runner

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Option func(*Scheduler)

// WithTick sets how often each schedule reconciles its population.
func WithTick(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.tick = d
		}
	}
}

func WithLogger(log *zap.Logger) Option {
	return func(s *Scheduler) {
		if log != nil {
			s.log = log
		}
	}
}

// WithSeed makes every VU's random source deterministic. Zero keeps the
// default time-based seed.
func WithSeed(seed uint64) Option {
	return func(s *Scheduler) {
		if seed != 0 {
			s.seed = seed
		}
	}
}

// WithRandFactory overrides how VUs get their random source.
func WithRandFactory(f func(scenario string, vuID int) Rand) Option {
	return func(s *Scheduler) {
		if f != nil {
			s.newRand = f
		}
	}
}

// Scheduler runs every schedule's ramp concurrently. Each schedule waits
// for its start offset, then a control loop samples the stage curve every
// tick and starts or retires VUs until the live population matches it.
// Retired VUs finish the iteration they are in before exiting.
type Scheduler struct {
	states  []*scheduleState
	tick    time.Duration
	seed    uint64
	newRand func(scenario string, vuID int) Rand
	log     *zap.Logger

	running atomic.Bool
	origin  atomic.Int64
}

type scheduleState struct {
	Schedule

	phase      atomic.Int32
	target     atomic.Int64
	active     atomic.Int64
	live       atomic.Int64
	iterations atomic.Uint64
	panics     atomic.Uint64
}

// Actor states. A stopping actor exits at its next iteration boundary
// unless reconcile revives it first.
const (
	actorRunning int32 = iota
	actorStopping
	actorExited
)

type actor struct {
	id    int
	state atomic.Int32
}

func New(schedules []Schedule, opts ...Option) (*Scheduler, error) {
	seen := make(map[string]bool, len(schedules))
	for _, sc := range schedules {
		if err := validate(sc); err != nil {
			return nil, err
		}
		if seen[sc.Name] {
			return nil, fmt.Errorf("%w: duplicate name %q", ErrInvalidSchedule, sc.Name)
		}
		seen[sc.Name] = true
	}

	s := &Scheduler{
		tick: 100 * time.Millisecond,
		seed: uint64(time.Now().UnixNano()),
		log:  zap.NewNop(),
	}
	for _, op := range opts {
		op(s)
	}
	if s.newRand == nil {
		s.newRand = s.defaultRand
	}

	for _, sc := range schedules {
		s.states = append(s.states, &scheduleState{Schedule: sc})
	}

	return s, nil
}

func validate(sc Schedule) error {
	if sc.Name == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidSchedule)
	}
	if sc.Body == nil {
		return fmt.Errorf("%w: %s: missing body", ErrInvalidSchedule, sc.Name)
	}
	if sc.StartOffset < 0 {
		return fmt.Errorf("%w: %s: negative start offset", ErrInvalidSchedule, sc.Name)
	}
	for i, st := range sc.Stages {
		if st.Duration < 0 {
			return fmt.Errorf("%w: %s: stage %d has negative duration", ErrInvalidSchedule, sc.Name, i+1)
		}
		if st.Target < 0 {
			return fmt.Errorf("%w: %s: stage %d has negative target", ErrInvalidSchedule, sc.Name, i+1)
		}
	}
	return nil
}

func (s *Scheduler) defaultRand(scenario string, vuID int) Rand {
	h := fnv.New64a()
	h.Write([]byte(scenario))
	return rand.New(rand.NewPCG(s.seed, h.Sum64()+uint64(vuID)))
}

// Run blocks until every schedule has completed its stages and drained its
// VUs, or ctx is cancelled. Cancellation still waits for VUs to return.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	origin := time.Now()
	s.origin.Store(origin.UnixNano())

	s.log.Info("run started",
		zap.Int("schedules", len(s.states)),
		zap.Duration("planned", s.TotalDuration()),
	)

	var g errgroup.Group
	for _, st := range s.states {
		g.Go(func() error {
			return s.runSchedule(ctx, st, origin)
		})
	}
	err := g.Wait()

	s.log.Info("run finished",
		zap.Duration("elapsed", time.Since(origin)),
		zap.Error(err),
	)

	return err
}

func (s *Scheduler) runSchedule(ctx context.Context, st *scheduleState, origin time.Time) error {
	if wait := time.Until(origin.Add(st.StartOffset)); wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			st.phase.Store(int32(PhaseDone))
			return ctx.Err()
		case <-timer.C:
		}
	}

	st.phase.Store(int32(PhaseRunning))
	s.log.Info("schedule started",
		zap.String("scenario", st.Name),
		zap.Int("peak", st.Peak()),
		zap.Duration("duration", st.Duration()),
	)

	var (
		wg      sync.WaitGroup
		actors  []*actor
		retired []*actor
		nextID  int
	)

	reconcile := func(target int) {
		// Retired actors still in an iteration are revived before new
		// ones start.
		for len(actors) < target && len(retired) > 0 {
			a := retired[len(retired)-1]
			retired = retired[:len(retired)-1]
			if a.state.CompareAndSwap(actorStopping, actorRunning) {
				actors = append(actors, a)
			}
		}

		for len(actors) < target {
			nextID++
			a := &actor{id: nextID}
			actors = append(actors, a)

			wg.Add(1)
			st.live.Add(1)
			go s.lifecycle(ctx, &wg, st, a)
		}

		for len(actors) > target {
			last := actors[len(actors)-1]
			last.state.Store(actorStopping)
			retired = append(retired, last)
			actors = actors[:len(actors)-1]
		}

		kept := retired[:0]
		for _, a := range retired {
			if a.state.Load() != actorExited {
				kept = append(kept, a)
			}
		}
		retired = kept

		st.target.Store(int64(target))
		st.active.Store(int64(len(actors)))
	}

	start := time.Now()
	c := newCurve(st.Stages)
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

loop:
	for {
		target, done := c.At(time.Since(start))
		if done {
			reconcile(0)
			break
		}
		reconcile(target)

		select {
		case <-ctx.Done():
			reconcile(0)
			break loop
		case <-ticker.C:
		}
	}

	st.phase.Store(int32(PhaseDraining))
	wg.Wait()
	st.phase.Store(int32(PhaseDone))

	s.log.Info("schedule finished",
		zap.String("scenario", st.Name),
		zap.Uint64("iterations", st.iterations.Load()),
		zap.Uint64("panics", st.panics.Load()),
	)

	return ctx.Err()
}

func (s *Scheduler) lifecycle(ctx context.Context, wg *sync.WaitGroup, st *scheduleState, a *actor) {
	defer wg.Done()
	defer st.live.Add(-1)

	vu := &VU{
		ID:       a.id,
		Scenario: st.Name,
		Rand:     s.newRand(st.Name, a.id),
	}

	for {
		if ctx.Err() != nil {
			a.state.Store(actorExited)
			return
		}
		if a.state.CompareAndSwap(actorStopping, actorExited) {
			return
		}

		s.iterate(ctx, st, vu)

		vu.Iteration++
		st.iterations.Add(1)
	}
}

func (s *Scheduler) iterate(ctx context.Context, st *scheduleState, vu *VU) {
	defer func() {
		if r := recover(); r != nil {
			st.panics.Add(1)
			s.log.Error("iteration recovered from panic",
				zap.String("scenario", st.Name),
				zap.Int("vu", vu.ID),
				zap.Int("iteration", vu.Iteration),
				zap.Any("panic", r),
			)
		}
	}()

	st.Body(ctx, vu)
}

// Status reports every schedule in declaration order.
func (s *Scheduler) Status() []Status {
	out := make([]Status, 0, len(s.states))
	for _, st := range s.states {
		phase := Phase(st.phase.Load())
		out = append(out, Status{
			Name:        st.Name,
			Phase:       phase,
			PhaseName:   phase.String(),
			StartOffset: st.StartOffset,
			Duration:    st.Duration(),
			Peak:        st.Peak(),
			Target:      int(st.target.Load()),
			Active:      int(st.active.Load()),
			Live:        int(st.live.Load()),
			Iterations:  st.iterations.Load(),
			Panics:      st.panics.Load(),
		})
	}
	return out
}

// Live is the number of VU goroutines still running across all schedules,
// including retired ones finishing their last iteration.
func (s *Scheduler) Live() int {
	var n int64
	for _, st := range s.states {
		n += st.live.Load()
	}
	return int(n)
}

// Elapsed is the time since Run started, zero before that.
func (s *Scheduler) Elapsed() time.Duration {
	o := s.origin.Load()
	if o == 0 {
		return 0
	}
	return time.Since(time.Unix(0, o))
}

// TotalDuration is the planned length of the run: the latest offset plus
// stage sequence end. Draining may extend the real run past it.
func (s *Scheduler) TotalDuration() time.Duration {
	var total time.Duration
	for _, st := range s.states {
		if end := st.StartOffset + st.Duration(); end > total {
			total = end
		}
	}
	return total
}

// Done reports whether every schedule has finished.
func (s *Scheduler) Done() bool {
	for _, st := range s.states {
		if Phase(st.phase.Load()) != PhaseDone {
			return false
		}
	}
	return true
}
