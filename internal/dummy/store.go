package dummy

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Job is one submitted analysis. Its result stays pending until the
// processing delay has passed since submission.
type Job struct {
	RequestID string
	PatientID string
	LabID     string
	Urgent    bool
	CreatedAt time.Time
	UpdatedAt time.Time

	final string
}

type store struct {
	mu    sync.RWMutex
	jobs  map[string]*Job
	order []string

	delay  time.Duration
	result string
	now    func() time.Time
}

func newStore(delay time.Duration, result string, now func() time.Time) *store {
	return &store{
		jobs:   make(map[string]*Job),
		delay:  delay,
		result: result,
		now:    now,
	}
}

func (s *store) create(patient, lab string, urgent bool) Job {
	now := s.now().UTC()
	j := &Job{
		RequestID: uuid.NewString(),
		PatientID: patient,
		LabID:     lab,
		Urgent:    urgent,
		CreatedAt: now,
		UpdatedAt: now,
		final:     s.result,
	}

	s.mu.Lock()
	s.jobs[j.RequestID] = j
	s.order = append(s.order, j.RequestID)
	s.mu.Unlock()

	return *j
}

func (s *store) get(id string) (Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *j, true
}

func (s *store) setLab(id, lab string) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return Job{}, false
	}
	if j.LabID != lab {
		j.LabID = lab
		j.UpdatedAt = s.now().UTC()
	}
	return *j, true
}

// filter returns matching jobs oldest first.
func (s *store) filter(match func(j Job, result string) bool) []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Job
	for _, id := range s.order {
		j := *s.jobs[id]
		if match(j, s.resultOf(j)) {
			out = append(out, j)
		}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	return out
}

// resultOf resolves a job lazily against the clock.
func (s *store) resultOf(j Job) string {
	if s.now().Sub(j.CreatedAt) < s.delay {
		return "pending"
	}
	return j.final
}
