// Package metrics holds the tagged counters every scenario reports into.
package metrics

import (
	"sort"

	"github.com/prometheus/client_golang/prometheus"
)

// Counter names
const (
	Errors            = "errors"
	AnalysesAttempted = "analyses_attempted"
	AnalysisCorrect   = "analysis_correct"
)

// Names lists the counters a Sink carries, in report order.
var Names = []string{AnalysesAttempted, AnalysisCorrect, Errors}

var help = map[string]string{
	Errors:            "Failed requests, unparseable responses and failed result checks.",
	AnalysesAttempted: "Scenario iterations that set out to submit an analysis.",
	AnalysisCorrect:   "Analyses whose polled result matched the expected diagnosis.",
}

// Tags partitions a counter. Endpoint is empty for per-scenario counters
// such as analyses_attempted.
type Tags struct {
	Endpoint string
	Tag      string
}

// Sample is one (counter, tags) cell read back for reporting.
type Sample struct {
	Name     string  `json:"name"`
	Endpoint string  `json:"endpoint,omitempty"`
	Tag      string  `json:"tag"`
	Value    float64 `json:"value"`
}

// Sink is a concurrent-safe set of tagged counters backed by a private
// prometheus registry. Increments commute, so actors never coordinate.
type Sink struct {
	registry *prometheus.Registry
	counters map[string]*prometheus.CounterVec
}

func NewSink() *Sink {
	s := &Sink{
		registry: prometheus.NewRegistry(),
		counters: make(map[string]*prometheus.CounterVec, len(Names)),
	}

	for _, name := range Names {
		vec := prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: name,
			Help: help[name],
		}, []string{"endpoint", "tag"})

		s.registry.MustRegister(vec)
		s.counters[name] = vec
	}

	return s
}

// Add increments the named counter. Unknown names and negative amounts
// are dropped; counters only ever grow.
func (s *Sink) Add(name string, n float64, tags Tags) {
	vec, ok := s.counters[name]
	if !ok || n < 0 {
		return
	}
	vec.WithLabelValues(tags.Endpoint, tags.Tag).Add(n)
}

func (s *Sink) Inc(name string, tags Tags) {
	s.Add(name, 1, tags)
}

// Registry exposes the backing registry for a /metrics handler.
func (s *Sink) Registry() *prometheus.Registry {
	return s.registry
}

// Snapshot reads every populated cell, sorted by name, tag, endpoint.
func (s *Sink) Snapshot() []Sample {
	families, err := s.registry.Gather()
	if err != nil {
		return nil
	}

	var out []Sample
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			sample := Sample{
				Name:  mf.GetName(),
				Value: m.GetCounter().GetValue(),
			}
			for _, lp := range m.GetLabel() {
				switch lp.GetName() {
				case "endpoint":
					sample.Endpoint = lp.GetValue()
				case "tag":
					sample.Tag = lp.GetValue()
				}
			}
			out = append(out, sample)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		if out[i].Tag != out[j].Tag {
			return out[i].Tag < out[j].Tag
		}
		return out[i].Endpoint < out[j].Endpoint
	})

	return out
}

// Value returns one cell, zero when it was never incremented.
func (s *Sink) Value(name string, tags Tags) float64 {
	for _, sample := range s.Snapshot() {
		if sample.Name == name && sample.Endpoint == tags.Endpoint && sample.Tag == tags.Tag {
			return sample.Value
		}
	}
	return 0
}

// Total sums a counter across all tag sets.
func (s *Sink) Total(name string) float64 {
	var total float64
	for _, sample := range s.Snapshot() {
		if sample.Name == name {
			total += sample.Value
		}
	}
	return total
}
