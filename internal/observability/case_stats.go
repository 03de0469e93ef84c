// Package observability provides per-case latency statistics and Prometheus
// metrics for benchmark runs.
package observability

import (
	"math"
	"sort"
	"sync"
	"time"
)

// CaseStats collects measured iteration latencies per benchmark case.
type CaseStats struct {
	mu    sync.RWMutex
	cases map[string]*caseSamples
}

type caseSamples struct {
	samples  []time.Duration
	failures int64
	lastSeen time.Time
}

// Summary holds the summary statistics of one case.
type Summary struct {
	Case     string
	Count    int
	Failures int64
	Min      time.Duration
	Mean     time.Duration
	Median   time.Duration
	P95      time.Duration
	Max      time.Duration
	Total    time.Duration
}

// NewCaseStats creates an empty collector.
func NewCaseStats() *CaseStats {
	return &CaseStats{cases: make(map[string]*caseSamples)}
}

func (s *CaseStats) get(name string) *caseSamples {
	c, ok := s.cases[name]
	if !ok {
		c = &caseSamples{}
		s.cases[name] = c
	}
	return c
}

// Record adds one measured iteration.
func (s *CaseStats) Record(name string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.get(name)
	c.samples = append(c.samples, d)
	c.lastSeen = time.Now()
}

// RecordFailure counts a failed case.
func (s *CaseStats) RecordFailure(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.get(name)
	c.failures++
	c.lastSeen = time.Now()
}

// Samples returns a copy of the latencies recorded for a case.
func (s *CaseStats) Samples(name string) []time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cases[name]
	if !ok {
		return nil
	}
	return append([]time.Duration(nil), c.samples...)
}

// Summary computes the statistics of a case. ok is false for unknown cases.
func (s *CaseStats) Summary(name string) (Summary, bool) {
	s.mu.RLock()
	c, ok := s.cases[name]
	var (
		samples  []time.Duration
		failures int64
	)
	if ok {
		samples = append(samples, c.samples...)
		failures = c.failures
	}
	s.mu.RUnlock()
	if !ok {
		return Summary{}, false
	}

	sum := Summarize(samples)
	sum.Case = name
	sum.Failures = failures
	return sum, true
}

// Summaries returns the summary of every case, ordered by case name.
func (s *CaseStats) Summaries() []Summary {
	s.mu.RLock()
	names := make([]string, 0, len(s.cases))
	for name := range s.cases {
		names = append(names, name)
	}
	s.mu.RUnlock()

	sort.Strings(names)
	out := make([]Summary, 0, len(names))
	for _, name := range names {
		if sum, ok := s.Summary(name); ok {
			out = append(out, sum)
		}
	}
	return out
}

// Summarize computes summary statistics over samples. The median of an
// even-sized sample is the mean of the two middle values; P95 uses the
// nearest-rank method.
func Summarize(samples []time.Duration) Summary {
	if len(samples) == 0 {
		return Summary{}
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var total time.Duration
	for _, d := range sorted {
		total += d
	}
	n := len(sorted)

	median := sorted[n/2]
	if n%2 == 0 {
		median = (sorted[n/2-1] + sorted[n/2]) / 2
	}
	rank := int(math.Ceil(0.95*float64(n))) - 1
	if rank < 0 {
		rank = 0
	}

	return Summary{
		Count:  n,
		Min:    sorted[0],
		Mean:   total / time.Duration(n),
		Median: median,
		P95:    sorted[rank],
		Max:    sorted[n-1],
		Total:  total,
	}
}
