package observability

import (
	"sync"
	"testing"
	"time"
)

// TestRecordConcurrent tests concurrent Record calls for race conditions.
func TestRecordConcurrent(t *testing.T) {
	cs := NewCaseStats()
	var wg sync.WaitGroup
	numGoroutines := 10
	recordsPerGoroutine := 100

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < recordsPerGoroutine; j++ {
				cs.Record("TPC-H_Q6_10MB", time.Millisecond)
				cs.Record("TPC-H_Q1_10MB", 2*time.Millisecond)
			}
		}()
	}
	wg.Wait()

	for _, name := range []string{"TPC-H_Q6_10MB", "TPC-H_Q1_10MB"} {
		sum, ok := cs.Summary(name)
		if !ok {
			t.Fatalf("missing summary for %s", name)
		}
		if sum.Count != numGoroutines*recordsPerGoroutine {
			t.Errorf("%s: expected %d samples, got %d", name, numGoroutines*recordsPerGoroutine, sum.Count)
		}
	}
}

func TestSummarize(t *testing.T) {
	samples := []time.Duration{5, 1, 4, 2, 3}
	sum := Summarize(samples)

	if sum.Count != 5 || sum.Min != 1 || sum.Max != 5 {
		t.Errorf("unexpected bounds: %+v", sum)
	}
	if sum.Mean != 3 || sum.Median != 3 || sum.Total != 15 {
		t.Errorf("unexpected centre: %+v", sum)
	}
	if sum.P95 != 5 {
		t.Errorf("expected p95 5, got %v", sum.P95)
	}
	if samples[0] != 5 {
		t.Error("Summarize must not reorder its input")
	}
}

func TestSummarizeEvenMedianAndP95(t *testing.T) {
	var samples []time.Duration
	for i := 1; i <= 20; i++ {
		samples = append(samples, time.Duration(i)*time.Millisecond)
	}
	sum := Summarize(samples)

	if want := 10*time.Millisecond + 500*time.Microsecond; sum.Median != want {
		t.Errorf("expected median %v, got %v", want, sum.Median)
	}
	if sum.P95 != 19*time.Millisecond {
		t.Errorf("expected p95 19ms, got %v", sum.P95)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	if sum := Summarize(nil); sum.Count != 0 || sum.Max != 0 {
		t.Errorf("expected zero summary, got %+v", sum)
	}
}

func TestFailuresAndOrdering(t *testing.T) {
	cs := NewCaseStats()
	cs.Record("b", time.Second)
	cs.RecordFailure("a")

	sums := cs.Summaries()
	if len(sums) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(sums))
	}
	if sums[0].Case != "a" || sums[1].Case != "b" {
		t.Errorf("summaries not ordered by case: %s, %s", sums[0].Case, sums[1].Case)
	}
	if sums[0].Failures != 1 || sums[0].Count != 0 {
		t.Errorf("unexpected failed case summary: %+v", sums[0])
	}

	if _, ok := cs.Summary("missing"); ok {
		t.Error("expected no summary for an unknown case")
	}
	if cs.Samples("missing") != nil {
		t.Error("expected no samples for an unknown case")
	}
}
