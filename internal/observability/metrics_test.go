package observability

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics()
	m.IncFailure("TPC-H_Q9_1MB")
	m.IncFailure("TPC-H_Q9_1MB")
	m.IncWarmup("TPC-H_Q9_1MB")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.failures.WithLabelValues("TPC-H_Q9_1MB")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.warmups.WithLabelValues("TPC-H_Q9_1MB")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.failures.WithLabelValues("other")))
}

func TestMetricsHistogram(t *testing.T) {
	m := NewMetrics()
	m.ObserveIteration("TPC-H_Q6_1MB", 3*time.Millisecond)
	m.ObserveIteration("TPC-H_Q6_1MB", 5*time.Millisecond)

	assert.Equal(t, 1, testutil.CollectAndCount(m.iterations))

	expected := `
# HELP enginebench_case_failures_total Total number of benchmark cases stopped by an engine error
# TYPE enginebench_case_failures_total counter
enginebench_case_failures_total{case="TPC-H_Q6_1MB"} 1
`
	m.IncFailure("TPC-H_Q6_1MB")
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "enginebench_case_failures_total"))
}

func TestWriteTextfile(t *testing.T) {
	m := NewMetrics()
	m.ObserveIteration("literal_Q6", time.Millisecond)

	path := filepath.Join(t.TempDir(), "bench.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `enginebench_iteration_duration_seconds_count{case="literal_Q6"} 1`)
}
