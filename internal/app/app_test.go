package app

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkilian/enginebench/internal/bench"
	"github.com/arkilian/enginebench/internal/config"
	_ "github.com/arkilian/enginebench/internal/engine/memory"
	"github.com/arkilian/enginebench/internal/errors"
	"github.com/arkilian/enginebench/internal/results"
	"github.com/arkilian/enginebench/internal/storage"
	"github.com/arkilian/enginebench/pkg/expr"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Libraries = []string{"memory"}
	cfg.DataRoot = filepath.Join(dir, "data")
	cfg.CacheDir = filepath.Join(dir, "cache")
	cfg.Bench.WarmupIterations = 1
	cfg.Bench.Iterations = 3
	cfg.Storage.Path = filepath.Join(dir, "objects")
	require.NoError(t, os.MkdirAll(cfg.DataRoot, 0o755))
	return cfg
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Libraries = nil
	_, err := New(cfg)
	require.Error(t, err)
	assert.Equal(t, errors.CodeNoEngines, errors.GetCode(err))
}

func TestRunRejectsUnknownLibrary(t *testing.T) {
	cfg := testConfig(t)
	cfg.Libraries = []string{"memory", "nosuchengine"}
	a, err := New(cfg)
	require.NoError(t, err)

	_, err = a.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.CodeUnknownEngine, errors.GetCode(err))
}

func TestRunPersistsAndUploadsResults(t *testing.T) {
	cfg := testConfig(t)
	dir := t.TempDir()
	cfg.Results.DatabasePath = filepath.Join(dir, "results", "results.db")
	cfg.Results.MetricsFile = filepath.Join(dir, "metrics", "enginebench.prom")
	cfg.Results.Upload = true

	a, err := New(cfg)
	require.NoError(t, err)
	out, err := a.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "TPC-H_Q6_literal", out[0].Case)
	assert.Equal(t, bench.Completed, out[0].State)

	sum, ok := a.Stats().Summary("TPC-H_Q6_literal")
	require.True(t, ok)
	assert.Equal(t, 3, sum.Count)

	metrics, err := os.ReadFile(cfg.Results.MetricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(metrics), `enginebench_iteration_duration_seconds_count{case="TPC-H_Q6_literal"} 3`)

	objects, err := storage.NewLocalStorage(cfg.Storage.Path)
	require.NoError(t, err)
	keys, err := objects.ListObjects(context.Background(), "results")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	runID := strings.TrimSuffix(path.Base(keys[0]), ".db.sz")
	assert.Equal(t, UploadKey(runID), keys[0])

	uploaded, err := objects.Path(keys[0])
	require.NoError(t, err)
	restored := filepath.Join(dir, "restored.db")
	require.NoError(t, storage.DecompressFile(uploaded, restored))
	catalog, err := results.NewCatalog(restored)
	require.NoError(t, err)
	defer catalog.Close()

	run, err := catalog.GetRun(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, []string{"memory"}, run.Libraries)
	assert.NotNil(t, run.FinishedAt)
	cases, err := catalog.ListCases(context.Background(), runID)
	require.NoError(t, err)
	require.Len(t, cases, 1)
	assert.Equal(t, "literal", cases[0].Dataset)
	assert.Len(t, cases[0].Iterations, 3)
}

// stubBoundary answers every query with a one-row table and calls onQuery
// before answering.
type stubBoundary struct {
	queries  int
	released bool
	onQuery  func(n int)
}

func (b *stubBoundary) Evaluate(e expr.Expression) expr.Expression {
	if expr.HasHead(e, expr.ReleaseEngines) {
		b.released = true
		return expr.Bool(true)
	}
	b.queries++
	if b.onQuery != nil {
		b.onQuery(b.queries)
	}
	return expr.NewTable(expr.Table, expr.NewColumn("revenue", expr.NewBuffer([]float64{1})))
}

func TestShutdownStopsRunAndReleasesEngines(t *testing.T) {
	cfg := testConfig(t)
	cfg.Libraries = []string{"stub"}
	cfg.Bench.Iterations = 1000

	a, err := New(cfg)
	require.NoError(t, err)
	b := &stubBoundary{}
	b.onQuery = func(n int) {
		if n == 5 {
			a.Shutdown().Shutdown("test")
		}
	}
	out, err := a.WithBoundary(b).Run(context.Background())

	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, out, 1)
	assert.True(t, out[0].Interrupted)
	assert.Equal(t, 5, b.queries, "the run stops after the current iteration")
	assert.True(t, b.released)
}
