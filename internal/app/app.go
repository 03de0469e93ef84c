// Package app provides the lifecycle of a single benchmark run: shared
// resources, the harness, and the reporting that follows it.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/arkilian/enginebench/internal/bench"
	"github.com/arkilian/enginebench/internal/config"
	"github.com/arkilian/enginebench/internal/engine"
	"github.com/arkilian/enginebench/internal/errors"
	"github.com/arkilian/enginebench/internal/observability"
	"github.com/arkilian/enginebench/internal/results"
	"github.com/arkilian/enginebench/internal/storage"
)

// resultsPrefix is the object storage prefix of uploaded result databases.
const resultsPrefix = "results"

// App manages the resources of a benchmark run.
type App struct {
	cfg *config.Config

	// Shared resources
	storage  storage.ObjectStorage
	dataRoot *storage.DataRoot
	catalog  *results.SQLiteCatalog
	stats    *observability.CaseStats
	metrics  *observability.Metrics
	shutdown *ShutdownManager
	boundary bench.Evaluator

	// Lifecycle
	mu           sync.Mutex
	running      bool
	closeCatalog func() error
	logger       *log.Entry
}

// New creates a new App with the given configuration.
func New(cfg *config.Config) (*App, error) {
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, errors.NewConfigError(errors.CodeInvalidConfig, err.Error())
	}

	return &App{
		cfg:      cfg,
		stats:    observability.NewCaseStats(),
		metrics:  observability.NewMetrics(),
		shutdown: NewShutdownManager(),
		logger:   log.WithField("component", "app"),
	}, nil
}

// WithBoundary replaces the engine boundary built from the registry.
func (a *App) WithBoundary(b bench.Evaluator) *App {
	a.boundary = b
	return a
}

// Stats returns the latency statistics of the run.
func (a *App) Stats() *observability.CaseStats { return a.stats }

// Metrics returns the Prometheus metrics of the run.
func (a *App) Metrics() *observability.Metrics { return a.metrics }

// Shutdown returns the shutdown manager of the run.
func (a *App) Shutdown() *ShutdownManager { return a.shutdown }

// Run runs every selected case once. SIGINT and SIGTERM stop the run after
// the current iteration; the engines are released and the results persisted
// in every case.
func (a *App) Run(ctx context.Context) ([]*bench.Result, error) {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return nil, errors.NewInternalError("app is already running", nil)
	}
	a.running = true
	a.mu.Unlock()
	defer a.close()

	if err := a.checkLibraries(); err != nil {
		return nil, err
	}
	cases, err := bench.Cases(suiteOptions(a.cfg))
	if err != nil {
		return nil, err
	}
	if err := a.initSharedResources(ctx); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	a.shutdown.OnShutdownStart(cancel)
	go a.shutdown.ListenForSignals(ctx)

	boundary := a.boundary
	if boundary == nil {
		boundary = engine.NewBoundary()
	}
	dispatcher, err := bench.NewDispatcher(boundary, a.cfg.Libraries)
	if err != nil {
		return nil, err
	}
	session := bench.NewSession(dispatcher, a.dataRoot, a.cfg.Bench.EnableConstraints)
	runner := bench.NewRunner(session, bench.Options{
		WarmupIterations: a.cfg.Bench.WarmupIterations,
		Iterations:       a.cfg.Bench.Iterations,
		MinTime:          a.cfg.Bench.MinTime,
		Verbose:          a.cfg.Bench.VerboseOutput,
		VeryVerbose:      a.cfg.Bench.VeryVerboseOutput,
	}, a.stats, a.metrics)

	var runID string
	if a.catalog != nil {
		runID, err = a.catalog.StartRun(ctx, results.RunInfo{
			Libraries: a.cfg.Libraries,
			Config:    a.cfg,
			StartedAt: time.Now(),
		})
		if err != nil {
			return nil, err
		}
		runner = runner.WithCatalog(a.catalog, runID)
		a.logger.WithField("run_id", runID).Info("recording results")
	}

	a.logger.WithField("libraries", a.cfg.Libraries).Infof("running %d cases", len(cases))
	out, runErr := bench.NewHarness(session, runner).Run(ctx, cases)
	if a.shutdown.IsShuttingDown() {
		a.logger.WithField("results", len(out)).Warn("shutdown requested, persisting partial results")
	}

	a.report()
	if err := a.finish(context.WithoutCancel(ctx), runID); err != nil && runErr == nil {
		runErr = err
	}
	return out, runErr
}

// checkLibraries rejects engine names that are not registered.
func (a *App) checkLibraries() error {
	if a.boundary != nil {
		return nil
	}
	registered := engine.Registered()
	for _, lib := range a.cfg.Libraries {
		if !slices.Contains(registered, lib) {
			return errors.NewConfigError(errors.CodeUnknownEngine,
				fmt.Sprintf("unknown library %q (registered: %v)", lib, registered))
		}
	}
	return nil
}

// initSharedResources initializes storage, the data root and the results catalog.
func (a *App) initSharedResources(ctx context.Context) error {
	var err error

	switch a.cfg.Storage.Type {
	case "local":
		a.storage, err = storage.NewLocalStorage(a.cfg.Storage.Path)
	case "s3":
		a.storage, err = storage.NewS3Storage(ctx, a.cfg.Storage.S3.Bucket, storage.S3Config{
			Region:   a.cfg.Storage.S3.Region,
			Endpoint: a.cfg.Storage.S3.Endpoint,
			Prefix:   a.cfg.Storage.S3.Prefix,
		})
	}
	if err != nil {
		return errors.NewStorageError(errors.CodeUploadFailed, "failed to initialize storage", err)
	}
	a.logger.WithField("type", a.cfg.Storage.Type).Debug("storage initialized")

	if bucket, prefix, ok := a.cfg.RemoteDataRoot(); ok {
		remote, err := storage.NewS3Storage(ctx, bucket, storage.S3Config{
			Region:   a.cfg.Storage.S3.Region,
			Endpoint: a.cfg.Storage.S3.Endpoint,
			Prefix:   prefix,
		})
		if err != nil {
			return errors.NewStorageError(errors.CodeDownloadFailed, "failed to open data root "+a.cfg.DataRoot, err)
		}
		a.dataRoot = storage.NewRemoteDataRoot(remote, a.cfg.CacheDir)
	} else {
		a.dataRoot, err = storage.NewLocalDataRoot(a.cfg.DataRoot, a.cfg.CacheDir)
		if err != nil {
			return err
		}
	}
	if a.cfg.CacheMaxBytes > 0 {
		if err := a.dataRoot.LimitCache(a.cfg.CacheMaxBytes); err != nil {
			return errors.NewStorageError(errors.CodeDownloadFailed, "failed to open cache "+a.cfg.CacheDir, err)
		}
	}
	a.logger.WithField("data_root", a.cfg.DataRoot).WithField("cache_dir", a.cfg.CacheDir).Info("data root ready")

	if a.cfg.Results.DatabasePath != "" {
		a.catalog, err = results.NewCatalog(a.cfg.Results.DatabasePath)
		if err != nil {
			return err
		}
		a.closeCatalog = sync.OnceValue(a.catalog.Close)
		a.shutdown.RegisterCloser(CloserFunc(a.closeCatalog))
	}
	return nil
}

// report logs the summary statistics of every measured case.
func (a *App) report() {
	if c := a.dataRoot.Cache(); c != nil {
		cs := c.Stats()
		a.logger.WithFields(log.Fields{
			"hits":      cs.Hits,
			"misses":    cs.Misses,
			"evictions": cs.Evictions,
			"bytes":     cs.SizeBytes,
			"capacity":  c.Capacity(),
		}).Info("data cache")
	}
	for _, s := range a.stats.Summaries() {
		a.logger.WithFields(log.Fields{
			"case":     s.Case,
			"count":    s.Count,
			"failures": s.Failures,
			"min":      s.Min,
			"mean":     s.Mean,
			"median":   s.Median,
			"p95":      s.P95,
			"max":      s.Max,
		}).Info("case summary")
	}
}

// finish closes the run in the catalog, writes the metrics file and uploads
// the results database. Every step is attempted; the first error is returned.
func (a *App) finish(ctx context.Context, runID string) error {
	var firstErr error
	keep := func(err error) {
		if err == nil {
			return
		}
		a.logger.Errorf("finishing run: %v", err)
		if firstErr == nil {
			firstErr = err
		}
	}

	if a.catalog != nil && runID != "" {
		keep(a.catalog.FinishRun(ctx, runID, time.Now()))
	}
	if path := a.cfg.Results.MetricsFile; path != "" {
		if err := a.metrics.WriteTextfile(path); err != nil {
			keep(errors.NewResultsError(errors.CodeExportFailed, "failed to write metrics to "+path, err))
		} else {
			a.logger.WithField("path", path).Info("metrics written")
		}
	}
	if a.cfg.Results.Upload && a.catalog != nil && runID != "" {
		keep(a.upload(ctx, runID))
	}
	return firstErr
}

// upload copies the snappy-compressed results database to object storage.
func (a *App) upload(ctx context.Context, runID string) error {
	// the catalog must be closed so the WAL is checkpointed into the file
	if err := a.closeCatalog(); err != nil {
		return err
	}
	compressed := filepath.Join(a.cfg.CacheDir, runID+".db.sz")
	defer os.Remove(compressed)
	if err := storage.CompressFile(a.catalog.Path(), compressed); err != nil {
		return errors.NewResultsError(errors.CodeExportFailed, "failed to compress results database", err)
	}
	key := UploadKey(runID)
	if err := a.storage.Upload(ctx, compressed, key); err != nil {
		return errors.NewStorageError(errors.CodeUploadFailed, "failed to upload results database", err)
	}
	a.logger.WithField("key", key).Info("results uploaded")
	return nil
}

// UploadKey is the object key of the results database of a run.
func UploadKey(runID string) string {
	return resultsPrefix + "/" + runID + ".db.sz"
}

// close releases shared resources.
func (a *App) close() {
	if err := a.shutdown.Close(); err != nil {
		a.logger.Errorf("closing resources: %v", err)
	}
	a.mu.Lock()
	a.running = false
	a.mu.Unlock()
}

func suiteOptions(cfg *config.Config) bench.SuiteOptions {
	s := cfg.Suites
	return bench.SuiteOptions{
		TPCH:              s.TPCH,
		TPCHClustered:     s.TPCHClustered,
		SelectSelectivity: s.SelectSelectivity,
		SelectRandomness:  s.SelectRandomness,
		LiteralQ6:         s.LiteralQ6,
		TPCHSizes:         s.TPCHSizes,
		SweepRows:         s.SweepRows,
		SweepPoints:       s.SweepPoints,
	}
}
