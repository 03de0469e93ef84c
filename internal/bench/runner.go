package bench

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/arkilian/enginebench/internal/observability"
	"github.com/arkilian/enginebench/internal/results"
	"github.com/arkilian/enginebench/pkg/expr"
)

// State is the progress of a case.
type State int

const (
	Uninitialized State = iota
	DatasetReady
	Warming
	Measuring
	StoppedOnError
	Completed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case DatasetReady:
		return "dataset-ready"
	case Warming:
		return "warming"
	case Measuring:
		return "measuring"
	case StoppedOnError:
		return "stopped-on-error"
	case Completed:
		return "completed"
	default:
		return "unknown"
	}
}

// Case is one measured query. Template is never sent to an engine itself:
// every evaluation receives a fresh clone sharing its span memory, so
// Template must stay alive and unmodified while the case runs.
type Case struct {
	Name     string
	Dataset  Dataset // nil when Template carries its own data
	Template *expr.Complex
}

// Options control warmup and measurement.
type Options struct {
	WarmupIterations int
	Iterations       int
	// MinTime keeps the measured loop running after Iterations until this
	// much time has been spent measuring.
	MinTime time.Duration
	// Verbose evaluates the query once before warmup and logs the output.
	// That evaluation counts as one warmup iteration.
	Verbose bool
	// VeryVerbose logs results and errors with their span contents instead
	// of span descriptors.
	VeryVerbose bool
}

// Result is the outcome of a case.
type Result struct {
	Case         string
	Dataset      Identity
	State        State
	Failed       bool
	Interrupted  bool
	Warmups      int
	ErrorPayload string
	Samples      []time.Duration
}

func (res *Result) enter(logger *log.Entry, s State) {
	logger.Debugf("%s -> %s", res.State, s)
	res.State = s
}

// Runner runs cases one at a time against a session.
type Runner struct {
	session *Session
	opts    Options
	stats   *observability.CaseStats
	metrics *observability.Metrics
	catalog results.Catalog
	runID   string
	logger  *log.Entry
}

// NewRunner returns a runner. stats and metrics may be nil.
func NewRunner(session *Session, opts Options, stats *observability.CaseStats, metrics *observability.Metrics) *Runner {
	return &Runner{
		session: session,
		opts:    opts,
		stats:   stats,
		metrics: metrics,
		logger:  log.WithField("component", "runner"),
	}
}

// WithCatalog makes the runner record every case under runID.
func (r *Runner) WithCatalog(c results.Catalog, runID string) *Runner {
	r.catalog = c
	r.runID = runID
	return r
}

// Run installs the case's dataset, warms up and measures. An engine failure
// is not an error: it stops the case and is reported in the Result. Errors
// are returned for a dataset that could not be installed, for concurrent use
// of the session and for cancellation of ctx.
func (r *Runner) Run(ctx context.Context, c Case) (*Result, error) {
	if err := r.session.acquire(); err != nil {
		return nil, err
	}
	defer r.session.release()

	res := &Result{Case: c.Name, State: Uninitialized}
	logger := r.logger.WithField("case", c.Name)
	if c.Dataset != nil {
		res.Dataset = c.Dataset.Identity()
		logger = logger.WithField("dataset", res.Dataset.Dataset).WithField("size", res.Dataset.Size)
		if err := r.session.Use(ctx, c.Dataset); err != nil {
			return res, err
		}
	}
	res.enter(logger, DatasetReady)

	res.enter(logger, Warming)
	if r.opts.Verbose {
		out := r.evaluate(c.Template)
		res.Warmups++
		if Failed(out) {
			r.fail(logger, res, out)
		} else {
			logger.Infof("%s output = %s", c.Name, r.render(out))
		}
	}
	for ; !res.Failed && res.Warmups < r.opts.WarmupIterations; res.Warmups++ {
		if ctx.Err() != nil {
			break
		}
		out := r.evaluate(c.Template)
		if r.metrics != nil {
			r.metrics.IncWarmup(c.Name)
		}
		if Failed(out) {
			r.fail(logger, res, out)
		}
	}

	if !res.Failed {
		res.enter(logger, Measuring)
		r.measure(ctx, logger, c, res)
	}

	if res.Failed {
		res.enter(logger, StoppedOnError)
	} else {
		res.enter(logger, Completed)
	}
	res.Interrupted = ctx.Err() != nil
	r.report(ctx, logger, res)
	if res.Interrupted {
		return res, ctx.Err()
	}
	return res, nil
}

func (r *Runner) measure(ctx context.Context, logger *log.Entry, c Case, res *Result) {
	var spent time.Duration
	for i := 0; i < r.opts.Iterations || spent < r.opts.MinTime; i++ {
		if ctx.Err() != nil {
			return
		}
		start := time.Now()
		out := r.evaluate(c.Template)
		failed := Failed(out)
		elapsed := time.Since(start)
		if failed {
			r.fail(logger, res, out)
			return
		}
		spent += elapsed
		res.Samples = append(res.Samples, elapsed)
		if r.stats != nil {
			r.stats.Record(c.Name, elapsed)
		}
		if r.metrics != nil {
			r.metrics.ObserveIteration(c.Name, elapsed)
		}
	}
}

func (r *Runner) evaluate(template *expr.Complex) expr.Expression {
	return r.session.dispatcher.Evaluate(expr.CloneForTesting(template))
}

// fail marks the case failed and logs the result once.
func (r *Runner) fail(logger *log.Entry, res *Result, out expr.Expression) {
	res.Failed = true
	res.ErrorPayload = r.render(out)
	logger.Errorf("%s Error: %s", res.Case, res.ErrorPayload)
	if r.stats != nil {
		r.stats.RecordFailure(res.Case)
	}
	if r.metrics != nil {
		r.metrics.IncFailure(res.Case)
	}
}

func (r *Runner) render(out expr.Expression) string {
	if r.opts.VeryVerbose {
		return out.String()
	}
	return expr.Debug(out).String()
}

func (r *Runner) report(ctx context.Context, logger *log.Entry, res *Result) {
	sum := observability.Summarize(res.Samples)
	logger.WithFields(log.Fields{
		"state":      res.State.String(),
		"warmups":    res.Warmups,
		"iterations": sum.Count,
		"min":        sum.Min,
		"mean":       sum.Mean,
		"median":     sum.Median,
		"p95":        sum.P95,
		"max":        sum.Max,
	}).Info("case finished")

	if r.catalog == nil {
		return
	}
	rec := &results.CaseRecord{
		Name:             res.Case,
		Dataset:          res.Dataset.Dataset,
		Size:             res.Dataset.Size,
		Param:            res.Dataset.Param,
		State:            res.State.String(),
		Failed:           res.Failed,
		WarmupIterations: res.Warmups,
		ErrorPayload:     res.ErrorPayload,
		Iterations:       res.Samples,
	}
	if rec.Dataset == "" {
		rec.Dataset = "literal"
	}
	// the record is written even when ctx was cancelled mid-case
	if err := r.catalog.RecordCase(context.WithoutCancel(ctx), r.runID, rec); err != nil {
		logger.Warnf("failed to record case: %v", err)
	}
}
