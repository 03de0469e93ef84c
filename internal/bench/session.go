package bench

import (
	"context"
	"fmt"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"github.com/arkilian/enginebench/internal/errors"
	"github.com/arkilian/enginebench/internal/storage"
	"github.com/arkilian/enginebench/pkg/expr"
)

// Identity names the tables currently installed in the storage engine.
type Identity struct {
	Dataset string
	Size    int
	Param   float64
}

func (id Identity) String() string {
	if id.Param != 0 {
		return fmt.Sprintf("%s/%d/%g", id.Dataset, id.Size, id.Param)
	}
	return fmt.Sprintf("%s/%d", id.Dataset, id.Size)
}

// Dataset is a set of tables a case runs against.
type Dataset interface {
	Identity() Identity
	// Tables lists every table Install may create. They are dropped before a
	// dataset of another identity is installed.
	Tables() []expr.Symbol
	// Install creates and loads the tables.
	Install(ctx context.Context, s *Session) error
}

// Refresher is implemented by datasets that can rebuild part of their tables
// when the installed identity differs from theirs only in Param.
type Refresher interface {
	Refresh(ctx context.Context, s *Session) error
}

// DataSource resolves a data file key to a readable local path.
type DataSource interface {
	Path(ctx context.Context, key string) (string, error)
}

// Prefetcher is implemented by data sources that make several keys available
// in one batch.
type Prefetcher interface {
	Prefetch(ctx context.Context, keys ...string) (*storage.Resolved, error)
}

// Session is the mutable state shared by the cases of one run: the installed
// dataset identity and the tables to drop when it changes. A session is used
// by one case at a time; concurrent use is rejected.
type Session struct {
	dispatcher  *Dispatcher
	data        DataSource
	constraints bool
	logger      *log.Entry

	busy      atomic.Bool
	installed bool // tables of current may exist in the storage engine
	ready     bool // current was installed without error
	current   Identity
	tables    []expr.Symbol
}

// NewSession returns a session with no dataset installed.
func NewSession(d *Dispatcher, data DataSource, enableConstraints bool) *Session {
	return &Session{
		dispatcher:  d,
		data:        data,
		constraints: enableConstraints,
		logger:      log.WithField("component", "session"),
	}
}

// Dispatcher returns the dispatcher of the run.
func (s *Session) Dispatcher() *Dispatcher { return s.dispatcher }

// Data returns the data file resolver.
func (s *Session) Data() DataSource { return s.data }

// ConstraintsEnabled reports whether datasets should declare their keys.
func (s *Session) ConstraintsEnabled() bool { return s.constraints }

// Current returns the installed identity, if any.
func (s *Session) Current() (Identity, bool) { return s.current, s.ready }

func (s *Session) acquire() error {
	if !s.busy.CompareAndSwap(false, true) {
		return errors.NewEngineError(errors.CodeReentrant, "session is already running a case", nil)
	}
	return nil
}

func (s *Session) release() { s.busy.Store(false) }

// Use makes ds the installed dataset. Nothing is issued when ds is already
// installed. Otherwise the tables of the previous dataset are dropped before
// any table of ds is created, unless ds can refresh itself in place.
func (s *Session) Use(ctx context.Context, ds Dataset) error {
	id := ds.Identity()
	if s.ready && s.current == id {
		return nil
	}

	logger := s.logger.WithField("dataset", id.String())
	if r, ok := ds.(Refresher); ok && s.ready &&
		s.current.Dataset == id.Dataset && s.current.Size == id.Size {
		logger.Info("refreshing dataset")
		s.ready = false
		s.current = id
		if err := r.Refresh(ctx, s); err != nil {
			return err
		}
		s.ready = true
		return nil
	}

	s.Reset()
	logger.Info("installing dataset")
	s.installed = true
	s.current = id
	s.tables = ds.Tables()
	if err := ds.Install(ctx, s); err != nil {
		return err
	}
	s.ready = true
	return nil
}

// Reset drops every table of the installed dataset.
func (s *Session) Reset() {
	if !s.installed {
		return
	}
	for _, t := range s.tables {
		s.Storage(expr.New(expr.DropTable, t))
	}
	s.installed = false
	s.ready = false
	s.current = Identity{}
	s.tables = nil
}

// Storage evaluates a DDL expression in the storage engine. A failure is
// logged and returned; callers building a dataset carry on regardless.
func (s *Session) Storage(e expr.Expression) expr.Expression {
	out := s.dispatcher.EvaluateStorage(e)
	if expr.IsError(out) {
		s.logger.Errorf("Error: %s", out)
	}
	return out
}
