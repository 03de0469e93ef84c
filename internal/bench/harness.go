package bench

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"

	"github.com/arkilian/enginebench/pkg/expr"
)

// Harness runs a list of cases in order and releases the engines afterwards.
type Harness struct {
	session *Session
	runner  *Runner
	logger  *log.Entry
}

// NewHarness returns a harness running cases through runner.
func NewHarness(session *Session, runner *Runner) *Harness {
	return &Harness{
		session: session,
		runner:  runner,
		logger:  log.WithField("component", "harness"),
	}
}

// Run runs every case. A case whose dataset cannot be installed is logged and
// skipped. Cancelling ctx stops after the current iteration. The engines are
// released in every case.
func (h *Harness) Run(ctx context.Context, cases []Case) ([]*Result, error) {
	defer h.teardown()

	var out []*Result
	for _, c := range cases {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		res, err := h.runner.Run(ctx, c)
		if res != nil {
			out = append(out, res)
		}
		switch {
		case err == nil:
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			h.logger.Warnf("run interrupted during %s", c.Name)
			return out, err
		default:
			h.logger.WithField("case", c.Name).Errorf("case skipped: %v", err)
		}
	}
	return out, nil
}

func (h *Harness) teardown() {
	if out := h.session.dispatcher.Release(); expr.IsError(out) {
		h.logger.Errorf("Error: %s", out)
	}
}
