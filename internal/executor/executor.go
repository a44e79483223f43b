// Package executor sends planned restacking batches to the display server
// and tracks whether the tracked stacking order can still be trusted.
package executor

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmylchreest/compstack/internal/model"
)

// ErrStaleState means the tracked order no longer matches the server and a
// resync is required before the next plan.
var ErrStaleState = errors.New("stacking state is stale")

// Request is an issued restack request whose outcome is collected later.
type Request interface {
	Check() error
}

// Server issues one "configure Below with sibling Above, stack mode below"
// request per op, or "stack mode above" without a sibling when Above is
// None. Restack must not wait for the reply.
type Server interface {
	Restack(op model.StackOp) Request
}

// FailedOp pairs an op with the error the server returned for it.
type FailedOp struct {
	Op  model.StackOp
	Err error
}

// BatchError reports a batch in which at least one request failed. The
// whole batch is considered failed.
type BatchError struct {
	Total  int
	Failed []FailedOp
}

func (e *BatchError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d of %d restack requests failed", ErrStaleState, len(e.Failed), e.Total)
	for _, f := range e.Failed {
		fmt.Fprintf(&b, "; %s: %v", f.Op, f.Err)
	}
	return b.String()
}

// Unwrap exposes ErrStaleState and every request error.
func (e *BatchError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failed)+1)
	errs = append(errs, ErrStaleState)
	for _, f := range e.Failed {
		errs = append(errs, f.Err)
	}
	return errs
}

// Executor is the only writer of the server's stacking order.
type Executor struct {
	server Server
	dirty  bool
	logger *slog.Logger
}

// New creates an Executor for server.
func New(server Server, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		server: server,
		logger: logger,
	}
}

// Dirty reports whether a resync is required before the next plan.
func (e *Executor) Dirty() bool { return e.dirty }

// MarkDirty forces a resync before the next plan.
func (e *Executor) MarkDirty() { e.dirty = true }

// Clear records that the tracked order was resynchronised.
func (e *Executor) Clear() { e.dirty = false }

// Execute sends every op, then collects every outcome. Any failure fails
// the whole batch: no partial success is assumed and the executor turns
// dirty.
func (e *Executor) Execute(ops []model.StackOp) error {
	if e.dirty {
		return fmt.Errorf("failed to execute restack batch: %w", ErrStaleState)
	}
	if len(ops) == 0 {
		return nil
	}

	reqs := make([]Request, len(ops))
	for i, op := range ops {
		reqs[i] = e.server.Restack(op)
	}

	var failed []FailedOp
	for i, req := range reqs {
		if err := req.Check(); err != nil {
			failed = append(failed, FailedOp{Op: ops[i], Err: err})
		}
	}

	if len(failed) > 0 {
		e.dirty = true
		e.logger.Warn("restack batch failed", "ops", len(ops), "failed", len(failed))
		return &BatchError{Total: len(ops), Failed: failed}
	}

	e.logger.Debug("restacked", "ops", len(ops))
	return nil
}
