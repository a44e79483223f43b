// Package planner computes short sequences of pairwise restacking
// operations that turn the current stacking order into one containing a
// desired order.
//
// Two strategies are evaluated. The conservative one only ever moves the
// surfaces named in the desired order. The aggressive one additionally
// floats foreign surfaces out of the way, sending them to the bottom of the
// desired run, and delays surfaces that will be visited again. Neither wins
// on all permutations, so Plan keeps whichever needs fewer operations.
package planner

import (
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/jmylchreest/compstack/internal/model"
	"github.com/jmylchreest/compstack/internal/stack"
)

// ErrUnknownSurface is attached to warnings about desired surfaces that are
// not tracked. Planning never fails because of them; they are dropped.
var ErrUnknownSurface = errors.New("unknown surface in desired order")

// Result is the outcome of one Plan call.
type Result struct {
	// Desired is the order that was actually planned, unknown and
	// duplicate surfaces removed.
	Desired []model.SurfaceID
	// Dropped lists the surfaces removed from the desired order.
	Dropped []model.SurfaceID
	Ops     []model.StackOp
	// State is the stacking order after Ops; the input state is untouched.
	State    *stack.State
	Strategy model.Strategy
}

// Planner plans restacking batches and keeps per-strategy statistics.
// Plan is safe to call from one goroutine while another reads Stats.
type Planner struct {
	logger *slog.Logger

	mu    sync.Mutex
	stats map[model.Strategy]Stats
}

// New creates a Planner.
func New(logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{
		logger: logger,
		stats:  make(map[model.Strategy]Stats),
	}
}

// Plan computes the operations that make state contain desired (bottom-first)
// as a contiguous run, without modifying state.
func (p *Planner) Plan(desired []model.SurfaceID, state *stack.State) Result {
	res := Result{Strategy: model.StrategyNone}

	seen := make(map[model.SurfaceID]bool, len(desired))
	for _, id := range desired {
		switch {
		case !state.Contains(id):
			p.logger.Warn("ignoring unknown surface", "surface", id, "error", ErrUnknownSurface)
			res.Dropped = append(res.Dropped, id)
		case seen[id]:
			p.logger.Warn("ignoring duplicate surface in desired order", "surface", id)
			res.Dropped = append(res.Dropped, id)
		default:
			seen[id] = true
			res.Desired = append(res.Desired, id)
		}
	}

	if len(res.Desired) < 2 {
		res.State = state.Clone()
		return res
	}

	res.Ops, res.State = Aggressive(res.Desired, state, p.logger)
	res.Strategy = model.StrategyAggressive

	if len(res.Ops) > 1 {
		conOps, conState := Conservative(res.Desired, state, p.logger)
		if len(conOps) < len(res.Ops) {
			res.Ops, res.State = conOps, conState
			res.Strategy = model.StrategyConservative
		}
	}

	p.record(res)
	return res
}

func (p *Planner) record(res Result) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.stats[res.Strategy]
	s.Plans++
	s.Windows += len(res.Desired)
	s.Ops += len(res.Ops)
	s.Duty += float64(len(res.Ops)) / float64(len(res.Desired))
	p.stats[res.Strategy] = s
}

// Conservative plans by moving only the surfaces in desired. desired must
// consist of distinct surfaces tracked by state.
func Conservative(desired []model.SurfaceID, state *stack.State, logger *slog.Logger) ([]model.StackOp, *stack.State) {
	if logger == nil {
		logger = slog.Default()
	}
	w := newWork(state)
	if len(desired) < 2 {
		return nil, w.state(logger)
	}
	ops := generate(desired, false, w)
	return ops, w.state(logger)
}

// Aggressive plans by also floating foreign surfaces out of the way. When
// desired covers every tracked surface the naive finder is tried as well.
func Aggressive(desired []model.SurfaceID, state *stack.State, logger *slog.Logger) ([]model.StackOp, *stack.State) {
	if logger == nil {
		logger = slog.Default()
	}
	w := newWork(state)
	if len(desired) < 2 {
		return nil, w.state(logger)
	}

	var naive []model.StackOp
	if len(desired) == state.Len() {
		naive = naiveOps(desired, state.Sequence())
	}

	ops := generate(desired, true, w)
	if len(naive) > 0 && len(naive) < len(ops) {
		ops = naive
	}
	return ops, w.state(logger)
}

// generate walks adjacent desired pairs top-down. After each step the
// working order agrees with desired from the top down to newAbove.
func generate(desired []model.SurfaceID, aggressive bool, w *work) []model.StackOp {
	var (
		ops           []model.StackOp
		bottomWindows []model.SurfaceID
		pending       = make(map[model.SurfaceID]bool)
		wanted        map[model.SurfaceID]bool
		bottomWindow  = desired[0]
		newAbove      = desired[len(desired)-1]
		forceFallback bool
	)
	if aggressive {
		wanted = make(map[model.SurfaceID]bool, len(desired))
		for _, id := range desired {
			wanted[id] = true
		}
	}

	for i := len(desired) - 2; i >= 0; {
		newBetween := desired[i]
		oldAbove := w.above(newBetween)

		if oldAbove != newAbove {
			oldBetween := w.below(newAbove)
			if aggressive && oldBetween != model.None && !pending[newBetween] {
				if !wanted[oldBetween] {
					// Foreign surface in the way: park it under the run.
					w.float(oldBetween)
					bottomWindows = append(bottomWindows, oldBetween)
					continue
				}
				if !forceFallback {
					// Wanted further down; it gets its op when visited.
					w.float(oldBetween)
					pending[oldBetween] = true
					forceFallback = true
					continue
				}
			}

			ops = append(ops, model.StackOp{Below: newBetween, Above: newAbove})
			w.float(newBetween)
			w.land(newBetween, newAbove)
		}

		newAbove = newBetween
		forceFallback = false
		i--
	}

	for _, id := range bottomWindows {
		ops = append(ops, model.StackOp{Below: id, Above: bottomWindow})
		w.land(id, bottomWindow)
		bottomWindow = id
	}
	return ops
}

// naiveOps finds operations turning old into desired when both hold the same
// surfaces, fixing positions bottom-up. moved keeps a surface from being
// displaced twice for the same position.
func naiveOps(desired, old []model.SurfaceID) []model.StackOp {
	if len(desired) != len(old) {
		return nil
	}
	list := slices.Clone(old)
	moved := make(map[model.SurfaceID]bool)
	var ops []model.StackOp

	aboveOf := func(i int) model.SurfaceID {
		if i < len(list)-1 {
			return list[i+1]
		}
		return model.None
	}

	for i := 0; i < len(list); {
		want, have := desired[i], list[i]
		if want != have && !moved[have] {
			to := indexFrom(desired, have, i)
			if to < 0 {
				return nil
			}
			list = move(list, i, to)
			moved[have] = true
			ops = append(ops, model.StackOp{Below: have, Above: aboveOf(to)})
			continue
		} else if want != have {
			from := indexFrom(list, want, i)
			if from < 0 {
				return nil
			}
			list = move(list, from, i)
			ops = append(ops, model.StackOp{Below: want, Above: aboveOf(i)})
		}
		clear(moved)
		i++
	}
	return ops
}

func indexFrom(s []model.SurfaceID, id model.SurfaceID, from int) int {
	if i := slices.Index(s[from:], id); i >= 0 {
		return from + i
	}
	return -1
}

// move relocates s[from] so that it ends up at index to.
func move(s []model.SurfaceID, from, to int) []model.SurfaceID {
	if from == to {
		return s
	}
	id := s[from]
	s = slices.Delete(s, from, from+1)
	return slices.Insert(s, to, id)
}

// Apply replays ops on state the way the server would execute them.
func Apply(state *stack.State, ops []model.StackOp) error {
	for _, op := range ops {
		if err := state.Move(op.Below, op.Above); err != nil {
			return err
		}
	}
	return nil
}
