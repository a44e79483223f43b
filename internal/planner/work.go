package planner

import (
	"log/slog"

	"github.com/jmylchreest/compstack/internal/model"
	"github.com/jmylchreest/compstack/internal/stack"
)

// work is the planner's scratch copy of the stacking order. Unlike
// stack.State it can float a surface out of the order while keeping it
// known, so it can be reinserted later without being counted twice.
type work struct {
	entries  map[model.SurfaceID]stack.Entry
	floating map[model.SurfaceID]bool
	top      model.SurfaceID
	bottom   model.SurfaceID
}

func newWork(s *stack.State) *work {
	w := &work{
		entries:  make(map[model.SurfaceID]stack.Entry, s.Len()),
		floating: make(map[model.SurfaceID]bool),
	}
	below := model.None
	for _, id := range s.Sequence() {
		w.entries[id] = stack.Entry{Below: below}
		if below != model.None {
			e := w.entries[below]
			e.Above = id
			w.entries[below] = e
		} else {
			w.bottom = id
		}
		below = id
	}
	w.top = below
	return w
}

func (w *work) above(id model.SurfaceID) model.SurfaceID { return w.entries[id].Above }
func (w *work) below(id model.SurfaceID) model.SurfaceID { return w.entries[id].Below }

// float detaches id from its neighbours. Floating an already floating
// surface is a no-op.
func (w *work) float(id model.SurfaceID) {
	if w.floating[id] {
		return
	}
	e := w.entries[id]
	if e.Below != model.None {
		b := w.entries[e.Below]
		b.Above = e.Above
		w.entries[e.Below] = b
	} else {
		w.bottom = e.Above
	}
	if e.Above != model.None {
		a := w.entries[e.Above]
		a.Below = e.Below
		w.entries[e.Above] = a
	} else {
		w.top = e.Below
	}
	w.entries[id] = stack.Entry{}
	w.floating[id] = true
}

// land reinserts a floating id directly below above, which must be linked.
func (w *work) land(id, above model.SurfaceID) {
	delete(w.floating, id)
	a := w.entries[above]
	below := a.Below
	a.Below = id
	w.entries[above] = a
	if below != model.None {
		b := w.entries[below]
		b.Above = id
		w.entries[below] = b
	} else {
		w.bottom = id
	}
	w.entries[id] = stack.Entry{Above: above, Below: below}
}

func (w *work) sequence() []model.SurfaceID {
	seq := make([]model.SurfaceID, 0, len(w.entries))
	for id := w.bottom; id != model.None && len(seq) <= len(w.entries); id = w.entries[id].Above {
		seq = append(seq, id)
	}
	return seq
}

func (w *work) state(logger *slog.Logger) *stack.State {
	if len(w.floating) > 0 {
		logger.Error("planner left surfaces floating", "count", len(w.floating))
	}
	return stack.FromSequence(w.sequence(), nil, logger)
}
