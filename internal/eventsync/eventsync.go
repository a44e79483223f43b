// Package eventsync keeps a StackState consistent with the server by
// replaying structural notifications, and resynchronises it from a tree
// query when the tracked view can no longer be trusted.
package eventsync

import (
	"fmt"
	"log/slog"

	"github.com/jmylchreest/compstack/internal/model"
	"github.com/jmylchreest/compstack/internal/stack"
)

// Querier returns the server's current children of root, bottom-first,
// together with the serial of the query request. Notifications with a lower
// serial were generated before the answer and are obsolete.
type Querier interface {
	QueryStack() ([]model.SurfaceID, uint64, error)
}

// EventSource yields already queued notifications without blocking.
type EventSource interface {
	Poll() (model.Event, bool)
}

// Synchronizer translates notifications 1:1 into StackState mutations.
type Synchronizer struct {
	state  *stack.State
	root   model.SurfaceID
	cutoff uint64
	ignore func(model.SurfaceID) bool
	logger *slog.Logger
}

// New creates a Synchronizer for the children of root.
func New(state *stack.State, root model.SurfaceID, logger *slog.Logger) *Synchronizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synchronizer{
		state:  state,
		root:   root,
		logger: logger,
	}
}

// SetIgnore installs a predicate for surfaces that must never be tracked,
// such as the compositor's own overlay.
func (s *Synchronizer) SetIgnore(fn func(model.SurfaceID) bool) {
	s.ignore = fn
}

// State returns the synchronised StackState.
func (s *Synchronizer) State() *stack.State {
	return s.state
}

// Cutoff returns the serial below which notifications are ignored, 0 if none.
func (s *Synchronizer) Cutoff() uint64 {
	return s.cutoff
}

func (s *Synchronizer) ignored(id model.SurfaceID) bool {
	return s.ignore != nil && s.ignore(id)
}

// Handle applies one notification. It reports whether the notification
// changed the tracked state's membership or order.
func (s *Synchronizer) Handle(ev model.Event) bool {
	if ev.Serial < s.cutoff {
		s.logger.Debug("ignoring obsolete event", "kind", ev.Kind, "surface", ev.Window,
			"serial", ev.Serial, "cutoff", s.cutoff)
		return false
	}
	s.cutoff = 0

	switch ev.Kind {
	case model.EventCreated:
		if s.ignored(ev.Window) {
			return false
		}
		// New windows are created on top unless the server says otherwise.
		return s.apply(ev, s.state.Insert(ev.Window, ev.Sibling))
	case model.EventDestroyed:
		return s.state.Remove(ev.Window)
	case model.EventConfigured:
		if !s.state.Contains(ev.Window) && s.ignored(ev.Window) {
			return false
		}
		// The configure sibling is the window's new lower neighbour.
		return s.apply(ev, s.state.PlaceAbove(ev.Window, ev.Sibling))
	case model.EventReparented:
		if ev.Parent != s.root {
			if !s.state.Contains(ev.Window) {
				return false
			}
			return s.state.Remove(ev.Window)
		}
		if s.state.Contains(ev.Window) || s.ignored(ev.Window) {
			return false
		}
		return s.apply(ev, s.state.Insert(ev.Window, model.None))
	default:
		return false
	}
}

func (s *Synchronizer) apply(ev model.Event, err error) bool {
	if err != nil {
		s.logger.Error("failed to apply event", "kind", ev.Kind, "surface", ev.Window,
			"sibling", ev.Sibling, "error", err)
		return false
	}
	return true
}

// Drain handles every notification already queued in src. It reports
// whether any changed the tracked order and returns the surfaces destroyed
// meanwhile, so a plan is not made against windows that no longer exist.
func (s *Synchronizer) Drain(src EventSource) (changed bool, destroyed []model.SurfaceID) {
	for {
		ev, ok := src.Poll()
		if !ok {
			return changed, destroyed
		}
		if !s.Handle(ev) {
			continue
		}
		changed = true
		if ev.Kind == model.EventDestroyed {
			destroyed = append(destroyed, ev.Window)
		}
	}
}

// Resync replaces the tracked order with the server's. If subset is not
// nil only those surfaces are kept. Notifications older than the query are
// ignored afterwards because the answer already reflects them.
func (s *Synchronizer) Resync(q Querier, subset []model.SurfaceID) error {
	order, serial, err := q.QueryStack()
	if err != nil {
		return fmt.Errorf("failed to query stacking order: %w", err)
	}

	var only map[model.SurfaceID]bool
	if subset != nil {
		only = make(map[model.SurfaceID]bool, len(subset))
		for _, id := range subset {
			only[id] = true
		}
	}
	s.state.Reset(order, func(id model.SurfaceID) bool {
		if s.ignored(id) {
			return false
		}
		return only == nil || only[id]
	})
	s.cutoff = serial

	s.logger.Debug("resynchronised stacking order", "surfaces", s.state.Len(), "cutoff", serial)
	return nil
}
