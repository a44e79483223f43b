// Package stack implements StackState, the doubly linked bottom-to-top
// order of tracked surfaces with O(1) neighbour queries.
package stack

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmylchreest/compstack/internal/model"
)

// ErrInvalidPlacement is returned when a surface is placed relative to
// itself or the surface id is None.
var ErrInvalidPlacement = errors.New("invalid placement")

// Entry holds the neighbours of one tracked surface.
type Entry struct {
	Above model.SurfaceID
	Below model.SurfaceID
}

// State is the tracked stacking order. The zero value is not usable; create
// one with New. State is not safe for concurrent use.
type State struct {
	entries map[model.SurfaceID]Entry
	top     model.SurfaceID
	bottom  model.SurfaceID
	logger  *slog.Logger
}

// New creates an empty State.
func New(logger *slog.Logger) *State {
	if logger == nil {
		logger = slog.Default()
	}
	return &State{
		entries: make(map[model.SurfaceID]Entry),
		logger:  logger,
	}
}

// FromSequence builds a State from a bottom-first sequence. If keep is not
// nil only the ids it accepts are entered. Duplicates are skipped.
func FromSequence(seq []model.SurfaceID, keep func(model.SurfaceID) bool, logger *slog.Logger) *State {
	s := New(logger)
	s.Reset(seq, keep)
	return s
}

// Reset replaces the whole order with seq (bottom-first), filtered by keep.
func (s *State) Reset(seq []model.SurfaceID, keep func(model.SurfaceID) bool) {
	s.entries = make(map[model.SurfaceID]Entry, len(seq))
	s.top, s.bottom = model.None, model.None
	for _, id := range seq {
		if id == model.None || (keep != nil && !keep(id)) {
			continue
		}
		if _, dup := s.entries[id]; dup {
			s.logger.Warn("duplicate surface in sequence", "surface", id)
			continue
		}
		s.linkBelow(id, model.None)
	}
}

// Clone returns an independent copy.
func (s *State) Clone() *State {
	c := &State{
		entries: make(map[model.SurfaceID]Entry, len(s.entries)),
		top:     s.top,
		bottom:  s.bottom,
		logger:  s.logger,
	}
	for id, e := range s.entries {
		c.entries[id] = e
	}
	return c
}

// Len returns the number of tracked surfaces.
func (s *State) Len() int { return len(s.entries) }

// Contains reports whether id is tracked.
func (s *State) Contains(id model.SurfaceID) bool {
	_, ok := s.entries[id]
	return ok
}

// Top returns the topmost surface, None if empty.
func (s *State) Top() model.SurfaceID { return s.top }

// Bottom returns the bottommost surface, None if empty.
func (s *State) Bottom() model.SurfaceID { return s.bottom }

// Neighbors returns the surfaces directly above and below id.
func (s *State) Neighbors(id model.SurfaceID) (above, below model.SurfaceID, ok bool) {
	e, ok := s.entries[id]
	return e.Above, e.Below, ok
}

// Insert adds id directly below above, or at the top if above is None.
// Inserting a tracked id moves it. An unknown above is treated as None.
func (s *State) Insert(id, above model.SurfaceID) error {
	if s.Contains(id) {
		s.logger.Warn("inserting an already tracked surface", "surface", id)
	}
	return s.placeBelow(id, above)
}

// Move relocates id directly below above, or to the top if above is None.
// Moving an untracked id inserts it.
func (s *State) Move(id, above model.SurfaceID) error {
	if !s.Contains(id) && id != model.None {
		s.logger.Warn("moving an untracked surface", "surface", id)
	}
	return s.placeBelow(id, above)
}

// PlaceAbove puts id directly above below, or at the bottom if below is
// None. This is the meaning of a configure notification's sibling.
func (s *State) PlaceAbove(id, below model.SurfaceID) error {
	if id == model.None || id == below {
		return fmt.Errorf("%w: %s above %s", ErrInvalidPlacement, id, below)
	}
	if !s.Contains(id) {
		s.logger.Warn("configuring an untracked surface", "surface", id)
	}
	if below != model.None && !s.Contains(below) {
		s.logger.Error("placing surface above unknown sibling", "surface", id, "sibling", below)
		below = model.None
	}

	e, exists := s.entries[id]
	if exists {
		if len(s.entries) == 1 {
			return nil
		}
		if e.Below == below && (below != model.None || s.bottom == id) {
			return nil
		}
		s.unlink(id)
	}
	s.linkAbove(id, below)
	return nil
}

// Remove drops id, keeping the relative order of the rest.
func (s *State) Remove(id model.SurfaceID) bool {
	if !s.Contains(id) {
		s.logger.Warn("removing an untracked surface", "surface", id)
		return false
	}
	s.unlink(id)
	return true
}

// Sequence returns the order bottom-first.
func (s *State) Sequence() []model.SurfaceID {
	seq := make([]model.SurfaceID, 0, len(s.entries))
	for id := s.bottom; id != model.None; id = s.entries[id].Above {
		seq = append(seq, id)
		if len(seq) > len(s.entries) {
			// A cycle; Validate reports it properly.
			break
		}
	}
	return seq
}

func (s *State) placeBelow(id, above model.SurfaceID) error {
	if id == model.None || id == above {
		return fmt.Errorf("%w: %s below %s", ErrInvalidPlacement, id, above)
	}
	if above != model.None && !s.Contains(above) {
		s.logger.Error("placing surface below unknown sibling", "surface", id, "sibling", above)
		above = model.None
	}

	e, exists := s.entries[id]
	if exists {
		if len(s.entries) == 1 {
			return nil
		}
		if e.Above == above && (above != model.None || s.top == id) {
			return nil
		}
		s.unlink(id)
	}
	s.linkBelow(id, above)
	return nil
}

// unlink detaches id from its neighbours and forgets it.
func (s *State) unlink(id model.SurfaceID) {
	e := s.entries[id]
	if e.Above != model.None {
		a := s.entries[e.Above]
		a.Below = e.Below
		s.entries[e.Above] = a
	} else {
		s.top = e.Below
	}
	if e.Below != model.None {
		b := s.entries[e.Below]
		b.Above = e.Above
		s.entries[e.Below] = b
	} else {
		s.bottom = e.Above
	}
	delete(s.entries, id)
}

// linkBelow inserts an untracked id directly below above (None: top).
func (s *State) linkBelow(id, above model.SurfaceID) {
	var e Entry
	if above == model.None {
		e = Entry{Below: s.top}
		if s.top != model.None {
			t := s.entries[s.top]
			t.Above = id
			s.entries[s.top] = t
		} else {
			s.bottom = id
		}
		s.top = id
	} else {
		a := s.entries[above]
		e = Entry{Above: above, Below: a.Below}
		if a.Below != model.None {
			b := s.entries[a.Below]
			b.Above = id
			s.entries[a.Below] = b
		} else {
			s.bottom = id
		}
		a.Below = id
		s.entries[above] = a
	}
	s.entries[id] = e
}

// linkAbove inserts an untracked id directly above below (None: bottom).
func (s *State) linkAbove(id, below model.SurfaceID) {
	var e Entry
	if below == model.None {
		e = Entry{Above: s.bottom}
		if s.bottom != model.None {
			b := s.entries[s.bottom]
			b.Below = id
			s.entries[s.bottom] = b
		} else {
			s.top = id
		}
		s.bottom = id
	} else {
		b := s.entries[below]
		e = Entry{Below: below, Above: b.Above}
		if b.Above != model.None {
			a := s.entries[b.Above]
			a.Below = id
			s.entries[b.Above] = a
		} else {
			s.top = id
		}
		b.Above = id
		s.entries[below] = b
	}
	s.entries[id] = e
}
