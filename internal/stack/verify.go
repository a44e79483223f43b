package stack

import (
	"errors"
	"fmt"

	"github.com/jmylchreest/compstack/internal/model"
)

// ErrMalformedState marks an internal invariant violation of a State.
var ErrMalformedState = errors.New("malformed stacking state")

// VerifyError describes the first inconsistency Verify or Validate found.
type VerifyError struct {
	Reason string
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("%s: %s", ErrMalformedState, e.Reason)
}

// Unwrap lets errors.Is match ErrMalformedState.
func (e *VerifyError) Unwrap() error {
	return ErrMalformedState
}

func malformed(format string, args ...any) error {
	return &VerifyError{Reason: fmt.Sprintf(format, args...)}
}

// Verify checks that the state holds exactly expected (bottom-first), with
// every link and both sentinels matching. It walks the whole list and is
// meant for tests and debug assertions.
func (s *State) Verify(expected []model.SurfaceID) error {
	rest := make(map[model.SurfaceID]Entry, len(s.entries))
	for id, e := range s.entries {
		rest[id] = e
	}

	n := len(expected)
	for i, id := range expected {
		if id == model.None {
			return malformed("position %d holds None", i)
		}
		e, ok := rest[id]
		if !ok {
			if _, seen := s.entries[id]; seen {
				return malformed("%s appears twice in expected order", id)
			}
			return malformed("%s is not in the state", id)
		}
		delete(rest, id)

		if i == 0 && s.bottom != id {
			return malformed("bottom is %s, expected %s", s.bottom, id)
		}
		if i == n-1 && s.top != id {
			return malformed("top is %s, expected %s", s.top, id)
		}

		var wantBelow, wantAbove model.SurfaceID
		if i > 0 {
			wantBelow = expected[i-1]
		}
		if i+1 < n {
			wantAbove = expected[i+1]
		}
		if e.Above != wantAbove {
			return malformed("surface %d (%s) has %s above, expected %s", i, id, e.Above, wantAbove)
		}
		if e.Below != wantBelow {
			return malformed("surface %d (%s) has %s below, expected %s", i, id, e.Below, wantBelow)
		}
	}

	if n == 0 && (s.top != model.None || s.bottom != model.None) {
		return malformed("empty order but top=%s bottom=%s", s.top, s.bottom)
	}
	if len(rest) > 0 {
		return malformed("%d unexpected surfaces in state", len(rest))
	}
	return nil
}

// Validate checks the internal invariants without an expected order:
// walking up from the bottom visits every entry once, every link is
// symmetric, and the walk ends at top.
func (s *State) Validate() error {
	if len(s.entries) == 0 {
		if s.top != model.None || s.bottom != model.None {
			return malformed("empty state with sentinels top=%s bottom=%s", s.top, s.bottom)
		}
		return nil
	}
	if s.top == model.None || s.bottom == model.None {
		return malformed("orphaned sentinel top=%s bottom=%s", s.top, s.bottom)
	}

	seen := make(map[model.SurfaceID]bool, len(s.entries))
	prev := model.None
	for id := s.bottom; id != model.None; {
		if seen[id] {
			return malformed("cycle through %s", id)
		}
		seen[id] = true
		e, ok := s.entries[id]
		if !ok {
			return malformed("link to untracked %s", id)
		}
		if e.Below != prev {
			return malformed("%s has %s below, walked from %s", id, e.Below, prev)
		}
		prev = id
		id = e.Above
	}
	if prev != s.top {
		return malformed("walk ended at %s, top is %s", prev, s.top)
	}
	if len(seen) != len(s.entries) {
		return malformed("%d of %d surfaces unreachable from bottom", len(s.entries)-len(seen), len(s.entries))
	}
	return nil
}
