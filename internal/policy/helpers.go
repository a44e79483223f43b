package policy

import (
	"github.com/jmylchreest/compstack/internal/model"
)

// Levels assigned to surfaces without an explicit stacking layer.
const (
	LevelModalDialog  = 0.5
	LevelAbove        = 4
	LevelNotification = 5.5
)

// LastVisibleParent follows transient-for links through mapped parents and
// returns the last one reached, or None. A transiency loop yields None.
func LastVisibleParent(id model.SurfaceID, attrs model.AttributeSource) model.SurfaceID {
	last := model.None
	seen := map[model.SurfaceID]bool{id: true}
	cur, ok := attrs.Attributes(id)
	for ok && cur.TransientFor != model.None {
		parent := cur.TransientFor
		if seen[parent] {
			return model.None
		}
		seen[parent] = true

		cur, ok = attrs.Attributes(parent)
		if !ok || !cur.Mapped {
			break
		}
		last = parent
	}
	return last
}

// Level is the stacking level of a surface: its explicit layer, else the
// level of its last visible transient parent, else a level derived from
// its type.
func Level(id model.SurfaceID, attrs model.AttributeSource) float64 {
	return level(id, attrs, 0)
}

func level(id model.SurfaceID, attrs model.AttributeSource, depth int) float64 {
	a, ok := attrs.Attributes(id)
	if !ok {
		return 0
	}
	if a.StackingLayer != 0 {
		return float64(a.StackingLayer)
	}

	parent := LastVisibleParent(id, attrs)
	switch {
	case parent != model.None:
		// LastVisibleParent is loop free, but guard the recursion anyway.
		if depth > 32 {
			return 0
		}
		return level(parent, attrs, depth+1)
	case a.Type == model.TypeNotification:
		return LevelNotification
	case a.Type == model.TypeInput || a.OverrideRedirect || a.Above:
		return LevelAbove
	case a.Type == model.TypeDialog && a.Modal:
		return LevelModalDialog
	}
	return 0
}

// Desktop returns the topmost desktop surface in order, and its index.
func Desktop(order []model.SurfaceID, attrs model.AttributeSource) (model.SurfaceID, int) {
	for i := len(order) - 1; i >= 0; i-- {
		if a, ok := attrs.Attributes(order[i]); ok && a.Type == model.TypeDesktop {
			return order[i], i
		}
	}
	return model.None, -1
}

// TopmostApp returns the topmost mapped normal-state application above the
// desktop, and its index, skipping ignore and optionally always-mapped
// surfaces. Transient menus and transitioning surfaces are not candidates.
func TopmostApp(order []model.SurfaceID, attrs model.AttributeSource, ignore model.SurfaceID, skipAlwaysMapped bool) (model.SurfaceID, int) {
	for i := len(order) - 1; i >= 0; i-- {
		id := order[i]
		if id == ignore || id == model.None {
			continue
		}
		a, ok := attrs.Attributes(id)
		if !ok {
			continue
		}
		if a.Type == model.TypeDesktop {
			return model.None, -1
		}
		if !a.Mapped || (skipAlwaysMapped && a.AlwaysMapped) {
			continue
		}
		if a.Type == model.TypeMenu {
			if LastVisibleParent(id, attrs) != model.None {
				continue
			}
		} else if !a.IsApplication() {
			continue
		}
		if a.State != model.StateNormal || a.Transitioning {
			continue
		}
		return id, i
	}
	return model.None, -1
}

// HighestDecorated returns the topmost mapped surface above the desktop
// that wants the decorator, and its index, or None and -1.
func HighestDecorated(order []model.SurfaceID, attrs model.AttributeSource) (model.SurfaceID, int) {
	for i := len(order) - 1; i >= 0; i-- {
		a, ok := attrs.Attributes(order[i])
		if !ok {
			continue
		}
		if a.Type == model.TypeDesktop {
			break
		}
		if a.Mapped && a.Type != model.TypeInput && !a.OverrideRedirect && !a.IsDecorator &&
			(a.NeedsDecoration || a.Hung) {
			return order[i], i
		}
	}
	return model.None, -1
}

// CurrentApp returns the surface published as the current application: the
// topmost mapped application above the desktop that is not a dialog or
// menu. Virtual surfaces are skipped.
func CurrentApp(order []model.SurfaceID, attrs model.AttributeSource) model.SurfaceID {
	for i := len(order) - 1; i >= 0; i-- {
		a, ok := attrs.Attributes(order[i])
		if !ok || a.Virtual {
			continue
		}
		if a.Type == model.TypeDesktop {
			break
		}
		if a.Type != model.TypeDialog && a.Type != model.TypeMenu && a.Mapped && a.IsApplication() {
			return order[i]
		}
	}
	return model.None
}

// transientDepth reports how many mapped transient-for hops separate id from
// a member of roots, or 0 if it does not descend from roots.
func transientDepth(id model.SurfaceID, roots map[model.SurfaceID]bool, attrs model.AttributeSource) int {
	seen := map[model.SurfaceID]bool{id: true}
	depth := 0
	cur, ok := attrs.Attributes(id)
	for ok && cur.TransientFor != model.None {
		parent := cur.TransientFor
		if seen[parent] {
			return 0
		}
		seen[parent] = true
		depth++
		if roots[parent] {
			return depth
		}
		cur, ok = attrs.Attributes(parent)
		if !ok || !cur.Mapped {
			return 0
		}
	}
	return 0
}
