// Package policy computes the desired stacking order from the current order
// and the surfaces' attributes.
//
// The order is built by successive stable lifts: each lift moves the
// matching surfaces to the top while keeping their relative order, and
// leaves every other surface where it was. Surfaces that no rule matches
// keep the position the server gave them.
package policy

import (
	"cmp"
	"log/slog"
	"slices"

	"github.com/jmylchreest/compstack/internal/model"
)

// Input is what one policy evaluation looks at.
type Input struct {
	// Order is the current stacking order, bottom-first.
	Order []model.SurfaceID
	Attrs model.AttributeSource
	// Active is the active application, or None to use the topmost one.
	Active model.SurfaceID
}

// Policy evaluates the layering rules.
type Policy struct {
	logger *slog.Logger
}

// New creates a Policy.
func New(logger *slog.Logger) *Policy {
	if logger == nil {
		logger = slog.Default()
	}
	return &Policy{logger: logger}
}

// Desired returns the desired order, bottom-first. It contains exactly the
// surfaces of in.Order.
func (p *Policy) Desired(in Input) []model.SurfaceID {
	list := slices.Clone(in.Order)
	attrs := in.Attrs

	mapped := func(id model.SurfaceID) (model.Attributes, bool) {
		a, ok := attrs.Attributes(id)
		return a, ok && a.Mapped
	}

	list = p.sinkIconic(list, attrs)

	active := in.Active
	if a, ok := mapped(active); !ok || !a.IsApplication() || a.State != model.StateNormal {
		active, _ = TopmostApp(list, attrs, model.None, false)
	}

	// 1. Active application with its group and transients, or the desktop.
	if active != model.None {
		activeAttrs, _ := attrs.Attributes(active)
		set := map[model.SurfaceID]bool{active: true}
		if activeAttrs.Group != model.None {
			for _, id := range list {
				if a, ok := mapped(id); ok && a.Group == activeAttrs.Group && a.IsApplication() {
					set[id] = true
				}
			}
		}
		list = p.lift("active application", list, func(id model.SurfaceID) bool { return set[id] })
		list = p.liftTransients(list, set, attrs)
	} else if desk, _ := Desktop(list, attrs); desk != model.None {
		list = p.lift("desktop", list, func(id model.SurfaceID) bool { return id == desk })
		list = p.liftTransients(list, map[model.SurfaceID]bool{desk: true}, attrs)
	}

	// 2. Docks, unless a decorated fullscreen application owns the origin.
	activeAttrs, _ := attrs.Attributes(active)
	if !(active != model.None && activeAttrs.Fullscreen && activeAttrs.NeedsDecoration) {
		list = p.lift("docks", list, func(id model.SurfaceID) bool {
			a, ok := mapped(id)
			return ok && a.Type == model.TypeDock && a.StackingLayer == 0
		})
	}

	byLevel := func(name string, lvl float64) {
		list = p.lift(name, list, func(id model.SurfaceID) bool {
			a, ok := mapped(id)
			return ok && !a.IsDecorator && Level(id, attrs) == lvl
		})
	}

	// 3. Lock screen and call overlays.
	byLevel("layer 1", 1)
	byLevel("layer 2", 2)
	byLevel("layer 3", 3)
	// 4. System-modal dialogs.
	byLevel("system modal", LevelModalDialog)
	// 5. Always on top, input methods and layer 4, in mapping order.
	list = p.liftByMapping("layer 4", list, attrs, func(id model.SurfaceID) bool {
		a, ok := mapped(id)
		return ok && !a.IsDecorator && Level(id, attrs) == LevelAbove
	})
	// 6. Notifications between layers 5 and 6.
	byLevel("layer 5", 5)
	byLevel("notifications", LevelNotification)
	byLevel("layer 6", 6)

	// 7. Decorator.
	return p.placeDecorator(list, attrs)
}

// lift moves the surfaces matched by match to the top, keeping the relative
// order within both partitions.
func (p *Policy) lift(name string, list []model.SurfaceID, match func(model.SurfaceID) bool) []model.SurfaceID {
	rest, lifted := partition(list, match)
	return p.lifted(name, list, rest, lifted)
}

// liftByMapping lifts like lift but orders the lifted surfaces by when
// they were mapped, earliest lowest. Transients share their parent's
// place, and ties keep the current order.
func (p *Policy) liftByMapping(name string, list []model.SurfaceID, attrs model.AttributeSource, match func(model.SurfaceID) bool) []model.SurfaceID {
	rest, lifted := partition(list, match)
	mappedAt := func(id model.SurfaceID) uint64 {
		if parent := LastVisibleParent(id, attrs); parent != model.None {
			id = parent
		}
		a, _ := attrs.Attributes(id)
		return a.MapSeq
	}
	slices.SortStableFunc(lifted, func(a, b model.SurfaceID) int {
		return cmp.Compare(mappedAt(a), mappedAt(b))
	})
	return p.lifted(name, list, rest, lifted)
}

func partition(list []model.SurfaceID, match func(model.SurfaceID) bool) (rest, lifted []model.SurfaceID) {
	rest = make([]model.SurfaceID, 0, len(list))
	for _, id := range list {
		if match(id) {
			lifted = append(lifted, id)
		} else {
			rest = append(rest, id)
		}
	}
	return rest, lifted
}

func (p *Policy) lifted(name string, list, rest, lifted []model.SurfaceID) []model.SurfaceID {
	out := append(rest, lifted...)
	if len(lifted) > 0 && !slices.Equal(out, list) {
		p.logger.Debug("policy lift", "rule", name, "surfaces", model.FormatIDs(lifted))
	}
	return out
}

// liftTransients lifts transient descendants of roots, shallower first, so
// that every transient ends up above its parent.
func (p *Policy) liftTransients(list []model.SurfaceID, roots map[model.SurfaceID]bool, attrs model.AttributeSource) []model.SurfaceID {
	depths := make(map[model.SurfaceID]int)
	maxDepth := 0
	for _, id := range list {
		if roots[id] {
			continue
		}
		a, ok := attrs.Attributes(id)
		if !ok || !a.Mapped {
			continue
		}
		if d := transientDepth(id, roots, attrs); d > 0 {
			depths[id] = d
			maxDepth = max(maxDepth, d)
		}
	}
	for d := 1; d <= maxDepth; d++ {
		list = p.lift("transients", list, func(id model.SurfaceID) bool { return depths[id] == d })
	}
	return list
}

// sinkIconic moves mapped applications that are not in normal state
// directly below the desktop, and the desktop below every normal-state
// application.
func (p *Policy) sinkIconic(list []model.SurfaceID, attrs model.AttributeSource) []model.SurfaceID {
	desk, _ := Desktop(list, attrs)

	var sunk, rest []model.SurfaceID
	at := 0 // without a desktop, sunk surfaces go to the bottom
	for _, id := range list {
		a, ok := attrs.Attributes(id)
		switch {
		case id == desk:
			at = len(rest)
		case ok && a.Mapped && a.IsApplication() && a.State != model.StateNormal:
			sunk = append(sunk, id)
		default:
			rest = append(rest, id)
		}
	}
	if len(sunk) == 0 && desk == model.None {
		return list
	}

	// The desktop never sits above a normal-state application.
	if desk != model.None {
		for i, id := range rest[:at] {
			if a, ok := attrs.Attributes(id); ok && a.Mapped && a.IsApplication() && a.State == model.StateNormal {
				at = i
				break
			}
		}
	}

	block := sunk
	if desk != model.None {
		block = append(slices.Clone(sunk), desk)
	}
	out := slices.Insert(slices.Clone(rest), at, block...)
	if !slices.Equal(out, list) {
		p.logger.Debug("policy lift", "rule", "sink iconic", "surfaces", model.FormatIDs(block))
	}
	return out
}

// placeDecorator puts the decorator directly above the topmost decorated
// surface, or at the very bottom if nothing is decorated.
func (p *Policy) placeDecorator(list []model.SurfaceID, attrs model.AttributeSource) []model.SurfaceID {
	deco := model.None
	for i := len(list) - 1; i >= 0; i-- {
		if a, ok := attrs.Attributes(list[i]); ok && a.IsDecorator {
			deco = list[i]
			break
		}
	}
	if deco == model.None {
		return list
	}

	rest := slices.DeleteFunc(slices.Clone(list), func(id model.SurfaceID) bool { return id == deco })
	managed, idx := HighestDecorated(rest, attrs)
	var out []model.SurfaceID
	if managed == model.None {
		out = slices.Insert(rest, 0, deco)
	} else {
		out = slices.Insert(rest, idx+1, deco)
	}
	if !slices.Equal(out, list) {
		p.logger.Debug("policy lift", "rule", "decorator", "surface", deco, "managed", managed)
	}
	return out
}

// ManagedWindow returns the surface the decorator should decorate, or None.
func ManagedWindow(order []model.SurfaceID, attrs model.AttributeSource) model.SurfaceID {
	id, _ := HighestDecorated(order, attrs)
	return id
}
