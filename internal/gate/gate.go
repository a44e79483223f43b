// Package gate decides after each reconciliation whether off-screen
// compositing is needed at all and which surfaces may be shown by direct
// framebuffer rendering.
//
// Evaluate is a pure top-down occlusion scan. Gate wraps it and reports
// only the transitions between consecutive evaluations.
package gate

import (
	"log/slog"
	"slices"

	"github.com/jmylchreest/compstack/internal/model"
)

// Input is the state one evaluation looks at.
type Input struct {
	// Order is the settled stacking order, bottom-first.
	Order  []model.SurfaceID
	Attrs  model.AttributeSource
	Screen model.Rect

	DisplayOff    bool
	SplashActive  bool
	Transitioning bool // some surface has a transition running
	// Forced keeps compositing on regardless of occlusion.
	Forced bool
	// CompositeDocks keeps compositing on while a dock is mapped above the
	// direct candidate instead of rendering the dock directly as well.
	CompositeDocks bool
}

// Decision is the outcome of one evaluation.
type Decision struct {
	Compositing bool
	// Direct lists the direct-rendered surfaces, bottom-first.
	Direct []model.SurfaceID
	// Covering is the lowest index whose surfaces, from there up, cover the
	// screen with opaque pixels.
	Covering int
	// Obscured holds the synthetic visibility of every mapped surface.
	Obscured map[model.SurfaceID]bool
	Reason   string
}

// IsDirect reports whether id is direct-rendered.
func (d Decision) IsDirect(id model.SurfaceID) bool {
	return slices.Contains(d.Direct, id)
}

// Evaluate scans in.Order top-down.
func Evaluate(in Input) Decision {
	d := Decision{
		Covering: CoveringIndex(in),
	}
	d.Obscured = visibility(in, d.Covering)

	compositing := func(reason string) Decision {
		d.Compositing = true
		d.Direct = nil
		d.Reason = reason
		return d
	}

	switch {
	case in.DisplayOff:
		return compositing("display off")
	case in.SplashActive:
		return compositing("splash screen")
	case in.Forced:
		return compositing("selective compositing disabled")
	}

	top := -1
	for i := len(in.Order) - 1; i >= 0; i-- {
		a, ok := in.Attrs.Attributes(in.Order[i])
		if !ok || a.InputOnly || a.Type == model.TypeSplash {
			continue
		}
		if a.Type == model.TypeDesktop {
			if a.Mapped {
				top = i
			}
			break
		}
		if a.Closing {
			return compositing("closing surface")
		}
		if a.Type == model.TypeInput && a.TransientFor != model.None {
			if p, ok := in.Attrs.Attributes(a.TransientFor); ok && (p.Closing || p.Transitioning) {
				return compositing("input method parent animating")
			}
		}
		if !a.Mapped {
			continue
		}
		if !a.Painted {
			return compositing("unpainted surface")
		}
		if needsCompositing(a) || !covers(in.Screen, a) {
			return compositing("blocking surface")
		}
		top = i
		break
	}

	// A surface about to be mapped must not find compositing off.
	for i := len(in.Order) - 1; i >= 0; i-- {
		a, ok := in.Attrs.Attributes(in.Order[i])
		if !ok {
			continue
		}
		if a.Type == model.TypeDesktop {
			break
		}
		if a.BeingMapped {
			return compositing("surface being mapped")
		}
	}

	if !haveMapped(in) {
		if in.Transitioning {
			return compositing("transition running")
		}
		d.Reason = "nothing mapped"
		return d
	}

	if top < 0 || in.Transitioning {
		return compositing("no direct candidate")
	}

	// The chosen surface goes direct, and so do docks and override
	// redirect surfaces above it.
	d.Direct = []model.SurfaceID{in.Order[top]}
	for _, id := range in.Order[top+1:] {
		a, ok := in.Attrs.Attributes(id)
		if !ok || !a.Mapped {
			continue
		}
		if a.Type == model.TypeDock && in.CompositeDocks {
			return compositing("dock above direct surface")
		}
		if a.Type == model.TypeDock || a.OverrideRedirect {
			d.Direct = append(d.Direct, id)
		}
	}
	d.Reason = "direct"
	return d
}

func needsCompositing(a model.Attributes) bool {
	return !a.Opaque() || a.NeedsDecoration || a.Transitioning || a.IsDecorator
}

func covers(screen model.Rect, a model.Attributes) bool {
	return model.RegionOf(screen).Subtract(a.ShapeRegion()).Empty()
}

func haveMapped(in Input) bool {
	for _, id := range in.Order {
		if a, ok := in.Attrs.Attributes(id); ok && a.Mapped {
			return true
		}
	}
	return false
}

// CoveringIndex returns the index of the desktop or of the surface at which
// the opaque surfaces above accumulate to cover the screen, scanning
// top-down, or 0.
func CoveringIndex(in Input) int {
	rest := model.RegionOf(in.Screen)
	for i := len(in.Order) - 1; i >= 0; i-- {
		a, ok := in.Attrs.Attributes(in.Order[i])
		if !ok {
			continue
		}
		if a.Type == model.TypeDesktop {
			return i
		}
		if !a.Mapped || !a.Opaque() || a.InputOnly || a.Transitioning {
			continue
		}
		rest = rest.Subtract(a.ShapeRegion())
		if rest.Empty() {
			return i
		}
	}
	return 0
}

// visibility computes the synthetic obscured state of every mapped surface.
func visibility(in Input, covering int) map[model.SurfaceID]bool {
	obscured := make(map[model.SurfaceID]bool)
	for i, id := range in.Order {
		a, ok := in.Attrs.Attributes(id)
		if !ok || !a.Mapped {
			continue
		}
		switch {
		case in.DisplayOff:
			obscured[id] = !(a.LowPower && i >= covering)
		case a.Transitioning:
			obscured[id] = false
		case i >= covering:
			obscured[id] = false
		case hasTransientInput(id, in):
			// A self-compositing input method needs its parent's pixels.
			obscured[id] = false
		default:
			obscured[id] = true
		}
	}
	return obscured
}

func hasTransientInput(id model.SurfaceID, in Input) bool {
	for _, other := range in.Order {
		a, ok := in.Attrs.Attributes(other)
		if ok && a.Mapped && a.Type == model.TypeInput && a.TransientFor == id {
			return true
		}
	}
	return false
}

// Listener receives the transitions found by Gate.Apply. Implementations
// must not call back into the Gate.
type Listener interface {
	CompositingChanged(enabled bool)
	DirectRenderChanged(id model.SurfaceID, direct bool)
	ObscuredChanged(id model.SurfaceID, obscured bool)
}

// Forgetter is implemented by listeners that keep per-surface state, so
// they can drop it when a surface is destroyed.
type Forgetter interface {
	Forget(id model.SurfaceID)
}

// ListenerFuncs adapts plain functions to a Listener. Nil fields are
// skipped.
type ListenerFuncs struct {
	Compositing func(enabled bool)
	Direct      func(id model.SurfaceID, direct bool)
	Obscured    func(id model.SurfaceID, obscured bool)
}

func (f ListenerFuncs) CompositingChanged(enabled bool) {
	if f.Compositing != nil {
		f.Compositing(enabled)
	}
}

func (f ListenerFuncs) DirectRenderChanged(id model.SurfaceID, direct bool) {
	if f.Direct != nil {
		f.Direct(id, direct)
	}
}

func (f ListenerFuncs) ObscuredChanged(id model.SurfaceID, obscured bool) {
	if f.Obscured != nil {
		f.Obscured(id, obscured)
	}
}

// Listeners fans transitions out to several listeners in order.
type Listeners []Listener

func (ls Listeners) CompositingChanged(enabled bool) {
	for _, l := range ls {
		l.CompositingChanged(enabled)
	}
}

func (ls Listeners) DirectRenderChanged(id model.SurfaceID, direct bool) {
	for _, l := range ls {
		l.DirectRenderChanged(id, direct)
	}
}

func (ls Listeners) ObscuredChanged(id model.SurfaceID, obscured bool) {
	for _, l := range ls {
		l.ObscuredChanged(id, obscured)
	}
}

// Forget passes id to every listener that is a Forgetter.
func (ls Listeners) Forget(id model.SurfaceID) {
	for _, l := range ls {
		if f, ok := l.(Forgetter); ok {
			f.Forget(id)
		}
	}
}

// Gate remembers the last decision and reports changes only.
type Gate struct {
	listener    Listener
	logger      *slog.Logger
	known       bool
	compositing bool
	direct      map[model.SurfaceID]bool
	obscured    map[model.SurfaceID]bool
}

// New creates a Gate. The first Apply reports the compositing state and
// every direct and visibility state as transitions.
func New(listener Listener, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	if listener == nil {
		listener = ListenerFuncs{}
	}
	return &Gate{
		listener: listener,
		logger:   logger,
		direct:   make(map[model.SurfaceID]bool),
		obscured: make(map[model.SurfaceID]bool),
	}
}

// Compositing returns the last reported compositing state.
func (g *Gate) Compositing() bool { return g.compositing }

// Direct returns the surfaces currently reported as direct-rendered.
func (g *Gate) Direct() []model.SurfaceID {
	out := make([]model.SurfaceID, 0, len(g.direct))
	for id := range g.direct {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Apply evaluates in and reports the differences to the listener.
// Surfaces leaving direct rendering are reported before compositing is
// switched, surfaces entering it after.
func (g *Gate) Apply(in Input) Decision {
	d := Evaluate(in)

	present := make(map[model.SurfaceID]bool, len(in.Order))
	for _, id := range in.Order {
		present[id] = true
	}
	for id := range g.direct {
		if !present[id] {
			delete(g.direct, id)
		}
	}
	for id := range g.obscured {
		if _, ok := d.Obscured[id]; !ok {
			delete(g.obscured, id)
		}
	}

	next := make(map[model.SurfaceID]bool, len(d.Direct))
	for _, id := range d.Direct {
		next[id] = true
	}

	for _, id := range in.Order {
		if g.direct[id] && !next[id] {
			delete(g.direct, id)
			g.listener.DirectRenderChanged(id, false)
		}
	}

	if !g.known || g.compositing != d.Compositing {
		g.known = true
		g.compositing = d.Compositing
		g.logger.Debug("compositing changed", "enabled", d.Compositing, "reason", d.Reason)
		g.listener.CompositingChanged(d.Compositing)
	}

	for _, id := range d.Direct {
		if !g.direct[id] {
			g.direct[id] = true
			g.listener.DirectRenderChanged(id, true)
		}
	}

	for _, id := range in.Order {
		obscured, ok := d.Obscured[id]
		if !ok {
			continue
		}
		if prev, seen := g.obscured[id]; !seen || prev != obscured {
			g.obscured[id] = obscured
			g.listener.ObscuredChanged(id, obscured)
		}
	}

	return d
}

// ResetVisibility makes the next Apply report the visibility of every
// mapped surface again, changed or not.
func (g *Gate) ResetVisibility() {
	clear(g.obscured)
}

// Forget drops everything known about a destroyed surface, here and in
// the listener when it is a Forgetter.
func (g *Gate) Forget(id model.SurfaceID) {
	delete(g.direct, id)
	delete(g.obscured, id)
	if f, ok := g.listener.(Forgetter); ok {
		f.Forget(id)
	}
}
