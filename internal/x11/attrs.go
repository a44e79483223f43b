package x11

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/jezek/xgb/shape"
	"github.com/jezek/xgb/xproto"
	"github.com/jezek/xgbutil"
	"github.com/jezek/xgbutil/ewmh"
	"github.com/jezek/xgbutil/icccm"
	"github.com/jezek/xgbutil/xprop"

	"github.com/jmylchreest/compstack/internal/model"
)

// Properties read by the cache besides the EWMH and ICCCM ones.
const (
	atomStackingLayer = "_MEEGO_STACKING_LAYER"
	atomDecorator     = "_MEEGOTOUCH_DECORATOR_WINDOW"
	atomAlwaysMapped  = "_MEEGOTOUCH_ALWAYS_MAPPED"
	atomLowPower      = "_MEEGO_LOW_POWER_MODE"
	atomCurrentApp    = "_MEEGOTOUCH_CURRENT_APP_WINDOW"
)

// maxStackingLayer bounds _MEEGO_STACKING_LAYER.
const maxStackingLayer = 6

// watchedAtoms are the properties whose change invalidates a surface's
// cached attributes.
var watchedAtoms = []string{
	"_NET_WM_WINDOW_TYPE",
	"_NET_WM_STATE",
	"_NET_WM_WINDOW_OPACITY",
	"WM_STATE",
	"WM_HINTS",
	"WM_TRANSIENT_FOR",
	"WM_CLASS",
	atomStackingLayer,
	atomDecorator,
	atomAlwaysMapped,
	atomLowPower,
}

// Classes names WM_CLASS values that mark helper surfaces.
type Classes struct {
	Desktop   string
	Decorator string
}

// rawProperties is what the server reports about a surface before it is
// interpreted.
type rawProperties struct {
	Viewable         bool
	OverrideRedirect bool
	InputOnly        bool
	Depth            byte
	Geometry         model.Rect
	Shape            []model.Rect
	WindowType       []string
	NetState         []string
	WMState          uint
	HasWMState       bool
	TransientFor     model.SurfaceID
	Group            model.SurfaceID
	Class            string
	Layer            uint
	Decorator        bool
	AlwaysMapped     bool
	LowPower         bool
	Opacity          float64
}

// propertyReader fetches the raw properties of one surface.
type propertyReader interface {
	Read(id model.SurfaceID) (rawProperties, error)
}

// PropertyCache holds the attributes of every known surface. It is updated
// by the event reader and read by the reconciler.
type PropertyCache struct {
	mu       sync.RWMutex
	surfaces map[model.SurfaceID]model.Attributes
	mapSeq   uint64
	reader   propertyReader
	classes  Classes
	logger   *slog.Logger
}

// NewPropertyCache creates a cache that reads properties through xu.
func NewPropertyCache(xu *xgbutil.XUtil, withShape bool, classes Classes, logger *slog.Logger) *PropertyCache {
	return newPropertyCache(xReader{xu: xu, shape: withShape}, classes, logger)
}

func newPropertyCache(reader propertyReader, classes Classes, logger *slog.Logger) *PropertyCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &PropertyCache{
		surfaces: make(map[model.SurfaceID]model.Attributes),
		reader:   reader,
		classes:  classes,
		logger:   logger,
	}
}

// Attributes implements model.AttributeSource.
func (c *PropertyCache) Attributes(id model.SurfaceID) (model.Attributes, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.surfaces[id]
	return a, ok
}

// SetClasses replaces the helper class names. Cached surfaces keep their
// attributes until refreshed.
func (c *PropertyCache) SetClasses(classes Classes) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.classes = classes
}

// Refresh rereads a surface from the server. A surface that vanished is
// dropped. A surface seen for the first time while already viewable has
// content on screen, so it counts as painted.
func (c *PropertyCache) Refresh(id model.SurfaceID) error {
	raw, err := c.reader.Read(id)
	if err != nil {
		c.Remove(id)
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	prev, known := c.surfaces[id]
	a := attributesFrom(raw, c.classes)
	if !known {
		a.Painted = a.Mapped
		if a.Mapped {
			c.mapSeq++
			a.MapSeq = c.mapSeq
		}
		c.surfaces[id] = a
		return nil
	}
	// Transition flags are owned by the compositor side.
	a.Closing = prev.Closing
	a.Transitioning = prev.Transitioning
	a.Painted = prev.Painted
	a.BeingMapped = prev.BeingMapped
	a.Hung = prev.Hung
	a.Virtual = prev.Virtual
	a.MapSeq = prev.MapSeq
	c.surfaces[id] = a
	return nil
}

// SetMapped records a map state change without a round trip. Mapping
// stamps the surface with the next map sequence number and leaves it
// unpainted until MarkPainted.
func (c *PropertyCache) SetMapped(id model.SurfaceID, mapped bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.surfaces[id]
	if !ok {
		return
	}
	a.Mapped = mapped
	a.Painted = false
	if mapped {
		c.mapSeq++
		a.MapSeq = c.mapSeq
	}
	c.surfaces[id] = a
}

// MarkPainted records that a mapped surface has drawn its first frame and
// reports whether that changed anything.
func (c *PropertyCache) MarkPainted(id model.SurfaceID) bool {
	changed := false
	c.update(id, func(a *model.Attributes) {
		if a.Mapped && !a.Painted {
			a.Painted = true
			changed = true
		}
	})
	return changed
}

// SetGeometry records a configure notification's geometry.
func (c *PropertyCache) SetGeometry(id model.SurfaceID, geom model.Rect) bool {
	changed := false
	c.update(id, func(a *model.Attributes) {
		if a.Geometry == geom {
			return
		}
		if !a.Shape.Empty() {
			a.Shape = a.Shape.Translate(geom.X-a.Geometry.X, geom.Y-a.Geometry.Y)
		}
		a.Geometry = geom
		changed = true
	})
	return changed
}

// Update applies fn to a cached surface. Unknown surfaces are ignored.
func (c *PropertyCache) Update(id model.SurfaceID, fn func(a *model.Attributes)) {
	c.update(id, fn)
}

func (c *PropertyCache) update(id model.SurfaceID, fn func(a *model.Attributes)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.surfaces[id]
	if !ok {
		return
	}
	fn(&a)
	c.surfaces[id] = a
}

// Remove forgets a surface.
func (c *PropertyCache) Remove(id model.SurfaceID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.surfaces, id)
}

// Len returns the number of cached surfaces.
func (c *PropertyCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.surfaces)
}

// attributesFrom interprets raw server properties.
func attributesFrom(raw rawProperties, classes Classes) model.Attributes {
	a := model.Attributes{
		Mapped:           raw.Viewable,
		HasAlpha:         raw.Depth == 32,
		Opacity:          raw.Opacity,
		InputOnly:        raw.InputOnly,
		Geometry:         raw.Geometry,
		OverrideRedirect: raw.OverrideRedirect,
		IsDecorator:      raw.Decorator,
		StackingLayer:    int(min(raw.Layer, maxStackingLayer)),
		TransientFor:     raw.TransientFor,
		Group:            raw.Group,
		AlwaysMapped:     raw.AlwaysMapped,
		LowPower:         raw.LowPower,
	}
	if len(raw.Shape) > 0 && !coversGeometry(raw.Shape, raw.Geometry) {
		a.Shape = model.Region(raw.Shape)
	}

	a.Type = windowType(raw.WindowType, raw.TransientFor, raw.OverrideRedirect)
	if raw.Class != "" {
		switch {
		case classes.Desktop != "" && strings.EqualFold(raw.Class, classes.Desktop):
			a.Type = model.TypeDesktop
		case classes.Decorator != "" && strings.EqualFold(raw.Class, classes.Decorator):
			a.IsDecorator = true
		}
	}

	for _, st := range raw.NetState {
		switch st {
		case "_NET_WM_STATE_FULLSCREEN":
			a.Fullscreen = true
		case "_NET_WM_STATE_MODAL":
			a.Modal = true
		case "_NET_WM_STATE_ABOVE":
			a.Above = true
		}
	}

	switch {
	case raw.HasWMState && raw.WMState == icccm.StateIconic:
		a.State = model.StateIconic
	case raw.HasWMState && raw.WMState == icccm.StateWithdrawn:
		a.State = model.StateWithdrawn
	case raw.HasWMState || raw.Viewable:
		a.State = model.StateNormal
	default:
		a.State = model.StateWithdrawn
	}

	a.NeedsDecoration = needsDecoration(a)
	return a
}

// windowType maps _NET_WM_WINDOW_TYPE to a WindowType. The first known
// name wins. Untyped transients are dialogs.
func windowType(names []string, transientFor model.SurfaceID, overrideRedirect bool) model.WindowType {
	for _, name := range names {
		switch name {
		case "_NET_WM_WINDOW_TYPE_NORMAL":
			return model.TypeNormal
		case "_NET_WM_WINDOW_TYPE_DESKTOP":
			return model.TypeDesktop
		case "_NET_WM_WINDOW_TYPE_DOCK":
			return model.TypeDock
		case "_NET_WM_WINDOW_TYPE_DIALOG":
			return model.TypeDialog
		case "_NET_WM_WINDOW_TYPE_MENU", "_NET_WM_WINDOW_TYPE_DROPDOWN_MENU", "_NET_WM_WINDOW_TYPE_POPUP_MENU":
			return model.TypeMenu
		case "_NET_WM_WINDOW_TYPE_NOTIFICATION":
			return model.TypeNotification
		case "_NET_WM_WINDOW_TYPE_INPUT":
			return model.TypeInput
		case "_NET_WM_WINDOW_TYPE_SPLASH":
			return model.TypeSplash
		}
	}
	switch {
	case overrideRedirect:
		return model.TypeUnknown
	case transientFor != model.None:
		return model.TypeDialog
	default:
		return model.TypeNormal
	}
}

// needsDecoration reports whether a managed surface gets a decorator.
func needsDecoration(a model.Attributes) bool {
	if a.InputOnly || a.IsDecorator || a.OverrideRedirect || a.Fullscreen {
		return false
	}
	switch a.Type {
	case model.TypeDesktop, model.TypeNotification, model.TypeInput, model.TypeDock, model.TypeSplash:
		return false
	}
	return a.TransientFor == model.None || a.Type == model.TypeDialog
}

func coversGeometry(rects []model.Rect, geom model.Rect) bool {
	return len(rects) == 1 && rects[0] == geom
}

// xReader reads properties from a live server.
type xReader struct {
	xu    *xgbutil.XUtil
	shape bool
}

func (r xReader) Read(id model.SurfaceID) (rawProperties, error) {
	var raw rawProperties
	c := r.xu.Conn()
	win := xproto.Window(id)

	attrCookie := xproto.GetWindowAttributes(c, win)
	geomCookie := xproto.GetGeometry(c, xproto.Drawable(win))

	wa, err := attrCookie.Reply()
	if err != nil {
		return raw, fmt.Errorf("failed to get attributes of %s: %w", id, err)
	}
	geom, err := geomCookie.Reply()
	if err != nil {
		return raw, fmt.Errorf("failed to get geometry of %s: %w", id, err)
	}

	raw.Viewable = wa.MapState == xproto.MapStateViewable
	raw.OverrideRedirect = wa.OverrideRedirect
	raw.InputOnly = wa.Class == xproto.WindowClassInputOnly
	raw.Depth = geom.Depth
	raw.Geometry = model.Rect{
		X: int(geom.X),
		Y: int(geom.Y),
		W: int(geom.Width) + 2*int(geom.BorderWidth),
		H: int(geom.Height) + 2*int(geom.BorderWidth),
	}

	// Missing properties are reported as errors and leave the zero value.
	raw.WindowType, _ = ewmh.WmWindowTypeGet(r.xu, win)
	raw.NetState, _ = ewmh.WmStateGet(r.xu, win)
	if st, err := icccm.WmStateGet(r.xu, win); err == nil {
		raw.WMState = st.State
		raw.HasWMState = true
	}
	if parent, err := icccm.WmTransientForGet(r.xu, win); err == nil {
		raw.TransientFor = model.SurfaceID(parent)
	}
	if hints, err := icccm.WmHintsGet(r.xu, win); err == nil && hints.Flags&icccm.HintWindowGroup != 0 {
		raw.Group = model.SurfaceID(hints.WindowGroup)
	}
	if class, err := icccm.WmClassGet(r.xu, win); err == nil {
		raw.Class = class.Class
	}
	if opacity, err := ewmh.WmWindowOpacityGet(r.xu, win); err == nil {
		raw.Opacity = opacity
	}
	raw.Layer, _ = xprop.PropValNum(xprop.GetProperty(r.xu, win, atomStackingLayer))
	raw.Decorator = r.flag(win, atomDecorator)
	raw.AlwaysMapped = r.flag(win, atomAlwaysMapped)
	raw.LowPower = r.flag(win, atomLowPower)

	if r.shape {
		reply, err := shape.GetRectangles(c, win, shape.SkBounding).Reply()
		if err == nil {
			for _, rect := range reply.Rectangles {
				raw.Shape = append(raw.Shape, model.Rect{
					X: raw.Geometry.X + int(rect.X),
					Y: raw.Geometry.Y + int(rect.Y),
					W: int(rect.Width),
					H: int(rect.Height),
				})
			}
		}
	}

	return raw, nil
}

func (r xReader) flag(win xproto.Window, name string) bool {
	v, err := xprop.PropValNum(xprop.GetProperty(r.xu, win, name))
	return err == nil && v != 0
}
