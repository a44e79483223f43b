package x11

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/damage"
	"github.com/jezek/xgb/shape"
	"github.com/jezek/xgb/xproto"
	"github.com/jezek/xgbutil/ewmh"
	"github.com/jezek/xgbutil/xprop"
	"github.com/jezek/xgbutil/xwindow"

	"github.com/jmylchreest/compstack/internal/model"
)

// ErrConnectionClosed is returned by Reader.Run when the server connection
// goes away.
var ErrConnectionClosed = errors.New("X connection closed")

// Reader turns X events into core notifications. Structural changes of
// root's children go to the event sink; attribute changes update the
// property cache and request a pass.
type Reader struct {
	conn    *Conn
	cache   *PropertyCache
	sink    func(model.Event)
	dirty   func(forceVisibility bool)
	watched map[xproto.Atom]bool
	// paint is nil without the damage extension; mapped windows then count
	// as painted straight away.
	paint  *paintTracker
	logger *slog.Logger

	activeAtom xproto.Atom
	active     func(model.SurfaceID)
	mapped     func(model.SurfaceID)
}

// NewReader creates a Reader. sink receives structural notifications and
// dirty is called when attributes changed.
func NewReader(conn *Conn, cache *PropertyCache, sink func(model.Event), dirty func(bool), logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Reader{
		conn:    conn,
		cache:   cache,
		sink:    sink,
		dirty:   dirty,
		watched: make(map[xproto.Atom]bool),
		logger:  logger,
	}
	for _, name := range watchedAtoms {
		atom, err := xprop.Atm(conn.xu, name)
		if err != nil {
			logger.Warn("failed to intern atom", "atom", name, "error", err)
			continue
		}
		r.watched[atom] = true
	}
	if atom, err := xprop.Atm(conn.xu, "_NET_ACTIVE_WINDOW"); err == nil {
		r.activeAtom = atom
	}
	if conn.damage {
		r.paint = newPaintTracker(conn.xu.Conn())
	}
	return r
}

// OnActiveWindow makes the reader report _NET_ACTIVE_WINDOW changes on
// root to fn. The current value is reported immediately.
func (r *Reader) OnActiveWindow(fn func(model.SurfaceID)) {
	r.active = fn
	r.readActive()
}

// OnMapped makes the reader report every window mapped on root to fn,
// after the cache has been updated.
func (r *Reader) OnMapped(fn func(model.SurfaceID)) {
	r.mapped = fn
}

func (r *Reader) readActive() {
	if r.active == nil {
		return
	}
	win, err := ewmh.ActiveWindowGet(r.conn.xu)
	if err != nil {
		// Unset until a window manager claims it.
		r.active(model.None)
		return
	}
	r.active(model.SurfaceID(win))
}

// Prime starts watching every existing child of root and fills the cache.
// Call before the first resync.
func (r *Reader) Prime() error {
	seq, _, err := r.conn.QueryStack()
	if err != nil {
		return err
	}
	for _, id := range seq {
		r.track(id)
	}
	r.logger.Debug("property cache primed", "surfaces", r.cache.Len())
	return nil
}

// Run reads events until the connection closes or ctx is cancelled. The
// connection must be closed to unblock a pending read.
func (r *Reader) Run(ctx context.Context) error {
	c := r.conn.xu.Conn()
	for {
		ev, xerr := c.WaitForEvent()
		if ctx.Err() != nil {
			return nil
		}
		if ev == nil && xerr == nil {
			return ErrConnectionClosed
		}
		if xerr != nil {
			// Asynchronous errors for windows that vanished mid-request.
			r.logger.Debug("X error", "error", xerr)
			continue
		}
		r.dispatch(ev)
	}
}

func (r *Reader) dispatch(ev xgb.Event) {
	seq, ok := eventSequence(ev)
	if !ok {
		return
	}
	serial := r.conn.serials.extend(seq)

	if note, ok := translate(r.conn.root, ev, serial); ok {
		switch note.Kind {
		case model.EventCreated:
			r.track(note.Window)
		case model.EventDestroyed:
			r.cache.Remove(note.Window)
			if r.paint != nil {
				r.paint.cancel(xproto.Window(note.Window), true)
			}
		case model.EventReparented:
			if note.Parent == model.SurfaceID(r.conn.root) {
				r.track(note.Window)
			} else {
				r.cache.Remove(note.Window)
			}
		}
		r.sink(note)
	}

	switch e := ev.(type) {
	case xproto.ConfigureNotifyEvent:
		if e.Event != r.conn.root {
			return
		}
		geom := model.Rect{
			X: int(e.X),
			Y: int(e.Y),
			W: int(e.Width) + 2*int(e.BorderWidth),
			H: int(e.Height) + 2*int(e.BorderWidth),
		}
		if r.cache.SetGeometry(model.SurfaceID(e.Window), geom) {
			r.dirty(false)
		}
	case xproto.MapNotifyEvent:
		if e.Event != r.conn.root {
			return
		}
		r.refresh(model.SurfaceID(e.Window))
		r.cache.SetMapped(model.SurfaceID(e.Window), true)
		r.watchPaint(e.Window)
		if r.mapped != nil {
			r.mapped(model.SurfaceID(e.Window))
		}
		r.dirty(false)
	case xproto.UnmapNotifyEvent:
		if e.Event != r.conn.root {
			return
		}
		if r.paint != nil {
			r.paint.cancel(e.Window, false)
		}
		r.cache.SetMapped(model.SurfaceID(e.Window), false)
		r.dirty(false)
	case damage.NotifyEvent:
		win := xproto.Window(e.Drawable)
		if r.paint == nil || !r.paint.painted(win) {
			return
		}
		if r.cache.MarkPainted(model.SurfaceID(win)) {
			r.dirty(false)
		}
	case xproto.PropertyNotifyEvent:
		if e.Window == r.conn.root {
			if e.Atom == r.activeAtom && r.activeAtom != 0 {
				r.readActive()
			}
			return
		}
		if !r.watched[e.Atom] {
			return
		}
		r.refresh(model.SurfaceID(e.Window))
		r.dirty(false)
	case shape.NotifyEvent:
		if e.ShapeKind != shape.SkBounding {
			return
		}
		r.refresh(model.SurfaceID(e.AffectedWindow))
		r.dirty(false)
	}
}

// watchPaint waits for the first frame of a mapped window. Without damage
// reporting the window is painted at once.
func (r *Reader) watchPaint(win xproto.Window) {
	if r.paint != nil {
		err := r.paint.watch(win)
		if err == nil {
			return
		}
		r.logger.Debug("failed to watch for first paint", "surface", model.SurfaceID(win), "error", err)
	}
	r.cache.MarkPainted(model.SurfaceID(win))
}

// track selects the events needed to keep a child's attributes current and
// reads them.
func (r *Reader) track(id model.SurfaceID) {
	if r.conn.Ignore(id) {
		return
	}
	win := xproto.Window(id)
	if err := xwindow.New(r.conn.xu, win).Listen(xproto.EventMaskPropertyChange); err != nil {
		r.logger.Debug("failed to select property events", "surface", id, "error", err)
	}
	if r.conn.shape {
		shape.SelectInput(r.conn.xu.Conn(), win, true)
	}
	r.refresh(id)
}

func (r *Reader) refresh(id model.SurfaceID) {
	if err := r.cache.Refresh(id); err != nil {
		r.logger.Debug("failed to read surface properties", "surface", id, "error", err)
	}
}

// translate maps a structural X event on root's substructure to a core
// notification.
func translate(root xproto.Window, ev xgb.Event, serial uint64) (model.Event, bool) {
	switch e := ev.(type) {
	case xproto.CreateNotifyEvent:
		if e.Parent != root {
			return model.Event{}, false
		}
		// New windows are created on top of their siblings.
		return model.Event{Kind: model.EventCreated, Window: model.SurfaceID(e.Window), Serial: serial}, true
	case xproto.DestroyNotifyEvent:
		if e.Event != root {
			return model.Event{}, false
		}
		return model.Event{Kind: model.EventDestroyed, Window: model.SurfaceID(e.Window), Serial: serial}, true
	case xproto.ConfigureNotifyEvent:
		if e.Event != root {
			return model.Event{}, false
		}
		return model.Event{
			Kind:    model.EventConfigured,
			Window:  model.SurfaceID(e.Window),
			Sibling: model.SurfaceID(e.AboveSibling),
			Serial:  serial,
		}, true
	case xproto.ReparentNotifyEvent:
		if e.Event != root {
			return model.Event{}, false
		}
		return model.Event{
			Kind:   model.EventReparented,
			Window: model.SurfaceID(e.Window),
			Parent: model.SurfaceID(e.Parent),
			Serial: serial,
		}, true
	}
	return model.Event{}, false
}

// eventSequence returns the wire sequence number of the events the reader
// handles.
func eventSequence(ev xgb.Event) (uint16, bool) {
	switch e := ev.(type) {
	case xproto.CreateNotifyEvent:
		return e.Sequence, true
	case xproto.DestroyNotifyEvent:
		return e.Sequence, true
	case xproto.ConfigureNotifyEvent:
		return e.Sequence, true
	case xproto.ReparentNotifyEvent:
		return e.Sequence, true
	case xproto.MapNotifyEvent:
		return e.Sequence, true
	case xproto.UnmapNotifyEvent:
		return e.Sequence, true
	case xproto.PropertyNotifyEvent:
		return e.Sequence, true
	case shape.NotifyEvent:
		return e.Sequence, true
	case damage.NotifyEvent:
		return e.Sequence, true
	}
	return 0, false
}
