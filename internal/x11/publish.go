package x11

import (
	"fmt"
	"log/slog"

	"github.com/jezek/xgb/composite"
	"github.com/jezek/xgb/xproto"
	"github.com/jezek/xgbutil/ewmh"
	"github.com/jezek/xgbutil/xprop"

	"github.com/jmylchreest/compstack/internal/model"
)

// Publisher writes the reconciler's results to root window properties.
type Publisher struct {
	conn   *Conn
	logger *slog.Logger
}

// NewPublisher creates a Publisher on conn.
func NewPublisher(conn *Conn, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{conn: conn, logger: logger}
}

// SetClientListStacking publishes _NET_CLIENT_LIST_STACKING, bottom-first.
func (p *Publisher) SetClientListStacking(stacking []model.SurfaceID) {
	wins := make([]xproto.Window, len(stacking))
	for i, id := range stacking {
		wins[i] = xproto.Window(id)
	}
	if err := ewmh.ClientListStackingSet(p.conn.xu, wins); err != nil {
		p.logger.Warn("failed to set _NET_CLIENT_LIST_STACKING", "error", err)
	}
}

// SetCurrentApp publishes _MEEGOTOUCH_CURRENT_APP_WINDOW.
func (p *Publisher) SetCurrentApp(id model.SurfaceID) {
	if err := xprop.ChangeProp32(p.conn.xu, p.conn.root, atomCurrentApp, "WINDOW", uint(id)); err != nil {
		p.logger.Warn("failed to set current application", "surface", id, "error", err)
	}
}

// Renderer applies the compositing gate's transitions to the server. It
// implements gate.Listener.
type Renderer struct {
	conn   *Conn
	logger *slog.Logger
}

// NewRenderer creates a Renderer on conn.
func NewRenderer(conn *Conn, logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{conn: conn, logger: logger}
}

// Redirect redirects all children of root for compositing. It fails when
// another compositing manager is running.
func (r *Renderer) Redirect() error {
	if !r.conn.composite {
		return nil
	}
	err := composite.RedirectSubwindowsChecked(r.conn.xu.Conn(), r.conn.root, composite.RedirectManual).Check()
	if err != nil {
		return fmt.Errorf("failed to redirect root subwindows: %w", err)
	}
	return nil
}

// CompositingChanged maps the composite overlay while compositing is on
// and releases it otherwise.
func (r *Renderer) CompositingChanged(enabled bool) {
	if !r.conn.composite {
		return
	}
	c := r.conn.xu.Conn()
	if !enabled {
		composite.ReleaseOverlayWindow(c, r.conn.root)
		r.logger.Debug("composite overlay released")
		return
	}
	reply, err := composite.GetOverlayWindow(c, r.conn.root).Reply()
	if err != nil {
		r.logger.Warn("failed to get composite overlay", "error", err)
		return
	}
	r.conn.overlay.Store(uint32(reply.OverlayWin))
	r.logger.Debug("composite overlay mapped", "overlay", model.SurfaceID(reply.OverlayWin))
}

// DirectRenderChanged unredirects a surface for direct rendering or
// redirects it again.
func (r *Renderer) DirectRenderChanged(id model.SurfaceID, direct bool) {
	if !r.conn.composite {
		return
	}
	c := r.conn.xu.Conn()
	win := xproto.Window(id)
	var err error
	if direct {
		err = composite.UnredirectWindowChecked(c, win, composite.RedirectManual).Check()
	} else {
		err = composite.RedirectWindowChecked(c, win, composite.RedirectManual).Check()
	}
	if err != nil {
		r.logger.Debug("failed to switch render mode", "surface", id, "direct", direct, "error", err)
	}
}

// ObscuredChanged sends a synthetic VisibilityNotify to the surface.
func (r *Renderer) ObscuredChanged(id model.SurfaceID, obscured bool) {
	ev := visibilityEvent(id, obscured)
	xproto.SendEvent(r.conn.xu.Conn(), false, xproto.Window(id),
		xproto.EventMaskVisibilityChange, string(ev.Bytes()))
}

func visibilityEvent(id model.SurfaceID, obscured bool) xproto.VisibilityNotifyEvent {
	state := byte(xproto.VisibilityUnobscured)
	if obscured {
		state = xproto.VisibilityFullyObscured
	}
	return xproto.VisibilityNotifyEvent{Window: xproto.Window(id), State: state}
}
