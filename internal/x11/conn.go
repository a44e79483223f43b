package x11

import (
	"fmt"
	"log/slog"
	"slices"
	"sync/atomic"

	"github.com/jezek/xgb/composite"
	"github.com/jezek/xgb/damage"
	"github.com/jezek/xgb/shape"
	"github.com/jezek/xgb/xproto"
	"github.com/jezek/xgbutil"
	"github.com/jezek/xgbutil/xwindow"

	"github.com/jmylchreest/compstack/internal/executor"
	"github.com/jmylchreest/compstack/internal/model"
)

// Conn is a connection to the X server that manages the children of the
// root window. It implements the reconciler's Display.
type Conn struct {
	xu        *xgbutil.XUtil
	root      xproto.Window
	serials   serialExtender
	overlay   atomic.Uint32
	composite bool
	shape     bool
	damage    bool
	logger    *slog.Logger
}

// Open connects to display (empty for $DISPLAY) and selects substructure
// notifications on the root window.
func Open(display string, logger *slog.Logger) (*Conn, error) {
	if logger == nil {
		logger = slog.Default()
	}

	xu, err := xgbutil.NewConnDisplay(display)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}

	c := &Conn{
		xu:     xu,
		root:   xu.RootWin(),
		logger: logger,
	}

	if err := composite.Init(xu.Conn()); err != nil {
		logger.Warn("composite extension unavailable, render mode switching disabled", "error", err)
	} else {
		c.composite = true
	}
	if err := shape.Init(xu.Conn()); err != nil {
		logger.Warn("shape extension unavailable, surfaces treated as rectangular", "error", err)
	} else {
		c.shape = true
	}

	if err := damage.Init(xu.Conn()); err != nil {
		logger.Warn("damage extension unavailable, surfaces count as painted once mapped", "error", err)
	} else if _, err := damage.QueryVersion(xu.Conn(), 1, 1).Reply(); err != nil {
		logger.Warn("failed to negotiate damage version", "error", err)
	} else {
		c.damage = true
	}

	mask := xproto.EventMaskSubstructureNotify | xproto.EventMaskPropertyChange
	if err := xwindow.New(xu, c.root).Listen(mask); err != nil {
		xu.Conn().Close()
		return nil, fmt.Errorf("failed to select root events: %w", err)
	}

	logger.Debug("connected to X server", "root", c.Root(), "composite", c.composite, "shape", c.shape, "damage", c.damage)
	return c, nil
}

// XUtil returns the underlying connection.
func (c *Conn) XUtil() *xgbutil.XUtil { return c.xu }

// Root returns the root window.
func (c *Conn) Root() model.SurfaceID { return model.SurfaceID(c.root) }

// Screen returns the root window geometry.
func (c *Conn) Screen() model.Rect {
	s := c.xu.Screen()
	return model.Rect{W: int(s.WidthInPixels), H: int(s.HeightInPixels)}
}

// HasShape reports whether the shape extension is available.
func (c *Conn) HasShape() bool { return c.shape }

// Ignore reports surfaces the core must never track: the composite
// overlay window.
func (c *Conn) Ignore(id model.SurfaceID) bool {
	overlay := c.overlay.Load()
	return overlay != 0 && uint32(id) == overlay
}

// Close closes the connection. A blocked event reader returns.
func (c *Conn) Close() {
	c.xu.Conn().Close()
}

// Restack implements executor.Server. The request is checked, so its
// error can be collected after the whole batch was sent.
func (c *Conn) Restack(op model.StackOp) executor.Request {
	win := xproto.Window(op.Below)
	if op.Above == model.None {
		return xproto.ConfigureWindowChecked(c.xu.Conn(), win,
			xproto.ConfigWindowStackMode, []uint32{xproto.StackModeAbove})
	}
	return xproto.ConfigureWindowChecked(c.xu.Conn(), win,
		xproto.ConfigWindowSibling|xproto.ConfigWindowStackMode,
		[]uint32{uint32(op.Above), xproto.StackModeBelow})
}

// QueryStack implements eventsync.Querier.
func (c *Conn) QueryStack() ([]model.SurfaceID, uint64, error) {
	reply, err := xproto.QueryTree(c.xu.Conn(), c.root).Reply()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query window tree: %w", err)
	}
	serial := c.serials.extend(reply.Sequence)

	seq := make([]model.SurfaceID, 0, len(reply.Children))
	for _, w := range reply.Children {
		seq = append(seq, model.SurfaceID(w))
	}
	return slices.DeleteFunc(seq, c.Ignore), serial, nil
}
