package x11

import (
	"github.com/jezek/xgb"
	"github.com/jezek/xgb/damage"
	"github.com/jezek/xgb/xproto"
)

// paintTracker watches newly mapped windows for their first damage. A
// window counts as painted once the server reports any damage on it, and
// its damage object is then released.
type paintTracker struct {
	create  func(win xproto.Window) (damage.Damage, error)
	destroy func(d damage.Damage)
	pending map[xproto.Window]damage.Damage
}

func newPaintTracker(c *xgb.Conn) *paintTracker {
	return &paintTracker{
		create: func(win xproto.Window) (damage.Damage, error) {
			d, err := damage.NewDamageId(c)
			if err != nil {
				return 0, err
			}
			if err := damage.CreateChecked(c, d, xproto.Drawable(win), damage.ReportLevelNonEmpty).Check(); err != nil {
				return 0, err
			}
			return d, nil
		},
		destroy: func(d damage.Damage) {
			damage.Destroy(c, d)
		},
		pending: make(map[xproto.Window]damage.Damage),
	}
}

// watch starts waiting for win's first frame. A window already watched
// keeps its damage object.
func (t *paintTracker) watch(win xproto.Window) error {
	if _, ok := t.pending[win]; ok {
		return nil
	}
	d, err := t.create(win)
	if err != nil {
		return err
	}
	t.pending[win] = d
	return nil
}

// painted handles a damage notification and reports whether it was the
// first one for a watched window.
func (t *paintTracker) painted(win xproto.Window) bool {
	d, ok := t.pending[win]
	if !ok {
		return false
	}
	delete(t.pending, win)
	t.destroy(d)
	return true
}

// cancel stops watching an unmapped window. A destroyed window's damage
// object is freed by the server, so gone skips the request.
func (t *paintTracker) cancel(win xproto.Window, gone bool) {
	d, ok := t.pending[win]
	if !ok {
		return
	}
	delete(t.pending, win)
	if !gone {
		t.destroy(d)
	}
}
