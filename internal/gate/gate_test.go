package gate

import (
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/compstack/internal/model"
)

var screen = model.Rect{W: 800, H: 480}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ids(v ...int) []model.SurfaceID {
	out := make([]model.SurfaceID, len(v))
	for i, x := range v {
		out[i] = model.SurfaceID(x)
	}
	return out
}

func fullscreen(typ model.WindowType) model.Attributes {
	return model.Attributes{
		Mapped:   true,
		Painted:  true,
		Type:     typ,
		State:    model.StateNormal,
		Geometry: screen,
	}
}

func with(a model.Attributes, fn func(*model.Attributes)) model.Attributes {
	fn(&a)
	return a
}

type recorder struct {
	events []string
}

func (r *recorder) CompositingChanged(enabled bool) {
	r.events = append(r.events, fmt.Sprintf("compositing=%t", enabled))
}

func (r *recorder) DirectRenderChanged(id model.SurfaceID, direct bool) {
	r.events = append(r.events, fmt.Sprintf("direct %s=%t", id, direct))
}

func (r *recorder) ObscuredChanged(id model.SurfaceID, obscured bool) {
	r.events = append(r.events, fmt.Sprintf("obscured %s=%t", id, obscured))
}

func (r *recorder) take() []string {
	ev := r.events
	r.events = nil
	return ev
}

func TestScenarios(t *testing.T) {
	attrs := model.Snapshot{
		1: fullscreen(model.TypeDesktop),
		2: fullscreen(model.TypeNormal),
		3: with(fullscreen(model.TypeNotification), func(a *model.Attributes) {
			a.HasAlpha = true
			a.Geometry = model.Rect{X: 0, Y: 0, W: 800, H: 60}
		}),
	}
	rec := &recorder{}
	g := New(rec, quietLogger())

	// A: desktop alone.
	d := g.Apply(Input{Order: ids(1), Attrs: attrs, Screen: screen})
	assert.False(t, d.Compositing)
	assert.Equal(t, ids(1), d.Direct)
	assert.Equal(t, []string{"compositing=false", "direct 0x1=true", "obscured 0x1=false"}, rec.take())

	// B: opaque fullscreen application on top.
	d = g.Apply(Input{Order: ids(1, 2), Attrs: attrs, Screen: screen})
	assert.False(t, d.Compositing)
	assert.Equal(t, ids(2), d.Direct)
	assert.Equal(t, 1, d.Covering)
	assert.Equal(t, []string{
		"direct 0x1=false",
		"direct 0x2=true",
		"obscured 0x1=true",
		"obscured 0x2=false",
	}, rec.take())

	// C: translucent notification above it.
	d = g.Apply(Input{Order: ids(1, 2, 3), Attrs: attrs, Screen: screen})
	assert.True(t, d.Compositing)
	assert.Empty(t, d.Direct)
	assert.False(t, d.IsDirect(2))
	assert.False(t, d.Obscured[3])
	assert.Equal(t, []string{
		"direct 0x2=false",
		"compositing=true",
		"obscured 0x3=false",
	}, rec.take())
	assert.True(t, g.Compositing())
	assert.Empty(t, g.Direct())
}

func TestApply_EdgeTriggered(t *testing.T) {
	attrs := model.Snapshot{1: fullscreen(model.TypeDesktop), 2: fullscreen(model.TypeNormal)}
	rec := &recorder{}
	g := New(rec, quietLogger())

	in := Input{Order: ids(1, 2), Attrs: attrs, Screen: screen}
	g.Apply(in)
	require.NotEmpty(t, rec.take())

	g.Apply(in)
	g.Apply(in)
	assert.Empty(t, rec.take())

	g.ResetVisibility()
	g.Apply(in)
	assert.Equal(t, []string{"obscured 0x1=true", "obscured 0x2=false"}, rec.take())
}

func TestApply_ForgetsRemovedSurfaces(t *testing.T) {
	attrs := model.Snapshot{1: fullscreen(model.TypeDesktop), 2: fullscreen(model.TypeNormal)}
	rec := &recorder{}
	g := New(rec, quietLogger())

	g.Apply(Input{Order: ids(1, 2), Attrs: attrs, Screen: screen})
	rec.take()

	// Surface 2 is destroyed; no transition is reported for it.
	g.Forget(2)
	g.Apply(Input{Order: ids(1), Attrs: attrs, Screen: screen})
	assert.Equal(t, []string{"direct 0x1=true", "obscured 0x1=false"}, rec.take())
}

type forgetList []model.SurfaceID

func (f *forgetList) Forget(id model.SurfaceID) { *f = append(*f, id) }

func TestForget_ReachesForgetters(t *testing.T) {
	forgotten := &forgetList{}
	listeners := Listeners{ListenerFuncs{}, struct {
		ListenerFuncs
		*forgetList
	}{forgetList: forgotten}}
	g := New(listeners, quietLogger())

	g.Forget(7)
	assert.Equal(t, forgetList{7}, *forgotten)
}

func TestEvaluate(t *testing.T) {
	desk := fullscreen(model.TypeDesktop)
	opaque := fullscreen(model.TypeNormal)

	tests := []struct {
		name        string
		in          Input
		compositing bool
		direct      []model.SurfaceID
	}{
		{
			name:        "nothing mapped",
			in:          Input{Order: ids(1), Attrs: model.Snapshot{1: with(desk, func(a *model.Attributes) { a.Mapped = false })}},
			compositing: false,
		},
		{
			name: "nothing mapped during transition",
			in: Input{
				Order:         ids(1),
				Attrs:         model.Snapshot{1: with(desk, func(a *model.Attributes) { a.Mapped = false })},
				Transitioning: true,
			},
			compositing: true,
		},
		{
			name:        "display off",
			in:          Input{Order: ids(1, 2), Attrs: model.Snapshot{1: desk, 2: opaque}, DisplayOff: true},
			compositing: true,
		},
		{
			name:        "splash active",
			in:          Input{Order: ids(1, 2), Attrs: model.Snapshot{1: desk, 2: opaque}, SplashActive: true},
			compositing: true,
		},
		{
			name:        "forced",
			in:          Input{Order: ids(1, 2), Attrs: model.Snapshot{1: desk, 2: opaque}, Forced: true},
			compositing: true,
		},
		{
			name:        "closing surface",
			in:          Input{Order: ids(1, 2, 3), Attrs: model.Snapshot{1: desk, 2: opaque, 3: with(opaque, func(a *model.Attributes) { a.Mapped = false; a.Closing = true })}},
			compositing: true,
		},
		{
			name:        "unpainted surface",
			in:          Input{Order: ids(1, 2), Attrs: model.Snapshot{1: desk, 2: with(opaque, func(a *model.Attributes) { a.Painted = false })}},
			compositing: true,
		},
		{
			name:        "surface not covering the screen",
			in:          Input{Order: ids(1, 2), Attrs: model.Snapshot{1: desk, 2: with(opaque, func(a *model.Attributes) { a.Geometry.W = 400 })}},
			compositing: true,
		},
		{
			name:        "shaped surface",
			in:          Input{Order: ids(1, 2), Attrs: model.Snapshot{1: desk, 2: with(opaque, func(a *model.Attributes) { a.Shape = model.Region{{W: 800, H: 400}} })}},
			compositing: true,
		},
		{
			name:        "decorated surface",
			in:          Input{Order: ids(1, 2), Attrs: model.Snapshot{1: desk, 2: with(opaque, func(a *model.Attributes) { a.NeedsDecoration = true })}},
			compositing: true,
		},
		{
			name:        "translucent by opacity",
			in:          Input{Order: ids(1, 2), Attrs: model.Snapshot{1: desk, 2: with(opaque, func(a *model.Attributes) { a.Opacity = 0.8 })}},
			compositing: true,
		},
		{
			name:        "unmapped surfaces above are skipped",
			in:          Input{Order: ids(1, 2, 3), Attrs: model.Snapshot{1: desk, 2: opaque, 3: with(opaque, func(a *model.Attributes) { a.Mapped = false; a.HasAlpha = true })}},
			direct:      ids(2),
			compositing: false,
		},
		{
			name:        "input only surfaces are skipped",
			in:          Input{Order: ids(1, 2, 3), Attrs: model.Snapshot{1: desk, 2: opaque, 3: with(opaque, func(a *model.Attributes) { a.InputOnly = true })}},
			direct:      ids(2),
			compositing: false,
		},
		{
			name:        "splash skipped without active splash",
			in:          Input{Order: ids(1, 2, 3), Attrs: model.Snapshot{1: desk, 2: opaque, 3: with(opaque, func(a *model.Attributes) { a.Type = model.TypeSplash; a.HasAlpha = true })}},
			direct:      ids(2),
			compositing: false,
		},
		{
			name:        "surface being mapped",
			in:          Input{Order: ids(1, 2, 3), Attrs: model.Snapshot{1: desk, 2: opaque, 3: with(opaque, func(a *model.Attributes) { a.Mapped = false; a.BeingMapped = true })}},
			compositing: true,
		},
		{
			name: "input method over animating parent",
			in: Input{Order: ids(1, 2, 3), Attrs: model.Snapshot{
				1: desk,
				2: with(opaque, func(a *model.Attributes) { a.Transitioning = true }),
				3: with(opaque, func(a *model.Attributes) { a.Type = model.TypeInput; a.TransientFor = 2 }),
			}},
			compositing: true,
		},
		{
			name:        "direct candidate during transition",
			in:          Input{Order: ids(1, 2), Attrs: model.Snapshot{1: desk, 2: opaque}, Transitioning: true},
			compositing: true,
		},
		{
			name: "docks and override redirect above go direct",
			in: Input{Order: ids(1, 2, 3, 4, 5), Attrs: model.Snapshot{
				1: desk,
				2: with(opaque, func(a *model.Attributes) { a.Type = model.TypeDock; a.Geometry = model.Rect{W: 10, H: 10} }),
				3: opaque,
				4: with(opaque, func(a *model.Attributes) { a.Type = model.TypeDock; a.Mapped = false }),
				5: with(opaque, func(a *model.Attributes) { a.OverrideRedirect = true; a.Mapped = false }),
			}},
			direct:      ids(3),
			compositing: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.in.Screen = screen
			d := Evaluate(tt.in)
			assert.Equal(t, tt.compositing, d.Compositing, d.Reason)
			assert.Equal(t, tt.direct, d.Direct)
			assert.NotEmpty(t, d.Reason)
		})
	}
}

func TestEvaluate_PromotesDockAboveDirectSurface(t *testing.T) {
	attrs := model.Snapshot{
		1: fullscreen(model.TypeDesktop),
		2: fullscreen(model.TypeNormal),
		3: with(fullscreen(model.TypeDock), func(a *model.Attributes) { a.InputOnly = true }),
	}
	// The dock is input only, so the scan passes it; it still goes direct.
	d := Evaluate(Input{Order: ids(1, 2, 3), Attrs: attrs, Screen: screen})
	assert.False(t, d.Compositing)
	assert.Equal(t, ids(2, 3), d.Direct)

	d = Evaluate(Input{Order: ids(1, 2, 3), Attrs: attrs, Screen: screen, CompositeDocks: true})
	assert.True(t, d.Compositing)
	assert.Equal(t, "dock above direct surface", d.Reason)
}

func TestCoveringIndexAndVisibility(t *testing.T) {
	half := func(y int) model.Attributes {
		return with(fullscreen(model.TypeNormal), func(a *model.Attributes) {
			a.Geometry = model.Rect{Y: y, W: 800, H: 240}
		})
	}
	attrs := model.Snapshot{
		1: fullscreen(model.TypeDesktop),
		2: fullscreen(model.TypeNormal),
		3: half(0),
		4: half(240),
		5: with(fullscreen(model.TypeNormal), func(a *model.Attributes) { a.HasAlpha = true }),
	}
	in := Input{Order: ids(1, 2, 3, 4, 5), Attrs: attrs, Screen: screen}

	assert.Equal(t, 2, CoveringIndex(in))

	d := Evaluate(in)
	assert.Equal(t, map[model.SurfaceID]bool{1: true, 2: true, 3: false, 4: false, 5: false}, d.Obscured)

	t.Run("desktop stops the scan", func(t *testing.T) {
		assert.Equal(t, 0, CoveringIndex(Input{Order: ids(1, 5), Attrs: attrs, Screen: screen}))
	})

	t.Run("transitioning surfaces stay unobscured", func(t *testing.T) {
		a := model.Snapshot{}
		for k, v := range attrs {
			a[k] = v
		}
		a[2] = with(a[2], func(x *model.Attributes) { x.Transitioning = true })
		d := Evaluate(Input{Order: ids(1, 2, 3, 4, 5), Attrs: a, Screen: screen})
		assert.False(t, d.Obscured[2])
		assert.True(t, d.Obscured[1])
	})

	t.Run("parent of an input method stays unobscured", func(t *testing.T) {
		a := model.Snapshot{}
		for k, v := range attrs {
			a[k] = v
		}
		a[6] = with(fullscreen(model.TypeInput), func(x *model.Attributes) { x.TransientFor = 2; x.InputOnly = true })
		d := Evaluate(Input{Order: ids(1, 2, 3, 4, 5, 6), Attrs: a, Screen: screen})
		assert.False(t, d.Obscured[2])
	})

	t.Run("display off keeps only low power surfaces visible", func(t *testing.T) {
		a := model.Snapshot{}
		for k, v := range attrs {
			a[k] = v
		}
		a[4] = with(a[4], func(x *model.Attributes) { x.LowPower = true })
		a[2] = with(a[2], func(x *model.Attributes) { x.LowPower = true })
		d := Evaluate(Input{Order: ids(1, 2, 3, 4, 5), Attrs: a, Screen: screen, DisplayOff: true})
		assert.True(t, d.Compositing)
		assert.Equal(t, map[model.SurfaceID]bool{1: true, 2: true, 3: true, 4: false, 5: true}, d.Obscured)
	})
}

func TestListeners_FanOut(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	var compositing []bool
	ls := Listeners{a, b, ListenerFuncs{Compositing: func(on bool) { compositing = append(compositing, on) }}}

	ls.CompositingChanged(true)
	ls.DirectRenderChanged(2, true)
	ls.ObscuredChanged(1, true)

	want := []string{"compositing=true", "direct 0x2=true", "obscured 0x1=true"}
	assert.Equal(t, want, a.take())
	assert.Equal(t, want, b.take())
	assert.Equal(t, []bool{true}, compositing)
}
