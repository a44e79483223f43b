package x11

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/compstack/internal/model"
)

type fakeReader map[model.SurfaceID]rawProperties

func (f fakeReader) Read(id model.SurfaceID) (rawProperties, error) {
	raw, ok := f[id]
	if !ok {
		return rawProperties{}, errors.New("BadWindow")
	}
	return raw, nil
}

var testClasses = Classes{Desktop: "meego-home", Decorator: "decorator"}

func TestAttributesFrom(t *testing.T) {
	screen := model.Rect{W: 800, H: 480}

	tests := []struct {
		name  string
		raw   rawProperties
		check func(t *testing.T, a model.Attributes)
	}{
		{
			name: "plain application",
			raw:  rawProperties{Viewable: true, Depth: 24, Geometry: screen, HasWMState: true, WMState: 1},
			check: func(t *testing.T, a model.Attributes) {
				assert.True(t, a.Mapped)
				assert.True(t, a.Opaque())
				assert.Equal(t, model.TypeNormal, a.Type)
				assert.Equal(t, model.StateNormal, a.State)
				assert.True(t, a.NeedsDecoration)
				assert.True(t, a.IsApplication())
			},
		},
		{
			name: "argb fullscreen",
			raw: rawProperties{Viewable: true, Depth: 32, Geometry: screen,
				NetState: []string{"_NET_WM_STATE_FULLSCREEN", "_NET_WM_STATE_ABOVE"}},
			check: func(t *testing.T, a model.Attributes) {
				assert.True(t, a.HasAlpha)
				assert.False(t, a.Opaque())
				assert.True(t, a.Fullscreen)
				assert.True(t, a.Above)
				assert.False(t, a.NeedsDecoration)
			},
		},
		{
			name: "iconic",
			raw:  rawProperties{HasWMState: true, WMState: 3},
			check: func(t *testing.T, a model.Attributes) {
				assert.Equal(t, model.StateIconic, a.State)
			},
		},
		{
			name: "unmapped without WM_STATE is withdrawn",
			raw:  rawProperties{},
			check: func(t *testing.T, a model.Attributes) {
				assert.Equal(t, model.StateWithdrawn, a.State)
			},
		},
		{
			name: "untyped transient is a dialog",
			raw:  rawProperties{Viewable: true, TransientFor: 0x10, NetState: []string{"_NET_WM_STATE_MODAL"}},
			check: func(t *testing.T, a model.Attributes) {
				assert.Equal(t, model.TypeDialog, a.Type)
				assert.True(t, a.Modal)
				assert.True(t, a.NeedsDecoration)
			},
		},
		{
			name: "typed transient menu is not decorated",
			raw:  rawProperties{TransientFor: 0x10, WindowType: []string{"_NET_WM_WINDOW_TYPE_POPUP_MENU"}},
			check: func(t *testing.T, a model.Attributes) {
				assert.Equal(t, model.TypeMenu, a.Type)
				assert.False(t, a.NeedsDecoration)
			},
		},
		{
			name: "first known type wins",
			raw:  rawProperties{WindowType: []string{"_KDE_NET_WM_WINDOW_TYPE_OVERRIDE", "_NET_WM_WINDOW_TYPE_DOCK", "_NET_WM_WINDOW_TYPE_NORMAL"}},
			check: func(t *testing.T, a model.Attributes) {
				assert.Equal(t, model.TypeDock, a.Type)
			},
		},
		{
			name: "override redirect without type",
			raw:  rawProperties{OverrideRedirect: true},
			check: func(t *testing.T, a model.Attributes) {
				assert.Equal(t, model.TypeUnknown, a.Type)
				assert.False(t, a.IsApplication())
			},
		},
		{
			name: "desktop by class",
			raw:  rawProperties{Class: "Meego-Home"},
			check: func(t *testing.T, a model.Attributes) {
				assert.Equal(t, model.TypeDesktop, a.Type)
			},
		},
		{
			name: "decorator by class or property",
			raw:  rawProperties{Class: "decorator"},
			check: func(t *testing.T, a model.Attributes) {
				assert.True(t, a.IsDecorator)
				assert.False(t, a.NeedsDecoration)
			},
		},
		{
			name: "stacking layer is clamped",
			raw:  rawProperties{Layer: 42, Decorator: true, AlwaysMapped: true, LowPower: true},
			check: func(t *testing.T, a model.Attributes) {
				assert.Equal(t, 6, a.StackingLayer)
				assert.True(t, a.IsDecorator)
				assert.True(t, a.AlwaysMapped)
				assert.True(t, a.LowPower)
			},
		},
		{
			name: "full bounding shape is not a shape",
			raw:  rawProperties{Geometry: screen, Shape: []model.Rect{screen}},
			check: func(t *testing.T, a model.Attributes) {
				assert.True(t, a.Shape.Empty())
			},
		},
		{
			name: "partial shape",
			raw:  rawProperties{Geometry: screen, Shape: []model.Rect{{W: 100, H: 100}}},
			check: func(t *testing.T, a model.Attributes) {
				assert.Equal(t, 100*100, a.ShapeRegion().Area())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, attributesFrom(tt.raw, testClasses))
		})
	}
}

func TestPropertyCache(t *testing.T) {
	reader := fakeReader{
		1: {Viewable: true, Geometry: model.Rect{W: 10, H: 10}, Shape: []model.Rect{{W: 5, H: 5}}},
	}
	c := newPropertyCache(reader, testClasses, nil)

	require.NoError(t, c.Refresh(1))
	a, ok := c.Attributes(1)
	require.True(t, ok)
	assert.True(t, a.Mapped)

	c.Update(1, func(a *model.Attributes) { a.Transitioning = true })
	c.SetMapped(1, false)
	require.NoError(t, c.Refresh(1))
	a, _ = c.Attributes(1)
	assert.True(t, a.Transitioning, "transition flags survive a refresh")
	assert.True(t, a.Mapped)

	assert.True(t, c.SetGeometry(1, model.Rect{X: 20, Y: 30, W: 10, H: 10}))
	assert.False(t, c.SetGeometry(1, model.Rect{X: 20, Y: 30, W: 10, H: 10}))
	a, _ = c.Attributes(1)
	assert.Equal(t, model.Region{{X: 20, Y: 30, W: 5, H: 5}}, a.Shape)

	c.SetMapped(1, false)
	a, _ = c.Attributes(1)
	assert.False(t, a.Mapped)

	// Unknown surfaces are not created by partial updates.
	c.SetMapped(2, true)
	_, ok = c.Attributes(2)
	assert.False(t, ok)

	// A surface the server no longer knows is dropped.
	delete(reader, 1)
	assert.Error(t, c.Refresh(1))
	assert.Equal(t, 0, c.Len())
}

func TestPropertyCache_MapSequence(t *testing.T) {
	reader := fakeReader{
		1: {Viewable: true},
		2: {},
		3: {},
	}
	c := newPropertyCache(reader, testClasses, nil)
	for _, id := range []model.SurfaceID{1, 2, 3} {
		require.NoError(t, c.Refresh(id))
	}

	seq := func(id model.SurfaceID) uint64 {
		a, _ := c.Attributes(id)
		return a.MapSeq
	}
	assert.Equal(t, uint64(1), seq(1), "viewable when first seen")
	assert.Zero(t, seq(2))

	c.SetMapped(3, true)
	c.SetMapped(2, true)
	assert.Less(t, seq(3), seq(2))

	// A refresh keeps the stamp; a new mapping renews it.
	require.NoError(t, c.Refresh(3))
	assert.Less(t, seq(3), seq(2))
	c.SetMapped(3, false)
	c.SetMapped(3, true)
	assert.Greater(t, seq(3), seq(2))

	assert.False(t, c.MarkPainted(99))
	assert.True(t, c.MarkPainted(3))
	assert.False(t, c.MarkPainted(3))
	c.SetMapped(3, false)
	assert.False(t, c.MarkPainted(3), "unmapped surfaces are not painted")
}
