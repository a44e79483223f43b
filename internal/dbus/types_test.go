package dbus

import (
	"context"
	"errors"
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/compstack/internal/model"
)

func TestParseDisplayState(t *testing.T) {
	tests := []struct {
		input   string
		want    DisplayState
		off     bool
		wantErr bool
	}{
		{input: "on", want: DisplayOn},
		{input: "dimmed", want: DisplayDimmed},
		{input: " OFF ", want: DisplayOff, off: true},
		{input: "lpm", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDisplayState(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.off, got.IsOff())
		})
	}
}

func TestWireConversion(t *testing.T) {
	ids := []model.SurfaceID{0x1, 0x2a00003}
	wire := toWire(ids)
	assert.Equal(t, []uint32{1, 0x2a00003}, wire)
	assert.Equal(t, ids, FromWire(wire))
	assert.Empty(t, toWire(nil))
}

func TestDisplayStatus(t *testing.T) {
	tests := []struct {
		name   string
		sig    *dbus.Signal
		status string
		ok     bool
	}{
		{
			name:   "display_status_ind",
			sig:    &dbus.Signal{Name: "com.nokia.mce.signal.display_status_ind", Body: []any{"off"}},
			status: "off",
			ok:     true,
		},
		{
			name: "other member",
			sig:  &dbus.Signal{Name: "com.nokia.mce.signal.tklock_mode_ind", Body: []any{"locked"}},
		},
		{
			name: "empty body",
			sig:  &dbus.Signal{Name: "com.nokia.mce.signal.display_status_ind"},
		},
		{
			name: "wrong type",
			sig:  &dbus.Signal{Name: "com.nokia.mce.signal.display_status_ind", Body: []any{uint32(1)}},
		},
		{
			name: "nil",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, ok := displayStatus(tt.sig)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.status, status)
		})
	}
}

func TestMCEMonitor_Update(t *testing.T) {
	m := NewMCEMonitor(nil)
	var seen []DisplayState
	m.SetHandler(func(s DisplayState) { seen = append(seen, s) })

	m.update("on") // initial state, no change
	m.update("dimmed")
	m.update("bogus")
	m.update("off")
	m.update("off")

	assert.Equal(t, []DisplayState{DisplayDimmed, DisplayOff}, seen)
}

type fakeBackend struct {
	stacking  []model.SurfaceID
	mapped    []model.SurfaceID
	err       error
	calls     int
	animating []bool
}

func (b *fakeBackend) Stacking() []model.SurfaceID       { return b.stacking }
func (b *fakeBackend) MappedStacking() []model.SurfaceID { return b.mapped }
func (b *fakeBackend) Compositing() bool                 { return true }
func (b *fakeBackend) SetAnimating(on bool)              { b.animating = append(b.animating, on) }
func (b *fakeBackend) Stats() map[string]any {
	return map[string]any{"passes": uint32(3), "strategy": "aggressive"}
}

func (b *fakeBackend) Reconcile(context.Context) error {
	b.calls++
	return b.err
}

func TestStackingServer_Methods(t *testing.T) {
	backend := &fakeBackend{stacking: []model.SurfaceID{1, 2}, mapped: []model.SurfaceID{1, 2, 3}}
	s := NewStackingServer(backend, nil)

	stacking, derr := s.GetStacking()
	assert.Nil(t, derr)
	assert.Equal(t, []uint32{1, 2}, stacking)

	mapped, derr := s.GetMappedStacking()
	assert.Nil(t, derr)
	assert.Equal(t, []uint32{1, 2, 3}, mapped)

	on, derr := s.IsCompositing()
	assert.Nil(t, derr)
	assert.True(t, on)

	stats, derr := s.GetStats()
	assert.Nil(t, derr)
	assert.Equal(t, uint32(3), stats["passes"].Value())
	assert.Equal(t, "aggressive", stats["strategy"].Value())

	assert.Nil(t, s.SetAnimating(true))
	assert.Nil(t, s.SetAnimating(false))
	assert.Equal(t, []bool{true, false}, backend.animating)

	assert.Nil(t, s.Reconcile())
	backend.err = errors.New("reconciler stopped")
	assert.NotNil(t, s.Reconcile())
	assert.Equal(t, 2, backend.calls)
}

func TestStackingServer_EmitWithoutBus(t *testing.T) {
	s := NewStackingServer(&fakeBackend{}, nil)
	assert.Error(t, s.EmitStackingChanged([]model.SurfaceID{1}))
	assert.Error(t, s.EmitMappedStackingChanged([]model.SurfaceID{1, 2}))
	assert.NotPanics(t, func() {
		s.CompositingChanged(true)
		s.DirectRenderChanged(1, true)
		s.ObscuredChanged(1, true)
	})
	assert.NoError(t, s.Stop())
}

func TestIntrospection(t *testing.T) {
	methods := stackingMethods()
	names := make([]string, len(methods))
	for i, m := range methods {
		names[i] = m.Name
	}
	assert.Equal(t, []string{"GetStacking", "GetMappedStacking", "IsCompositing", "SetAnimating", "Reconcile", "GetStats"}, names)
	assert.Equal(t, "in", methods[3].Args[0].Direction)

	signals := stackingSignals()
	require.Len(t, signals, 4)
	assert.Equal(t, "MappedStackingChanged", signals[1].Name)
	assert.Equal(t, "DirectRenderChanged", signals[3].Name)
	assert.Equal(t, "u", signals[3].Args[0].Type)
}
