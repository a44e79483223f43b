package daemon

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jmylchreest/compstack/internal/model"
)

type recordingListener struct {
	calls     []string
	forgotten []model.SurfaceID
}

func (l *recordingListener) Forget(id model.SurfaceID) {
	l.forgotten = append(l.forgotten, id)
}

func (l *recordingListener) CompositingChanged(enabled bool) {
	if enabled {
		l.calls = append(l.calls, "compositing on")
	} else {
		l.calls = append(l.calls, "compositing off")
	}
}

func (l *recordingListener) DirectRenderChanged(id model.SurfaceID, direct bool) {
	l.calls = append(l.calls, id.String()+" direct")
	if !direct {
		l.calls[len(l.calls)-1] = id.String() + " composited"
	}
}

func (l *recordingListener) ObscuredChanged(id model.SurfaceID, obscured bool) {
	if obscured {
		l.calls = append(l.calls, id.String()+" obscured")
	} else {
		l.calls = append(l.calls, id.String()+" visible")
	}
}

func TestRenderMode_String(t *testing.T) {
	assert.Equal(t, "composited", RenderComposited.String())
	assert.Equal(t, "direct", RenderDirect.String())
	assert.Equal(t, "unknown", RenderMode(7).String())
}

func TestDisplayStateManager_Transitions(t *testing.T) {
	next := &recordingListener{}
	m := NewDisplayStateManager(next)

	m.CompositingChanged(false)
	m.DirectRenderChanged(2, true)
	m.ObscuredChanged(1, true)
	m.ObscuredChanged(2, false)

	sum := m.Summary()
	assert.False(t, sum.Compositing)
	assert.False(t, sum.Since.IsZero())
	assert.Equal(t, 2, sum.Surfaces)
	assert.Equal(t, 1, sum.Direct)
	assert.Equal(t, 1, sum.Obscured)
	assert.Equal(t, 1, sum.Switches)

	assert.Equal(t, []string{
		"compositing off",
		"0x2 direct",
		"0x1 obscured",
		"0x2 visible",
	}, next.calls)

	m.DirectRenderChanged(2, false)
	m.DirectRenderChanged(2, false)
	sum = m.Summary()
	assert.Zero(t, sum.Direct)
	assert.Equal(t, 2, sum.Switches)

	m.Forget(2)
	sum = m.Summary()
	assert.Equal(t, 1, sum.Surfaces)
	assert.Zero(t, sum.Switches)
	assert.Equal(t, []model.SurfaceID{2}, next.forgotten)
}

func TestDisplayStateManager_NilNext(t *testing.T) {
	m := NewDisplayStateManager(nil)
	assert.NotPanics(t, func() {
		m.CompositingChanged(true)
		m.DirectRenderChanged(5, true)
		m.ObscuredChanged(5, true)
		m.Forget(6)
	})
	assert.Equal(t, 1, m.Summary().Direct)
}
