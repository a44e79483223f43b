package daemon

import (
	"sync"
	"time"

	"github.com/jmylchreest/compstack/internal/gate"
	"github.com/jmylchreest/compstack/internal/model"
)

// RenderMode is how a surface reaches the screen.
type RenderMode int

const (
	// RenderComposited means the surface is redirected and painted by the
	// compositor.
	RenderComposited RenderMode = iota
	// RenderDirect means the surface is unredirected and scanned out
	// directly.
	RenderDirect
)

// String returns the string representation of RenderMode.
func (m RenderMode) String() string {
	switch m {
	case RenderComposited:
		return "composited"
	case RenderDirect:
		return "direct"
	default:
		return "unknown"
	}
}

// DisplayState tracks how one surface is currently shown.
type DisplayState struct {
	Surface   model.SurfaceID
	Mode      RenderMode
	Obscured  bool
	Since     time.Time // When Mode last changed
	Switches  int       // Number of mode changes
	UpdatedAt time.Time
}

// DisplayStateManager records the gate's transitions per surface, so that
// the render side and status queries agree on what was last reported.
// It implements gate.Listener and forwards every transition to next.
type DisplayStateManager struct {
	mu sync.RWMutex

	bySurface   map[model.SurfaceID]*DisplayState
	compositing bool
	switchedAt  time.Time

	next gate.Listener
}

// NewDisplayStateManager creates a new DisplayStateManager. next may be nil.
func NewDisplayStateManager(next gate.Listener) *DisplayStateManager {
	return &DisplayStateManager{
		bySurface: make(map[model.SurfaceID]*DisplayState),
		next:      next,
	}
}

func (m *DisplayStateManager) entry(id model.SurfaceID, now time.Time) *DisplayState {
	st, ok := m.bySurface[id]
	if !ok {
		st = &DisplayState{Surface: id, Since: now}
		m.bySurface[id] = st
	}
	st.UpdatedAt = now
	return st
}

// CompositingChanged implements gate.Listener.
func (m *DisplayStateManager) CompositingChanged(enabled bool) {
	m.mu.Lock()
	m.compositing = enabled
	m.switchedAt = time.Now()
	m.mu.Unlock()

	if m.next != nil {
		m.next.CompositingChanged(enabled)
	}
}

// DirectRenderChanged implements gate.Listener.
func (m *DisplayStateManager) DirectRenderChanged(id model.SurfaceID, direct bool) {
	mode := RenderComposited
	if direct {
		mode = RenderDirect
	}

	m.mu.Lock()
	now := time.Now()
	st := m.entry(id, now)
	if st.Mode != mode {
		st.Mode = mode
		st.Since = now
		st.Switches++
	}
	m.mu.Unlock()

	if m.next != nil {
		m.next.DirectRenderChanged(id, direct)
	}
}

// ObscuredChanged implements gate.Listener.
func (m *DisplayStateManager) ObscuredChanged(id model.SurfaceID, obscured bool) {
	m.mu.Lock()
	m.entry(id, time.Now()).Obscured = obscured
	m.mu.Unlock()

	if m.next != nil {
		m.next.ObscuredChanged(id, obscured)
	}
}

// Forget drops a destroyed surface. It implements gate.Forgetter.
func (m *DisplayStateManager) Forget(id model.SurfaceID) {
	m.mu.Lock()
	delete(m.bySurface, id)
	m.mu.Unlock()

	if f, ok := m.next.(gate.Forgetter); ok {
		f.Forget(id)
	}
}

// DisplaySummary counts the surfaces by how they were last reported.
type DisplaySummary struct {
	Compositing bool
	Since       time.Time // When compositing last switched
	Surfaces    int
	Direct      int
	Obscured    int
	Switches    int // Render mode changes over all tracked surfaces
}

// Summary returns the current counts.
func (m *DisplayStateManager) Summary() DisplaySummary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sum := DisplaySummary{
		Compositing: m.compositing,
		Since:       m.switchedAt,
		Surfaces:    len(m.bySurface),
	}
	for _, st := range m.bySurface {
		if st.Mode == RenderDirect {
			sum.Direct++
		}
		if st.Obscured {
			sum.Obscured++
		}
		sum.Switches += st.Switches
	}
	return sum
}
