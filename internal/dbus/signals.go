package dbus

import (
	"fmt"

	"github.com/jmylchreest/compstack/internal/model"
)

// EmitStackingChanged emits the StackingChanged signal.
func (s *StackingServer) EmitStackingChanged(stacking []model.SurfaceID) error {
	return s.emit("StackingChanged", toWire(stacking))
}

// EmitMappedStackingChanged emits the MappedStackingChanged signal.
func (s *StackingServer) EmitMappedStackingChanged(mapped []model.SurfaceID) error {
	return s.emit("MappedStackingChanged", toWire(mapped))
}

// EmitCompositingChanged emits the CompositingChanged signal.
func (s *StackingServer) EmitCompositingChanged(enabled bool) error {
	return s.emit("CompositingChanged", enabled)
}

// EmitDirectRenderChanged emits the DirectRenderChanged signal.
func (s *StackingServer) EmitDirectRenderChanged(id model.SurfaceID, direct bool) error {
	return s.emit("DirectRenderChanged", uint32(id), direct)
}

func (s *StackingServer) emit(member string, args ...any) error {
	s.mu.RLock()
	conn, running := s.conn, s.running
	s.mu.RUnlock()

	if !running {
		return fmt.Errorf("not connected to D-Bus")
	}
	if err := conn.Emit(DBusPath, DBusInterface+"."+member, args...); err != nil {
		return fmt.Errorf("failed to emit %s signal: %w", member, err)
	}
	s.logger.Debug("emitted signal", "member", member)
	return nil
}

// CompositingChanged implements gate.Listener.
func (s *StackingServer) CompositingChanged(enabled bool) {
	if err := s.EmitCompositingChanged(enabled); err != nil {
		s.logger.Debug("signal not sent", "error", err)
	}
}

// DirectRenderChanged implements gate.Listener.
func (s *StackingServer) DirectRenderChanged(id model.SurfaceID, direct bool) {
	if err := s.EmitDirectRenderChanged(id, direct); err != nil {
		s.logger.Debug("signal not sent", "error", err)
	}
}

// ObscuredChanged implements gate.Listener. Visibility is delivered to the
// surfaces themselves, not on the bus.
func (s *StackingServer) ObscuredChanged(model.SurfaceID, bool) {}
