package dbus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"

	"github.com/jmylchreest/compstack/internal/model"
)

// reconcileTimeout bounds a Reconcile call.
const reconcileTimeout = 5 * time.Second

// Backend is what the stacking service exposes.
//
// Neither list is the full server order. Stacking is the client stacking
// list, which leaves out docks, override-redirect surfaces and the
// decorator. MappedStacking holds every mapped surface the policy orders,
// the decorator included.
type Backend interface {
	Stacking() []model.SurfaceID
	MappedStacking() []model.SurfaceID
	Compositing() bool
	// SetAnimating reports whether a compositor animation is running.
	SetAnimating(on bool)
	Reconcile(ctx context.Context) error
	Stats() map[string]any
}

// StackingServer exports the stacking service on the session bus. It
// implements gate.Listener so that render transitions become signals.
type StackingServer struct {
	conn    *dbus.Conn
	backend Backend
	logger  *slog.Logger

	mu      sync.RWMutex
	running bool
}

// NewStackingServer creates a new StackingServer.
func NewStackingServer(backend Backend, logger *slog.Logger) *StackingServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &StackingServer{
		backend: backend,
		logger:  logger,
	}
}

// Start connects to the session bus and exports the stacking service.
func (s *StackingServer) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.mu.Unlock()

	conn, err := dbus.SessionBus()
	if err != nil {
		return fmt.Errorf("failed to connect to session bus: %w", err)
	}

	if err := conn.Export(s, DBusPath, DBusInterface); err != nil {
		return fmt.Errorf("failed to export object: %w", err)
	}

	node := &introspect.Node{
		Name: DBusPath,
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			{
				Name:    DBusInterface,
				Methods: stackingMethods(),
				Signals: stackingSignals(),
			},
		},
	}
	if err := conn.Export(introspect.NewIntrospectable(node), DBusPath,
		"org.freedesktop.DBus.Introspectable"); err != nil {
		return fmt.Errorf("failed to export introspectable: %w", err)
	}

	reply, err := conn.RequestName(DBusBusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("failed to request bus name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("bus name %s already taken", DBusBusName)
	}

	s.mu.Lock()
	s.conn = conn
	s.running = true
	s.mu.Unlock()

	s.logger.Info("D-Bus stacking service started", "interface", DBusInterface, "path", DBusPath)
	return nil
}

// Stop releases the bus name.
func (s *StackingServer) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false

	if _, err := s.conn.ReleaseName(DBusBusName); err != nil {
		s.logger.Warn("failed to release bus name", "error", err)
	}
	// Don't close the connection as it's shared (SessionBus)

	s.logger.Info("D-Bus stacking service stopped")
	return nil
}

// GetStacking returns the client stacking list, bottom-first. Docks,
// override-redirect surfaces and the decorator are not in it.
// D-Bus method: GetStacking() -> au
func (s *StackingServer) GetStacking() ([]uint32, *dbus.Error) {
	s.logger.Debug("GetStacking called")
	return toWire(s.backend.Stacking()), nil
}

// GetMappedStacking returns the mapped surfaces the policy orders,
// bottom-first, including the decorator. Unmapped surfaces are not in it.
// D-Bus method: GetMappedStacking() -> au
func (s *StackingServer) GetMappedStacking() ([]uint32, *dbus.Error) {
	s.logger.Debug("GetMappedStacking called")
	return toWire(s.backend.MappedStacking()), nil
}

// IsCompositing reports whether the compositor is painting.
// D-Bus method: IsCompositing() -> b
func (s *StackingServer) IsCompositing() (bool, *dbus.Error) {
	return s.backend.Compositing(), nil
}

// SetAnimating tells the daemon that a compositor animation started or
// ended. Passes are held back while one runs.
// D-Bus method: SetAnimating(b) -> nothing
func (s *StackingServer) SetAnimating(on bool) *dbus.Error {
	s.logger.Debug("SetAnimating called", "animating", on)
	s.backend.SetAnimating(on)
	return nil
}

// Reconcile runs a pass immediately.
// D-Bus method: Reconcile() -> nothing
func (s *StackingServer) Reconcile() *dbus.Error {
	s.logger.Debug("Reconcile called")
	ctx, cancel := context.WithTimeout(context.Background(), reconcileTimeout)
	defer cancel()
	if err := s.backend.Reconcile(ctx); err != nil {
		return dbus.MakeFailedError(err)
	}
	return nil
}

// GetStats returns planner and pass statistics.
// D-Bus method: GetStats() -> a{sv}
func (s *StackingServer) GetStats() (map[string]dbus.Variant, *dbus.Error) {
	return statsVariants(s.backend.Stats()), nil
}

// stackingMethods returns the D-Bus method introspection data.
func stackingMethods() []introspect.Method {
	return []introspect.Method{
		{
			Name: "GetStacking",
			Args: []introspect.Arg{
				{Name: "windows", Type: "au", Direction: "out"},
			},
		},
		{
			Name: "GetMappedStacking",
			Args: []introspect.Arg{
				{Name: "windows", Type: "au", Direction: "out"},
			},
		},
		{
			Name: "IsCompositing",
			Args: []introspect.Arg{
				{Name: "compositing", Type: "b", Direction: "out"},
			},
		},
		{
			Name: "SetAnimating",
			Args: []introspect.Arg{
				{Name: "animating", Type: "b", Direction: "in"},
			},
		},
		{
			Name: "Reconcile",
		},
		{
			Name: "GetStats",
			Args: []introspect.Arg{
				{Name: "stats", Type: "a{sv}", Direction: "out"},
			},
		},
	}
}

// stackingSignals returns the D-Bus signal introspection data.
func stackingSignals() []introspect.Signal {
	return []introspect.Signal{
		{
			Name: "StackingChanged",
			Args: []introspect.Arg{
				{Name: "windows", Type: "au"},
			},
		},
		{
			Name: "MappedStackingChanged",
			Args: []introspect.Arg{
				{Name: "windows", Type: "au"},
			},
		},
		{
			Name: "CompositingChanged",
			Args: []introspect.Arg{
				{Name: "compositing", Type: "b"},
			},
		},
		{
			Name: "DirectRenderChanged",
			Args: []introspect.Arg{
				{Name: "window", Type: "u"},
				{Name: "direct", Type: "b"},
			},
		},
	}
}
