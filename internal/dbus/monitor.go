package dbus

import (
	"fmt"
	"log/slog"

	"github.com/godbus/dbus/v5"
)

// MCEMonitor follows the display power state announced by MCE on the
// system bus.
type MCEMonitor struct {
	conn   *dbus.Conn
	logger *slog.Logger
	ch     chan *dbus.Signal

	onChange DisplayStateHandler
	current  DisplayState
}

// NewMCEMonitor creates a new display state monitor.
func NewMCEMonitor(logger *slog.Logger) *MCEMonitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &MCEMonitor{
		logger:  logger,
		current: DisplayOn,
	}
}

// SetHandler sets the callback for display state changes.
func (m *MCEMonitor) SetHandler(handler DisplayStateHandler) {
	m.onChange = handler
}

// Start subscribes to display_status_ind and reports the initial state.
func (m *MCEMonitor) Start() error {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return fmt.Errorf("failed to connect to system bus: %w", err)
	}
	m.conn = conn

	err = conn.AddMatchSignal(
		dbus.WithMatchObjectPath(MCESignalPath),
		dbus.WithMatchInterface(MCESignalInterface),
		dbus.WithMatchMember(MCEDisplayStatusInd),
	)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to add match rule: %w", err)
	}

	m.ch = make(chan *dbus.Signal, 16)
	conn.Signal(m.ch)

	var status string
	err = conn.Object(MCEService, MCERequestPath).
		Call(MCERequestInterface+"."+MCEGetDisplayStatus, 0).
		Store(&status)
	if err != nil {
		// MCE may start later; its first signal sets the state.
		m.logger.Warn("failed to query display status", "error", err)
	} else {
		m.update(status)
	}

	m.logger.Info("started MCE display monitor")
	go m.processSignals()
	return nil
}

// processSignals reads signals until the connection is closed.
func (m *MCEMonitor) processSignals() {
	for sig := range m.ch {
		if status, ok := displayStatus(sig); ok {
			m.update(status)
		}
	}
}

func (m *MCEMonitor) update(status string) {
	state, err := ParseDisplayState(status)
	if err != nil {
		m.logger.Warn("ignoring display status", "error", err)
		return
	}
	if state == m.current {
		return
	}
	m.current = state
	m.logger.Debug("display state changed", "state", state)
	if m.onChange != nil {
		m.onChange(state)
	}
}

// displayStatus extracts the status string from a display_status_ind
// signal.
func displayStatus(sig *dbus.Signal) (string, bool) {
	if sig == nil || sig.Name != MCESignalInterface+"."+MCEDisplayStatusInd {
		return "", false
	}
	if len(sig.Body) < 1 {
		return "", false
	}
	status, ok := sig.Body[0].(string)
	return status, ok
}

// Stop closes the system bus connection.
func (m *MCEMonitor) Stop() error {
	if m.conn == nil {
		return nil
	}
	m.conn.RemoveSignal(m.ch)
	close(m.ch)
	return m.conn.Close()
}
