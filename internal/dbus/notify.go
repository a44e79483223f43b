package dbus

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/godbus/dbus/v5"
)

const (
	notificationsService   = "org.freedesktop.Notifications"
	notificationsPath      = "/org/freedesktop/Notifications"
	notificationsInterface = "org.freedesktop.Notifications"
)

// DesktopNotifier sends notifications through the desktop notification
// service. Notifications with the same key replace each other.
type DesktopNotifier struct {
	appName string
	logger  *slog.Logger

	mu    sync.Mutex
	conn  *dbus.Conn
	byKey map[string]uint32
}

// NewDesktopNotifier creates a DesktopNotifier that sends as appName.
func NewDesktopNotifier(appName string, logger *slog.Logger) *DesktopNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &DesktopNotifier{
		appName: appName,
		logger:  logger,
		byKey:   make(map[string]uint32),
	}
}

// Send shows a notification. The session bus is connected on first use.
func (n *DesktopNotifier) Send(key, summary, body, icon string, urgency byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.conn == nil {
		conn, err := dbus.SessionBus()
		if err != nil {
			return fmt.Errorf("failed to connect to session bus: %w", err)
		}
		n.conn = conn
	}

	hints := map[string]dbus.Variant{
		"urgency":   dbus.MakeVariant(urgency),
		"transient": dbus.MakeVariant(urgency != UrgencyCritical),
	}

	var id uint32
	obj := n.conn.Object(notificationsService, notificationsPath)
	err := obj.Call(notificationsInterface+".Notify", 0,
		n.appName, n.byKey[key], icon, summary, body, []string{}, hints, int32(-1),
	).Store(&id)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	n.byKey[key] = id

	n.logger.Debug("sent desktop notification", "key", key, "id", id)
	return nil
}
