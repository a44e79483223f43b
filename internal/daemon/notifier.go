package daemon

import (
	"log/slog"
	"sync"
	"time"
)

// NotificationLevel indicates the severity of an internal notification.
type NotificationLevel int

const (
	// NotificationLevelInfo is for informational messages (low urgency).
	NotificationLevelInfo NotificationLevel = iota
	// NotificationLevelWarning is for warning messages (normal urgency).
	NotificationLevelWarning
	// NotificationLevelError is for error messages (critical urgency).
	NotificationLevelError
)

// Urgency maps the level to a freedesktop notification urgency byte.
func (l NotificationLevel) Urgency() byte {
	switch l {
	case NotificationLevelInfo:
		return 0
	case NotificationLevelError:
		return 2
	default:
		return 1
	}
}

// Icon returns the themed icon name for the level.
func (l NotificationLevel) Icon() string {
	switch l {
	case NotificationLevelInfo:
		return "dialog-information"
	case NotificationLevelError:
		return "dialog-error"
	default:
		return "dialog-warning"
	}
}

// InternalNotification is a message about compstackd itself.
type InternalNotification struct {
	Key     string
	Summary string
	Body    string
	Level   NotificationLevel
}

// notice is a kind of internal notification; the key rate-limits it.
type notice struct {
	key     string
	summary string
	level   NotificationLevel
}

var (
	noticeStartup  = notice{"startup", "compstackd Started", NotificationLevelInfo}
	noticeReloaded = notice{"config-reload", "Configuration Reloaded", NotificationLevelInfo}
	noticeBadConf  = notice{"config-error", "Configuration Error", NotificationLevelWarning}
	noticeFailing  = notice{"restack-failures", "Restacking Failing", NotificationLevelError}
)

// InternalNotifier tells the user about daemon events such as config
// reloads or a run of failed passes. Each kind is sent at most once per
// minInterval.
type InternalNotifier struct {
	mu     sync.Mutex
	logger *slog.Logger
	send   func(n InternalNotification) error
	now    func() time.Time

	enabled     bool
	minInterval time.Duration
	sentAt      map[string]time.Time

	failures      int
	failureStreak int
}

func NewInternalNotifier(logger *slog.Logger) *InternalNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &InternalNotifier{
		logger:        logger,
		now:           time.Now,
		enabled:       true,
		minInterval:   5 * time.Second,
		sentAt:        make(map[string]time.Time),
		failureStreak: 3,
	}
}

// SetNotifyHandler sets the delivery function, usually the desktop
// notification service.
func (n *InternalNotifier) SetNotifyHandler(handler func(n InternalNotification) error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.send = handler
}

func (n *InternalNotifier) SetEnabled(enabled bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.enabled = enabled
}

func (n *InternalNotifier) SetMinInterval(interval time.Duration) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.minInterval = interval
}

func (n *InternalNotifier) notify(kind notice, body string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch {
	case !n.enabled:
		return
	case n.send == nil:
		n.logger.Debug("internal notification skipped: no handler", "summary", kind.summary)
		return
	}

	now := n.now()
	if last, ok := n.sentAt[kind.key]; ok && now.Sub(last) < n.minInterval {
		n.logger.Debug("internal notification rate-limited", "key", kind.key)
		return
	}
	n.sentAt[kind.key] = now

	msg := InternalNotification{Key: kind.key, Summary: kind.summary, Body: body, Level: kind.level}
	if err := n.send(msg); err != nil {
		n.logger.Debug("failed to send internal notification", "key", kind.key, "error", err)
	}
}

func (n *InternalNotifier) NotifyStartup(version string) {
	n.notify(noticeStartup, "Stacking daemon v"+version+" is now running.")
}

func (n *InternalNotifier) NotifyConfigReloaded() {
	n.notify(noticeReloaded, "compstackd configuration has been successfully reloaded.")
}

func (n *InternalNotifier) NotifyConfigError(err error) {
	n.notify(noticeBadConf, "Failed to reload configuration: "+err.Error())
}

// PassFinished counts consecutive failed passes and warns when the count
// reaches failureStreak. A successful pass resets it.
func (n *InternalNotifier) PassFinished(failed bool, errText string) {
	n.mu.Lock()
	if !failed {
		n.failures = 0
		n.mu.Unlock()
		return
	}
	n.failures++
	warn := n.failures == n.failureStreak
	n.mu.Unlock()

	if warn {
		n.notify(noticeFailing, "The last restacking passes failed: "+errText)
	}
}
