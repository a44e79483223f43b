package daemon

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentNotifications struct {
	items []InternalNotification
}

func (s *sentNotifications) handle(n InternalNotification) error {
	s.items = append(s.items, n)
	return nil
}

func newTestNotifier(t *testing.T) (*InternalNotifier, *sentNotifications, *time.Time) {
	t.Helper()
	sent := &sentNotifications{}
	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	n := NewInternalNotifier(nil)
	n.now = func() time.Time { return clock }
	n.SetNotifyHandler(sent.handle)
	return n, sent, &clock
}

func TestInternalNotifier_RateLimit(t *testing.T) {
	n, sent, clock := newTestNotifier(t)

	n.NotifyConfigReloaded()
	n.NotifyConfigReloaded()
	require.Len(t, sent.items, 1)
	assert.Equal(t, "config-reload", sent.items[0].Key)
	assert.Equal(t, byte(0), sent.items[0].Level.Urgency())

	// Different keys are limited independently.
	n.NotifyConfigError(errors.New("bad debounce"))
	require.Len(t, sent.items, 2)
	assert.Contains(t, sent.items[1].Body, "bad debounce")

	*clock = clock.Add(6 * time.Second)
	n.NotifyConfigReloaded()
	assert.Len(t, sent.items, 3)
}

func TestInternalNotifier_Disabled(t *testing.T) {
	n, sent, _ := newTestNotifier(t)
	n.SetEnabled(false)

	n.NotifyStartup("1.0.0")
	assert.Empty(t, sent.items)
}

func TestInternalNotifier_NoHandler(t *testing.T) {
	n := NewInternalNotifier(nil)
	assert.NotPanics(t, func() { n.NotifyStartup("1.0.0") })
}

func TestInternalNotifier_FailureStreak(t *testing.T) {
	n, sent, _ := newTestNotifier(t)

	n.PassFinished(true, "BadWindow")
	n.PassFinished(true, "BadWindow")
	assert.Empty(t, sent.items)

	n.PassFinished(true, "BadWindow")
	require.Len(t, sent.items, 1)
	assert.Equal(t, "restack-failures", sent.items[0].Key)
	assert.Equal(t, "dialog-error", sent.items[0].Level.Icon())

	// A longer streak does not repeat the warning.
	n.PassFinished(true, "BadWindow")
	assert.Len(t, sent.items, 1)

	n.PassFinished(false, "")
	n.SetMinInterval(0)
	for range 3 {
		n.PassFinished(true, "BadMatch")
	}
	require.Len(t, sent.items, 2)
	assert.Contains(t, sent.items[1].Body, "BadMatch")
}

func TestNotificationLevel(t *testing.T) {
	tests := []struct {
		level   NotificationLevel
		urgency byte
		icon    string
	}{
		{NotificationLevelInfo, 0, "dialog-information"},
		{NotificationLevelWarning, 1, "dialog-warning"},
		{NotificationLevelError, 2, "dialog-error"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.urgency, tt.level.Urgency())
		assert.Equal(t, tt.icon, tt.level.Icon())
	}
}
