package dbus

import (
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"

	"github.com/jmylchreest/compstack/internal/model"
)

const (
	// DBusInterface is the stacking service interface name.
	DBusInterface = "io.github.jmylchreest.Compstack"
	// DBusPath is the stacking service object path.
	DBusPath = "/io/github/jmylchreest/Compstack"
	// DBusBusName is the bus name to claim.
	DBusBusName = "io.github.jmylchreest.Compstack"
)

// MCE names on the system bus.
const (
	MCEService          = "com.nokia.mce"
	MCERequestPath      = "/com/nokia/mce/request"
	MCERequestInterface = "com.nokia.mce.request"
	MCESignalPath       = "/com/nokia/mce/signal"
	MCESignalInterface  = "com.nokia.mce.signal"
	MCEDisplayStatusInd = "display_status_ind"
	MCEGetDisplayStatus = "get_display_status"
)

// DisplayState is the MCE display power state.
type DisplayState string

const (
	DisplayOn     DisplayState = "on"
	DisplayDimmed DisplayState = "dimmed"
	DisplayOff    DisplayState = "off"
)

// ParseDisplayState parses an MCE display status string.
func ParseDisplayState(s string) (DisplayState, error) {
	switch st := DisplayState(strings.ToLower(strings.TrimSpace(s))); st {
	case DisplayOn, DisplayDimmed, DisplayOff:
		return st, nil
	default:
		return "", fmt.Errorf("unknown display state %q", s)
	}
}

// IsOff reports whether nothing is shown. A dimmed display still shows
// content.
func (s DisplayState) IsOff() bool { return s == DisplayOff }

// DisplayStateHandler is called when the display state changes.
type DisplayStateHandler func(state DisplayState)

// Urgency levels of org.freedesktop.Notifications.
const (
	UrgencyLow      byte = 0
	UrgencyNormal   byte = 1
	UrgencyCritical byte = 2
)

// toWire converts surface ids to a D-Bus au array.
func toWire(ids []model.SurfaceID) []uint32 {
	out := make([]uint32, len(ids))
	for i, id := range ids {
		out[i] = uint32(id)
	}
	return out
}

// FromWire converts a D-Bus au array to surface ids.
func FromWire(v []uint32) []model.SurfaceID {
	out := make([]model.SurfaceID, len(v))
	for i, x := range v {
		out[i] = model.SurfaceID(x)
	}
	return out
}

// statsVariants converts a stats map to a D-Bus a{sv} dictionary.
func statsVariants(stats map[string]any) map[string]dbus.Variant {
	out := make(map[string]dbus.Variant, len(stats))
	for k, v := range stats {
		out[k] = dbus.MakeVariant(v)
	}
	return out
}
