package model

// EventKind identifies a structural notification from the server.
type EventKind int

const (
	EventCreated EventKind = iota + 1
	EventDestroyed
	EventConfigured
	EventReparented
)

func (k EventKind) String() string {
	switch k {
	case EventCreated:
		return "created"
	case EventDestroyed:
		return "destroyed"
	case EventConfigured:
		return "configured"
	case EventReparented:
		return "reparented"
	default:
		return "unknown"
	}
}

// Event is a structural notification about a child of the root window.
//
// Sibling has kind-specific meaning: for EventCreated it is the surface the
// new one was placed directly below (None for top); for EventConfigured it is
// the surface's new lower neighbour (None for bottom).
type Event struct {
	Kind    EventKind
	Window  SurfaceID
	Sibling SurfaceID
	Parent  SurfaceID // EventReparented only
	Serial  uint64
}
