// Package model defines the core data structures for compstack.
package model

import (
	"fmt"
	"strconv"
	"strings"
)

// SurfaceID is the server handle of a tracked surface (an X window id).
// The zero value means "no surface".
type SurfaceID uint32

// None is the absent surface.
const None SurfaceID = 0

// String formats the id the way X tools print window ids.
func (id SurfaceID) String() string {
	return fmt.Sprintf("0x%x", uint32(id))
}

// ParseSurfaceID parses a window id in decimal or 0x-prefixed hex.
func ParseSurfaceID(s string) (SurfaceID, error) {
	s = strings.TrimSpace(s)
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return None, fmt.Errorf("invalid surface id %q: %w", s, err)
	}
	return SurfaceID(v), nil
}

// FormatIDs renders a sequence of ids as a space separated list.
func FormatIDs(ids []SurfaceID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	return strings.Join(parts, " ")
}

// StackOp places Below directly under Above. Above == None raises Below
// to the top of the stack.
type StackOp struct {
	Below SurfaceID `json:"below" yaml:"below"`
	Above SurfaceID `json:"above" yaml:"above"`
}

func (op StackOp) String() string {
	if op.Above == None {
		return fmt.Sprintf("raise %s", op.Below)
	}
	return fmt.Sprintf("%s below %s", op.Below, op.Above)
}

// WindowType is the coarse EWMH window type of a surface.
type WindowType int

const (
	TypeUnknown WindowType = iota
	TypeNormal
	TypeDesktop
	TypeDock
	TypeDialog
	TypeMenu
	TypeNotification
	TypeInput
	TypeSplash
)

// WindowTypeNames maps window types to the names used in scenario files.
var WindowTypeNames = map[WindowType]string{
	TypeUnknown:      "unknown",
	TypeNormal:       "normal",
	TypeDesktop:      "desktop",
	TypeDock:         "dock",
	TypeDialog:       "dialog",
	TypeMenu:         "menu",
	TypeNotification: "notification",
	TypeInput:        "input",
	TypeSplash:       "splash",
}

func (t WindowType) String() string {
	if name, ok := WindowTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// ParseWindowType converts a scenario name into a WindowType.
func ParseWindowType(s string) (WindowType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return TypeNormal, nil
	}
	for t, name := range WindowTypeNames {
		if name == s {
			return t, nil
		}
	}
	return TypeUnknown, fmt.Errorf("unknown window type %q", s)
}

// WindowState is the ICCCM WM_STATE of a surface.
type WindowState int

const (
	StateWithdrawn WindowState = iota
	StateNormal
	StateIconic
)

func (s WindowState) String() string {
	switch s {
	case StateNormal:
		return "normal"
	case StateIconic:
		return "iconic"
	default:
		return "withdrawn"
	}
}

// ParseWindowState converts a scenario name into a WindowState.
// An empty string means normal.
func ParseWindowState(s string) (WindowState, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "normal":
		return StateNormal, nil
	case "iconic":
		return StateIconic, nil
	case "withdrawn":
		return StateWithdrawn, nil
	default:
		return StateWithdrawn, fmt.Errorf("unknown window state %q", s)
	}
}

// Attributes is a read-only snapshot of what the property cache knows
// about one surface. The core never mutates it.
type Attributes struct {
	Mapped           bool
	HasAlpha         bool
	Opacity          float64 // 0 is treated as fully opaque
	InputOnly        bool
	Geometry         Rect
	Shape            Region // empty means the full geometry
	Fullscreen       bool
	OverrideRedirect bool
	IsDecorator      bool
	StackingLayer    int
	TransientFor     SurfaceID
	Group            SurfaceID
	Type             WindowType
	State            WindowState
	Modal            bool
	Above            bool // _NET_WM_STATE_ABOVE
	NeedsDecoration  bool
	Hung             bool
	Virtual          bool
	AlwaysMapped     bool
	LowPower         bool

	// Collaborator-owned transition flags.
	Closing       bool
	Transitioning bool
	Painted       bool
	BeingMapped   bool
	// MapSeq orders surfaces by when they were last mapped; 0 is unknown.
	MapSeq uint64
}

// Opaque reports whether the surface hides what is below it.
func (a Attributes) Opaque() bool {
	if a.HasAlpha || a.InputOnly {
		return false
	}
	return a.Opacity == 0 || a.Opacity >= 1
}

// ShapeRegion returns the surface's visible region in root coordinates.
func (a Attributes) ShapeRegion() Region {
	if a.Shape.Empty() {
		return RegionOf(a.Geometry)
	}
	return a.Shape
}

// IsApplication reports whether the surface is an ordinary application
// window: a normal or dialog-like managed window that is not a helper.
func (a Attributes) IsApplication() bool {
	if a.OverrideRedirect || a.IsDecorator || a.Virtual || a.InputOnly {
		return false
	}
	switch a.Type {
	case TypeNormal, TypeUnknown, TypeDialog, TypeMenu:
		return true
	default:
		return false
	}
}

// AttributeSource gives read access to per-surface attributes.
type AttributeSource interface {
	Attributes(id SurfaceID) (Attributes, bool)
}

// Snapshot is a map-backed AttributeSource.
type Snapshot map[SurfaceID]Attributes

// Attributes implements AttributeSource.
func (s Snapshot) Attributes(id SurfaceID) (Attributes, bool) {
	a, ok := s[id]
	return a, ok
}
