package input

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/compstack/internal/model"
)

// DefaultScreen is used when a scenario names no screen size.
var DefaultScreen = model.Rect{W: 800, H: 480}

// ID is a surface id written as a decimal or 0x-prefixed hex number.
type ID model.SurfaceID

// Surface returns the id as a SurfaceID.
func (id ID) Surface() model.SurfaceID { return model.SurfaceID(id) }

// UnmarshalYAML implements yaml.Unmarshaler.
func (id *ID) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: surface id must be a scalar", node.Line)
	}
	v, err := model.ParseSurfaceID(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*id = ID(v)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (id ID) MarshalYAML() (any, error) {
	return model.SurfaceID(id).String(), nil
}

// UnmarshalJSON accepts numbers and strings.
func (id *ID) UnmarshalJSON(data []byte) error {
	v, err := model.ParseSurfaceID(strings.Trim(string(data), `"`))
	if err != nil {
		return err
	}
	*id = ID(v)
	return nil
}

// UnmarshalText accepts TOML integers and strings.
func (id *ID) UnmarshalText(text []byte) error {
	v, err := model.ParseSurfaceID(string(text))
	if err != nil {
		return err
	}
	*id = ID(v)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (id ID) MarshalJSON() ([]byte, error) {
	return json.Marshal(model.SurfaceID(id).String())
}

// Surface describes one child of the root window.
type Surface struct {
	ID               ID           `yaml:"id" toml:"id" json:"id"`
	Type             string       `yaml:"type,omitempty" toml:"type,omitempty" json:"type,omitempty"`
	State            string       `yaml:"state,omitempty" toml:"state,omitempty" json:"state,omitempty"`
	Mapped           *bool        `yaml:"mapped,omitempty" toml:"mapped,omitempty" json:"mapped,omitempty"` // default true
	Geometry         *model.Rect  `yaml:"geometry,omitempty" toml:"geometry,omitempty" json:"geometry,omitempty"`
	Shape            []model.Rect `yaml:"shape,omitempty" toml:"shape,omitempty" json:"shape,omitempty"`
	Alpha            bool         `yaml:"alpha,omitempty" toml:"alpha,omitempty" json:"alpha,omitempty"`
	Opacity          float64      `yaml:"opacity,omitempty" toml:"opacity,omitempty" json:"opacity,omitempty"`
	InputOnly        bool         `yaml:"input_only,omitempty" toml:"input_only,omitempty" json:"input_only,omitempty"`
	Fullscreen       bool         `yaml:"fullscreen,omitempty" toml:"fullscreen,omitempty" json:"fullscreen,omitempty"`
	OverrideRedirect bool         `yaml:"override_redirect,omitempty" toml:"override_redirect,omitempty" json:"override_redirect,omitempty"`
	Decorator        bool         `yaml:"decorator,omitempty" toml:"decorator,omitempty" json:"decorator,omitempty"`
	Layer            int          `yaml:"layer,omitempty" toml:"layer,omitempty" json:"layer,omitempty"`
	TransientFor     ID           `yaml:"transient_for,omitempty" toml:"transient_for,omitempty" json:"transient_for,omitempty"`
	Group            ID           `yaml:"group,omitempty" toml:"group,omitempty" json:"group,omitempty"`
	Modal            bool         `yaml:"modal,omitempty" toml:"modal,omitempty" json:"modal,omitempty"`
	Above            bool         `yaml:"above,omitempty" toml:"above,omitempty" json:"above,omitempty"`
	NeedsDecoration  bool         `yaml:"needs_decoration,omitempty" toml:"needs_decoration,omitempty" json:"needs_decoration,omitempty"`
	Hung             bool         `yaml:"hung,omitempty" toml:"hung,omitempty" json:"hung,omitempty"`
	Virtual          bool         `yaml:"virtual,omitempty" toml:"virtual,omitempty" json:"virtual,omitempty"`
	AlwaysMapped     bool         `yaml:"always_mapped,omitempty" toml:"always_mapped,omitempty" json:"always_mapped,omitempty"`
	LowPower         bool         `yaml:"low_power,omitempty" toml:"low_power,omitempty" json:"low_power,omitempty"`
	Closing          bool         `yaml:"closing,omitempty" toml:"closing,omitempty" json:"closing,omitempty"`
	Transitioning    bool         `yaml:"transitioning,omitempty" toml:"transitioning,omitempty" json:"transitioning,omitempty"`
	Painted          *bool        `yaml:"painted,omitempty" toml:"painted,omitempty" json:"painted,omitempty"` // default true
	BeingMapped      bool         `yaml:"being_mapped,omitempty" toml:"being_mapped,omitempty" json:"being_mapped,omitempty"`
}

// Attributes converts the description into an attribute snapshot. An
// omitted geometry covers the screen.
func (s Surface) Attributes(screen model.Rect) (model.Attributes, error) {
	typ, err := model.ParseWindowType(s.Type)
	if err != nil {
		return model.Attributes{}, err
	}
	state, err := model.ParseWindowState(s.State)
	if err != nil {
		return model.Attributes{}, err
	}
	if s.Opacity < 0 || s.Opacity > 1 {
		return model.Attributes{}, fmt.Errorf("opacity %.2f out of range 0..1", s.Opacity)
	}
	if s.Layer < 0 || s.Layer > 6 {
		return model.Attributes{}, fmt.Errorf("stacking layer %d out of range 0..6", s.Layer)
	}

	geom := screen
	if s.Geometry != nil {
		geom = *s.Geometry
	}

	return model.Attributes{
		Mapped:           s.Mapped == nil || *s.Mapped,
		HasAlpha:         s.Alpha,
		Opacity:          s.Opacity,
		InputOnly:        s.InputOnly,
		Geometry:         geom,
		Shape:            model.Region(s.Shape),
		Fullscreen:       s.Fullscreen,
		OverrideRedirect: s.OverrideRedirect,
		IsDecorator:      s.Decorator,
		StackingLayer:    s.Layer,
		TransientFor:     s.TransientFor.Surface(),
		Group:            s.Group.Surface(),
		Type:             typ,
		State:            state,
		Modal:            s.Modal,
		Above:            s.Above,
		NeedsDecoration:  s.NeedsDecoration,
		Hung:             s.Hung,
		Virtual:          s.Virtual,
		AlwaysMapped:     s.AlwaysMapped,
		LowPower:         s.LowPower,
		Closing:          s.Closing,
		Transitioning:    s.Transitioning,
		Painted:          s.Painted == nil || *s.Painted,
		BeingMapped:      s.BeingMapped,
	}, nil
}

// Event kinds of a simulation step.
const (
	EventCreate  = "create"
	EventDestroy = "destroy"
	EventRaise   = "raise"
	EventMap     = "map"
	EventUnmap   = "unmap"
	EventSet     = "set"
)

// Event changes the simulated server. create and set carry a surface,
// the others name a window.
type Event struct {
	Kind    string   `yaml:"kind" toml:"kind" json:"kind"`
	Window  ID       `yaml:"window,omitempty" toml:"window,omitempty" json:"window,omitempty"`
	Surface *Surface `yaml:"surface,omitempty" toml:"surface,omitempty" json:"surface,omitempty"`
}

// Target returns the surface the event applies to.
func (e Event) Target() model.SurfaceID {
	if e.Surface != nil {
		return e.Surface.ID.Surface()
	}
	return e.Window.Surface()
}

// Step is one simulation round: its events are applied, then a pass runs.
type Step struct {
	Name       string  `yaml:"name,omitempty" toml:"name,omitempty" json:"name,omitempty"`
	Events     []Event `yaml:"events,omitempty" toml:"events,omitempty" json:"events,omitempty"`
	Active     *ID     `yaml:"active,omitempty" toml:"active,omitempty" json:"active,omitempty"`
	DisplayOff *bool   `yaml:"display_off,omitempty" toml:"display_off,omitempty" json:"display_off,omitempty"`
	Animating  *bool   `yaml:"animating,omitempty" toml:"animating,omitempty" json:"animating,omitempty"`
}

// Expect is the outcome a scenario asserts.
type Expect struct {
	Order       []ID  `yaml:"order,omitempty" toml:"order,omitempty" json:"order,omitempty"`
	Compositing *bool `yaml:"compositing,omitempty" toml:"compositing,omitempty" json:"compositing,omitempty"`
	Direct      []ID  `yaml:"direct,omitempty" toml:"direct,omitempty" json:"direct,omitempty"`
}

// Scenario is a server state plus optional simulation steps.
type Scenario struct {
	Name           string     `yaml:"name,omitempty" toml:"name,omitempty" json:"name,omitempty"`
	Screen         model.Rect `yaml:"screen,omitempty" toml:"screen,omitempty" json:"screen,omitempty"`
	Order          []ID       `yaml:"order" toml:"order" json:"order"` // bottom-first
	Active         ID         `yaml:"active,omitempty" toml:"active,omitempty" json:"active,omitempty"`
	DisplayOff     bool       `yaml:"display_off,omitempty" toml:"display_off,omitempty" json:"display_off,omitempty"`
	Selective      *bool      `yaml:"selective,omitempty" toml:"selective,omitempty" json:"selective,omitempty"` // default true
	CompositeDocks bool       `yaml:"composite_docks,omitempty" toml:"composite_docks,omitempty" json:"composite_docks,omitempty"`
	Surfaces       []Surface  `yaml:"surfaces" toml:"surfaces" json:"surfaces"`
	Steps          []Step     `yaml:"steps,omitempty" toml:"steps,omitempty" json:"steps,omitempty"`
	Expect         *Expect    `yaml:"expect,omitempty" toml:"expect,omitempty" json:"expect,omitempty"`
}

// ScreenRect returns the screen, DefaultScreen when unset.
func (s *Scenario) ScreenRect() model.Rect {
	if s.Screen.Empty() {
		return DefaultScreen
	}
	return s.Screen
}

// SelectiveCompositing reports whether compositing may be turned off.
func (s *Scenario) SelectiveCompositing() bool {
	return s.Selective == nil || *s.Selective
}

// Sequence returns the initial server order, bottom-first.
func (s *Scenario) Sequence() []model.SurfaceID {
	return Surfaces(s.Order)
}

// Snapshot returns the attributes of every described surface.
func (s *Scenario) Snapshot() (model.Snapshot, error) {
	snap := make(model.Snapshot, len(s.Surfaces))
	for _, sf := range s.Surfaces {
		a, err := sf.Attributes(s.ScreenRect())
		if err != nil {
			return nil, fmt.Errorf("surface %s: %w", sf.ID.Surface(), err)
		}
		snap[sf.ID.Surface()] = a
	}
	return snap, nil
}

// Validate checks that the order and the surfaces agree and that every
// step is well formed.
func (s *Scenario) Validate() error {
	var errs []error

	described := make(map[model.SurfaceID]bool, len(s.Surfaces))
	for _, sf := range s.Surfaces {
		id := sf.ID.Surface()
		if id == model.None {
			errs = append(errs, errors.New("surface without id"))
			continue
		}
		if described[id] {
			errs = append(errs, fmt.Errorf("surface %s described twice", id))
		}
		described[id] = true
		if _, err := sf.Attributes(s.ScreenRect()); err != nil {
			errs = append(errs, fmt.Errorf("surface %s: %w", id, err))
		}
	}

	placed := make(map[model.SurfaceID]bool, len(s.Order))
	for _, raw := range s.Order {
		id := raw.Surface()
		switch {
		case placed[id]:
			errs = append(errs, fmt.Errorf("surface %s appears twice in order", id))
		case !described[id]:
			errs = append(errs, fmt.Errorf("surface %s in order is not described", id))
		}
		placed[id] = true
	}
	for id := range described {
		if !placed[id] {
			errs = append(errs, fmt.Errorf("surface %s is described but not in order", id))
		}
	}

	for i, step := range s.Steps {
		for j, ev := range step.Events {
			if err := validateEvent(ev); err != nil {
				errs = append(errs, fmt.Errorf("step %d event %d: %w", i+1, j+1, err))
			}
		}
	}

	return errors.Join(errs...)
}

func validateEvent(ev Event) error {
	switch ev.Kind {
	case EventCreate, EventSet:
		if ev.Surface == nil {
			return fmt.Errorf("%s needs a surface", ev.Kind)
		}
		if ev.Surface.ID == 0 {
			return fmt.Errorf("%s surface without id", ev.Kind)
		}
		if _, err := ev.Surface.Attributes(DefaultScreen); err != nil {
			return err
		}
	case EventDestroy, EventRaise, EventMap, EventUnmap:
		if ev.Window == 0 {
			return fmt.Errorf("%s needs a window", ev.Kind)
		}
	default:
		return fmt.Errorf("unknown event kind %q", ev.Kind)
	}
	return nil
}

// Surfaces converts ids to surface ids.
func Surfaces(ids []ID) []model.SurfaceID {
	out := make([]model.SurfaceID, len(ids))
	for i, id := range ids {
		out[i] = id.Surface()
	}
	return out
}
