// Package sim runs stacking scenarios against an in-memory display server.
//
// A simulation loads the scenario's surfaces into a FakeServer, runs a
// startup pass, then applies each step's events and runs one pass per
// step. Every pass goes through the same reconciler the daemon uses.
package sim

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/jmylchreest/compstack/internal/adapter/input"
	"github.com/jmylchreest/compstack/internal/daemon"
	"github.com/jmylchreest/compstack/internal/executor"
	"github.com/jmylchreest/compstack/internal/gate"
	"github.com/jmylchreest/compstack/internal/model"
)

// TriggerStep is the trigger recorded for passes run after a step.
const TriggerStep = "step"

// root is the simulated root window. FakeServer never reparents, so it
// only has to differ from the surfaces.
const root model.SurfaceID = 0xffffffff

// ErrExpectation is returned by Check when the outcome differs from the
// scenario's expectation.
var ErrExpectation = errors.New("expectation not met")

// Signal is one transition reported by the compositing gate.
type Signal struct {
	Kind    string          `json:"kind" yaml:"kind"`
	Surface model.SurfaceID `json:"surface,omitempty" yaml:"surface,omitempty"`
	On      bool            `json:"on" yaml:"on"`
}

func (s Signal) String() string {
	if s.Surface == model.None {
		return fmt.Sprintf("%s=%t", s.Kind, s.On)
	}
	return fmt.Sprintf("%s %s=%t", s.Kind, s.Surface, s.On)
}

// StepResult is the outcome of one simulated pass.
type StepResult struct {
	Name     string            `json:"name" yaml:"name"`
	Pass     *model.Pass       `json:"pass,omitempty" yaml:"pass,omitempty"`
	Server   []model.SurfaceID `json:"server" yaml:"server"`
	Signals  []Signal          `json:"signals,omitempty" yaml:"signals,omitempty"`
	Deferred bool              `json:"deferred,omitempty" yaml:"deferred,omitempty"`
}

// Report is the outcome of a whole simulation.
type Report struct {
	Scenario string       `json:"scenario,omitempty" yaml:"scenario,omitempty"`
	Steps    []StepResult `json:"steps" yaml:"steps"`
}

// Passes returns the passes that ran, skipping deferred steps.
func (r *Report) Passes() []model.Pass {
	out := make([]model.Pass, 0, len(r.Steps))
	for _, st := range r.Steps {
		if st.Pass != nil {
			out = append(out, *st.Pass)
		}
	}
	return out
}

// Final returns the last step that ran a pass.
func (r *Report) Final() (StepResult, bool) {
	for i := len(r.Steps) - 1; i >= 0; i-- {
		if r.Steps[i].Pass != nil {
			return r.Steps[i], true
		}
	}
	return StepResult{}, false
}

// Options tune a simulation.
type Options struct {
	// Journal receives passes the daemon would journal.
	Journal daemon.Journal
	// Verify compares the planned order with the server after every pass.
	Verify bool
	// StartupOnly stops after the startup pass.
	StartupOnly bool
}

// attrSet is the mutable attribute store behind a simulation.
type attrSet struct {
	mu    sync.RWMutex
	attrs model.Snapshot
}

func (s *attrSet) Attributes(id model.SurfaceID) (model.Attributes, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.attrs[id]
	return a, ok
}

func (s *attrSet) set(id model.SurfaceID, a model.Attributes) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attrs[id] = a
}

func (s *attrSet) update(id model.SurfaceID, fn func(*model.Attributes)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attrs[id]
	if !ok {
		return false
	}
	fn(&a)
	s.attrs[id] = a
	return true
}

func (s *attrSet) remove(id model.SurfaceID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.attrs, id)
}

// Simulator holds the state of one simulation.
type Simulator struct {
	sc     *input.Scenario
	opts   Options
	logger *slog.Logger

	attrs  *attrSet
	server *executor.FakeServer
	rec    *daemon.Reconciler

	conditions daemon.Conditions
	animating  bool
	signals    []Signal
}

// New prepares a simulation of sc. The scenario must be valid.
func New(sc *input.Scenario, opts Options, logger *slog.Logger) (*Simulator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	snap, err := sc.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("failed to build attributes: %w", err)
	}

	s := &Simulator{
		sc:     sc,
		opts:   opts,
		logger: logger,
		attrs:  &attrSet{attrs: snap},
		server: executor.NewFakeServer(sc.Sequence(), logger),
		conditions: daemon.Conditions{
			Active:     sc.Active.Surface(),
			DisplayOff: sc.DisplayOff,
		},
	}

	s.rec = daemon.New(s.server, s.attrs, nil, daemon.Options{
		Root:           root,
		Screen:         sc.ScreenRect(),
		Verify:         opts.Verify,
		Selective:      sc.SelectiveCompositing(),
		CompositeDocks: sc.CompositeDocks,
		Listener:       s.listener(),
		Journal:        opts.Journal,
	}, logger)
	s.server.SetSink(s.rec.Events().Push)

	if err := s.rec.Resync(); err != nil {
		return nil, fmt.Errorf("failed to read simulated stack: %w", err)
	}
	return s, nil
}

func (s *Simulator) listener() gate.Listener {
	return gate.ListenerFuncs{
		Compositing: func(enabled bool) {
			s.signals = append(s.signals, Signal{Kind: "compositing", On: enabled})
		},
		Direct: func(id model.SurfaceID, direct bool) {
			s.signals = append(s.signals, Signal{Kind: "direct", Surface: id, On: direct})
		},
		Obscured: func(id model.SurfaceID, obscured bool) {
			s.signals = append(s.signals, Signal{Kind: "obscured", Surface: id, On: obscured})
		},
	}
}

// Server returns the simulated display server.
func (s *Simulator) Server() *executor.FakeServer { return s.server }

// Reconciler returns the reconciler driving the simulation.
func (s *Simulator) Reconciler() *daemon.Reconciler { return s.rec }

// Run executes the startup pass and every step.
func (s *Simulator) Run() (*Report, error) {
	report := &Report{Scenario: s.sc.Name}
	report.Steps = append(report.Steps, s.pass(daemon.TriggerStartup, daemon.TriggerStartup))

	if s.opts.StartupOnly {
		return report, nil
	}

	for i, step := range s.sc.Steps {
		name := step.Name
		if name == "" {
			name = fmt.Sprintf("step %d", i+1)
		}
		if err := s.apply(step); err != nil {
			return report, fmt.Errorf("%s: %w", name, err)
		}
		report.Steps = append(report.Steps, s.pass(name, TriggerStep))
	}

	// Work deferred by a trailing animation runs once it would have ended.
	if s.animating {
		s.animating = false
		report.Steps = append(report.Steps, s.pass("animation end", daemon.TriggerTimer))
	}
	return report, nil
}

func (s *Simulator) pass(name, trigger string) StepResult {
	res := StepResult{Name: name}
	if s.animating {
		res.Deferred = true
		res.Server = s.server.Sequence()
		return res
	}
	s.signals = nil
	s.rec.SetConditions(s.conditions)
	res.Pass = s.rec.Pass(trigger)
	res.Server = s.server.Sequence()
	res.Signals = s.signals
	s.logger.Debug("simulated pass", "step", name, "ops", len(res.Pass.Ops), "signals", len(res.Signals))
	return res
}

func (s *Simulator) apply(step input.Step) error {
	for _, ev := range step.Events {
		if err := s.applyEvent(ev); err != nil {
			return err
		}
	}
	if step.Active != nil {
		s.conditions.Active = step.Active.Surface()
	}
	if step.DisplayOff != nil {
		s.conditions.DisplayOff = *step.DisplayOff
	}
	if step.Animating != nil {
		s.animating = *step.Animating
	}
	return nil
}

func (s *Simulator) applyEvent(ev input.Event) error {
	id := ev.Target()
	screen := s.sc.ScreenRect()

	switch ev.Kind {
	case input.EventCreate:
		if slices.Contains(s.server.Sequence(), id) {
			return fmt.Errorf("create: surface %s already exists", id)
		}
		a, err := ev.Surface.Attributes(screen)
		if err != nil {
			return fmt.Errorf("create %s: %w", id, err)
		}
		s.attrs.set(id, a)
		s.server.Create(id)
	case input.EventSet:
		a, err := ev.Surface.Attributes(screen)
		if err != nil {
			return fmt.Errorf("set %s: %w", id, err)
		}
		s.attrs.set(id, a)
	case input.EventDestroy:
		s.server.Destroy(id)
		s.attrs.remove(id)
	case input.EventRaise:
		s.server.Raise(id)
	case input.EventMap, input.EventUnmap:
		mapped := ev.Kind == input.EventMap
		if !s.attrs.update(id, func(a *model.Attributes) { a.Mapped = mapped }) {
			return fmt.Errorf("%s: unknown surface %s", ev.Kind, id)
		}
	default:
		return fmt.Errorf("unknown event kind %q", ev.Kind)
	}
	return nil
}

// Run simulates sc.
func Run(sc *input.Scenario, opts Options, logger *slog.Logger) (*Report, error) {
	s, err := New(sc, opts, logger)
	if err != nil {
		return nil, err
	}
	return s.Run()
}

// Check compares the final pass with the scenario's expectation. A
// scenario without one always passes.
func Check(sc *input.Scenario, report *Report) error {
	if sc.Expect == nil {
		return nil
	}
	final, ok := report.Final()
	if !ok {
		return fmt.Errorf("%w: no pass ran", ErrExpectation)
	}

	var errs []error
	if sc.Expect.Order != nil {
		want := input.Surfaces(sc.Expect.Order)
		if !slices.Equal(want, final.Server) {
			errs = append(errs, fmt.Errorf("%w: order is [%s], want [%s]", ErrExpectation,
				model.FormatIDs(final.Server), model.FormatIDs(want)))
		}
	}
	if sc.Expect.Compositing != nil && *sc.Expect.Compositing != final.Pass.Compositing {
		errs = append(errs, fmt.Errorf("%w: compositing is %t, want %t", ErrExpectation,
			final.Pass.Compositing, *sc.Expect.Compositing))
	}
	if sc.Expect.Direct != nil {
		want := input.Surfaces(sc.Expect.Direct)
		got := append([]model.SurfaceID(nil), final.Pass.Direct...)
		slices.Sort(want)
		slices.Sort(got)
		if !slices.Equal(want, got) {
			errs = append(errs, fmt.Errorf("%w: direct is [%s], want [%s]", ErrExpectation,
				model.FormatIDs(got), model.FormatIDs(want)))
		}
	}
	return errors.Join(errs...)
}
