package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/jmylchreest/compstack/internal/config"
	"github.com/jmylchreest/compstack/internal/eventsync"
	"github.com/jmylchreest/compstack/internal/executor"
	"github.com/jmylchreest/compstack/internal/gate"
	"github.com/jmylchreest/compstack/internal/model"
	"github.com/jmylchreest/compstack/internal/planner"
	"github.com/jmylchreest/compstack/internal/policy"
	"github.com/jmylchreest/compstack/internal/stack"
)

// Pass triggers.
const (
	TriggerStartup   = "startup"
	TriggerTimer     = "timer"
	TriggerReconcile = "reconcile"
)

// Retry delays after failed passes. Consecutive failures double the delay
// from retryBase up to retryMax.
const (
	retryBase = 50 * time.Millisecond
	retryMax  = 5 * time.Second
)

// Display is the server the reconciler restacks and resynchronises from.
type Display interface {
	executor.Server
	eventsync.Querier
}

// Journal records finished passes.
type Journal interface {
	Add(p model.Pass) error
}

// Hooks receive the reconciler's published outputs on the loop goroutine.
// Nil hooks are skipped.
type Hooks struct {
	// Stacking is called when the client stacking list changes.
	Stacking func(stacking, mapped []model.SurfaceID)
	// Focus is called when the set or order of mapped surfaces changes.
	Focus func(mapped []model.SurfaceID)
	// CurrentApp is called when the current application changes.
	CurrentApp func(id model.SurfaceID)
	// Pass is called after every pass.
	Pass func(p *model.Pass)
}

// Options configure a Reconciler.
type Options struct {
	Root     model.SurfaceID
	Screen   model.Rect
	Debounce time.Duration
	Verify   bool
	// Selective false keeps compositing on permanently.
	Selective      bool
	CompositeDocks bool
	// Ignore names surfaces that are never tracked, like the overlay.
	Ignore   func(model.SurfaceID) bool
	Listener gate.Listener
	Journal  Journal
	Hooks    Hooks
}

// OptionsFromConfig derives the tunable options from cfg. screen is the
// root geometry, used unless the config overrides it.
func OptionsFromConfig(cfg *config.DaemonConfig, root model.SurfaceID, screen model.Rect) Options {
	opts := Options{Root: root, Screen: screen}
	opts.apply(cfg, screen)
	return opts
}

func (o *Options) apply(cfg *config.DaemonConfig, screen model.Rect) {
	o.Debounce = cfg.Stacking.Debounce.Duration()
	o.Verify = cfg.Stacking.Verify
	o.Selective = cfg.Compositing.Selective
	o.CompositeDocks = !cfg.Compositing.UnredirectDocks
	o.Screen = screen
	if cfg.Compositing.ScreenWidth > 0 && cfg.Compositing.ScreenHeight > 0 {
		o.Screen = model.Rect{W: cfg.Compositing.ScreenWidth, H: cfg.Compositing.ScreenHeight}
	}
}

// Status is a consistent copy of what the last pass published.
type Status struct {
	Stacking       []model.SurfaceID
	MappedStacking []model.SurfaceID
	CurrentApp     model.SurfaceID
	Decorated      model.SurfaceID
	Compositing    bool
	Direct         []model.SurfaceID
	DisplayOff     bool
	Animating      bool
	Passes         int
	LastPass       *model.Pass
}

// Reconciler owns the core objects and runs reconciliation passes on a
// single goroutine. Everything except the request methods and Status is
// loop-owned.
type Reconciler struct {
	opts       Options
	rootScreen model.Rect
	display    Display
	attrs      model.AttributeSource
	events     *EventQueue
	logger     *slog.Logger

	state   *stack.State
	sync    *eventsync.Synchronizer
	exec    *executor.Executor
	planner *planner.Planner
	policy  *policy.Policy
	gate    *gate.Gate

	timer           *time.Timer
	timerC          <-chan time.Time
	pending         bool
	forceVisibility bool
	animating       bool
	displayOff      bool
	active          model.SurfaceID
	stacking        []model.SurfaceID
	mapped          []model.SurfaceID
	currentApp      model.SurfaceID
	decorated       model.SurfaceID
	passes          int
	failures        int
	lastFailure     string
	repeatedFailure bool

	dirtyCh  chan bool
	nowCh    chan chan *model.Pass
	animCh   chan bool
	powerCh  chan bool
	activeCh chan model.SurfaceID
	mapCh    chan model.SurfaceID
	configCh chan *config.DaemonConfig
	done     chan struct{}

	mu     sync.RWMutex
	status Status
}

// New creates a Reconciler over display. attrs must be safe for reads from
// the loop goroutine while its producer updates it.
func New(display Display, attrs model.AttributeSource, events *EventQueue, opts Options, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	if events == nil {
		events = NewEventQueue()
	}

	syncer := eventsync.New(stack.New(logger), opts.Root, logger)
	if opts.Ignore != nil {
		syncer.SetIgnore(opts.Ignore)
	}

	return &Reconciler{
		opts:       opts,
		rootScreen: opts.Screen,
		display:    display,
		attrs:      attrs,
		events:     events,
		logger:     logger,
		state:      syncer.State(),
		sync:       syncer,
		exec:       executor.New(display, logger),
		planner:    planner.New(logger),
		policy:     policy.New(logger),
		gate:       gate.New(opts.Listener, logger),
		dirtyCh:    make(chan bool, 16),
		nowCh:      make(chan chan *model.Pass),
		animCh:     make(chan bool, 4),
		powerCh:    make(chan bool, 4),
		activeCh:   make(chan model.SurfaceID, 4),
		mapCh:      make(chan model.SurfaceID, 16),
		configCh:   make(chan *config.DaemonConfig, 1),
		done:       make(chan struct{}),
	}
}

// Events returns the queue the X reader pushes notifications to.
func (r *Reconciler) Events() *EventQueue { return r.events }

// Stats returns the planner statistics. Safe for concurrent use.
func (r *Reconciler) Stats() map[model.Strategy]planner.Stats {
	return r.planner.Stats()
}

// Status returns what the last pass published. Safe for concurrent use.
func (r *Reconciler) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st := r.status
	if st.LastPass != nil {
		st.LastPass = st.LastPass.Clone()
	}
	return st
}

// Resync replaces the tracked order with the server's. Call before Run.
func (r *Reconciler) Resync() error {
	if err := r.sync.Resync(r.display, nil); err != nil {
		return err
	}
	r.exec.Clear()
	r.logger.Debug("tracked order replaced", "surfaces", r.state.Len(), "cutoff", r.sync.Cutoff())
	return nil
}

// MarkDirty schedules a pass on the debounce timer. forceVisibility makes
// that pass report every surface's visibility again.
func (r *Reconciler) MarkDirty(forceVisibility bool) {
	select {
	case r.dirtyCh <- forceVisibility:
	case <-r.done:
	}
}

// SetAnimating suppresses passes while an animation runs. Passes requested
// meanwhile run once it ends.
func (r *Reconciler) SetAnimating(on bool) {
	select {
	case r.animCh <- on:
	case <-r.done:
	}
}

// Mapped reports a newly mapped surface. A top-level application in normal
// state becomes the active one, so it is raised.
func (r *Reconciler) Mapped(id model.SurfaceID) {
	select {
	case r.mapCh <- id:
	case <-r.done:
	}
}

// SetDisplayOff reports the display power state.
func (r *Reconciler) SetDisplayOff(off bool) {
	select {
	case r.powerCh <- off:
	case <-r.done:
	}
}

// SetActive names the active application, None for the topmost one.
func (r *Reconciler) SetActive(id model.SurfaceID) {
	select {
	case r.activeCh <- id:
	case <-r.done:
	}
}

// Conditions are the pass inputs that do not come from the server.
type Conditions struct {
	Active     model.SurfaceID
	DisplayOff bool
}

// SetConditions replaces the pass inputs directly, for callers that drive
// Pass themselves. It must not be called concurrently with Run.
func (r *Reconciler) SetConditions(c Conditions) {
	if c.DisplayOff != r.displayOff {
		r.forceVisibility = true
	}
	r.active = c.Active
	r.displayOff = c.DisplayOff
	r.setStatus(func(s *Status) { s.DisplayOff = c.DisplayOff })
}

// ApplyConfig replaces the tunable options. A pending reload not yet seen
// by the loop is superseded.
func (r *Reconciler) ApplyConfig(cfg *config.DaemonConfig) {
	for {
		select {
		case r.configCh <- cfg:
			return
		case <-r.configCh:
		case <-r.done:
			return
		}
	}
}

// ReconcileNow pre-empts the debounce timer and runs a pass immediately.
// The returned pass is nil when the pass was deferred by an animation.
func (r *Reconciler) ReconcileNow(ctx context.Context) (*model.Pass, error) {
	reply := make(chan *model.Pass, 1)
	select {
	case r.nowCh <- reply:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-r.done:
		return nil, fmt.Errorf("failed to reconcile: reconciler stopped")
	}
	select {
	case p := <-reply:
		return p, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Run is the event loop. It returns when ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) error {
	defer close(r.done)
	defer r.stopTimer()

	r.logger.Debug("reconciler started", "debounce", r.opts.Debounce, "surfaces", r.state.Len())

	for {
		select {
		case <-ctx.Done():
			r.logger.Debug("reconciler stopped", "passes", r.passes)
			return nil
		case <-r.events.Ready():
			if r.handlePending() {
				r.arm()
			}
		case force := <-r.dirtyCh:
			r.forceVisibility = r.forceVisibility || force
			r.arm()
		case <-r.timerC:
			r.timerC = nil
			r.run(TriggerTimer)
		case reply := <-r.nowCh:
			reply <- r.run(TriggerReconcile)
		case on := <-r.animCh:
			r.animating = on
			r.setStatus(func(s *Status) { s.Animating = on })
			if !on && r.pending {
				r.arm()
			}
		case off := <-r.powerCh:
			if off != r.displayOff {
				r.displayOff = off
				r.forceVisibility = true
				r.setStatus(func(s *Status) { s.DisplayOff = off })
				r.arm()
			}
		case id := <-r.activeCh:
			if id != r.active {
				r.active = id
				r.arm()
			}
		case id := <-r.mapCh:
			if r.raise(id) {
				r.arm()
			}
		case cfg := <-r.configCh:
			r.opts.apply(cfg, r.rootScreen)
			r.logger.Info("reconciler options reloaded", "debounce", r.opts.Debounce,
				"selective", r.opts.Selective, "verify", r.opts.Verify)
			r.forceVisibility = true
			r.arm()
		}
	}
}

// raise makes a newly mapped top-level application the active one.
func (r *Reconciler) raise(id model.SurfaceID) bool {
	a, ok := r.attrs.Attributes(id)
	if !ok || !a.Mapped || !a.IsApplication() || a.State != model.StateNormal || a.TransientFor != model.None {
		return false
	}
	if id == r.active {
		return false
	}
	r.logger.Debug("raising newly mapped application", "surface", id)
	r.active = id
	return true
}

// arm starts the debounce timer unless it is already running, so that
// requests arriving before it fires coalesce into one pass.
func (r *Reconciler) arm() {
	r.pending = true
	if r.timerC != nil {
		return
	}
	r.armAfter(r.opts.Debounce)
}

// armAfter (re)starts the timer with delay d.
func (r *Reconciler) armAfter(d time.Duration) {
	r.pending = true
	r.stopTimer()
	r.timer = time.NewTimer(d)
	r.timerC = r.timer.C
}

// retry schedules another pass after a failed one, backing off while the
// failures continue. A failure repeating the previous one is logged at
// debug level and not journaled.
func (r *Reconciler) retry(err error) {
	r.failures++
	delay := max(min(retryBase<<min(r.failures-1, 16), retryMax), r.opts.Debounce)

	msg := err.Error()
	r.repeatedFailure = msg == r.lastFailure
	r.lastFailure = msg
	if r.repeatedFailure {
		r.logger.Debug("pass failed again", "attempt", r.failures, "retry_in", delay)
	} else {
		r.logger.Warn("pass failed, retrying", "error", err, "attempt", r.failures, "retry_in", delay)
	}
	r.armAfter(delay)
}

// recovered clears the retry state after a successful pass.
func (r *Reconciler) recovered() {
	if r.failures > 0 {
		r.logger.Info("pass succeeded after failures", "failures", r.failures)
	}
	r.failures = 0
	r.lastFailure = ""
	r.repeatedFailure = false
}

func (r *Reconciler) stopTimer() {
	if r.timer != nil {
		r.timer.Stop()
	}
	r.timerC = nil
}

func (r *Reconciler) run(trigger string) *model.Pass {
	r.stopTimer()
	if r.animating {
		r.pending = true
		r.logger.Debug("pass deferred while animating", "trigger", trigger)
		return nil
	}
	r.pending = false
	return r.Pass(trigger)
}

// handlePending replays queued notifications and reports whether any of
// them changed the tracked order.
func (r *Reconciler) handlePending() bool {
	changed, destroyed := r.sync.Drain(r.events)
	for _, id := range destroyed {
		r.gate.Forget(id)
	}
	return changed
}

// Pass runs one reconciliation: drain, resync if needed, policy, plan,
// execute, gate and publish. It must not be called concurrently with Run.
func (r *Reconciler) Pass(trigger string) *model.Pass {
	start := time.Now()
	pass, err := model.NewPass(trigger)
	if err != nil {
		r.logger.Warn("failed to create pass id", "error", err)
		pass = &model.Pass{Timestamp: start.Unix(), Trigger: trigger, Strategy: model.StrategyNone}
	}
	wasCompositing := r.gate.Compositing()

	r.handlePending()

	if err := r.state.Validate(); err != nil {
		if r.opts.Verify {
			panic(fmt.Sprintf("stacking state corrupted: %v", err))
		}
		r.logger.Error("stacking state corrupted, resyncing", "error", err)
		r.exec.MarkDirty()
	}

	if r.exec.Dirty() {
		if err := r.sync.Resync(r.display, nil); err != nil {
			pass.Error = err.Error()
			r.retry(err)
			return r.finish(pass, start, false)
		}
		r.exec.Clear()
		pass.Resynced = true
		r.logger.Debug("resynchronised before planning", "cutoff", r.sync.Cutoff())
	}

	order := r.state.Sequence()
	desired := r.policy.Desired(policy.Input{Order: order, Attrs: r.attrs, Active: r.active})
	plan := r.planner.Plan(desired, r.state)

	pass.Strategy = plan.Strategy
	pass.Desired = plan.Desired
	pass.Dropped = plan.Dropped
	pass.Ops = plan.Ops

	if r.opts.Verify {
		r.verifyPlan(plan.Ops, plan.State)
	}

	if err := r.exec.Execute(plan.Ops); err != nil {
		// Retried after the resync the dirty executor forces.
		pass.Error = err.Error()
		pass.Result = order
		r.retry(err)
		return r.finish(pass, start, false)
	}
	r.recovered()

	// The tracked order catches up through the configure notifications the
	// requests generate; the planned order is what the server now holds.
	result := plan.State.Sequence()
	pass.Result = result
	if r.opts.Verify {
		r.verify(plan.State)
	}

	r.publish(result)

	if r.forceVisibility {
		r.gate.ResetVisibility()
		r.forceVisibility = false
	}
	decision := r.gate.Apply(r.gateInput(result))
	pass.Compositing = decision.Compositing
	pass.Direct = decision.Direct

	return r.finish(pass, start, decision.Compositing != wasCompositing)
}

func (r *Reconciler) gateInput(order []model.SurfaceID) gate.Input {
	in := gate.Input{
		Order:          order,
		Attrs:          r.attrs,
		Screen:         r.opts.Screen,
		DisplayOff:     r.displayOff,
		Forced:         !r.opts.Selective,
		CompositeDocks: r.opts.CompositeDocks,
	}
	for _, id := range order {
		a, ok := r.attrs.Attributes(id)
		if !ok {
			continue
		}
		if a.Transitioning {
			in.Transitioning = true
		}
		if a.Mapped && a.Type == model.TypeSplash {
			in.SplashActive = true
		}
	}
	return in
}

// verifyPlan replays ops on the tracked order and checks that they lead to
// the planned order.
func (r *Reconciler) verifyPlan(ops []model.StackOp, planned *stack.State) {
	replayed := r.state.Clone()
	if err := planner.Apply(replayed, ops); err != nil {
		panic(fmt.Sprintf("plan does not apply to the tracked order: %v", err))
	}
	if err := replayed.Verify(planned.Sequence()); err != nil {
		panic(fmt.Sprintf("plan does not reach the planned order: %v", err))
	}
}

// verify compares the planned order with the server's. A mismatch is a
// programming error.
func (r *Reconciler) verify(planned *stack.State) {
	seq, _, err := r.display.QueryStack()
	if err != nil {
		r.logger.Warn("failed to query stacking order for verification", "error", err)
		return
	}
	if r.opts.Ignore != nil {
		seq = slices.DeleteFunc(seq, r.opts.Ignore)
	}
	if err := planned.Verify(seq); err != nil {
		panic(fmt.Sprintf("stacking verification failed: %v", err))
	}
}

// publish reports changes of the client stacking list, the mapped order and
// the current application.
func (r *Reconciler) publish(order []model.SurfaceID) {
	mapped, stacking := ClientLists(order, r.attrs)

	if !slices.Equal(stacking, r.stacking) {
		r.stacking = stacking
		if r.opts.Hooks.Stacking != nil {
			r.opts.Hooks.Stacking(stacking, mapped)
		}
	}
	if !slices.Equal(mapped, r.mapped) {
		r.mapped = mapped
		if r.opts.Hooks.Focus != nil {
			r.opts.Hooks.Focus(mapped)
		}
	}

	app := policy.CurrentApp(order, r.attrs)
	if app != r.currentApp {
		r.currentApp = app
		r.logger.Debug("current application changed", "surface", app)
		if r.opts.Hooks.CurrentApp != nil {
			r.opts.Hooks.CurrentApp(app)
		}
	}

	if deco := policy.ManagedWindow(order, r.attrs); deco != r.decorated {
		r.decorated = deco
		r.logger.Debug("decorated surface changed", "surface", deco)
	}
}

func (r *Reconciler) finish(pass *model.Pass, start time.Time, compositingChanged bool) *model.Pass {
	pass.Duration = time.Since(start)
	r.passes++

	r.setStatus(func(s *Status) {
		s.Stacking = r.stacking
		s.MappedStacking = r.mapped
		s.CurrentApp = r.currentApp
		s.Decorated = r.decorated
		s.Compositing = r.gate.Compositing()
		s.Direct = r.gate.Direct()
		s.Passes = r.passes
		s.LastPass = pass.Clone()
	})

	worth := len(pass.Ops) > 0 || pass.Failed() || pass.Resynced || compositingChanged ||
		pass.Trigger != TriggerTimer
	if pass.Failed() && r.repeatedFailure {
		worth = false
	}
	if r.opts.Journal != nil && worth {
		if err := r.opts.Journal.Add(*pass); err != nil {
			r.logger.Warn("failed to journal pass", "id", pass.ID, "error", err)
		}
	}

	r.logger.Debug("pass finished", "id", pass.ID, "trigger", pass.Trigger, "strategy", pass.Strategy,
		"ops", len(pass.Ops), "compositing", pass.Compositing, "duration", pass.Duration)

	if r.opts.Hooks.Pass != nil {
		r.opts.Hooks.Pass(pass)
	}
	return pass
}

func (r *Reconciler) setStatus(fn func(*Status)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.status)
}

// ClientLists returns the settled mapped surfaces and, from those, the
// client stacking list: mapped surfaces that are not virtual, override
// redirect, docks or decorators. Both are bottom-first.
func ClientLists(order []model.SurfaceID, attrs model.AttributeSource) (mapped, stacking []model.SurfaceID) {
	mapped = []model.SurfaceID{}
	stacking = []model.SurfaceID{}
	for _, id := range order {
		a, ok := attrs.Attributes(id)
		if !ok || !a.Mapped || a.BeingMapped || a.Closing {
			continue
		}
		mapped = append(mapped, id)
		if a.Virtual || a.OverrideRedirect || a.Type == model.TypeDock || a.IsDecorator {
			continue
		}
		stacking = append(stacking, id)
	}
	return mapped, stacking
}
