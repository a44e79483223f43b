// Package main is the entry point for the compstackd stacking daemon.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jmylchreest/compstack/internal/config"
	"github.com/jmylchreest/compstack/internal/daemon"
	"github.com/jmylchreest/compstack/internal/dbus"
	"github.com/jmylchreest/compstack/internal/gate"
	"github.com/jmylchreest/compstack/internal/model"
	"github.com/jmylchreest/compstack/internal/store"
	"github.com/jmylchreest/compstack/internal/x11"
)

const appName = "compstackd"

var (
	// Build-time variables
	version = "dev"

	// debugAsserts forces stacking.verify on, across config reloads.
	debugAsserts bool
)

func main() {
	showVersion := flag.Bool("version", false, "Show version and exit")
	verbose := flag.Bool("verbose", false, "Log at debug level regardless of config")
	configPath := flag.String("config", "", "Config file (default ~/.config/compstack/compstackd.toml)")
	display := flag.String("display", "", "X display (default $DISPLAY)")
	flag.BoolVar(&debugAsserts, "debug-asserts", false, "Verify the stack against the server after every pass and panic on mismatch")
	flag.Parse()

	if *showVersion {
		fmt.Println(appName, "version", version)
		os.Exit(0)
	}

	cfg, cfgErr := loadConfig(*configPath)
	if debugAsserts {
		cfg.Stacking.Verify = true
	}

	level := cfg.SlogLevel()
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	if cfgErr != nil {
		logger.Warn("failed to load config, using defaults", "error", cfgErr)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, *configPath, *display, logger); err != nil {
		logger.Error("compstackd failed", "error", err)
		os.Exit(1)
	}
	logger.Info("compstackd stopped")
}

func loadConfig(path string) (*config.DaemonConfig, error) {
	var (
		cfg *config.DaemonConfig
		err error
	)
	if path == "" {
		cfg, err = config.LoadDaemonConfig()
	} else {
		cfg, err = config.LoadDaemonConfigFrom(path)
	}
	if err != nil {
		return config.DefaultDaemonConfig(), err
	}
	return cfg, nil
}

// run wires the daemon together and blocks until ctx is cancelled.
func run(ctx context.Context, cfg *config.DaemonConfig, configPath, display string, logger *slog.Logger) error {
	logger.Info("starting compstackd", "version", version)

	conn, err := x11.Open(display, logger)
	if err != nil {
		return err
	}
	closeConn := sync.OnceFunc(conn.Close)
	defer closeConn()

	classes := x11.Classes{Desktop: cfg.Policy.DesktopClass, Decorator: cfg.Policy.DecoratorClass}
	cache := x11.NewPropertyCache(conn.XUtil(), conn.HasShape(), classes, logger)
	publisher := x11.NewPublisher(conn, logger)
	renderer := x11.NewRenderer(conn, logger)
	if err := renderer.Redirect(); err != nil {
		return err
	}

	// Journal
	var journal *store.Store
	if cfg.Stacking.Journal {
		journal, err = openJournal(cfg.Stacking.JournalLimit, logger)
		if err != nil {
			logger.Warn("journal disabled", "error", err)
		} else {
			defer func() { _ = journal.Close() }()
		}
	}

	// Shared state for the CLI
	state := newStateWriter(logger)

	// Self-notifications
	desktop := dbus.NewDesktopNotifier(appName, logger)
	notifier := daemon.NewInternalNotifier(logger)
	notifier.SetNotifyHandler(func(n daemon.InternalNotification) error {
		return desktop.Send(n.Key, n.Summary, n.Body, n.Level.Icon(), n.Level.Urgency())
	})
	applyNotify := func(c *config.DaemonConfig) {
		notifier.SetEnabled(c.Notify.Enabled)
		notifier.SetMinInterval(c.Notify.MinInterval.Duration())
	}
	applyNotify(cfg)

	var (
		rec        *daemon.Reconciler
		dbusServer *dbus.StackingServer
	)

	listeners := gate.Listeners{renderer}
	be := &backend{rec: func() *daemon.Reconciler { return rec }}
	if cfg.DBus.Enabled {
		dbusServer = dbus.NewStackingServer(be, logger)
		listeners = append(listeners, dbusServer)
	}
	displayState := daemon.NewDisplayStateManager(listeners)
	be.display = displayState

	opts := daemon.OptionsFromConfig(cfg, conn.Root(), conn.Screen())
	opts.Ignore = conn.Ignore
	opts.Listener = displayState
	if journal != nil {
		opts.Journal = journal
	}
	opts.Hooks = daemon.Hooks{
		Stacking: func(stacking, mapped []model.SurfaceID) {
			publisher.SetClientListStacking(stacking)
			if dbusServer != nil {
				if err := dbusServer.EmitStackingChanged(stacking); err != nil {
					logger.Debug("failed to emit StackingChanged", "error", err)
				}
			}
			state.update(func(s *store.SharedState) {
				s.Stacking = stacking
				s.MappedStacking = mapped
			})
		},
		Focus: func(mapped []model.SurfaceID) {
			if dbusServer != nil {
				if err := dbusServer.EmitMappedStackingChanged(mapped); err != nil {
					logger.Debug("failed to emit MappedStackingChanged", "error", err)
				}
			}
		},
		CurrentApp: func(id model.SurfaceID) {
			publisher.SetCurrentApp(id)
			state.update(func(s *store.SharedState) { s.CurrentApp = id })
		},
		Pass: func(p *model.Pass) {
			notifier.PassFinished(p.Failed(), p.Error)
			stats := rec.Stats()
			status := rec.Status()
			state.update(func(s *store.SharedState) {
				s.RecordPass(p)
				s.Stats = stats
				s.Animating = status.Animating
			})
		},
	}

	rec = daemon.New(conn, cache, nil, opts, logger)

	reader := x11.NewReader(conn, cache, rec.Events().Push, rec.MarkDirty, logger)
	if err := reader.Prime(); err != nil {
		return fmt.Errorf("failed to prime property cache: %w", err)
	}
	if err := rec.Resync(); err != nil {
		return fmt.Errorf("failed to read initial stacking order: %w", err)
	}

	// D-Bus service
	if dbusServer != nil {
		if err := dbusServer.Start(); err != nil {
			logger.Warn("failed to start D-Bus service", "error", err)
			dbusServer = nil
		} else {
			defer func() { _ = dbusServer.Stop() }()
		}
	}

	// Display power
	if cfg.Power.MCE {
		mce := dbus.NewMCEMonitor(logger)
		mce.SetHandler(func(ds dbus.DisplayState) {
			rec.SetDisplayOff(ds.IsOff())
			state.update(func(s *store.SharedState) { s.Power = store.PowerState(ds) })
		})
		if err := mce.Start(); err != nil {
			logger.Warn("failed to follow MCE display state", "error", err)
		} else {
			defer func() { _ = mce.Stop() }()
		}
	}

	// Config hot reload
	configWatcher, err := daemon.NewConfigWatcher(configPath, logger)
	if err != nil {
		logger.Warn("failed to create config watcher", "error", err)
	} else {
		if debugAsserts {
			configWatcher.SetOverride(func(c *config.DaemonConfig) { c.Stacking.Verify = true })
		}
		configWatcher.SetReloadCallback(func(newConfig *config.DaemonConfig) {
			cache.SetClasses(x11.Classes{
				Desktop:   newConfig.Policy.DesktopClass,
				Decorator: newConfig.Policy.DecoratorClass,
			})
			rec.ApplyConfig(newConfig)
			applyNotify(newConfig)
			notifier.NotifyConfigReloaded()
		})
		configWatcher.SetErrorCallback(notifier.NotifyConfigError)
		if err := configWatcher.Start(cfg); err != nil {
			logger.Warn("failed to start config watcher", "error", err)
		} else {
			defer configWatcher.Stop()
		}
	}

	state.update(func(s *store.SharedState) {
		s.PID = os.Getpid()
		s.StartedAt = time.Now().Unix()
	})
	defer state.update(func(s *store.SharedState) { s.PID = 0 })

	// Hooks are set before the reader starts; the requests queue until
	// the loop runs.
	reader.OnActiveWindow(rec.SetActive)
	reader.OnMapped(rec.Mapped)

	var wg sync.WaitGroup
	readErr := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		readErr <- reader.Run(ctx)
	}()

	loopCtx, stopLoop := context.WithCancel(ctx)
	defer stopLoop()
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := rec.Run(loopCtx); err != nil {
			logger.Error("reconciler stopped", "error", err)
		}
	}()

	rec.MarkDirty(true)
	notifier.NotifyStartup(version)
	logger.Info("compstackd ready", "root", conn.Root(), "screen", conn.Screen(), "dbus", dbusServer != nil)

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-readErr:
		if errors.Is(err, x11.ErrConnectionClosed) {
			logger.Warn("X server went away")
		}
		runErr = err
	}

	stopLoop()
	// Unblocks the reader's pending WaitForEvent.
	closeConn()
	wg.Wait()
	return runErr
}

// openJournal opens the pass journal and trims it to limit passes.
func openJournal(limit int, logger *slog.Logger) (*store.Store, error) {
	if err := config.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	path := config.JournalPath()
	journal, dropped, err := store.OpenJournal(path)
	if journal == nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	if err != nil {
		logger.Warn("failed to hydrate journal", "error", err)
	}
	if dropped > 0 {
		logger.Warn("journal had malformed records, recovered", "path", path, "dropped", dropped)
	}
	if limit > 0 {
		if n, err := journal.Prune(0, limit); err != nil {
			logger.Warn("failed to trim journal", "error", err)
		} else if n > 0 {
			logger.Debug("journal trimmed", "removed", n)
		}
	}
	logger.Info("journal opened", "path", path, "count", journal.Count())
	return journal, nil
}

// stateWriter serialises updates of the shared state file. Hooks run on
// the reconciler goroutine while power changes arrive from D-Bus.
type stateWriter struct {
	mu     sync.Mutex
	path   string
	state  *store.SharedState
	logger *slog.Logger
}

func newStateWriter(logger *slog.Logger) *stateWriter {
	w := &stateWriter{state: store.DefaultSharedState(), logger: logger}
	if err := config.EnsureDataDir(); err != nil {
		logger.Warn("shared state disabled", "error", err)
		return w
	}
	w.path = config.StatePath()
	return w
}

func (w *stateWriter) update(fn func(s *store.SharedState)) {
	w.mu.Lock()
	defer w.mu.Unlock()

	fn(w.state)
	w.state.UpdatedAt = time.Now().Unix()
	if w.path == "" {
		return
	}
	if err := store.SaveSharedStateTo(w.path, w.state); err != nil {
		w.logger.Debug("failed to save shared state", "error", err)
	}
}

// backend exposes the reconciler to the D-Bus service. The reconciler is
// created after the service, so it is resolved on each call.
type backend struct {
	rec     func() *daemon.Reconciler
	display *daemon.DisplayStateManager
}

func (b *backend) Stacking() []model.SurfaceID {
	return b.rec().Status().Stacking
}

func (b *backend) MappedStacking() []model.SurfaceID {
	return b.rec().Status().MappedStacking
}

func (b *backend) Compositing() bool {
	return b.rec().Status().Compositing
}

func (b *backend) SetAnimating(on bool) {
	b.rec().SetAnimating(on)
}

func (b *backend) Reconcile(ctx context.Context) error {
	_, err := b.rec().ReconcileNow(ctx)
	return err
}

func (b *backend) Stats() map[string]any {
	st := b.rec().Status()
	out := map[string]any{
		"passes":      int32(st.Passes),
		"compositing": st.Compositing,
		"direct":      int32(len(st.Direct)),
		"decorated":   uint32(st.Decorated),
	}
	if b.display != nil {
		sum := b.display.Summary()
		out["surfaces"] = int32(sum.Surfaces)
		out["direct_surfaces"] = int32(sum.Direct)
		out["obscured_surfaces"] = int32(sum.Obscured)
		out["mode_switches"] = int32(sum.Switches)
		if !sum.Since.IsZero() {
			out["mode_since"] = sum.Since.Unix()
		}
	}
	for strategy, s := range b.rec().Stats() {
		out[string(strategy)+"_plans"] = int32(s.Plans)
		out[string(strategy)+"_ops"] = int32(s.Ops)
		out[string(strategy)+"_savings"] = int32(s.Savings())
	}
	return out
}
