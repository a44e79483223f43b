// Package main provides the CLI entrypoint for compstack.
package main

import (
	"cmp"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/compstack/internal/config"
	"github.com/jmylchreest/compstack/internal/store"
)

// Set with -ldflags at release.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

var (
	cfg    *config.Config
	logger = slog.Default()

	globalOpts struct {
		verbose     bool
		logJSON     bool
		journalFile string
		stateFile   string
		configPath  string
	}

	// journalStore is opened lazily by the commands that read the journal
	// and closed after the command runs.
	journalStore *store.Store
)

var rootCmd = &cobra.Command{
	Use:   "compstack",
	Short: "Stacking and selective-compositing core for X11",
	Long: `compstack drives the stacking core headlessly and inspects a running
compstackd.

It can plan and simulate stacking scenarios without a display server,
show the daemon's published state, and query or prune its pass journal.

Running compstack without a subcommand launches the live dashboard.`,
	Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildTime),
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger = newLogger(os.Stderr, globalOpts.verbose, globalOpts.logJSON)
		slog.SetDefault(logger)

		var err error
		if cfg, err = config.LoadConfig(globalOpts.configPath); err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if journalStore == nil {
			return nil
		}
		return journalStore.Close()
	},
	RunE: runTop,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.BoolVarP(&globalOpts.verbose, "verbose", "v", false, "Enable verbose logging")
	flags.BoolVar(&globalOpts.logJSON, "log-json", false, "Write logs to stderr as JSON")
	flags.StringVar(&globalOpts.journalFile, "journal-file", "",
		"Path to the pass journal (default: ~/.local/share/compstack/journal.jsonl)")
	flags.StringVar(&globalOpts.stateFile, "state-file", "",
		"Path to the daemon state file (default: ~/.local/share/compstack/state.json)")
	flags.StringVar(&globalOpts.configPath, "config", "",
		"Path to config file (default: ~/.config/compstack/config.toml)")
}

// newLogger logs to w, which is stderr so stdout stays parseable. Only
// warnings are shown unless verbose.
func newLogger(w io.Writer, verbose, asJSON bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelWarn}
	if verbose {
		opts.Level = slog.LevelDebug
	}
	if asJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func journalPath() string { return cmp.Or(globalOpts.journalFile, config.JournalPath()) }

func statePath() string { return cmp.Or(globalOpts.stateFile, config.StatePath()) }

// openJournal opens and hydrates the pass journal once per invocation.
func openJournal() (*store.Store, error) {
	if journalStore != nil {
		return journalStore, nil
	}

	if globalOpts.journalFile == "" {
		if err := config.EnsureDataDir(); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	s, dropped, err := store.OpenJournal(journalPath())
	if s == nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	if err != nil {
		logger.Warn("failed to hydrate journal", "error", err)
	}
	if dropped > 0 {
		logger.Warn("journal had malformed records, recovered", "dropped", dropped)
	}
	journalStore = s
	return journalStore, nil
}

// getConfig returns the global config instance.
func getConfig() *config.Config {
	return cfg
}

// useDecimal reports whether surface ids print in decimal: either flag is
// set or the config turns hex off.
func useDecimal(flag bool) bool {
	return flag || (cfg != nil && !cfg.Output.Hex)
}
