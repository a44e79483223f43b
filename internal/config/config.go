// Package config handles configuration file loading and parsing.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Default configuration values.
const (
	DefaultSince     = "24h"
	DefaultSortField = "timestamp"
	DefaultSortOrder = "desc"
	DefaultOlderThan = "168h"
	DefaultFormat    = "plain"
	DefaultRefresh   = "1s"
)

var (
	validFormats    = []string{"plain", "line", "dmenu", "json", "yaml", "yml", "ids"}
	validSortFields = []string{"timestamp", "time", "t", "ops", "o", "duration", "d", "strategy", "s"}
	validSortOrders = []string{"asc", "ascending", "a", "desc", "descending", "d"}
)

// Config is the compstack CLI configuration, read from config.toml.
type Config struct {
	Output    OutputConfig    `toml:"output"`
	Filter    FilterConfig    `toml:"filter"`
	Sort      SortConfig      `toml:"sort"`
	Prune     PruneConfig     `toml:"prune"`
	TUI       TUIConfig       `toml:"tui"`
	Clipboard ClipboardConfig `toml:"clipboard"`
}

type OutputConfig struct {
	Format string `toml:"format"` // plain, line, json, yaml, ids
	Hex    bool   `toml:"hex"`    // surface ids in hex
	Line   string `toml:"line"`   // template for --format line, empty = built in
}

type FilterConfig struct {
	Since string `toml:"since"` // 0 = all time
	Limit int    `toml:"limit"` // 0 = unlimited
}

type SortConfig struct {
	Field string `toml:"field"` // timestamp, ops, duration, strategy
	Order string `toml:"order"` // asc, desc
}

type PruneConfig struct {
	OlderThan string `toml:"older_than"`
	Keep      int    `toml:"keep"` // 0 = unlimited
}

type TUIConfig struct {
	Refresh  string `toml:"refresh"` // poll interval for missed file events
	ShowHelp bool   `toml:"show_help"`
}

type ClipboardConfig struct {
	Command string `toml:"command"` // empty = xclip, xsel, wl-copy, then OSC 52
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Output:    OutputConfig{Format: DefaultFormat, Hex: true},
		Filter:    FilterConfig{Since: DefaultSince},
		Sort:      SortConfig{Field: DefaultSortField, Order: DefaultSortOrder},
		Prune:     PruneConfig{OlderThan: DefaultOlderThan},
		TUI:       TUIConfig{Refresh: DefaultRefresh, ShowHelp: true},
		Clipboard: ClipboardConfig{},
	}
}

// Validate checks the enumerated settings. Journal durations accept day
// and week suffixes and are checked where they are parsed.
func (c *Config) Validate() error {
	var errs []error
	oneOf := func(name, v string, valid []string) {
		if v != "" && !slices.Contains(valid, strings.ToLower(v)) {
			errs = append(errs, fmt.Errorf("%s %q must be one of %s", name, v, strings.Join(valid, ", ")))
		}
	}
	oneOf("output.format", c.Output.Format, validFormats)
	oneOf("sort.field", c.Sort.Field, validSortFields)
	oneOf("sort.order", c.Sort.Order, validSortOrders)

	if c.Filter.Limit < 0 {
		errs = append(errs, fmt.Errorf("filter.limit must not be negative, got %d", c.Filter.Limit))
	}
	if c.Prune.Keep < 0 {
		errs = append(errs, fmt.Errorf("prune.keep must not be negative, got %d", c.Prune.Keep))
	}
	if c.TUI.Refresh != "" {
		if d, err := time.ParseDuration(c.TUI.Refresh); err != nil || d <= 0 {
			errs = append(errs, fmt.Errorf("tui.refresh %q is not a positive duration", c.TUI.Refresh))
		}
	}
	return errors.Join(errs...)
}

// xdgDir resolves an XDG base directory, falling back to fallback under
// the home directory.
func xdgDir(env string, fallback ...string) string {
	if dir := os.Getenv(env); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(append([]string{home}, fallback...)...)
}

// ConfigPath returns $XDG_CONFIG_HOME/compstack/config.toml.
func ConfigPath() string {
	return filepath.Join(xdgDir("XDG_CONFIG_HOME", ".config"), "compstack", "config.toml")
}

// DataPath returns $XDG_DATA_HOME/compstack.
func DataPath() string {
	return filepath.Join(xdgDir("XDG_DATA_HOME", ".local", "share"), "compstack")
}

func JournalPath() string { return filepath.Join(DataPath(), "journal.jsonl") }

func StatePath() string { return filepath.Join(DataPath(), "state.json") }

// LoadConfig reads path (the default location when empty) over the
// defaults. A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}

	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration to path atomically, creating parent
// directories.
func (c *Config) Save(path string) error {
	if path == "" {
		path = ConfigPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return os.Rename(tmp, path)
}

// EnsureDataDir creates the data directory if it doesn't exist.
func EnsureDataDir() error {
	path := DataPath()
	if path == "compstack" {
		return errors.New("unable to determine data directory")
	}
	return os.MkdirAll(path, 0755)
}
