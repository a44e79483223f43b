package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Duration is a time.Duration that can be unmarshaled from human-readable strings.
// Supports formats like "5ms", "1s", "1m30s", or integer milliseconds.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler for TOML parsing.
func (d *Duration) UnmarshalText(text []byte) error {
	s := string(text)

	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}

	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: must be like '5ms', '1s', '1m30s' or milliseconds: %w", s, err)
	}
	*d = Duration(dur)
	return nil
}

// MarshalText implements encoding.TextMarshaler for TOML output.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Milliseconds returns the duration in milliseconds.
func (d Duration) Milliseconds() int {
	return int(time.Duration(d).Milliseconds())
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// DaemonConfig is the configuration for compstackd.
// Loaded from ~/.config/compstack/compstackd.toml
type DaemonConfig struct {
	Stacking    StackingConfig    `toml:"stacking"`
	Compositing CompositingConfig `toml:"compositing"`
	Policy      PolicyConfig      `toml:"policy"`
	Power       PowerConfig       `toml:"power"`
	DBus        DBusConfig        `toml:"dbus"`
	Notify      NotifyConfig      `toml:"notify"`
	Log         LogConfig         `toml:"log"`
}

// StackingConfig controls reconciliation.
type StackingConfig struct {
	Debounce     Duration `toml:"debounce"`      // 0 = next idle tick
	Verify       bool     `toml:"verify"`        // Verify the tracked order against the server after each pass
	Journal      bool     `toml:"journal"`       // Append every pass to the journal
	JournalLimit int      `toml:"journal_limit"` // Passes kept when the daemon starts (0 = unlimited)
}

// CompositingConfig controls the compositing gate.
type CompositingConfig struct {
	Selective       bool `toml:"selective"`        // false keeps compositing on permanently
	ScreenWidth     int  `toml:"screen_width"`     // 0 = root geometry
	ScreenHeight    int  `toml:"screen_height"`    // 0 = root geometry
	UnredirectDocks bool `toml:"unredirect_docks"` // Render docks above a direct surface directly too
}

// PolicyConfig names the helper surfaces recognised by WM_CLASS.
type PolicyConfig struct {
	DesktopClass   string `toml:"desktop_class"`
	DecoratorClass string `toml:"decorator_class"`
}

// PowerConfig controls display power tracking.
type PowerConfig struct {
	MCE bool `toml:"mce"` // Follow the MCE display state on the system bus
}

// DBusConfig controls the session bus service.
type DBusConfig struct {
	Enabled bool `toml:"enabled"`
}

// NotifyConfig controls the daemon's own desktop notices.
type NotifyConfig struct {
	Enabled     bool     `toml:"enabled"`
	MinInterval Duration `toml:"min_interval"` // Minimum gap between two notices of one kind
}

// LogConfig controls daemon logging.
type LogConfig struct {
	Level string `toml:"level"` // "debug", "info", "warn", "error"
}

// LogLevel is a daemon log level name.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// ValidLogLevels returns all valid log level values.
func ValidLogLevels() []LogLevel {
	return []LogLevel{LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError}
}

// MaxDebounce bounds stacking.debounce.
const MaxDebounce = 5 * time.Second

// DefaultDaemonConfig returns a new DaemonConfig with default values.
func DefaultDaemonConfig() *DaemonConfig {
	return &DaemonConfig{
		Stacking: StackingConfig{
			Debounce:     Duration(0),
			Verify:       false,
			Journal:      true,
			JournalLimit: 1000,
		},
		Compositing: CompositingConfig{
			Selective:       true,
			UnredirectDocks: true,
		},
		Policy: PolicyConfig{
			DesktopClass:   "meego-home",
			DecoratorClass: "decorator",
		},
		Power: PowerConfig{
			MCE: true,
		},
		DBus: DBusConfig{
			Enabled: true,
		},
		Notify: NotifyConfig{
			Enabled:     true,
			MinInterval: Duration(5 * time.Second),
		},
		Log: LogConfig{
			Level: string(LogLevelInfo),
		},
	}
}

// DaemonConfigPath returns the path to the daemon config file.
func DaemonConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "compstack", "compstackd.toml"), nil
}

// LoadDaemonConfig loads the daemon configuration from its default path.
// If the file doesn't exist, returns the default configuration.
func LoadDaemonConfig() (*DaemonConfig, error) {
	path, err := DaemonConfigPath()
	if err != nil {
		return nil, fmt.Errorf("failed to get config path: %w", err)
	}
	return LoadDaemonConfigFrom(path)
}

// LoadDaemonConfigFrom loads the daemon configuration from path.
func LoadDaemonConfigFrom(path string) (*DaemonConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultDaemonConfig(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Start with defaults, then overlay with file contents
	config := DefaultDaemonConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// SaveDaemonConfig saves the daemon configuration to its default path.
func SaveDaemonConfig(config *DaemonConfig) error {
	path, err := DaemonConfigPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}
	return SaveDaemonConfigTo(config, path)
}

// SaveDaemonConfigTo writes config to path atomically.
func SaveDaemonConfigTo(config *DaemonConfig, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := toml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Write atomically via temp file
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return os.Rename(tmpPath, path)
}

// Validate checks if the configuration is valid.
func (c *DaemonConfig) Validate() error {
	if c.Stacking.Debounce < 0 || c.Stacking.Debounce.Duration() > MaxDebounce {
		return fmt.Errorf("debounce must be between 0 and %s, got %s", MaxDebounce, c.Stacking.Debounce.Duration())
	}
	if c.Stacking.JournalLimit < 0 {
		return fmt.Errorf("journal_limit must not be negative, got %d", c.Stacking.JournalLimit)
	}

	if c.Compositing.ScreenWidth < 0 || c.Compositing.ScreenHeight < 0 {
		return fmt.Errorf("screen size must not be negative, got %dx%d",
			c.Compositing.ScreenWidth, c.Compositing.ScreenHeight)
	}
	if (c.Compositing.ScreenWidth == 0) != (c.Compositing.ScreenHeight == 0) {
		return fmt.Errorf("screen_width and screen_height must be set together")
	}

	if c.Notify.MinInterval < 0 {
		return fmt.Errorf("notify.min_interval must not be negative, got %s", c.Notify.MinInterval.Duration())
	}

	validLevel := false
	for _, l := range ValidLogLevels() {
		if strings.EqualFold(c.Log.Level, string(l)) {
			validLevel = true
			break
		}
	}
	if !validLevel {
		return fmt.Errorf("invalid log level %q, must be one of: %v", c.Log.Level, ValidLogLevels())
	}

	return nil
}

// SlogLevel returns the configured log level.
func (c *DaemonConfig) SlogLevel() slog.Level {
	switch LogLevel(strings.ToLower(c.Log.Level)) {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ExpandPath expands ~ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
