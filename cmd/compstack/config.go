package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/jmylchreest/compstack/internal/config"
)

var configOpts struct {
	daemon bool // Operate on the daemon config instead of the CLI config
	force  bool // Overwrite an existing file on init
}

// configCmd represents the config command group.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or create configuration files",
	Long: `Inspect or create the compstack configuration files.

The CLI reads config.toml for output, filter, sort, prune, dashboard and
clipboard defaults. compstackd reads compstackd.toml for its stacking,
compositing, policy, power and D-Bus settings. Pass --daemon to operate
on the daemon file.

Use 'compstack config show' to print the effective configuration.
Use 'compstack config path' to print the file location.
Use 'compstack config init' to write a file with the defaults.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Default to showing the config
		return configShowRun(cmd, args)
	},
}

// configShowCmd prints the effective configuration.
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE:  configShowRun,
}

// configPathCmd prints the configuration file location.
var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the configuration file path",
	RunE:  configPathRun,
}

// configInitCmd writes the defaults.
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with default values",
	RunE:  configInitRun,
}

func init() {
	configCmd.PersistentFlags().BoolVar(&configOpts.daemon, "daemon", false,
		"Use the compstackd configuration file")
	configInitCmd.Flags().BoolVar(&configOpts.force, "force", false,
		"Overwrite an existing file")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}

func configFilePath() (string, error) {
	if configOpts.daemon {
		return config.DaemonConfigPath()
	}
	if globalOpts.configPath != "" {
		return globalOpts.configPath, nil
	}
	return config.ConfigPath(), nil
}

func configShowRun(cmd *cobra.Command, args []string) error {
	var v any
	if configOpts.daemon {
		path, err := config.DaemonConfigPath()
		if err != nil {
			return err
		}
		dc, err := config.LoadDaemonConfigFrom(path)
		if err != nil {
			return fmt.Errorf("failed to load daemon config: %w", err)
		}
		v = dc
	} else {
		v = getConfig()
	}

	data, err := toml.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	_, err = os.Stdout.Write(data)
	return err
}

func configPathRun(cmd *cobra.Command, args []string) error {
	path, err := configFilePath()
	if err != nil {
		return err
	}
	fmt.Println(path)
	return nil
}

func configInitRun(cmd *cobra.Command, args []string) error {
	path, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(path); err == nil && !configOpts.force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	if configOpts.daemon {
		err = config.SaveDaemonConfigTo(config.DefaultDaemonConfig(), path)
	} else {
		err = config.DefaultConfig().Save(path)
	}
	if err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Printf("Wrote %s\n", path)
	return nil
}
