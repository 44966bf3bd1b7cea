package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/stockroom/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or modify stockroom configuration",
	Long: `View or modify stockroom configuration.

Without arguments, displays the current configuration.
Use subcommands to modify settings or create a config file.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the user's config file.

Keys use dot notation, e.g.:
  stockroom config set bus.failure_policy continue
  stockroom config set logging.enabled true
  stockroom config set watch.debounce_ms 200

Valid keys:
  bus.failure_policy     - What a dispatch does when a listener fails
                           Options: fail_fast, continue
  logging.enabled        - Write a log file (true/false)
  logging.level          - Options: debug, info, warn, error
  logging.dir            - Log directory (default: logs under the config directory)
  logging.max_size_mb    - Log size in MB before rotation
  logging.max_backups    - Rotated log files to keep
  logging.compress       - Gzip rotated log files (true/false)
  watch.debounce_ms      - Quiet period before a dropped manifest is read
  watch.scan_existing    - Receive manifests already present on start (true/false)
  simulate.show_metrics  - Print dispatch metrics after a simulation (true/false)`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Long:  `Create a default config file at ~/.config/stockroom/config.yaml with all available options.`,
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	Args:  cobra.NoArgs,
	RunE:  runConfigPath,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
}

// configKeys maps each settable key to its value type.
var configKeys = map[string]string{
	"bus.failure_policy":    "string",
	"logging.enabled":       "bool",
	"logging.level":         "string",
	"logging.dir":           "string",
	"logging.max_size_mb":   "int",
	"logging.max_backups":   "int",
	"logging.compress":      "bool",
	"watch.debounce_ms":     "int",
	"watch.scan_existing":   "bool",
	"simulate.show_metrics": "bool",
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "Current configuration:")
	fmt.Fprintln(out)

	// Show where config is being read from
	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "Config file: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintf(out, "Config file: (none - using defaults)\n")
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "bus:")
	fmt.Fprintf(out, "  failure_policy: %s\n", cfg.Bus.Policy())

	fmt.Fprintln(out, "logging:")
	fmt.Fprintf(out, "  enabled: %v\n", cfg.Logging.Enabled)
	fmt.Fprintf(out, "  level: %s\n", cfg.Logging.Level)
	fmt.Fprintf(out, "  dir: %s\n", cfg.Logging.ResolveDir())
	fmt.Fprintf(out, "  max_size_mb: %d\n", cfg.Logging.MaxSizeMB)
	fmt.Fprintf(out, "  max_backups: %d\n", cfg.Logging.MaxBackups)
	fmt.Fprintf(out, "  compress: %v\n", cfg.Logging.Compress)

	fmt.Fprintln(out, "watch:")
	fmt.Fprintf(out, "  debounce_ms: %d\n", cfg.Watch.DebounceMs)
	fmt.Fprintf(out, "  extensions: [%s]\n", strings.Join(cfg.Watch.Extensions, ", "))
	fmt.Fprintf(out, "  scan_existing: %v\n", cfg.Watch.ScanExisting)

	fmt.Fprintln(out, "simulate:")
	fmt.Fprintf(out, "  show_metrics: %v\n", cfg.Simulate.ShowMetrics)

	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key := args[0]
	value := args[1]

	keyType, ok := configKeys[key]
	if !ok {
		return fmt.Errorf("unknown configuration key: %s\nRun 'stockroom config set --help' to see valid keys", key)
	}

	var typedValue any
	switch keyType {
	case "string":
		typedValue = value
	case "bool":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid value for %s: expected true or false", key)
		}
		typedValue = b
	case "int":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for %s: expected integer", key)
		}
		typedValue = n
	}

	viper.Set(key, typedValue)
	// Range and enum checks live in config.Validate.
	if _, err := loadConfig(); err != nil {
		return err
	}

	configDir := config.ConfigDir()
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configFile := config.ConfigFile()
	if used := viper.ConfigFileUsed(); used != "" {
		configFile = used
	}
	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Set %s = %v\n", key, typedValue)
	fmt.Fprintf(out, "Config saved to %s\n", configFile)
	return nil
}

const defaultConfigContent = `# Stockroom Configuration

# Event bus settings
bus:
  # What a dispatch pass does when a listener returns an error or panics
  # Options: fail_fast (stop at the first failure), continue (run every listener)
  failure_policy: fail_fast

# Structured JSON logging
logging:
  # Write a log file; view it with 'stockroom logs'
  enabled: false
  # Options: debug, info, warn, error
  level: info
  # Log directory (default: logs under the config directory)
  dir: ""
  # Rotate the log once it reaches this size in megabytes
  max_size_mb: 10
  # Number of rotated log files to keep
  max_backups: 3
  # Gzip rotated log files
  compress: false

# Drop-directory watcher used by 'stockroom watch'
watch:
  # How long a manifest file must be quiet before it is read
  debounce_ms: 50
  # Manifest file extensions to pick up
  extensions: [".yaml", ".yml"]
  # Receive manifests already in the directory when the watch starts
  scan_existing: true

# 'stockroom simulate' settings
simulate:
  # Print per-topic dispatch metrics after the run
  show_metrics: false
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	configDir := config.ConfigDir()
	configFile := config.ConfigFile()

	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config file already exists at %s\nUse 'stockroom config set' to modify values", configFile)
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(configFile, []byte(defaultConfigContent), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created config file at %s\n", configFile)
	fmt.Fprintln(out, "Edit this file to customize stockroom's behavior.")
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	configFile := config.ConfigFile()

	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "Active config: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintf(out, "Default path: %s (not created)\n", configFile)
	}

	fmt.Fprintln(out, "\nSearch paths:")
	fmt.Fprintf(out, "  1. %s\n", filepath.Join(config.ConfigDir(), "config.yaml"))
	fmt.Fprintf(out, "  2. ./config.yaml (current directory)\n")
	fmt.Fprintln(out, "\nEnvironment variables: STOCKROOM_* (e.g., STOCKROOM_BUS_FAILURE_POLICY)")
	return nil
}
