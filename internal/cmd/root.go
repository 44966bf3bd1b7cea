package cmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/stockroom/internal/config"
	"github.com/Iron-Ham/stockroom/internal/errors"
	"github.com/Iron-Ham/stockroom/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "stockroom",
	Short: "In-process event bus demo: a store that tells customers when stock arrives",
	Long: `Stockroom runs a small store on top of a typed in-process event bus.

An inventory manager publishes one event per received item. Customers wait
for the items they want through one-shot subscriptions, so each customer
hears about the first matching item only.

Shipments come from a scenario file (simulate) or from manifest files
dropped into a directory (watch).`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// ExecuteContext runs the root command with ctx available to subcommands
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/stockroom/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error (overrides logging.level)")
	rootCmd.PersistentFlags().String("policy", "", "listener failure policy: fail_fast or continue (overrides bus.failure_policy)")
}

// bindFlags connects flags to the config keys they override. A key can be
// bound to one flag only, so flags shared by several commands live on root.
func bindFlags() {
	bindings := []struct {
		key  string
		flag *pflag.Flag
	}{
		{"config", rootCmd.PersistentFlags().Lookup("config")},
		{"logging.level", rootCmd.PersistentFlags().Lookup("log-level")},
		{"bus.failure_policy", rootCmd.PersistentFlags().Lookup("policy")},
		{"simulate.show_metrics", simulateCmd.Flags().Lookup("metrics")},
		{"watch.debounce_ms", watchCmd.Flags().Lookup("debounce-ms")},
		{"watch.scan_existing", watchCmd.Flags().Lookup("scan-existing")},
	}
	for _, b := range bindings {
		_ = viper.BindPFlag(b.key, b.flag)
	}
}

func initConfig() {
	bindFlags()

	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("STOCKROOM")
	// Replace dots with underscores for nested keys in env vars
	// e.g., STOCKROOM_BUS_FAILURE_POLICY for bus.failure_policy
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}

// loadConfig loads and validates the configuration for a command run.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

// newLogger builds the logger described by cfg. When file logging is
// disabled it returns a logger that discards everything.
func newLogger(cfg *config.Config) (*logging.Logger, error) {
	if !cfg.Logging.Enabled {
		return logging.NopLogger(), nil
	}

	logger, err := logging.NewLoggerWithRotation(cfg.Logging.ResolveDir(), cfg.Logging.Level, logging.RotationConfig{
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		Compress:   cfg.Logging.Compress,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open log in %s", cfg.Logging.ResolveDir())
	}
	return logger, nil
}
