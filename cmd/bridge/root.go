package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/wasm-bridge/host"
)

var rootCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Run modules that use the WebAssembly host bridge",
	Long: `bridge - host a module that runs workers and asynchronous host calls
on top of a synchronous message interface.

Use "run" for a compiled WebAssembly guest, "demo" for the built-in
in-process module, and "schema" to print the configuration schema.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "YAML host configuration file")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("interactive", "auto", "Status view: auto, on, off")
}

func addHostFlags(cmd *cobra.Command) {
	cmd.Flags().Int("max-workers", 0, "Maximum concurrent workers (overrides config)")
	cmd.Flags().StringSlice("allow-host", nil, "Allow fetch to host (repeatable, overrides config)")
	cmd.Flags().Duration("fetch-timeout", 0, "Fetch timeout (overrides config)")
}

// loadConfig reads --config and applies flag overrides.
func loadConfig(cmd *cobra.Command) (host.Config, error) {
	cfg := host.DefaultConfig()
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		c, err := host.LoadConfig(path)
		if err != nil {
			return host.Config{}, err
		}
		cfg = c
	}
	if cmd.Flags().Changed("max-workers") {
		cfg.MaxWorkers, _ = cmd.Flags().GetInt("max-workers")
	}
	if cmd.Flags().Changed("allow-host") {
		cfg.AllowedHosts, _ = cmd.Flags().GetStringSlice("allow-host")
	}
	if cmd.Flags().Changed("fetch-timeout") {
		cfg.FetchTimeout, _ = cmd.Flags().GetDuration("fetch-timeout")
	}
	return cfg, cfg.Validate()
}

// interactive decides whether to show the status view.
func interactive(cmd *cobra.Command) bool {
	mode, _ := cmd.Flags().GetString("interactive")
	switch mode {
	case "on", "true":
		return true
	case "off", "false":
		return false
	}
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// newLogger builds a console logger. The status view owns the terminal,
// so it gets a no-op logger.
func newLogger(cmd *cobra.Command, tui bool) (*zap.Logger, error) {
	if tui {
		return zap.NewNop(), nil
	}
	level, _ := cmd.Flags().GetString("log-level")
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = lvl
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}
