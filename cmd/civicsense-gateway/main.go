package main

import (
	"os"
	"strings"

	"github.com/Sternrassler/civicsense-gateway/internal/config"
	"github.com/Sternrassler/civicsense-gateway/pkg/logging"
	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
	storage    string
	origin     string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:          "civicsense-gateway",
		Short:        "Offline-first gateway for the CivicSense web client",
		Long:         "civicsense-gateway proxies the CivicSense app, precaches its shell, serves cached and synthetic responses while the origin is unreachable, and replays report submissions queued offline.",
		SilenceUsage: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", os.Getenv("CIVICSENSE_CONFIG"), "path to YAML config file")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.StringVar(&flags.storage, "storage", "", "cache storage backend (memory, redis, leveldb)")
	pf.StringVar(&flags.origin, "origin", "", "origin base URL")

	rootCmd.AddCommand(
		newServeCmd(flags),
		newInstallCmd(flags),
		newActivateCmd(flags),
		newSyncCmd(flags),
		newVersionCmd(),
	)

	return rootCmd
}

// loadConfig loads the config file and environment, then applies flags.
func loadConfig(cmd *cobra.Command, flags *globalFlags) (config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return config.Config{}, err
	}

	pf := cmd.Flags()
	if pf.Changed("log-level") {
		cfg.Log.Level = logging.LogLevel(flags.logLevel)
	}
	if pf.Changed("storage") {
		cfg.Storage.Backend = strings.ToLower(flags.storage)
	}
	if pf.Changed("origin") {
		cfg.Origin.URL = flags.origin
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}

	cfg.Log.Output = cmd.ErrOrStderr()
	logging.Setup(cfg.Log)
	return cfg, nil
}
