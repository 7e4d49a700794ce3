package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"sharetok/pkg/config"
	"sharetok/pkg/logger"
)

var (
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile  string
	logLevel    string
	logFormat   string
	accountName string
	cookieFlag  string
	dbDSN       string
	storageRoot string

	// cfg is loaded once by PersistentPreRunE
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "sharetok",
	Short: "Resolve, download and cache short-video posts",
	Long: `sharetok resolves share links to posts, downloads their media into a local
asset tree and keeps metadata in a database, evicting the oldest items when the
storage budget is exceeded and restoring them transparently on the next access.

Run 'sharetok serve' for the HTTP API or use the one-shot commands below.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if skipsConfig(cmd) {
			return nil
		}
		loaded, err := config.Load(configFile, commandLineFlags())
		if err != nil {
			return err
		}
		cfg = loaded

		logger.Version = version
		return logger.Initialize(&cfg.Logging)
	},
}

// Execute runs the root command and exits non-zero on failure
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is ./.sharetok.yaml or ~/.config/sharetok/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (console, json)")
	rootCmd.PersistentFlags().StringVarP(&accountName, "account", "a", "", "stored account whose cookies are sent to the platform")
	rootCmd.PersistentFlags().StringVar(&cookieFlag, "cookies", "", `one-off cookie header, e.g. "sessionid=...; ttwid=..."`)
	rootCmd.PersistentFlags().StringVar(&dbDSN, "db", "", "metadata database (SQLite path or postgres:// DSN)")
	rootCmd.PersistentFlags().StringVar(&storageRoot, "storage-root", "", "asset storage root")

	rootCmd.SetVersionTemplate(`sharetok {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// commandLineFlags collects the global flags config.Load merges on top of
// file and environment values
func commandLineFlags() map[string]interface{} {
	return map[string]interface{}{
		"log-level":    logLevel,
		"log-format":   logFormat,
		"account":      accountName,
		"db":           dbDSN,
		"storage-root": storageRoot,
	}
}

// skipsConfig lists commands that must work without a valid configuration
func skipsConfig(cmd *cobra.Command) bool {
	switch cmd.Name() {
	case "help", "version", "init", "validate":
		return true
	}
	return cmd.Parent() != nil && cmd.Parent().Name() == "auth"
}
