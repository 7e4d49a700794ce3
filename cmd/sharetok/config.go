package main

import (
	"fmt"
	"net/url"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	"sharetok/pkg/config"
	"sharetok/pkg/ui"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage sharetok configuration.

Values are taken from, highest priority first:
  - command line flags
  - SHARETOK_* environment variables (a .env file is read too)
  - the configuration file
  - built-in defaults`,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with every default spelled out",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configFile
		if path == "" {
			path = ".sharetok.yaml"
		}
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("configuration file already exists: %s", path)
		}
		if err := config.DefaultConfig().Save(path); err != nil {
			return err
		}
		ui.PrintSuccess("Configuration written to " + path)
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration with secrets masked",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		shown := *cfg
		shown.Database.DSN = maskDSN(shown.Database.DSN)
		data, err := yaml.Marshal(&shown)
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		fmt.Print(string(data))
		return nil
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration from every source",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := config.Load(configFile, commandLineFlags()); err != nil {
			ui.PrintError("Configuration is invalid", err)
			return err
		}
		ui.PrintSuccess("Configuration is valid")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(initCmd, showCmd, validateCmd)
}

// maskDSN hides the password of a URL-style DSN
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}
