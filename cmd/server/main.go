// Package main is the entry point for the mashin registry binary.
//
// Subcommands:
//
//	serve          HTTP API, webhook intake and (optionally) the build worker
//	worker         build worker only, for deployments that scale it separately
//	migrate        apply, roll back or force database migrations
//	words sync     load the forbidden word file into the database once
//	keys generate  create an admin API key and its bcrypt hash
//	version        print the build version
//
// serve runs migrations on startup so a fresh container needs no separate
// migration step.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nutshimit/mashin-registry/internal/config"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "0.1.0"

var configPath string

var rootCmd = &cobra.Command{
	Use:           "mashin-registry",
	Short:         "Module registry for the mashin runtime",
	Long:          "Publishes mashin modules from GitHub releases and serves their files and documentation.",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("CONFIG_PATH"),
		"path to the YAML config file (default: $CONFIG_PATH, then ./config.yaml)")

	rootCmd.AddCommand(serveCmd, workerCmd, migrateCmd, wordsCmd, keysCmd, versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "mashin-registry v%s\n", version)
	},
}

// loadConfig loads configuration and installs the logger it describes.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	setupLogging(cfg)
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
