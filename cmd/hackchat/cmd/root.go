package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/nfrund/hackchat/internal/config"
	"github.com/nfrund/hackchat/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "hackchat",
	Short: "Real-time chat server for hackathon teams",
	Long: `hackchat serves team, project, hackathon and direct-message chat rooms
over websockets, with an HTTP API for history, search and read receipts.

Configuration is read from the environment and an optional .env file.

Use "hackchat [command] --help" for more information about a command.`,
	SilenceUsage: true,
}

// Execute executes the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the configuration and installs the default logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.New()
	if err != nil {
		return nil, err
	}
	logging.New(cfg.GetLogFormat(), cfg.GetLogLevel())
	return cfg, nil
}
