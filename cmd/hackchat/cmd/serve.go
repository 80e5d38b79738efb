package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/nfrund/hackchat/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chat server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		slog.Info("Starting hackchat",
			"version", app.Version,
			"store", cfg.GetStoreDriver(),
			"ephemeral", cfg.GetEphemeralDriver(),
			"auth", cfg.GetAuthMode(),
		)

		a, err := app.New(cmd.Context(), cfg)
		if err != nil {
			slog.Error("Failed to build application", "error", err)
			return err
		}
		if err := a.Run(cmd.Context()); err != nil {
			slog.Error("Server stopped with error", "error", err)
			return err
		}
		slog.Info("Server stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
