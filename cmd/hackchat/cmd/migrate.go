package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/nfrund/hackchat/internal/config"
	"github.com/nfrund/hackchat/internal/store/sqlite"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending SQLite schema migrations",
	Long: `Applies the embedded schema migrations to the SQLite database named by
SQLITE_PATH. The server also migrates on startup; this command lets the
schema be prepared ahead of a deploy.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.GetStoreDriver() != config.StoreSQLite {
			return fmt.Errorf("migrate requires STORE_DRIVER=%s, got %q", config.StoreSQLite, cfg.GetStoreDriver())
		}
		if err := sqlite.Migrate(cmd.Context(), cfg.GetSQLitePath()); err != nil {
			return err
		}
		slog.Info("Migrations applied", "path", cfg.GetSQLitePath())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
