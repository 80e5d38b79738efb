package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nfrund/hackchat/internal/auth"
	"github.com/nfrund/hackchat/internal/domain"
)

var tokenFlags struct {
	name  string
	email string
	ttl   time.Duration
}

// tokenCmd issues development tokens signed with JWT_SECRET.
var tokenCmd = &cobra.Command{
	Use:   "token <user-id>",
	Short: "Issue a signed identity token for a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.GetJWTSecret() == "" {
			return errors.New("JWT_SECRET is not set")
		}
		token, err := auth.NewJWTProvider(cfg.GetJWTSecret()).Issue(domain.Identity{
			UserID:      args[0],
			DisplayName: tokenFlags.name,
			Email:       tokenFlags.email,
		}, tokenFlags.ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenFlags.name, "name", "", "display name carried by the token")
	tokenCmd.Flags().StringVar(&tokenFlags.email, "email", "", "email carried by the token")
	tokenCmd.Flags().DurationVar(&tokenFlags.ttl, "ttl", 24*time.Hour, "token lifetime")
	rootCmd.AddCommand(tokenCmd)
}
