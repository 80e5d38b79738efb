package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nfrund/hackchat/internal/app"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of hackchat",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "hackchat v%s\n", app.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
