package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/Warpcast/cli/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the warpcast version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "warpcast %s\n", version.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
