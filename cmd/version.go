package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/no-wing/no-wing/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the no-wing version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("no-wing %s\n", version.Current)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
