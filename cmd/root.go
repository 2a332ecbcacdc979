package cmd

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/no-wing/no-wing/internal/app"
	"github.com/no-wing/no-wing/internal/version"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "no-wing",
	Short: "no-wing gives coding agents their own AWS identity with automatic permission elevation",
	Long: `no-wing keeps agent and human AWS identities strictly separated and
satisfies the agent's permission needs through layered elevation:
direct check, role assumption, graceful degradation, and finally a
durable manual-approval request.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Check for updates on every command (non-blocking)
		version.CheckForUpdates()
	},
}

// Execute runs the CLI
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// mustApp assembles the engine or exits.
func mustApp() *app.App {
	a, err := app.New(cfgFile)
	if err != nil {
		log.Fatalf("❌ Failed to initialize: %v", err)
	}
	return a
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default ~/.no-wing/config.yaml)")
}
