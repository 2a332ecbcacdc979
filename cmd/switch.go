package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/no-wing/no-wing/internal/credential"
	"github.com/no-wing/no-wing/internal/ui"
)

var switchCmd = &cobra.Command{
	Use:   "switch <human|agent>",
	Short: "Switch the active identity context",
	Long: `Switch between the human and agent identity contexts. The switch
validates credentials against STS and invalidates all cached service
clients so nothing keeps acting under the old identity.`,
	Args: cobra.ExactArgs(1),
	Example: `  # Act as the agent
  no-wing switch agent

  # Back to your own identity
  no-wing switch human`,
	Run: func(cmd *cobra.Command, args []string) {
		kind := credential.Kind(args[0])
		if kind != credential.KindHuman && kind != credential.KindAgent {
			log.Fatalf("❌ Unknown context %q (use human or agent)", args[0])
		}

		a := mustApp()
		defer a.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		res, err := ui.Spin(fmt.Sprintf("Switching to %s context...", kind), func() (any, error) {
			return a.SwitchTo(ctx, kind)
		})
		if err != nil {
			log.Fatalf("❌ Switch failed: %v", err)
		}

		cc := res.(*credential.Context)
		fmt.Printf("✅ Now acting as %s\n", cc.Kind)
		fmt.Printf("   Identity: %s\n", cc.Identity.ARN)
		fmt.Printf("   Account:  %s\n", cc.Identity.Account)
	},
}

func init() {
	rootCmd.AddCommand(switchCmd)
}
