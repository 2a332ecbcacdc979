package cmd

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/no-wing/no-wing/internal/awsx"
	"github.com/no-wing/no-wing/internal/credential"
	"github.com/no-wing/no-wing/internal/ui"
)

var rolesContext string

var rolesCmd = &cobra.Command{
	Use:   "roles",
	Short: "Discover and test assumable IAM roles",
}

var rolesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List roles the active identity can discover",
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp()
		defer a.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		if _, err := a.SwitchTo(ctx, credential.Kind(rolesContext)); err != nil {
			log.Fatalf("❌ Failed to switch context: %v", err)
		}

		res, err := ui.Spin("Discovering roles...", func() (any, error) {
			return a.Roles.ListAvailableRoles(ctx), nil
		})
		if err != nil {
			log.Fatalf("❌ Discovery failed: %v", err)
		}

		roles := res.([]awsx.RoleDescriptor)
		if len(roles) == 0 {
			fmt.Println("📭 No assumable roles discovered.")
			return
		}

		fmt.Printf("%-40s %-10s %s\n", "NAME", "MAX", "ARN")
		fmt.Println(strings.Repeat("─", 110))
		for _, r := range roles {
			fmt.Printf("%-40s %-10s %s\n", r.Name,
				(time.Duration(r.MaxSessionDuration) * time.Second).String(), r.Arn)
		}
	},
}

var rolesTestCmd = &cobra.Command{
	Use:   "test <role-arn>",
	Short: "Diagnostic: assume a role and resolve the resulting identity",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		roleArn := args[0]

		a := mustApp()
		defer a.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		if _, err := a.SwitchTo(ctx, credential.Kind(rolesContext)); err != nil {
			log.Fatalf("❌ Failed to switch context: %v", err)
		}

		res, err := ui.Spin(fmt.Sprintf("Testing assumption of %s...", roleArn), func() (any, error) {
			return a.Roles.TestRoleAssumption(ctx, roleArn)
		})
		if err != nil {
			log.Fatalf("❌ Assumption test failed: %v", err)
		}

		ident := res.(awsx.Identity)
		fmt.Println("✅ Role assumable")
		fmt.Printf("   Assumed identity: %s\n", ident.ARN)
		fmt.Printf("   Account:          %s\n", ident.Account)
	},
}

func init() {
	rolesCmd.PersistentFlags().StringVar(&rolesContext, "context", "agent", "Identity context to discover under (human or agent)")
	rolesCmd.AddCommand(rolesListCmd)
	rolesCmd.AddCommand(rolesTestCmd)
	rootCmd.AddCommand(rolesCmd)
}
