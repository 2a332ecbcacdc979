package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/no-wing/no-wing/internal/elevate"
	"github.com/no-wing/no-wing/internal/operation"
	"github.com/no-wing/no-wing/internal/ui"
)

var (
	elevateOperation string
	elevateService   string
	elevateResources []string
	elevateActions   string
	elevateTimeout   time.Duration
)

var elevateCmd = &cobra.Command{
	Use:   "elevate",
	Short: "Obtain permission for an operation under the agent context",
	Long: `Run the elevation chain for one operation: direct permission check,
role assumption, graceful degradation, and finally a durable
manual-approval request. The whole chain runs scoped to the agent
context and restores the prior context afterwards.`,
	Example: `  no-wing elevate --operation deploy --service deployment
  no-wing elevate --operation put-object --service s3 \
    --resource arn:aws:s3:::my-bucket/* --actions "s3:PutObject"`,
	Run: func(cmd *cobra.Command, args []string) {
		if elevateOperation == "" || elevateService == "" {
			log.Fatal("Error: --operation and --service are required.")
		}

		op := operation.Context{
			Operation: elevateOperation,
			Service:   elevateService,
			Resources: elevateResources,
		}
		if elevateActions != "" {
			op.Tags = map[string]string{"actions": elevateActions}
		}

		a := mustApp()
		defer a.Close()

		ctx, cancel := context.WithTimeout(context.Background(), elevateTimeout)
		defer cancel()

		res, err := ui.Spin(fmt.Sprintf("Elevating %s on %s...", op.Operation, op.Service), func() (any, error) {
			return a.ElevateAsAgent(ctx, op)
		})
		if err != nil {
			log.Fatalf("❌ Elevation failed: %v", err)
		}

		printResult(res.(*elevate.Result))
	},
}

func printResult(r *elevate.Result) {
	switch r.Method {
	case elevate.MethodDirect:
		fmt.Printf("✅ Direct permission: %s\n", r.Message)
	case elevate.MethodRoleAssumption:
		fmt.Printf("✅ Role assumed: %s\n", r.Message)
		if r.Session != nil {
			fmt.Printf("   Session: %s (expires %s)\n",
				r.Session.SessionName, r.Session.Expiration.Format("15:04:05"))
		}
	case elevate.MethodDegraded:
		fmt.Printf("⚠️  Degraded mode (%s): %s\n", r.Strategy, r.Message)
		for _, alt := range r.Alternatives {
			fmt.Printf("   💡 %s\n", alt)
		}
	case elevate.MethodPermissionRequest:
		fmt.Printf("⏳ %s\n", r.Message)
	}
}

func init() {
	elevateCmd.Flags().StringVar(&elevateOperation, "operation", "", "Operation name (e.g. deploy)")
	elevateCmd.Flags().StringVar(&elevateService, "service", "", "Service the operation targets")
	elevateCmd.Flags().StringArrayVar(&elevateResources, "resource", nil, "Resource ARN (repeatable)")
	elevateCmd.Flags().StringVar(&elevateActions, "actions", "", "Comma-separated IAM actions (overrides derived actions)")
	elevateCmd.Flags().DurationVar(&elevateTimeout, "timeout", 60*time.Second, "Overall deadline for the elevation attempt")
	rootCmd.AddCommand(elevateCmd)
}
