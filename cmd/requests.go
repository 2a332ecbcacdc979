package cmd

import (
	"fmt"
	"log"
	"strings"

	"github.com/spf13/cobra"

	"github.com/no-wing/no-wing/internal/ui"
)

var requestsCmd = &cobra.Command{
	Use:   "requests",
	Short: "Manage pending permission requests",
	Long:  `List, approve, deny, and clean up the durable permission requests created when automatic elevation is exhausted.`,
}

var requestsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all permission requests",
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp()
		defer a.Close()

		requests := a.Elevator.Requests().List()
		if len(requests) == 0 {
			fmt.Println("📭 No permission requests.")
			return
		}

		for _, r := range requests {
			fmt.Printf("%s  [%s]  %s on %s\n", r.ID, r.Status, r.Operation, r.Service)
			fmt.Printf("    actions:   %s\n", strings.Join(r.RequiredActions, ", "))
			if len(r.Resources) > 0 {
				fmt.Printf("    resources: %s\n", strings.Join(r.Resources, ", "))
			}
			fmt.Printf("    reason:    %s\n", r.Justification)
			fmt.Printf("    requested: %s   expires: %s\n",
				r.RequestedAt.Format("2006-01-02 15:04:05"),
				r.ExpiresAt.Format("2006-01-02 15:04:05"))
			if r.ApprovedBy != "" {
				fmt.Printf("    resolved by %s at %s\n", r.ApprovedBy, r.ApprovedAt.Format("2006-01-02 15:04:05"))
			}
			fmt.Println()
		}
	},
}

var requestApprover string

var requestsApproveCmd = &cobra.Command{
	Use:   "approve <id>",
	Short: "Approve a pending permission request",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := args[0]

		a := mustApp()
		defer a.Close()

		req, err := a.Elevator.GetPermissionRequest(id)
		if err != nil {
			log.Fatalf("❌ %v", err)
		}

		fmt.Printf("Request %s: %s on %s\n", req.ID, req.Operation, req.Service)
		fmt.Printf("  %s\n", req.Justification)
		if !ui.Confirm("Approve this request?") {
			fmt.Println("Aborted.")
			return
		}

		approver := requestApprover
		if approver == "" {
			approver, err = ui.Ask("Approver identity", "you@example.com")
			if err != nil || approver == "" {
				log.Fatal("❌ Approver identity required")
			}
		}

		ok, err := a.Elevator.ApprovePermissionRequest(id, approver)
		if !ok {
			log.Fatalf("❌ Approval failed: %v", err)
		}
		fmt.Printf("✅ Request %s approved by %s\n", id, approver)
	},
}

var requestsDenyCmd = &cobra.Command{
	Use:   "deny <id>",
	Short: "Deny a pending permission request",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := args[0]

		a := mustApp()
		defer a.Close()

		denier := requestApprover
		if denier == "" {
			denier = "cli"
		}
		if err := a.Elevator.Requests().Deny(id, denier); err != nil {
			log.Fatalf("❌ Denial failed: %v", err)
		}
		fmt.Printf("✅ Request %s denied\n", id)
	},
}

var requestsCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Expire pending requests past their deadline",
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp()
		defer a.Close()

		n, err := a.Elevator.CleanupExpiredRequests()
		if err != nil {
			log.Fatalf("❌ Cleanup failed: %v", err)
		}
		fmt.Printf("✅ Expired %d request(s)\n", n)
	},
}

func init() {
	requestsApproveCmd.Flags().StringVar(&requestApprover, "approver", "", "Approver identity (prompted if omitted)")
	requestsDenyCmd.Flags().StringVar(&requestApprover, "approver", "", "Denier identity")
	requestsCmd.AddCommand(requestsListCmd)
	requestsCmd.AddCommand(requestsApproveCmd)
	requestsCmd.AddCommand(requestsDenyCmd)
	requestsCmd.AddCommand(requestsCleanupCmd)
	rootCmd.AddCommand(requestsCmd)
}
