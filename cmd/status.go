package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/no-wing/no-wing/internal/elevate"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the active context and pending permission requests",
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp()
		defer a.Close()

		requests := a.Elevator.Requests().List()

		if statusJSON {
			out := map[string]any{
				"context":  a.Store.Current(),
				"requests": requests,
			}
			data, _ := json.MarshalIndent(out, "", "  ")
			fmt.Println(string(data))
			return
		}

		header := color.New(color.FgCyan, color.Bold).SprintFunc()

		active := a.Store.Current()
		if active == nil {
			fmt.Println("No active context. Run 'no-wing switch <human|agent>' first.")
		} else {
			fmt.Printf("%s %s (%s)\n", header("Context:"), active.Kind, active.Identity.ARN)
		}

		if len(requests) > 0 {
			fmt.Println()
			fmt.Printf("%-14s %-14s %-14s %-10s %-20s\n",
				header("REQUEST"), header("OPERATION"), header("SERVICE"), header("STATUS"), header("REQUESTED"))
			fmt.Println(strings.Repeat("-", 76))
			for _, r := range requests {
				statusColor := color.New(color.FgYellow).SprintFunc()
				switch r.Status {
				case elevate.StatusApproved:
					statusColor = color.New(color.FgGreen).SprintFunc()
				case elevate.StatusDenied, elevate.StatusExpired:
					statusColor = color.New(color.FgRed).SprintFunc()
				}
				fmt.Printf("%-14s %-14s %-14s %-10s %-20s\n",
					r.ID,
					truncateText(r.Operation, 12),
					truncateText(r.Service, 12),
					statusColor(string(r.Status)),
					r.RequestedAt.Format("2006-01-02 15:04:05"))
			}
		}
	},
}

func truncateText(text string, max int) string {
	if len(text) > max {
		return text[:max-3] + "..."
	}
	return text
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output results in JSON format for automation")
	rootCmd.AddCommand(statusCmd)
}
