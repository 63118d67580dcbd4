package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Pr0Services/novagov/internal/client"
)

var pendingIdentity string

func init() {
	rootCmd.AddCommand(pendingCmd)
	pendingCmd.Flags().StringVar(&pendingIdentity, "identity", "", "Only checkpoints for this user")
}

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List checkpoints awaiting a decision",
	RunE:  runPending,
}

func runPending(cmd *cobra.Command, args []string) error {
	c := client.New(serverURL)
	list, err := c.Pending(context.Background(), pendingIdentity)
	if err != nil {
		return err
	}

	if len(list) == 0 {
		fmt.Println("No pending checkpoints.")
		return nil
	}

	fmt.Printf("%-14s %-10s %-35s %-8s %s\n", "ID", "TIER", "TITLE", "TOKENS", "EXPIRES")
	for _, cp := range list {
		fmt.Printf("%-14s %-10s %-35s %-8d %s\n",
			cp.ID,
			cp.Sensitivity,
			truncate(cp.Title, 35),
			cp.EstimatedTokens,
			cp.ExpiresAt.Format("15:04:05"),
		)
	}
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
