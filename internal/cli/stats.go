package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Pr0Services/novagov/internal/client"
)

func init() {
	rootCmd.AddCommand(statsCmd)
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show governance activity counters",
	RunE:  runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	c := client.New(serverURL)
	s, err := c.Stats(context.Background())
	if err != nil {
		return err
	}

	fmt.Printf("Checkpoints:  %d total, %d pending, %d approved, %d rejected, %d expired\n",
		s.TotalCheckpoints, s.PendingCheckpoints, s.ApprovedCheckpoints,
		s.RejectedCheckpoints, s.ExpiredCheckpoints)
	fmt.Printf("Violations:   %d total, %d unresolved\n",
		s.TotalViolations, s.UnresolvedViolations)
	fmt.Printf("Tokens today: %d\n", s.TokensConsumedToday)
	if s.MeanApprovalSeconds > 0 {
		fmt.Printf("Mean approval latency: %.1fs\n", s.MeanApprovalSeconds)
	}
	if s.ScopeLocked {
		fmt.Println("Scope: locked")
	} else {
		fmt.Println("Scope: unlocked")
	}
	return nil
}
