package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Pr0Services/novagov/internal/client"
)

var (
	rejectBy     string
	rejectReason string
)

func init() {
	rootCmd.AddCommand(rejectCmd)
	rejectCmd.Flags().StringVar(&rejectBy, "by", "", "User making the decision (required)")
	rejectCmd.Flags().StringVar(&rejectReason, "reason", "", "Why the action is rejected (required)")
	rejectCmd.MarkFlagRequired("by")
	rejectCmd.MarkFlagRequired("reason")
}

var rejectCmd = &cobra.Command{
	Use:   "reject <checkpoint-id>",
	Short: "Reject a pending checkpoint",
	Long:  "Rejects a pending checkpoint. A reason is mandatory; the user is owed an explanation\nfor every blocked action.",
	Args:  cobra.ExactArgs(1),
	RunE:  runReject,
}

func runReject(cmd *cobra.Command, args []string) error {
	c := client.New(serverURL)
	cp, err := c.Reject(context.Background(), args[0], rejectBy, rejectReason)
	if err != nil {
		return err
	}
	fmt.Printf("Rejected %s: %s\n", cp.ID, cp.DecisionReason)
	return nil
}
