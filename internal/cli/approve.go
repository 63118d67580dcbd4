package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Pr0Services/novagov/internal/client"
)

var (
	approveBy     string
	approveReason string
)

func init() {
	rootCmd.AddCommand(approveCmd)
	approveCmd.Flags().StringVar(&approveBy, "by", "", "User making the decision (required)")
	approveCmd.Flags().StringVar(&approveReason, "reason", "", "Decision rationale")
	approveCmd.MarkFlagRequired("by")
}

var approveCmd = &cobra.Command{
	Use:   "approve <checkpoint-id>",
	Short: "Approve a pending checkpoint",
	Args:  cobra.ExactArgs(1),
	RunE:  runApprove,
}

func runApprove(cmd *cobra.Command, args []string) error {
	c := client.New(serverURL)
	cp, err := c.Approve(context.Background(), args[0], approveBy, approveReason)
	if err != nil {
		return err
	}
	fmt.Printf("Approved %s (%s, reserved %d tokens)\n", cp.ID, cp.Title, cp.ReservedTokens)
	return nil
}
