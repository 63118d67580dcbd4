package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Pr0Services/novagov/internal/client"
)

var escalateTo string

func init() {
	rootCmd.AddCommand(escalateCmd)
	escalateCmd.Flags().StringVar(&escalateTo, "to", "", "Authority to route the checkpoint to (required)")
	escalateCmd.MarkFlagRequired("to")
}

var escalateCmd = &cobra.Command{
	Use:   "escalate <checkpoint-id>",
	Short: "Escalate a pending checkpoint to a higher authority",
	Long:  "Marks a pending checkpoint as escalated. The checkpoint keeps its queue slot\nand can still be approved or rejected; escalation is a routing hint, not a decision.",
	Args:  cobra.ExactArgs(1),
	RunE:  runEscalate,
}

func runEscalate(cmd *cobra.Command, args []string) error {
	c := client.New(serverURL)
	cp, err := c.Escalate(context.Background(), args[0], escalateTo)
	if err != nil {
		return err
	}
	fmt.Printf("Escalated %s to %s (level %d)\n", cp.ID, cp.EscalatedTo, cp.EscalationLevel)
	return nil
}
