package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Pr0Services/novagov/internal/client"
	"github.com/Pr0Services/novagov/internal/engine"
	"github.com/Pr0Services/novagov/internal/model"
)

var (
	checkIdentity    string
	checkSphere      string
	checkSensitivity string
	checkTokens      int
	checkForce       bool
	checkTitle       string
)

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().StringVar(&checkIdentity, "identity", "", "User the action is performed for (required)")
	checkCmd.Flags().StringVar(&checkSphere, "sphere", "", "Life-sphere the action belongs to")
	checkCmd.Flags().StringVar(&checkSensitivity, "sensitivity", "low", "Risk tier: low, medium, high, critical")
	checkCmd.Flags().IntVar(&checkTokens, "tokens", 0, "Estimated token cost")
	checkCmd.Flags().BoolVar(&checkForce, "force-checkpoint", false, "Hold for approval regardless of tier")
	checkCmd.Flags().StringVar(&checkTitle, "title", "", "Short summary of the action")
	checkCmd.MarkFlagRequired("identity")
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate a proposed execution against governance policy",
	Long:  "Submits a proposed action to the governance server and prints the decision:\nallowed, denied with a reason, or held behind a checkpoint awaiting approval.",
	RunE:  runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	c := client.New(serverURL)
	res, err := c.Validate(context.Background(), engine.ValidateRequest{
		IdentityID:      checkIdentity,
		SphereID:        checkSphere,
		Sensitivity:     model.Sensitivity(checkSensitivity),
		EstimatedTokens: checkTokens,
		ForceCheckpoint: checkForce,
		Title:           checkTitle,
	})
	if err != nil {
		return err
	}

	switch {
	case res.Allowed:
		fmt.Println("ALLOWED")
	case res.RequiresCheckpoint:
		fmt.Printf("HELD: checkpoint %s awaits approval\n", res.CheckpointID)
		fmt.Printf("  approve with: novagov approve %s --by %s\n", res.CheckpointID, checkIdentity)
	default:
		fmt.Printf("DENIED: %s\n", res.Reason)
	}
	for _, w := range res.Warnings {
		fmt.Printf("  warning: %s\n", w)
	}
	return nil
}
