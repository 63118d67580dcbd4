package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Pr0Services/novagov/internal/client"
)

var (
	violationsIdentity string
	resolveBy          string
	resolveNotes       string
)

func init() {
	rootCmd.AddCommand(violationsCmd)
	violationsCmd.Flags().StringVar(&violationsIdentity, "identity", "", "Only violations for this user")

	rootCmd.AddCommand(resolveCmd)
	resolveCmd.Flags().StringVar(&resolveBy, "by", "", "User resolving the violation (required)")
	resolveCmd.Flags().StringVar(&resolveNotes, "notes", "", "Resolution notes")
	resolveCmd.MarkFlagRequired("by")
}

var violationsCmd = &cobra.Command{
	Use:   "violations",
	Short: "List unresolved law violations",
	RunE:  runViolations,
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <violation-id>",
	Short: "Mark a violation as resolved",
	Long:  "Resolution is one-way: a resolved violation never reopens, and the record itself\nstays in the ledger permanently.",
	Args:  cobra.ExactArgs(1),
	RunE:  runResolve,
}

func runViolations(cmd *cobra.Command, args []string) error {
	c := client.New(serverURL)
	list, err := c.Violations(context.Background(), violationsIdentity)
	if err != nil {
		return err
	}

	if len(list) == 0 {
		fmt.Println("No unresolved violations.")
		return nil
	}

	fmt.Printf("%-14s %-5s %-9s %-40s %s\n", "ID", "LAW", "SEVERITY", "DESCRIPTION", "DETECTED")
	for _, v := range list {
		fmt.Printf("%-14s %-5s %-9s %-40s %s\n",
			v.ID,
			v.LawCode,
			v.Severity,
			truncate(v.Description, 40),
			v.DetectedAt.Format("2006-01-02 15:04"),
		)
	}
	return nil
}

func runResolve(cmd *cobra.Command, args []string) error {
	c := client.New(serverURL)
	if err := c.ResolveViolation(context.Background(), args[0], resolveBy, resolveNotes); err != nil {
		return err
	}
	fmt.Printf("Resolved %s\n", args[0])
	return nil
}
