package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var serverURL string

var rootCmd = &cobra.Command{
	Use:   "novagov",
	Short: "Governance checkpoint engine for user-sovereign AI systems",
	Long:  "Intercepts sensitive operations before they execute and decides: allow, deny, or hold for explicit user approval.\nEvery decision lands in a tamper-evident audit trail.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://127.0.0.1:7171", "Base URL of the governance server")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
