package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Pr0Services/novagov/internal/law"
)

func init() {
	rootCmd.AddCommand(lawsCmd)
}

var lawsCmd = &cobra.Command{
	Use:   "laws",
	Short: "List the ten governance laws",
	Run: func(cmd *cobra.Command, args []string) {
		for _, code := range law.Codes() {
			l := law.Get(code)
			fmt.Printf("%-4s %-20s [%s]\n     %s\n", l.Code, l.Name, l.Strength, l.Description)
		}
	},
}
