package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Pr0Services/novagov/internal/client"
	"github.com/Pr0Services/novagov/internal/model"
)

var (
	setEnabled    bool
	setStrict     bool
	setAutoLow    bool
	setExpiry     int
	setMaxPending int
	setReqLock    bool
	setRetention  int
	setChangedBy  string
)

func init() {
	rootCmd.AddCommand(settingsCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	settingsSetCmd.Flags().BoolVar(&setEnabled, "enabled", true, "Master switch for governance")
	settingsSetCmd.Flags().BoolVar(&setStrict, "strict-mode", false, "Deny on any law breach")
	settingsSetCmd.Flags().BoolVar(&setAutoLow, "auto-approve-low", true, "Auto-approve low-tier actions under the token threshold")
	settingsSetCmd.Flags().IntVar(&setExpiry, "checkpoint-expiry", 30, "Default checkpoint expiry in minutes")
	settingsSetCmd.Flags().IntVar(&setMaxPending, "max-pending", 10, "Maximum pending checkpoints before denial")
	settingsSetCmd.Flags().BoolVar(&setReqLock, "require-scope-lock", false, "Deny execution without an active scope lock")
	settingsSetCmd.Flags().IntVar(&setRetention, "audit-retention", 90, "Audit retention in days")
	settingsSetCmd.Flags().StringVar(&setChangedBy, "by", "", "User making the change")
}

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change runtime governance settings",
	RunE:  runSettingsShow,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Change governance settings",
	Long:  "Applies only the flags you pass; everything else keeps its current value.\nEvery change is recorded in the audit trail.",
	RunE:  runSettingsSet,
}

func runSettingsShow(cmd *cobra.Command, args []string) error {
	c := client.New(serverURL)
	s, err := c.Settings(context.Background())
	if err != nil {
		return err
	}
	out, _ := json.MarshalIndent(s, "", "  ")
	fmt.Println(string(out))
	return nil
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	// Only explicitly set flags become part of the patch.
	var patch model.SettingsPatch
	flags := cmd.Flags()
	if flags.Changed("enabled") {
		patch.Enabled = &setEnabled
	}
	if flags.Changed("strict-mode") {
		patch.StrictMode = &setStrict
	}
	if flags.Changed("auto-approve-low") {
		patch.AutoApproveLow = &setAutoLow
	}
	if flags.Changed("checkpoint-expiry") {
		patch.CheckpointExpiryMinutes = &setExpiry
	}
	if flags.Changed("max-pending") {
		patch.MaxPendingCheckpoints = &setMaxPending
	}
	if flags.Changed("require-scope-lock") {
		patch.RequireScopeLock = &setReqLock
	}
	if flags.Changed("audit-retention") {
		patch.AuditRetentionDays = &setRetention
	}

	c := client.New(serverURL)
	s, err := c.UpdateSettings(context.Background(), patch, setChangedBy)
	if err != nil {
		return err
	}
	out, _ := json.MarshalIndent(s, "", "  ")
	fmt.Println(string(out))
	return nil
}
