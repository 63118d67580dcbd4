package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Pr0Services/novagov/internal/client"
	"github.com/Pr0Services/novagov/internal/model"
)

var (
	lockLevel    string
	lockTarget   string
	lockName     string
	lockIdentity string
	lockTTL      int
)

func init() {
	rootCmd.AddCommand(scopeCmd)
	scopeCmd.AddCommand(scopeLockCmd)
	scopeCmd.AddCommand(scopeUnlockCmd)
	scopeLockCmd.Flags().StringVar(&lockLevel, "level", "project", "Scope level: selection, document, thread, project, sphere, global")
	scopeLockCmd.Flags().StringVar(&lockTarget, "target", "", "ID of the scoped target (required)")
	scopeLockCmd.Flags().StringVar(&lockName, "name", "", "Display name of the target")
	scopeLockCmd.Flags().StringVar(&lockIdentity, "identity", "", "User acquiring the lock (required)")
	scopeLockCmd.Flags().IntVar(&lockTTL, "ttl", 60, "Lock lifetime in minutes")
	scopeLockCmd.MarkFlagRequired("target")
	scopeLockCmd.MarkFlagRequired("identity")
}

var scopeCmd = &cobra.Command{
	Use:   "scope",
	Short: "Inspect or change the scope lock",
	Long:  "The scope lock pins work to a single context. At most one lock exists at a time;\nlocking a new scope replaces the old one.",
	RunE:  runScopeStatus,
}

var scopeLockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Lock work to a single scope",
	RunE:  runScopeLock,
}

var scopeUnlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "Release the scope lock",
	RunE:  runScopeUnlock,
}

func runScopeStatus(cmd *cobra.Command, args []string) error {
	c := client.New(serverURL)
	status, err := c.Scope(context.Background())
	if err != nil {
		return err
	}
	if !status.Locked {
		fmt.Println("Scope: unlocked")
		return nil
	}
	lk := status.Lock
	fmt.Printf("Scope: locked to %s %q (%s) by %s, expires %s\n",
		lk.Level, lk.TargetName, lk.TargetID, lk.LockedBy, lk.ExpiresAt.Format("15:04:05"))
	return nil
}

func runScopeLock(cmd *cobra.Command, args []string) error {
	c := client.New(serverURL)
	lk, err := c.LockScope(context.Background(),
		model.ScopeLevel(lockLevel), lockTarget, lockName, lockIdentity, lockTTL)
	if err != nil {
		return err
	}
	fmt.Printf("Locked %s %q until %s\n", lk.Level, lk.TargetID, lk.ExpiresAt.Format("15:04:05"))
	return nil
}

func runScopeUnlock(cmd *cobra.Command, args []string) error {
	c := client.New(serverURL)
	if err := c.UnlockScope(context.Background()); err != nil {
		return err
	}
	fmt.Println("Scope unlocked")
	return nil
}
