package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Pr0Services/novagov/internal/audit"
	"github.com/Pr0Services/novagov/internal/client"
)

var (
	auditIdentity string
	auditAction   string
	auditSince    string
	auditLimit    int
	exportOut     string
	tailLines     int
)

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditExportCmd)
	auditCmd.AddCommand(auditVerifyCmd)
	auditCmd.AddCommand(auditTailCmd)
	auditCmd.PersistentFlags().StringVar(&auditIdentity, "identity", "", "Only entries for this user")
	auditCmd.PersistentFlags().StringVar(&auditAction, "action", "", "Only entries with this action")
	auditCmd.PersistentFlags().StringVar(&auditSince, "since", "", "Only entries at or after this RFC3339 time")
	auditCmd.PersistentFlags().IntVar(&auditLimit, "limit", 50, "Maximum entries to return")
	auditExportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "Write to file instead of stdout")
	auditTailCmd.Flags().IntVarP(&tailLines, "lines", "n", 10, "Number of recent entries to show")
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit trail operations",
	Long:  "Query the server's audit trail, export it as JSON, and verify or inspect\nthe hash-chained JSONL file on disk.",
	RunE:  runAuditQuery,
}

var auditExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export matching audit entries as JSON",
	RunE:  runAuditExport,
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify <path>",
	Short: "Verify hash chain integrity of an audit log file",
	Long:  "Walks the JSONL audit log and validates that every entry's prev_hash\nmatches the SHA-256 of the previous line. Exits 0 if valid, 1 if tampered.",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuditVerify,
}

var auditTailCmd = &cobra.Command{
	Use:   "tail <path>",
	Short: "Show recent entries from an audit log file",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuditTail,
}

func auditFilter() (audit.Filter, error) {
	f := audit.Filter{
		IdentityID: auditIdentity,
		Action:     audit.Action(auditAction),
		Limit:      auditLimit,
	}
	if auditSince != "" {
		t, err := time.Parse(time.RFC3339, auditSince)
		if err != nil {
			return f, fmt.Errorf("invalid --since %q: %w", auditSince, err)
		}
		f.Since = t
	}
	return f, nil
}

func runAuditQuery(cmd *cobra.Command, args []string) error {
	f, err := auditFilter()
	if err != nil {
		return err
	}
	c := client.New(serverURL)
	entries, err := c.Audit(context.Background(), f)
	if err != nil {
		return err
	}
	fmt.Print(audit.FormatTimeline(entries))
	return nil
}

func runAuditExport(cmd *cobra.Command, args []string) error {
	f, err := auditFilter()
	if err != nil {
		return err
	}
	c := client.New(serverURL)
	data, err := c.ExportAudit(context.Background(), f)
	if err != nil {
		return err
	}
	if exportOut == "" {
		fmt.Println(string(data))
		return nil
	}
	if err := os.WriteFile(exportOut, data, 0o600); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	fmt.Printf("Wrote %s\n", exportOut)
	return nil
}

func runAuditVerify(cmd *cobra.Command, args []string) error {
	result := audit.Verify(args[0])
	if result.Valid {
		fmt.Printf("OK: %d entries verified\n", result.Lines)
		return nil
	}
	fmt.Fprintf(os.Stderr, "FAILED at line %d: %s\n", result.ErrorLine, result.Error)
	os.Exit(1)
	return nil
}

func runAuditTail(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read audit log: %w", err)
	}

	start := len(lines) - tailLines
	if start < 0 {
		start = 0
	}

	for _, line := range lines[start:] {
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			fmt.Println(line)
			continue
		}
		out, _ := json.MarshalIndent(entry, "", "  ")
		fmt.Println(string(out))
	}
	return nil
}
