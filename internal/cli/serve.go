package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Pr0Services/novagov/internal/server"
)

var (
	servePort     int
	servePolicy   string
	serveState    string
	serveAuditLog string
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntVar(&servePort, "port", 7171, "HTTP listen port")
	serveCmd.Flags().StringVar(&servePolicy, "policy", "", "Path to governance YAML (default ~/.novagov/governance.yaml)")
	serveCmd.Flags().StringVar(&serveState, "state", "", "Path to SQLite state database (empty = in-memory only)")
	serveCmd.Flags().StringVar(&serveAuditLog, "audit-log", "", "Path to hash-chained audit JSONL file")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the governance HTTP server",
	Long:  "Runs novagov as a central governance server.\nAgents and apps submit proposed executions for validation; checkpoints, violations and the scope lock live here.\nSupports hot-reload of the governance config file.",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := server.Config{
		Port:         servePort,
		PolicyPath:   servePolicy,
		StatePath:    serveState,
		AuditLogPath: serveAuditLog,
	}

	srv, err := server.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	defer srv.Close()

	reloader, err := server.NewReloader(srv, []string{servePolicy})
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: hot-reload disabled: %v\n", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if reloader != nil {
		go reloader.Run(ctx)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nShutting down governance server...")
		cancel()
	}()

	fmt.Fprintf(os.Stderr, "novagov governance server listening on :%d\n", servePort)
	if serveState != "" {
		fmt.Fprintf(os.Stderr, "State: %s\n", serveState)
	}
	if serveAuditLog != "" {
		fmt.Fprintf(os.Stderr, "Audit log: %s\n", serveAuditLog)
	}
	fmt.Fprintln(os.Stderr)

	return srv.Start(ctx)
}
