package handlers

import (
	"context"
	"fmt"
	"time"

	"genzweekly/internal/config"
	"genzweekly/internal/logger"
	"genzweekly/internal/server"

	"github.com/spf13/cobra"
)

// NewServeCmd creates the serve command for the archive API
func NewServeCmd() *cobra.Command {
	var (
		port int
		host string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the weekly archive and approval API over HTTP",
		Long: `Start the archive server.

The server provides:
  • JSON API for consolidated weeks and their generated content
  • Approval report and newsletter pages for review in a browser
  • Approve and reject endpoints guarded by server.admin_token

Examples:
  # Start server on default port 8080
  genzweekly serve

  # Approve the week from a script
  curl -X POST -H "Authorization: Bearer $ADMIN_API_KEY" \
    http://localhost:8080/api/weeks/2025-W24/approve`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), port, host)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "HTTP server port (default from config: 8080)")
	cmd.Flags().StringVar(&host, "host", "", "HTTP server host (default from config: 0.0.0.0)")

	return cmd
}

func runServe(ctx context.Context, port int, host string) error {
	log := logger.With("serve")

	serverCfg := config.GetServer()
	if port != 0 {
		serverCfg.Port = port
	}
	if host != "" {
		serverCfg.Host = host
	}

	p, err := buildPipeline(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	srv := server.New(p.Store(), p, serverCfg)

	serverErrors := make(chan error, 1)
	go func() {
		log.Info(fmt.Sprintf("Server listening on http://%s:%d", serverCfg.Host, serverCfg.Port))
		log.Info("Press Ctrl+C to stop")
		serverErrors <- srv.Start()
	}()

	select {
	case err := <-serverErrors:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil

	case <-ctx.Done():
		log.Info("Server shutdown initiated")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("Server shutdown failed", "error", err)
			return fmt.Errorf("server shutdown failed: %w", err)
		}

		log.Info("Server stopped successfully")
	}

	return nil
}
