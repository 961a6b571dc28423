package cli

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/compozy/techrag/engine/infra/server"
	"github.com/compozy/techrag/pkg/config"
	"github.com/compozy/techrag/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"start"},
		Short:   "Start the HTTP API",
		RunE:    runServe,
	}
	cmd.Flags().String("host", "", "Host to bind")
	cmd.Flags().Int("port", 0, "Port to listen on")
	cmd.Flags().StringSlice("seed", nil, "YAML document files to ingest at startup")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	cfg := config.FromContext(ctx)
	if cfg.Runtime.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	rt, err := newAgentRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close(ctx) }()
	seeds, _ := cmd.Flags().GetStringSlice("seed")
	if err := rt.seed(ctx, seeds); err != nil {
		return err
	}
	srv, err := server.NewServer(ctx, &cfg.Server, server.Dependencies{
		Answerer:   rt.orchestrator,
		Summary:    rt.collector,
		Monitoring: rt.monitoring,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	logger.FromContext(ctx).Info("Serving techrag", "address", srv.Addr(), "environment", cfg.Runtime.Environment)
	return srv.Run(ctx)
}
