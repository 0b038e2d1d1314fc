package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"authflow-go/internal/app"
	"authflow-go/internal/config"

	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the sign-in HTTP service",
		Long: `Serves /login, /callback, /logout, /dashboard and /healthz, plus Prometheus
metrics on a separate port, until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFromFile(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a JSON configuration file")
	return cmd
}

// serve runs the application until ctx is done or a listener fails.
func serve(ctx context.Context, cfg *config.Config) error {
	application, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	errc, err := application.Start(ctx)
	if err != nil {
		_ = application.Close()
		return fmt.Errorf("application failed to start: %w", err)
	}

	var runErr error
	select {
	case <-ctx.Done():
		application.Logger.Info("Shutdown signal received, initiating graceful shutdown...")
	case runErr = <-errc:
	}

	// ctx is already cancelled here, so shutdown gets a fresh one.
	if err := application.Stop(context.Background()); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}
