package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hyperjump/kioku/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServerCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "Serve the vector HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, logger, err := opts.setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			logger.Info("config loaded",
				zap.String("config_path", path),
				zap.String("vectors_path", cfg.Storage.VectorsPath),
				zap.Bool("debug", cfg.Debug),
			)

			components, err := initializeComponents(cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := components.Close(); err != nil {
					logger.Warn("close components", zap.Error(err))
				}
			}()

			srv := server.NewServer(components.Manager, components.Store, cfg, logger)
			errCh := make(chan error, 1)
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigChan)
			select {
			case <-sigChan:
			case err := <-errCh:
				logger.Error("Server failed", zap.Error(err))
				return err
			}

			logger.Info("Shutting down...")
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Stop(ctx)
		},
	}
}
