package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/toringerhartCAMM/QC/internal/logger"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the quality-check HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.newContainer(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			cfg := c.Config()
			server := &http.Server{
				Addr:         cfg.API.Bind,
				Handler:      c.Handler(),
				ReadTimeout:  cfg.APIRequestTimeout(),
				WriteTimeout: cfg.APIRequestTimeout(),
			}

			errCh := make(chan error, 1)
			go func() {
				logger.WithFields(logrus.Fields{
					"address": cfg.API.Bind,
					"timeout": cfg.API.RequestTimeout,
				}).Info("Starting HTTP server")
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
			}()

			// Wait for interrupt signal to gracefully shut down the server
			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			select {
			case err := <-errCh:
				return err
			case <-quit:
			case <-cmd.Context().Done():
			}

			logger.Info("Shutting down server...")
			ctx, cancel := context.WithTimeout(context.Background(), cfg.APIShutdownTimeout())
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				return err
			}

			logger.Info("Server exited")
			return nil
		},
	}
}
