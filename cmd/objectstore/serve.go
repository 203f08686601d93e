package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
	"github.com/tendant/chi-demo/app"
	"github.com/tendant/chi-demo/middleware"

	"github.com/tendant/simple-objectstore/pkg/objectstore/api"
)

const shutdownTimeout = 10 * time.Second

// NewServeCommand creates the serve command
func NewServeCommand() *cobra.Command {
	var addr string
	var apiKeySHA256 string
	var maxBodyBytes int64

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve objects and payloads over HTTP",
		Long: `Serve the object store over HTTP under /api/v1.

Health checks are served at /healthz and /healthz/ready. When an API key
hash is given, every /api/v1 request must carry the matching key.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger := newLogger(cmd)
			store, err := openStorage(ctx, cmd, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			if apiKeySHA256 == "" {
				apiKeySHA256 = os.Getenv("OBJECTSTORE_API_KEY_SHA256")
			}

			server := app.DefaultApp()
			app.RoutesHealthz(server.R)
			app.RoutesHealthzReady(server.R)

			var apiKeyMiddleware func(http.Handler) http.Handler
			if apiKeySHA256 != "" {
				apiKeyMiddleware, err = middleware.ApiKeyMiddleware(middleware.ApiKeyConfig{
					APIKeys: map[string]string{"key1": apiKeySHA256},
				})
				if err != nil {
					return fmt.Errorf("failed to initialise API key middleware: %w", err)
				}
			}

			handler := api.NewHandler(store, logger)
			server.R.Route("/api/v1", func(r chi.Router) {
				r.Use(api.RequestIDMiddleware)
				r.Use(api.LoggingMiddleware(logger))
				r.Use(api.RecoveryMiddleware(logger))
				r.Use(api.RequestSizeLimitMiddleware(maxBodyBytes))
				if apiKeyMiddleware != nil {
					r.Use(apiKeyMiddleware)
				}
				r.Mount("/", handler.Routes())
			})

			httpServer := &http.Server{
				Addr:              addr,
				Handler:           server.R,
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("Starting server", "addr", addr, "container", store.Client().ContainerName())
				errCh <- httpServer.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return fmt.Errorf("server failed: %w", err)
			case <-ctx.Done():
			}

			logger.Info("Shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("graceful shutdown failed: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	cmd.Flags().StringVar(&apiKeySHA256, "api-key-sha256", "", "SHA-256 hash of the accepted API key (env OBJECTSTORE_API_KEY_SHA256)")
	cmd.Flags().Int64Var(&maxBodyBytes, "max-body-bytes", 0, "maximum request body size, 0 for unlimited")

	return cmd
}
