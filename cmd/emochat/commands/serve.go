package commands

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/haivivi/emochat/cmd/emochat/internal/build"
	"github.com/haivivi/emochat/cmd/emochat/internal/httpapi"
	"github.com/haivivi/emochat/pkg/storage"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Run the HTTP API until SIGINT or SIGTERM.

Routes:
  POST /chat            multipart upload: file (WAV), text
  GET  /emotion-stats   ?date_param=YYYY-MM-DD (Authorization required)
  GET  /healthz

When an audio archive is configured, recordings older than storage.max_age
are deleted every server.cleanup_interval.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfig()
		if err != nil {
			return err
		}
		if serveAddr != "" {
			cfg.Server.Addr = serveAddr
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		svc := newServices(cfg)
		defer svc.Close()

		pipeline, err := svc.openPipeline(ctx)
		if err != nil {
			return err
		}
		logger := slog.Default()
		logger.Info("generators registered", "models", svc.models)

		if svc.archive != nil {
			go runCleaner(ctx, &storage.Cleaner{
				Store:  svc.archive,
				MaxAge: cfg.Storage.MaxAge,
				Suffix: cfg.Storage.Suffix,
				Logger: logger,
			}, cfg.Server.CleanupInterval)
		}

		srv := &http.Server{
			Addr: cfg.Server.Addr,
			Handler: httpapi.NewServer(pipeline, httpapi.Options{
				Name:           build.Name,
				Version:        build.Version,
				MaxUploadBytes: cfg.Server.MaxUploadBytes,
				CORSOrigins:    cfg.Server.CORSOrigins,
				Logger:         logger,
			}),
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info("listening", "addr", srv.Addr)
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}

// runCleaner sweeps once at start and then every interval until ctx ends.
func runCleaner(ctx context.Context, c *storage.Cleaner, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if n, err := c.Sweep(ctx, time.Now()); err != nil {
			slog.Warn("audio cleanup failed", "error", err)
		} else if n > 0 {
			slog.Info("audio cleanup", "deleted", n)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
	rootCmd.AddCommand(serveCmd)
}
