package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"arc-framework/benchd/internal/api"
	"arc-framework/benchd/internal/launcher"
	"arc-framework/benchd/internal/server"
	"arc-framework/benchd/internal/telemetry"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server [-- args...]",
	Short: "Launch the benchmark HTTP server",
	Long: `Launch the benchmark HTTP server on the configured port (default :8888).

The worker pool is sized at twice the host's core count unless
server.worker_pool pins it. Positional arguments are forwarded unmodified
to the runtime. The server shuts down cleanly on SIGTERM or SIGINT.`,
	Args: cobra.ArbitraryArgs,
	RunE: runServer,
}

func runServer(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer app.Close()

	// A missing or unreachable collector is non-fatal.
	tp, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		slog.Warn("OTEL provider init failed, telemetry disabled", "err", err)
	} else if !tp.Enabled() {
		slog.Info("OTEL telemetry disabled (no endpoint configured)")
	} else {
		defer func() {
			shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if shutErr := tp.Shutdown(shutCtx); shutErr != nil {
				slog.Warn("OTEL shutdown error", "err", shutErr)
			}
		}()
	}

	root, err := app.registry.Root()
	if err != nil {
		return err
	}

	logger := slog.Default()
	gin.SetMode(gin.ReleaseMode)

	rt := server.New(server.Options{
		Host:            cfg.Server.Host,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		Logger:          logger,
		Middleware:      api.Chain(logger, cfg.Telemetry.ServiceName),
		OnWorkerStart: func(id, size int) {
			logger.Debug("worker active", "worker", id, "worker_pool", size)
		},
	})

	if err := launcher.New(rt, launcherOptions(cfg, logger)...).Launch(ctx, root, args); err != nil {
		return err
	}

	slog.Info("server stopped cleanly")
	return nil
}
