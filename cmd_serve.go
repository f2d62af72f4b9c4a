package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/fasthttp/router"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	"batchpurge/internal/db"
	"batchpurge/internal/http/handlers"
	appmw "batchpurge/internal/http/middleware"
	"batchpurge/internal/metrics"
	"batchpurge/internal/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the purge on a schedule and serve the admin API",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gdb, err := db.Connect(cfg)
	if err != nil {
		return fmt.Errorf("failed to connect database: %w", err)
	}

	collector := metrics.NewCollector(prometheus.DefaultRegisterer)
	runner, ledger, err := newRunner(gdb, collector)
	if err != nil {
		return err
	}

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	if _, err := worker.StartRetentionWorker(ctx, runner, cfg.Schedule, loc, cfg.RunOnStart); err != nil {
		return err
	}

	if cfg.AdminTokenHash == "" {
		logger.Warn("APP_ADMIN_TOKEN_HASH is empty, admin API disabled")
	}
	admin := appmw.BearerAuth(cfg.AdminTokenHash)

	r := router.New()
	r.GET("/healthz", healthz(gdb))
	r.GET("/metrics", handlers.MetricsHandler(prometheus.DefaultGatherer))

	r.GET("/admin/purge", admin(handlers.PurgeStatus(runner)))
	r.POST("/admin/purge", admin(handlers.TriggerPurge(runner)))
	r.GET("/admin/purge/runs", admin(handlers.ListRuns(ledger)))
	r.GET("/admin/purge/runs/{id}", admin(handlers.GetRun(ledger)))

	server := &fasthttp.Server{
		Name:    "batchpurge",
		Handler: appmw.RequestLogger(r.Handler),
		// A purge triggered over HTTP runs synchronously.
		WriteTimeout: 30 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe(cfg.ListenAddr)
	}()
	logger.Infof("batchpurge listening on %s", cfg.ListenAddr)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	return server.Shutdown()
}

func healthz(gdb *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		sqlDB, err := gdb.DB()
		if err == nil {
			pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			err = sqlDB.PingContext(pingCtx)
			cancel()
		}
		if err != nil {
			logger.WithError(err).Warn("health check failed")
			ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
			ctx.SetBodyString("database unavailable")
			return
		}
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetBodyString("ok")
	}
}
