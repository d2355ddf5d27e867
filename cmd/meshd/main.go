package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/reseda/meshd/internal/clock"
	"github.com/reseda/meshd/internal/config"
	"github.com/reseda/meshd/internal/events"
	"github.com/reseda/meshd/internal/externalops"
	"github.com/reseda/meshd/internal/httpserver"
	"github.com/reseda/meshd/internal/meshapi"
	"github.com/reseda/meshd/internal/meshnode"
	"github.com/reseda/meshd/internal/notify"
	"github.com/reseda/meshd/internal/platform"
	"github.com/reseda/meshd/internal/registrar"
	"github.com/reseda/meshd/internal/scheduler"
	"github.com/reseda/meshd/internal/store"
	"github.com/reseda/meshd/internal/task"
	"github.com/reseda/meshd/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: loading config: %v\n", err)
		os.Exit(1)
	}

	logger := platform.NewLogger(cfg.LogFormat, cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("starting meshd", "listen", cfg.ListenAddr())

	db, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("migrations applied")

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		client, err := platform.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer client.Close()
		rdb = client
		logger.Info("redis event mirror enabled")
	} else {
		logger.Info("redis event mirror disabled (REDIS_URL not set)")
	}

	if err := platform.BootstrapTLS(ctx, cfg.CloudflareKey, "mesh.reseda.app", cfg.TLSCertPath, cfg.TLSKeyPath); err != nil {
		logger.Error("bootstrap TLS issuance failed, continuing without refreshed certs", "error", err)
	} else {
		logger.Info("bootstrap TLS material written", "cert", cfg.TLSCertPath, "key", cfg.TLSKeyPath)
	}

	metricsReg := prometheus.NewRegistry()
	for _, c := range telemetry.All() {
		if err := metricsReg.Register(c); err != nil {
			return fmt.Errorf("registering metric: %w", err)
		}
	}

	clk := clock.NewReal()
	registry := meshnode.NewRegistry()
	queue := task.NewQueue()
	st := store.NewPostgresStore(db)
	ops := externalops.NewCloudflareOps(cfg.CloudflareZoneID, cfg.CloudflareKey, logger)

	pub := events.New(rdb, logger)
	ntf := notify.New(cfg.SlackBotToken, cfg.SlackAlertChannel, logger)

	reg := registrar.New(cfg.AuthenticationKey, registry, queue, ops, clk, logger)
	sched := scheduler.New(registry, queue, ops, st, clk, logger, pub, ntf)

	go sched.Run(ctx)

	srv := httpserver.NewServer(cfg, logger, db, rdb, metricsReg)
	api := meshapi.New(reg, logger)
	srv.NodeAPI.Mount("/", api.Routes())

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("meshd listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down meshd")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
