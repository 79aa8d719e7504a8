package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"classroomd/internal/autoscaler"
	"classroomd/internal/billing"
	"classroomd/internal/config"
	"classroomd/internal/docker"
	"classroomd/internal/httpapi"
	"classroomd/internal/identity"
	"classroomd/internal/loadtest"
	"classroomd/internal/logger"
	"classroomd/internal/scheduler"
	"classroomd/internal/store"
	"classroomd/internal/store/memstore"
	"classroomd/internal/store/sqlstore"
)

func main() {
	app := &cli.App{
		Name:  "classroomd",
		Usage: "Teaching-oriented container orchestration control plane",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Start the control plane HTTP server and background loops",
				Action: runServe,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func runServe(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("classroomd: failed to load config: %w", err)
	}

	baseLogger := logger.NewLoggerFromEnv()
	defer baseLogger.Sync()
	ctx := logger.WithLogger(context.Background(), baseLogger)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	st, err := openStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("classroomd: failed to open store: %w", err)
	}
	defer st.Close()

	driver, err := docker.New(cfg.DockerHost)
	if err != nil {
		baseLogger.Warn("docker driver unavailable, containers will run in simulated mode only", zap.Error(err))
	}

	tokens := identity.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTL)

	dockerSampler := &autoscaler.DockerSampler{Client: driver}
	autoscalerEngine := autoscaler.New(st, dockerSampler, cfg.AutoscalerTickInterval)
	loadTestEngine := loadtest.New(st, dockerSampler)

	billingSampler := &billing.DockerSampler{Client: driver}
	var billingEngine *billing.Engine
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			baseLogger.Warn("invalid REDIS_URL, pricing cache disabled", zap.Error(err))
			billingEngine = billing.New(st, billingSampler, nil, cfg.PricingModelCacheTTL, cfg.BillingHarvestInterval)
		} else {
			redisClient := redis.NewClient(opts)
			billingEngine = billing.New(st, billingSampler, redisClient, cfg.PricingModelCacheTTL, cfg.BillingHarvestInterval)
		}
	} else {
		billingEngine = billing.New(st, billingSampler, nil, cfg.PricingModelCacheTTL, cfg.BillingHarvestInterval)
	}

	if err := billingEngine.SeedDefaultRates(ctx); err != nil {
		baseLogger.Error("failed to seed default pricing rates", zap.Error(err))
	}

	sched := scheduler.New(cfg.SchedulerShutdownDeadline, autoscalerEngine, billingEngine)
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("classroomd: failed to start scheduler: %w", err)
	}

	router := httpapi.NewRouter(httpapi.Deps{
		Store: st, Driver: driver, Tokens: tokens,
		Autoscaler: autoscalerEngine, LoadTest: loadTestEngine, Billing: billingEngine,
		FrontendURL: cfg.FrontendURL, BaseLogger: baseLogger,
	})

	addr := fmt.Sprintf("%s:%d", cfg.HTTPHost, cfg.HTTPPort)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		baseLogger.Info("shutdown signal received")
		cancel()
	}()

	go func() {
		baseLogger.Info("classroomd listening", zap.String("addr", addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			baseLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.SchedulerShutdownDeadline)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		baseLogger.Error("http server shutdown error", zap.Error(err))
	}
	if err := sched.Stop(shutdownCtx); err != nil {
		baseLogger.Error("scheduler shutdown error", zap.Error(err))
	}

	baseLogger.Info("classroomd stopped")
	return nil
}

func openStore(ctx context.Context, dsn string) (store.Store, error) {
	if dsn == "" {
		return memstore.New(), nil
	}
	return sqlstore.Open(ctx, dsn)
}
