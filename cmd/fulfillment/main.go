package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/fulfillment/internal/app"
	"github.com/odyssey-erp/fulfillment/internal/ledger"
	"github.com/odyssey-erp/fulfillment/internal/masterdata"
	"github.com/odyssey-erp/fulfillment/internal/observability"
	"github.com/odyssey-erp/fulfillment/internal/platform/cache"
	"github.com/odyssey-erp/fulfillment/internal/platform/db"
	"github.com/odyssey-erp/fulfillment/internal/procurement"
	"github.com/odyssey-erp/fulfillment/internal/rbac"
	"github.com/odyssey-erp/fulfillment/internal/sales/orders"
	"github.com/odyssey-erp/fulfillment/internal/shared"
	"github.com/odyssey-erp/fulfillment/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.Connect(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)
	numbers := shared.NewNumberer(shared.NewRedisSequence(redisClient, "fulfillment:seq"), cfg.DocNumberRetries)
	directory := masterdata.NewRepository(dbpool)
	rbacMiddleware := rbac.Middleware{Logger: logger}

	jobClient, err := jobs.NewClient(cache.QueueOpt(cfg.RedisAddr), metrics)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	stockService := ledger.NewService(ledger.NewRepository(dbpool), auditLogger, metrics, logger)
	stockHandler := ledger.NewHandler(logger, stockService, rbacMiddleware)

	procurementService := procurement.NewService(procurement.NewRepository(dbpool), directory, numbers, procurement.Options{
		Audit:    auditLogger,
		Notifier: jobClient,
		Recorder: metrics,
		Logger:   logger,
	})
	procurementHandler := procurement.NewHandler(logger, procurementService, idempotencyStore, rbacMiddleware)

	ordersService := orders.NewService(orders.NewRepository(dbpool), directory, numbers, orders.Options{
		Audit:    auditLogger,
		Notifier: jobClient,
		Recorder: metrics,
		Logger:   logger,
	})
	ordersHandler := orders.NewHandler(logger, ordersService, idempotencyStore, rbacMiddleware)

	inspector := asynq.NewInspector(cache.QueueOpt(cfg.RedisAddr))
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		ProcurementHandler: procurementHandler,
		OrdersHandler:      ordersHandler,
		StockHandler:       stockHandler,
		JobHandler:         jobHandler,
		PermissionsHandler: rbac.NewPermissionsHandler(),
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
