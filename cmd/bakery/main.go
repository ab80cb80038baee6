package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-bakery/internal/app"
	"github.com/odyssey-erp/odyssey-bakery/internal/auth"
	"github.com/odyssey-erp/odyssey-bakery/internal/cashier"
	"github.com/odyssey-erp/odyssey-bakery/internal/inventory"
	"github.com/odyssey-erp/odyssey-bakery/internal/masterdata/branches"
	"github.com/odyssey-erp/odyssey-bakery/internal/masterdata/products"
	"github.com/odyssey-erp/odyssey-bakery/internal/notifications"
	"github.com/odyssey-erp/odyssey-bakery/internal/observability"
	"github.com/odyssey-erp/odyssey-bakery/internal/orders"
	"github.com/odyssey-erp/odyssey-bakery/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-bakery/internal/platform/db"
	"github.com/odyssey-erp/odyssey-bakery/internal/production"
	"github.com/odyssey-erp/odyssey-bakery/internal/rbac"
	"github.com/odyssey-erp/odyssey-bakery/internal/reconciliation"
	"github.com/odyssey-erp/odyssey-bakery/internal/reports"
	"github.com/odyssey-erp/odyssey-bakery/internal/returns"
	"github.com/odyssey-erp/odyssey-bakery/internal/shared"
	"github.com/odyssey-erp/odyssey-bakery/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
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
	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTTTL, cfg.JWTIssuer)
	authn := auth.Authenticator{Tokens: tokens, Logger: logger}
	authService := auth.NewService(auth.NewRepository(pool), tokens)

	rbacService := rbac.NewService(nil)
	rbacMiddleware := rbac.Middleware{Service: rbacService, Logger: logger}

	notificationService := notifications.NewService(notifications.NewRepository(pool))

	inventoryService := inventory.NewService(inventory.NewRepository(pool), auditLogger, inventory.ServiceConfig{
		BatchChunkSize: cfg.InventoryBatchChunkSize,
		Metrics:        inventory.NewMetrics(metrics.Registerer()),
		Logger:         logger,
	})
	reconciliationService := reconciliation.NewService(
		reconciliation.NewRepository(pool),
		inventoryService,
		cache.NewLocker(redisClient, cfg.ReconcileLockTTL),
	)

	reportCache := reports.NewCache(redisClient, cfg.ReportCacheTTL)
	if err := reportCache.ListenForInvalidation(ctx, func(version int64) {
		logger.Debug("report cache invalidated", slog.Int64("version", version))
	}); err != nil {
		logger.Warn("subscribe report invalidation", slog.Any("error", err))
	}
	reportService := reports.NewService(reports.NewRepository(pool), reportCache)
	pdf := reports.NewPDFRenderer(cfg.GotenbergURL)
	if err := pdf.Ping(ctx); err != nil {
		logger.Warn("gotenberg unavailable, pdf exports will fail", slog.Any("error", err))
	}

	ordersService := orders.NewService(orders.NewRepository(pool), auditLogger, notificationService)
	cashierService := cashier.NewService(cashier.Dependencies{
		Repo:        cashier.NewRepository(pool),
		Stock:       inventoryService,
		Idempotency: idempotencyStore,
		Audit:       auditLogger,
		Reports:     reportCache,
		Logger:      logger,
	})
	returnsService := returns.NewService(returns.NewRepository(pool), inventoryService, auditLogger)
	productionService := production.NewService(production.NewRepository(pool), auditLogger, notificationService, logger)

	asynqOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	inspector := asynq.NewInspector(asynqOpts)
	jobClient := jobs.NewClient(asynqOpts)
	defer func() {
		if err := errors.Join(inspector.Close(), jobClient.Close()); err != nil {
			logger.Warn("job queue close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:        logger,
		Config:        cfg,
		Authenticator: authn,
		Metrics:       metrics,

		AuthHandler:           auth.NewHandler(logger, authService, authn),
		PermissionsHandler:    rbac.NewPermissionsHandler(logger, rbacService),
		ProductsHandler:       products.NewHandler(logger, products.NewService(products.NewRepository(pool), auditLogger), rbacMiddleware),
		BranchesHandler:       branches.NewHandler(logger, branches.NewService(branches.NewRepository(pool), auditLogger), rbacMiddleware),
		InventoryHandler:      inventory.NewHandler(logger, inventoryService, rbacMiddleware),
		ReconciliationHandler: reconciliation.NewHandler(logger, reconciliationService, rbacMiddleware),
		OrdersHandler:         orders.NewHandler(logger, ordersService, rbacMiddleware),
		CashierHandler:        cashier.NewHandler(logger, cashierService, rbacMiddleware),
		ReturnsHandler:        returns.NewHandler(logger, returnsService, rbacMiddleware),
		ProductionHandler:     production.NewHandler(logger, productionService, rbacMiddleware),
		NotificationsHandler:  notifications.NewHandler(notificationService, rbacMiddleware),
		ReportsHandler:        reports.NewHandler(logger, reportService, pdf, rbacMiddleware),
		JobHandler:            jobs.NewHandler(inspector, jobClient, rbacMiddleware, logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
